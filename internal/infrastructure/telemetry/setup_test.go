package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Settings{Enabled: false, ExportLogs: true}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, p.TracingEnabled())
	assert.NotNil(t, p.Meter("partner-service"))
	assert.NoError(t, p.Shutdown(context.Background()))

	base := zap.NewNop()
	assert.Same(t, base, p.Bridge(base))
}

func TestProviders_NilSafe(t *testing.T) {
	var p *Providers
	assert.False(t, p.TracingEnabled())
	assert.NotNil(t, p.Meter("x"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1.0, sdktrace.AlwaysSample().Description()},
		{2.0, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{-1, sdktrace.NeverSample().Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, samplerFor(tt.ratio).Description(), "ratio %v", tt.ratio)
	}
}

func TestMinLevelCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := minLevelCore{Core: inner, min: zapcore.WarnLevel}
	log := zap.New(core).With(zap.String("relationship_id", "r-1"))

	log.Info("Relationship created")
	log.Warn("Mirror not found")
	log.Error("Mirror update failed")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "Mirror not found", logs.All()[0].Message)
	assert.Equal(t, "r-1", logs.All()[1].ContextMap()["relationship_id"])
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}
