package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const accessLogMessage = "HTTP Request"

// AccessLogOption configures GinMiddleware
type AccessLogOption func(*accessLog)

type accessLog struct {
	quiet map[string]bool
}

// WithQuietPaths logs successful requests on paths at debug instead of info.
// Meant for probes polled every few seconds.
func WithQuietPaths(paths ...string) AccessLogOption {
	return func(a *accessLog) {
		for _, p := range paths {
			a.quiet[p] = true
		}
	}
}

// GinMiddleware installs a request-scoped logger in the request context and
// writes one access log line per request. Run it after RequestID.
func GinMiddleware(base *zap.Logger, opts ...AccessLogOption) gin.HandlerFunc {
	cfg := accessLog{quiet: map[string]bool{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		ctx, reqLog := WithRequestID(req.Context(), base, c.GetString("request_id"))
		reqLog = WithTraceContext(ctx, reqLog.With(
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
		))
		c.Request = req.WithContext(WithContext(ctx, reqLog))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if q := req.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		// set by the JWT middleware further down the chain
		if caller := GetCallerAddress(c.Request.Context()); caller != "" {
			fields = append(fields, zap.String("caller_address", caller))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		if ce := reqLog.Check(cfg.levelFor(req.URL.Path, status), accessLogMessage); ce != nil {
			ce.Write(fields...)
		}
	}
}

func (a accessLog) levelFor(path string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	case a.quiet[path]:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Recovery turns a panic into a 500 with the standard error envelope
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			requestID := c.GetString("request_id")
			FromContextOr(c.Request.Context(), base).Error("Panic recovered",
				zap.String("request_id", requestID),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stacktrace"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":       "ERR_INTERNAL",
					"message":    "An internal error occurred",
					"request_id": requestID,
				},
			})
		}()
		c.Next()
	}
}
