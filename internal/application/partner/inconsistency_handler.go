package partner

import (
	"context"
	"fmt"
	"time"

	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RepairSubmitter queues a pair repair for asynchronous execution
type RepairSubmitter interface {
	Submit(req RepairRequest) error
}

// MirrorInconsistencyHandler turns MirrorInconsistencyDetected events into
// repair jobs.
type MirrorInconsistencyHandler struct {
	submitter   RepairSubmitter
	claims      shared.IdempotencyStore
	dedupWindow time.Duration
	logger      *zap.Logger
}

// InconsistencyHandlerOption configures a MirrorInconsistencyHandler
type InconsistencyHandlerOption func(*MirrorInconsistencyHandler)

// WithRepairDedup queues at most one repair per operation and pair within
// window. A repair that fails inside the window is left to the sweep.
func WithRepairDedup(store shared.IdempotencyStore, window time.Duration) InconsistencyHandlerOption {
	return func(h *MirrorInconsistencyHandler) {
		if store != nil && window > 0 {
			h.claims = store
			h.dedupWindow = window
		}
	}
}

// NewMirrorInconsistencyHandler creates a new handler
func NewMirrorInconsistencyHandler(submitter RepairSubmitter, logger *zap.Logger, opts ...InconsistencyHandlerOption) *MirrorInconsistencyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &MirrorInconsistencyHandler{
		submitter: submitter,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *MirrorInconsistencyHandler) EventTypes() []string {
	return []string{partner.EventTypeMirrorInconsistencyDetected}
}

// Handle submits a repair for the pair named in the event
func (h *MirrorInconsistencyHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*partner.MirrorInconsistencyDetectedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T for %s", event, partner.EventTypeMirrorInconsistencyDetected)
	}

	req := RepairFromWarning(e.Warning)
	if h.claims != nil {
		fresh, err := h.claims.MarkProcessed(ctx, req.Key(), h.dedupWindow)
		if err != nil {
			// best effort: queue without dedup
			h.logger.Warn("Repair dedup unavailable", zap.Error(err))
		} else if !fresh {
			h.logger.Debug("Pair repair already queued", zap.String("key", req.Key()))
			return nil
		}
	}

	if err := h.submitter.Submit(req); err != nil {
		h.logger.Error("Failed to queue pair repair",
			zap.String("code", e.Warning.Code),
			zap.String("self_address", req.SelfAddress),
			zap.String("company_address", req.CompanyAddress),
			zap.Error(err))
		return err
	}

	h.logger.Debug("Pair repair queued",
		zap.String("event_id", e.EventID().String()),
		zap.String("code", e.Warning.Code),
		zap.String("operation", string(req.Operation)))
	return nil
}

var _ shared.EventHandler = (*MirrorInconsistencyHandler)(nil)
