package partner

import (
	"context"
	"fmt"
	"time"

	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/domain/shared"
	"github.com/supplychain/backend/internal/infrastructure/logger"
	"github.com/supplychain/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// OrphanPolicy decides what a sweep does with a record whose mirror is missing
type OrphanPolicy string

const (
	OrphanPolicyReport  OrphanPolicy = "report"
	OrphanPolicyRestore OrphanPolicy = "restore"
	OrphanPolicyRemove  OrphanPolicy = "remove"
)

// ParseOrphanPolicy parses a policy name; empty means report
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch p := OrphanPolicy(s); p {
	case "":
		return OrphanPolicyReport, nil
	case OrphanPolicyReport, OrphanPolicyRestore, OrphanPolicyRemove:
		return p, nil
	default:
		return "", fmt.Errorf("unknown orphan policy %q", s)
	}
}

// ReconcileMetricsRecorder receives reconciliation metrics
type ReconcileMetricsRecorder interface {
	RecordRepair(ctx context.Context, action, outcome string)
	RecordSweep(ctx context.Context, d time.Duration, unpaired, mismatched int)
}

// ReconciliationService brings mirrored pairs back in step after a partial write
type ReconciliationService struct {
	repo         partner.RelationshipRepository
	directory    partner.CompanyDirectory
	orphanPolicy OrphanPolicy
	sweepLimit   int
	metrics      ReconcileMetricsRecorder
	logger       *zap.Logger
	now          func() time.Time
}

// ReconciliationOption configures a ReconciliationService
type ReconciliationOption func(*ReconciliationService)

// WithOrphanPolicy sets the sweep's orphan policy
func WithOrphanPolicy(p OrphanPolicy) ReconciliationOption {
	return func(s *ReconciliationService) {
		s.orphanPolicy = p
	}
}

// WithSweepLimit caps the anomalies handled per kind in one sweep
func WithSweepLimit(n int) ReconciliationOption {
	return func(s *ReconciliationService) {
		if n > 0 {
			s.sweepLimit = n
		}
	}
}

// WithReconcileMetrics sets the metrics recorder
func WithReconcileMetrics(m ReconcileMetricsRecorder) ReconciliationOption {
	return func(s *ReconciliationService) {
		s.metrics = m
	}
}

// WithReconcileLogger sets the fallback logger
func WithReconcileLogger(l *zap.Logger) ReconciliationOption {
	return func(s *ReconciliationService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	repo partner.RelationshipRepository,
	directory partner.CompanyDirectory,
	opts ...ReconciliationOption,
) *ReconciliationService {
	s := &ReconciliationService{
		repo:         repo,
		directory:    directory,
		orphanPolicy: OrphanPolicyReport,
		sweepLimit:   500,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OrphanPolicy returns the configured orphan policy
func (s *ReconciliationService) OrphanPolicy() OrphanPolicy {
	return s.orphanPolicy
}

// Repair reconciles the pair named by req according to the operation that
// left it out of step. It is idempotent: a consistent pair is left alone.
//
//   - create: when the primary exists, its mirror is created or brought to
//     the primary's status.
//   - update: an existing mirror is brought to the primary's status. A
//     missing mirror may be the survivor of a partial delete, so it is
//     handled by the orphan policy and never recreated under report.
//   - delete: when the primary is gone, a leftover mirror is removed.
func (s *ReconciliationService) Repair(ctx context.Context, req RepairRequest) (*RepairResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ReconciliationService", "Repair")
	defer span.End()

	self := partner.NormalizeAddress(req.SelfAddress)
	company := partner.NormalizeAddress(req.CompanyAddress)
	if err := partner.ValidatePair(self, company); err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span, "operation", string(req.Operation), "self_address", self, "company_address", company)

	var (
		action string
		err    error
	)
	switch req.Operation {
	case partner.OperationCreate:
		action, err = s.restoreMirror(ctx, self, company)
	case partner.OperationUpdate:
		action, err = s.alignMirror(ctx, self, company)
	case partner.OperationDelete:
		action, err = s.removeLeftoverMirror(ctx, self, company)
	default:
		return nil, shared.NewValidationError("unknown repair operation: " + string(req.Operation))
	}

	s.recordRepair(ctx, action, err)
	if err != nil {
		telemetry.RecordError(span, err)
		s.log(ctx).Warn("Pair repair failed",
			zap.String("operation", string(req.Operation)),
			zap.String("self_address", self),
			zap.String("company_address", company),
			zap.Error(err))
		return nil, err
	}
	if action != RepairActionNone && action != RepairActionReported {
		s.log(ctx).Info("Pair repaired",
			zap.String("action", action),
			zap.String("self_address", self),
			zap.String("company_address", company))
	}
	return &RepairResult{Action: action, SelfAddress: self, CompanyAddress: company}, nil
}

// Sweep scans for pairs whose sides disagree on status and for active records
// without a mirror. Status disagreements are settled last-write-wins on
// UpdatedAt; orphans are handled by the orphan policy.
func (s *ReconciliationService) Sweep(ctx context.Context) (*SweepReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ReconciliationService", "Sweep")
	defer span.End()

	start := s.now()
	report := &SweepReport{
		StartedAt:    start.UTC(),
		OrphanPolicy: string(s.orphanPolicy),
		Actions:      []RepairResult{},
	}

	mismatched, err := s.repo.FindStatusMismatches(ctx, s.sweepLimit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, storageError("find status mismatches", err)
	}
	report.StatusMismatch = len(mismatched)
	for i := range mismatched {
		s.settleStatus(ctx, report, &mismatched[i])
	}

	unpaired, err := s.repo.FindUnpaired(ctx, s.sweepLimit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, storageError("find unpaired relationships", err)
	}
	report.Unpaired = len(unpaired)
	for i := range unpaired {
		s.handleOrphan(ctx, report, &unpaired[i])
	}

	report.Duration = s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.RecordSweep(ctx, report.Duration, report.Unpaired, report.StatusMismatch)
	}
	s.log(ctx).Info("Reconciliation sweep finished",
		zap.Int("unpaired", report.Unpaired),
		zap.Int("status_mismatch", report.StatusMismatch),
		zap.Int("repaired", report.Repaired),
		zap.Int("reported", report.Reported),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *ReconciliationService) restoreMirror(ctx context.Context, self, company string) (string, error) {
	primary, err := s.repo.FindOne(ctx, self, company)
	if err != nil {
		if shared.IsNotFound(err) {
			return RepairActionNone, nil
		}
		return "", storageError("find primary", err)
	}
	return s.ensureMirror(ctx, primary)
}

func (s *ReconciliationService) alignMirror(ctx context.Context, self, company string) (string, error) {
	primary, err := s.repo.FindOne(ctx, self, company)
	if err != nil {
		if shared.IsNotFound(err) {
			return RepairActionNone, nil
		}
		return "", storageError("find primary", err)
	}
	mirror, err := findMirror(ctx, s.repo, primary)
	if err != nil {
		return "", storageError("find mirror", err)
	}
	if mirror == nil {
		return s.resolveOrphan(ctx, primary)
	}
	return s.syncStatus(ctx, primary, mirror)
}

// ensureMirror makes the mirror of primary exist with primary's status
func (s *ReconciliationService) ensureMirror(ctx context.Context, primary *partner.PartnerRelationship) (string, error) {
	mirror, err := findMirror(ctx, s.repo, primary)
	if err != nil {
		return "", storageError("find mirror", err)
	}

	if mirror == nil {
		name, _, err := s.directory.ResolveName(ctx, primary.SelfAddress)
		if err != nil {
			return "", shared.NewStorageError("resolve company name", err)
		}
		m, err := primary.NewMirror(clampName(name))
		if err != nil {
			return "", err
		}
		if err := s.repo.Insert(ctx, m); err != nil {
			if partner.IsConflict(err) {
				return RepairActionNone, nil
			}
			return "", storageError("insert mirror", err)
		}
		return RepairActionMirrorCreated, nil
	}

	return s.syncStatus(ctx, primary, mirror)
}

func (s *ReconciliationService) syncStatus(ctx context.Context, primary, mirror *partner.PartnerRelationship) (string, error) {
	if mirror.Status == primary.Status {
		return RepairActionNone, nil
	}
	if err := s.repo.UpdateFields(ctx, mirror.ID, partner.StatusOnly(primary.Status)); err != nil {
		return "", storageError("update mirror", err)
	}
	return RepairActionMirrorUpdated, nil
}

// resolveOrphan applies the orphan policy to a record whose mirror is missing
func (s *ReconciliationService) resolveOrphan(ctx context.Context, record *partner.PartnerRelationship) (string, error) {
	switch s.orphanPolicy {
	case OrphanPolicyRestore:
		return s.ensureMirror(ctx, record)
	case OrphanPolicyRemove:
		if err := s.repo.DeleteByID(ctx, record.ID); err != nil && !shared.IsNotFound(err) {
			return "", storageError("remove orphan", err)
		}
		return RepairActionOrphanRemoved, nil
	default:
		s.log(ctx).Warn("Relationship has no mirror",
			zap.String("relationship_id", record.ID.String()),
			zap.String("self_address", record.SelfAddress),
			zap.String("company_address", record.CompanyAddress))
		return RepairActionReported, nil
	}
}

func (s *ReconciliationService) removeLeftoverMirror(ctx context.Context, self, company string) (string, error) {
	if _, err := s.repo.FindOne(ctx, self, company); err == nil {
		// pair was recreated since the delete
		return RepairActionNone, nil
	} else if !shared.IsNotFound(err) {
		return "", storageError("find primary", err)
	}

	mirror, err := s.repo.FindOne(ctx, company, self)
	if err != nil {
		if shared.IsNotFound(err) {
			return RepairActionNone, nil
		}
		return "", storageError("find mirror", err)
	}
	if err := s.repo.DeleteByID(ctx, mirror.ID); err != nil && !shared.IsNotFound(err) {
		return "", storageError("delete mirror", err)
	}
	return RepairActionMirrorDeleted, nil
}

// settleStatus copies the most recently updated side's status to the other side
func (s *ReconciliationService) settleStatus(ctx context.Context, report *SweepReport, record *partner.PartnerRelationship) {
	mirror, err := findMirror(ctx, s.repo, record)
	if err != nil {
		s.sweepFailure(ctx, report, record, "find mirror", err)
		return
	}
	if mirror == nil || mirror.Status == record.Status {
		return
	}

	winner, loser := record, mirror
	if mirror.UpdatedAt.After(record.UpdatedAt) {
		winner, loser = mirror, record
	}
	if err := s.repo.UpdateFields(ctx, loser.ID, partner.StatusOnly(winner.Status)); err != nil {
		s.sweepFailure(ctx, report, loser, "update status", err)
		return
	}
	s.recordRepair(ctx, RepairActionMirrorUpdated, nil)
	report.Repaired++
	report.Actions = append(report.Actions, RepairResult{
		Action:         RepairActionMirrorUpdated,
		SelfAddress:    loser.SelfAddress,
		CompanyAddress: loser.CompanyAddress,
	})
}

func (s *ReconciliationService) handleOrphan(ctx context.Context, report *SweepReport, record *partner.PartnerRelationship) {
	action, err := s.resolveOrphan(ctx, record)
	if err != nil {
		s.sweepFailure(ctx, report, record, "resolve orphan", err)
		return
	}
	switch action {
	case RepairActionReported:
		report.Reported++
	case RepairActionNone:
	default:
		report.Repaired++
	}
	s.recordRepair(ctx, action, nil)
	report.Actions = append(report.Actions, RepairResult{
		Action:         action,
		SelfAddress:    record.SelfAddress,
		CompanyAddress: record.CompanyAddress,
	})
}

func (s *ReconciliationService) sweepFailure(ctx context.Context, report *SweepReport, record *partner.PartnerRelationship, op string, err error) {
	report.Failed++
	s.recordRepair(ctx, op, err)
	s.log(ctx).Warn("Sweep repair failed",
		zap.String("op", op),
		zap.String("relationship_id", record.ID.String()),
		zap.Error(err))
}

func (s *ReconciliationService) recordRepair(ctx context.Context, action string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if action == "" {
		action = "unknown"
	}
	s.metrics.RecordRepair(ctx, action, outcome)
}

func (s *ReconciliationService) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, s.logger)
}
