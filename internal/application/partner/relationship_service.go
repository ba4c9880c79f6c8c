package partner

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/domain/shared"
	"github.com/supplychain/backend/internal/infrastructure/logger"
	"github.com/supplychain/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MetricsRecorder receives relationship write counters
type MetricsRecorder interface {
	RecordCreated(ctx context.Context, relationship string, records int)
	RecordDeleted(ctx context.Context, records int)
	RecordWarning(ctx context.Context, operation, code string)
}

// RelationshipService manages mirrored partner relationship pairs
type RelationshipService struct {
	repo       partner.RelationshipRepository
	directory  partner.CompanyDirectory
	publisher  shared.EventPublisher
	transactor partner.PairTransactor
	metrics    MetricsRecorder
	logger     *zap.Logger

	rejectReverse bool
}

// RelationshipServiceOption is a functional option for configuring RelationshipService
type RelationshipServiceOption func(*RelationshipService)

// WithEventPublisher sets the publisher for relationship domain events
func WithEventPublisher(publisher shared.EventPublisher) RelationshipServiceOption {
	return func(s *RelationshipService) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithReversePairCheck makes Create refuse a pair whose reverse record already
// exists. Off by default: only the requested direction is checked and the
// taken mirror surfaces as MIRROR_CREATE_FAILED.
func WithReversePairCheck(enabled bool) RelationshipServiceOption {
	return func(s *RelationshipService) {
		s.rejectReverse = enabled
	}
}

// WithPairTransactor makes both halves of every pair write commit in one
// transaction. Without it the two writes are independent.
func WithPairTransactor(tx partner.PairTransactor) RelationshipServiceOption {
	return func(s *RelationshipService) {
		s.transactor = tx
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) RelationshipServiceOption {
	return func(s *RelationshipService) {
		s.metrics = m
	}
}

// WithLogger sets the fallback logger used when the context carries none
func WithLogger(l *zap.Logger) RelationshipServiceOption {
	return func(s *RelationshipService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRelationshipService creates a new RelationshipService
func NewRelationshipService(
	repo partner.RelationshipRepository,
	directory partner.CompanyDirectory,
	opts ...RelationshipServiceOption,
) *RelationshipService {
	s := &RelationshipService{
		repo:      repo,
		directory: directory,
		publisher: shared.NoopEventPublisher{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsAtomic reports whether pair writes run inside a single transaction
func (s *RelationshipService) IsAtomic() bool {
	return s.transactor != nil
}

// Create stores a relationship and its mirror. The primary record is written
// first; if the mirror write then fails the primary stays and the result
// carries a MIRROR_CREATE_FAILED warning.
func (s *RelationshipService) Create(ctx context.Context, req CreateRelationshipRequest) (*MutationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "RelationshipService", "Create")
	defer span.End()

	if err := partner.ValidatePair(req.SelfAddress, req.CompanyAddress); err != nil {
		return nil, err
	}
	relType, err := partner.ParseRelationshipType(req.Relationship)
	if err != nil {
		return nil, err
	}
	self := partner.NormalizeAddress(req.SelfAddress)
	company := partner.NormalizeAddress(req.CompanyAddress)
	telemetry.SetAttributes(span, "self_address", self, "company_address", company, "relationship", string(relType))

	if err := s.ensurePairFree(ctx, s.repo, self, company); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	partnerName, callerName, err := s.resolveNames(ctx, self, company, req.CompanyName)
	if err != nil {
		telemetry.RecordError(span, err)
		s.log(ctx).Error("Company name lookup failed", zap.String("self_address", self),
			zap.String("company_address", company), zap.Error(err))
		return nil, err
	}

	primary, err := partner.NewPartnerRelationship(self, company, relType, partnerName)
	if err != nil {
		return nil, err
	}
	mirror, err := primary.NewMirror(callerName)
	if err != nil {
		return nil, err
	}

	result := newMutationResult(primary)
	if s.transactor != nil {
		err = s.transactor.WithinPairTransaction(ctx, func(repo partner.RelationshipRepository) error {
			if err := insertRecord(ctx, repo, primary); err != nil {
				return err
			}
			return insertRecord(ctx, repo, mirror)
		})
		if err != nil {
			return nil, s.fail(ctx, span, "create relationship pair", err)
		}
		s.recordCreated(ctx, relType, 2)
		s.publish(ctx, primary.ID, result, primary, mirror)
		return result, nil
	}

	if err := insertRecord(ctx, s.repo, primary); err != nil {
		return nil, s.fail(ctx, span, "create relationship", err)
	}

	records := 1
	if err := insertRecord(ctx, s.repo, mirror); err != nil {
		s.warn(ctx, result, partner.NewConsistencyWarning(partner.WarnMirrorCreateFailed, partner.OperationCreate, self, company), err)
		s.publish(ctx, primary.ID, result, primary)
	} else {
		records = 2
		s.publish(ctx, primary.ID, result, primary, mirror)
	}
	s.recordCreated(ctx, relType, records)

	s.log(ctx).Info("Relationship created",
		zap.String("relationship_id", primary.ID.String()),
		zap.String("self_address", self),
		zap.String("company_address", company),
		zap.String("relationship", string(relType)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// List returns the active relationships owned by selfAddress, newest first
func (s *RelationshipService) List(ctx context.Context, selfAddress string) ([]RelationshipResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "RelationshipService", "List")
	defer span.End()

	if err := partner.ValidateAddress("self_address", selfAddress); err != nil {
		return nil, err
	}
	records, err := s.repo.FindAllBySelf(ctx, partner.NormalizeAddress(selfAddress), partner.RelationshipStatusActive)
	if err != nil {
		return nil, s.fail(ctx, span, "list relationships", err)
	}
	return ToRelationshipResponses(records), nil
}

// Get returns a single record by ID
func (s *RelationshipService) Get(ctx context.Context, id uuid.UUID) (*RelationshipResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "RelationshipService", "Get")
	defer span.End()

	record, err := s.findByID(ctx, span, id)
	if err != nil {
		return nil, err
	}
	resp := ToRelationshipResponse(record)
	return &resp, nil
}

// Update changes company name and/or status of one record. A supplied status
// is also applied to the mirror; the company name is not, because the mirror
// holds the other party's name. Mirror problems are reported as warnings.
func (s *RelationshipService) Update(ctx context.Context, id uuid.UUID, req UpdateRelationshipRequest) (*MutationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "RelationshipService", "Update")
	defer span.End()

	fields, err := req.ToFields()
	if err != nil {
		return nil, err
	}
	record, err := s.findByID(ctx, span, id)
	if err != nil {
		return nil, err
	}
	if _, err := record.Apply(fields); err != nil {
		return nil, err
	}

	result := newMutationResult(record)
	var mirror *partner.PartnerRelationship

	if s.transactor != nil {
		err = s.transactor.WithinPairTransaction(ctx, func(repo partner.RelationshipRepository) error {
			if err := updateRecord(ctx, repo, id, fields); err != nil {
				return err
			}
			if fields.Status == nil {
				return nil
			}
			m, err := findMirror(ctx, repo, record)
			if err != nil || m == nil {
				return err
			}
			mirror = m
			return propagateStatus(ctx, repo, m, *fields.Status)
		})
		if err != nil {
			return nil, s.fail(ctx, span, "update relationship pair", err)
		}
		if fields.Status != nil && mirror == nil {
			s.warn(ctx, result, partner.NewConsistencyWarning(partner.WarnMirrorNotFound, partner.OperationUpdate, record.SelfAddress, record.CompanyAddress), nil)
		}
		s.publish(ctx, record.ID, result, record, mirror)
		return result, nil
	}

	if err := updateRecord(ctx, s.repo, id, fields); err != nil {
		return nil, s.fail(ctx, span, "update relationship", err)
	}

	if fields.Status != nil {
		mirror = s.propagateStatusBestEffort(ctx, result, record, *fields.Status)
	}
	s.publish(ctx, record.ID, result, record, mirror)

	s.log(ctx).Info("Relationship updated",
		zap.String("relationship_id", record.ID.String()),
		zap.String("status", string(record.Status)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// Delete removes a record, then removes its mirror on a best-effort basis.
// A mirror that is already gone is not reported.
func (s *RelationshipService) Delete(ctx context.Context, id uuid.UUID) (*MutationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "RelationshipService", "Delete")
	defer span.End()

	record, err := s.findByID(ctx, span, id)
	if err != nil {
		return nil, err
	}
	result := newMutationResult(record)
	var mirror *partner.PartnerRelationship

	if s.transactor != nil {
		err = s.transactor.WithinPairTransaction(ctx, func(repo partner.RelationshipRepository) error {
			if err := deleteRecord(ctx, repo, id); err != nil {
				return err
			}
			m, err := findMirror(ctx, repo, record)
			if err != nil || m == nil {
				return err
			}
			mirror = m
			err = deleteRecord(ctx, repo, m.ID)
			if shared.IsNotFound(err) {
				return nil
			}
			return err
		})
		if err != nil {
			return nil, s.fail(ctx, span, "delete relationship pair", err)
		}
	} else {
		if err := deleteRecord(ctx, s.repo, id); err != nil {
			return nil, s.fail(ctx, span, "delete relationship", err)
		}
		mirror = s.deleteMirrorBestEffort(ctx, result, record)
	}

	events := []*partner.PartnerRelationship{record}
	records := 1
	if mirror != nil {
		records = 2
		events = append(events, mirror)
	}
	for _, r := range events {
		r.ClearDomainEvents()
		r.AddDomainEvent(partner.NewRelationshipDeletedEvent(r))
	}
	s.publish(ctx, record.ID, result, events...)
	if s.metrics != nil {
		s.metrics.RecordDeleted(ctx, records)
	}

	s.log(ctx).Info("Relationship deleted",
		zap.String("relationship_id", record.ID.String()),
		zap.Int("records", records),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// ensurePairFree rejects a create when the requested direction is taken, and
// with the reverse check on, when the reverse direction is.
func (s *RelationshipService) ensurePairFree(ctx context.Context, repo partner.RelationshipRepository, self, company string) error {
	if _, err := repo.FindOne(ctx, self, company); err == nil {
		return partner.ErrRelationshipExists
	} else if !shared.IsNotFound(err) {
		return storageError("check relationship", err)
	}
	if !s.rejectReverse {
		return nil
	}
	if _, err := repo.FindOne(ctx, company, self); err == nil {
		return partner.ErrReverseRelationshipExists
	} else if !shared.IsNotFound(err) {
		return storageError("check reverse relationship", err)
	}
	return nil
}

// resolveNames looks up the partner's and the caller's display names
// concurrently. An override replaces the partner lookup.
func (s *RelationshipService) resolveNames(ctx context.Context, self, company, override string) (partnerName, callerName string, err error) {
	g, gctx := errgroup.WithContext(ctx)

	partnerName = strings.TrimSpace(override)
	if partnerName == "" {
		g.Go(func() error {
			name, _, err := s.directory.ResolveName(gctx, company)
			partnerName = clampName(name)
			return err
		})
	}
	g.Go(func() error {
		name, _, err := s.directory.ResolveName(gctx, self)
		callerName = clampName(name)
		return err
	})

	if err := g.Wait(); err != nil {
		return "", "", shared.NewStorageError("resolve company name", err)
	}
	return partnerName, callerName, nil
}

func (s *RelationshipService) propagateStatusBestEffort(ctx context.Context, result *MutationResult, record *partner.PartnerRelationship, status partner.RelationshipStatus) *partner.PartnerRelationship {
	mirror, err := findMirror(ctx, s.repo, record)
	if err != nil {
		s.warn(ctx, result, partner.NewConsistencyWarning(partner.WarnMirrorUpdateFailed, partner.OperationUpdate, record.SelfAddress, record.CompanyAddress), err)
		return nil
	}
	if mirror == nil {
		s.warn(ctx, result, partner.NewConsistencyWarning(partner.WarnMirrorNotFound, partner.OperationUpdate, record.SelfAddress, record.CompanyAddress), nil)
		return nil
	}
	if err := propagateStatus(ctx, s.repo, mirror, status); err != nil {
		code := partner.WarnMirrorUpdateFailed
		if shared.IsNotFound(err) {
			code = partner.WarnMirrorNotFound
		}
		s.warn(ctx, result, partner.NewConsistencyWarning(code, partner.OperationUpdate, record.SelfAddress, record.CompanyAddress), err)
		return nil
	}
	return mirror
}

func (s *RelationshipService) deleteMirrorBestEffort(ctx context.Context, result *MutationResult, record *partner.PartnerRelationship) *partner.PartnerRelationship {
	mirror, err := findMirror(ctx, s.repo, record)
	if err != nil {
		s.warn(ctx, result, partner.NewConsistencyWarning(partner.WarnMirrorDeleteFailed, partner.OperationDelete, record.SelfAddress, record.CompanyAddress), err)
		return nil
	}
	if mirror == nil {
		return nil
	}
	if err := s.repo.DeleteByID(ctx, mirror.ID); err != nil {
		if shared.IsNotFound(err) {
			return nil
		}
		s.warn(ctx, result, partner.NewConsistencyWarning(partner.WarnMirrorDeleteFailed, partner.OperationDelete, record.SelfAddress, record.CompanyAddress), err)
		return nil
	}
	return mirror
}

func (s *RelationshipService) findByID(ctx context.Context, span trace.Span, id uuid.UUID) (*partner.PartnerRelationship, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, partner.ErrRelationshipNotFound
		}
		return nil, s.fail(ctx, span, "find relationship", err)
	}
	return record, nil
}

// warn records a consistency warning on the result and surfaces it in logs,
// metrics and the active span. cause is logged but never returned to callers.
func (s *RelationshipService) warn(ctx context.Context, result *MutationResult, w partner.ConsistencyWarning, cause error) {
	result.Warnings = append(result.Warnings, w)

	fields := []zap.Field{
		zap.String("code", w.Code),
		zap.String("operation", string(w.Operation)),
		zap.String("self_address", w.SelfAddress),
		zap.String("company_address", w.CompanyAddress),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	s.log(ctx).Warn("Mirror record out of step", fields...)

	if s.metrics != nil {
		s.metrics.RecordWarning(ctx, string(w.Operation), w.Code)
	}
	telemetry.AddEvent(trace.SpanFromContext(ctx), "consistency_warning",
		"warning_code", w.Code, "operation", string(w.Operation))
}

// publish sends the records' pending domain events plus one
// MirrorInconsistencyDetected event per warning. Publish errors are logged only.
func (s *RelationshipService) publish(ctx context.Context, primaryID uuid.UUID, result *MutationResult, records ...*partner.PartnerRelationship) {
	var events []shared.DomainEvent
	for _, r := range records {
		if r == nil {
			continue
		}
		events = append(events, r.PullDomainEvents()...)
	}
	for _, w := range result.Warnings {
		events = append(events, partner.NewMirrorInconsistencyDetectedEvent(primaryID, w))
	}
	if len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.log(ctx).Error("Failed to publish relationship events", zap.Int("events", len(events)), zap.Error(err))
	}
}

func (s *RelationshipService) recordCreated(ctx context.Context, rel partner.RelationshipType, records int) {
	if s.metrics != nil {
		s.metrics.RecordCreated(ctx, string(rel), records)
	}
}

// fail converts err to a domain error, logging storage failures once here
func (s *RelationshipService) fail(ctx context.Context, span trace.Span, op string, err error) error {
	err = storageError(op, err)
	telemetry.RecordError(span, err)
	if shared.IsStorage(err) {
		s.log(ctx).Error("Relationship storage failure", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (s *RelationshipService) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

func insertRecord(ctx context.Context, repo partner.RelationshipRepository, r *partner.PartnerRelationship) error {
	return repo.Insert(ctx, r)
}

func updateRecord(ctx context.Context, repo partner.RelationshipRepository, id uuid.UUID, fields partner.RelationshipFields) error {
	err := repo.UpdateFields(ctx, id, fields)
	if shared.IsNotFound(err) {
		return partner.ErrRelationshipNotFound
	}
	return err
}

func deleteRecord(ctx context.Context, repo partner.RelationshipRepository, id uuid.UUID) error {
	err := repo.DeleteByID(ctx, id)
	if shared.IsNotFound(err) {
		return partner.ErrRelationshipNotFound
	}
	return err
}

// findMirror returns the record stored under the swapped pair, or nil
func findMirror(ctx context.Context, repo partner.RelationshipRepository, r *partner.PartnerRelationship) (*partner.PartnerRelationship, error) {
	self, company := r.MirrorKey()
	m, err := repo.FindOne(ctx, self, company)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// propagateStatus applies status to the mirror unless it already has it
func propagateStatus(ctx context.Context, repo partner.RelationshipRepository, mirror *partner.PartnerRelationship, status partner.RelationshipStatus) error {
	if mirror.Status == status {
		return nil
	}
	if _, err := mirror.Apply(partner.StatusOnly(status)); err != nil {
		return err
	}
	return repo.UpdateFields(ctx, mirror.ID, partner.StatusOnly(status))
}

// storageError passes domain errors through and wraps anything else
func storageError(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewStorageError(op, err)
}

func clampName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= partner.MaxCompanyNameLength {
		return name
	}
	return string([]rune(name)[:partner.MaxCompanyNameLength])
}
