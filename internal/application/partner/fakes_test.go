package partner

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/domain/shared"
)

// =============================================================================
// In-memory repository
// =============================================================================

// memoryRepository is a map-backed RelationshipRepository with failure hooks
type memoryRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]partner.PartnerRelationship

	insertErr func(r *partner.PartnerRelationship) error
	updateErr func(id uuid.UUID) error
	deleteErr func(id uuid.UUID) error
	findErr   func(self, company string) error
}

var _ partner.RelationshipRepository = (*memoryRepository)(nil)

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: make(map[uuid.UUID]partner.PartnerRelationship)}
}

func (m *memoryRepository) FindByID(_ context.Context, id uuid.UUID) (*partner.PartnerRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &r, nil
}

func (m *memoryRepository) FindOne(_ context.Context, self, company string) (*partner.PartnerRelationship, error) {
	if m.findErr != nil {
		if err := m.findErr(self, company); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.lookup(self, company); r != nil {
		out := *r
		return &out, nil
	}
	return nil, shared.ErrNotFound
}

func (m *memoryRepository) FindAllBySelf(_ context.Context, self string, status partner.RelationshipStatus) ([]partner.PartnerRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []partner.PartnerRelationship
	for _, r := range m.records {
		if r.SelfAddress == self && r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRepository) Insert(_ context.Context, r *partner.PartnerRelationship) error {
	if m.insertErr != nil {
		if err := m.insertErr(r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookup(r.SelfAddress, r.CompanyAddress) != nil {
		return partner.ErrRelationshipExists
	}
	stored := *r
	stored.ClearDomainEvents()
	m.records[r.ID] = stored
	return nil
}

func (m *memoryRepository) UpdateFields(_ context.Context, id uuid.UUID, fields partner.RelationshipFields) error {
	if m.updateErr != nil {
		if err := m.updateErr(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	if fields.CompanyName != nil {
		r.CompanyName = *fields.CompanyName
	}
	if fields.Status != nil {
		r.Status = *fields.Status
	}
	r.UpdatedAt = time.Now().UTC()
	m.records[id] = r
	return nil
}

func (m *memoryRepository) DeleteByID(_ context.Context, id uuid.UUID) error {
	if m.deleteErr != nil {
		if err := m.deleteErr(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memoryRepository) FindUnpaired(_ context.Context, limit int) ([]partner.PartnerRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []partner.PartnerRelationship
	for _, r := range m.records {
		if r.IsActive() && m.lookup(r.CompanyAddress, r.SelfAddress) == nil {
			out = append(out, r)
		}
	}
	return truncate(out, limit), nil
}

func (m *memoryRepository) FindStatusMismatches(_ context.Context, limit int) ([]partner.PartnerRelationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []partner.PartnerRelationship
	for _, r := range m.records {
		mirror := m.lookup(r.CompanyAddress, r.SelfAddress)
		if mirror != nil && mirror.Status != r.Status && r.ID.String() < mirror.ID.String() {
			out = append(out, r)
		}
	}
	return truncate(out, limit), nil
}

func (m *memoryRepository) lookup(self, company string) *partner.PartnerRelationship {
	for id, r := range m.records {
		if r.SelfAddress == self && r.CompanyAddress == company {
			rec := m.records[id]
			return &rec
		}
	}
	return nil
}

func (m *memoryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memoryRepository) get(self, company string) *partner.PartnerRelationship {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(self, company)
}

// put stores r as-is, bypassing hooks
func (m *memoryRepository) put(r *partner.PartnerRelationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *r
	stored.ClearDomainEvents()
	m.records[r.ID] = stored
}

func truncate(in []partner.PartnerRelationship, limit int) []partner.PartnerRelationship {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

// snapshotTransactor runs fn against the same repository and restores the
// previous contents when fn fails.
type snapshotTransactor struct {
	repo *memoryRepository
}

var _ partner.PairTransactor = (*snapshotTransactor)(nil)

func (t *snapshotTransactor) WithinPairTransaction(_ context.Context, fn func(repo partner.RelationshipRepository) error) error {
	t.repo.mu.Lock()
	snapshot := make(map[uuid.UUID]partner.PartnerRelationship, len(t.repo.records))
	for k, v := range t.repo.records {
		snapshot[k] = v
	}
	t.repo.mu.Unlock()

	if err := fn(t.repo); err != nil {
		t.repo.mu.Lock()
		t.repo.records = snapshot
		t.repo.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// Mocks
// =============================================================================

// MockRelationshipRepository is a mock implementation of RelationshipRepository
type MockRelationshipRepository struct {
	mock.Mock
}

var _ partner.RelationshipRepository = (*MockRelationshipRepository)(nil)

func (m *MockRelationshipRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.PartnerRelationship, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partner.PartnerRelationship), args.Error(1)
}

func (m *MockRelationshipRepository) FindOne(ctx context.Context, self, company string) (*partner.PartnerRelationship, error) {
	args := m.Called(ctx, self, company)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partner.PartnerRelationship), args.Error(1)
}

func (m *MockRelationshipRepository) FindAllBySelf(ctx context.Context, self string, status partner.RelationshipStatus) ([]partner.PartnerRelationship, error) {
	args := m.Called(ctx, self, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]partner.PartnerRelationship), args.Error(1)
}

func (m *MockRelationshipRepository) Insert(ctx context.Context, r *partner.PartnerRelationship) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockRelationshipRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields partner.RelationshipFields) error {
	return m.Called(ctx, id, fields).Error(0)
}

func (m *MockRelationshipRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRelationshipRepository) FindUnpaired(ctx context.Context, limit int) ([]partner.PartnerRelationship, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]partner.PartnerRelationship), args.Error(1)
}

func (m *MockRelationshipRepository) FindStatusMismatches(ctx context.Context, limit int) ([]partner.PartnerRelationship, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]partner.PartnerRelationship), args.Error(1)
}

// MockCompanyDirectory is a mock implementation of CompanyDirectory
type MockCompanyDirectory struct {
	mock.Mock
}

var _ partner.CompanyDirectory = (*MockCompanyDirectory)(nil)

func (m *MockCompanyDirectory) ResolveName(ctx context.Context, address string) (string, bool, error) {
	args := m.Called(ctx, address)
	return args.String(0), args.Bool(1), args.Error(2)
}

// staticDirectory resolves names from a fixed map
type staticDirectory map[string]string

func (d staticDirectory) ResolveName(_ context.Context, address string) (string, bool, error) {
	name, ok := d[address]
	return name, ok, nil
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// recordingMetrics counts metric calls
type recordingMetrics struct {
	mu       sync.Mutex
	created  int
	deleted  int
	warnings []string
	repairs  []string
	sweeps   int
}

func (r *recordingMetrics) RecordCreated(_ context.Context, _ string, records int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created += records
}

func (r *recordingMetrics) RecordDeleted(_ context.Context, records int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted += records
}

func (r *recordingMetrics) RecordWarning(_ context.Context, _ string, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, code)
}

func (r *recordingMetrics) RecordRepair(_ context.Context, action, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repairs = append(r.repairs, action+":"+outcome)
}

func (r *recordingMetrics) RecordSweep(context.Context, time.Duration, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
}

// MockRepairSubmitter is a mock implementation of RepairSubmitter
type MockRepairSubmitter struct {
	mock.Mock
}

func (m *MockRepairSubmitter) Submit(req RepairRequest) error {
	return m.Called(req).Error(0)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	return m.Called().Error(0)
}

var (
	_ RepairSubmitter         = (*MockRepairSubmitter)(nil)
	_ shared.IdempotencyStore = (*MockIdempotencyStore)(nil)
)
