package partner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/domain/shared"
)

func seedPair(t *testing.T, repo *memoryRepository, self, company string, rel partner.RelationshipType) (*partner.PartnerRelationship, *partner.PartnerRelationship) {
	t.Helper()
	primary, err := partner.NewPartnerRelationship(self, company, rel, "")
	require.NoError(t, err)
	mirror, err := primary.NewMirror("")
	require.NoError(t, err)
	repo.put(primary)
	repo.put(mirror)
	return primary, mirror
}

func TestParseOrphanPolicy(t *testing.T) {
	p, err := ParseOrphanPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OrphanPolicyReport, p)

	p, err = ParseOrphanPolicy("remove")
	require.NoError(t, err)
	assert.Equal(t, OrphanPolicyRemove, p)

	_, err = ParseOrphanPolicy("ignore")
	assert.Error(t, err)
}

func TestReconciliationService_Repair(t *testing.T) {
	ctx := context.Background()

	t.Run("recreates missing mirror after failed create", func(t *testing.T) {
		repo := newMemoryRepository()
		metrics := &recordingMetrics{}
		primary, err := partner.NewPartnerRelationship("0xaa", "0xbb", partner.RelationshipSupplier, "Beta Mill")
		require.NoError(t, err)
		repo.put(primary)

		svc := NewReconciliationService(repo, testDirectory(), WithReconcileMetrics(metrics))
		res, err := svc.Repair(ctx, RepairRequest{Operation: partner.OperationCreate, SelfAddress: "0xAA", CompanyAddress: "0xBB"})
		require.NoError(t, err)
		assert.Equal(t, RepairActionMirrorCreated, res.Action)

		mirror := repo.get("0xbb", "0xaa")
		require.NotNil(t, mirror)
		assert.Equal(t, partner.RelationshipCustomer, mirror.Relationship)
		assert.Equal(t, "Alpha Farms", mirror.CompanyName)
		assert.Equal(t, []string{"mirror_created:success"}, metrics.repairs)
	})

	t.Run("copies primary status to mirror after failed update", func(t *testing.T) {
		repo := newMemoryRepository()
		primary, _ := seedPair(t, repo, "0xaa", "0xbb", partner.RelationshipSupplier)
		require.NoError(t, repo.UpdateFields(ctx, primary.ID, partner.StatusOnly(partner.RelationshipStatusRemoved)))

		svc := NewReconciliationService(repo, testDirectory())
		res, err := svc.Repair(ctx, RepairFromWarning(partner.NewConsistencyWarning(partner.WarnMirrorUpdateFailed, partner.OperationUpdate, "0xaa", "0xbb")))
		require.NoError(t, err)
		assert.Equal(t, RepairActionMirrorUpdated, res.Action)
		assert.Equal(t, partner.RelationshipStatusRemoved, repo.get("0xbb", "0xaa").Status)
	})

	// the surviving side of a partial delete reports MIRROR_NOT_FOUND on update
	leftoverAfterDelete := func(t *testing.T) (*memoryRepository, *partner.ConsistencyWarning) {
		repo := newMemoryRepository()
		deleted, leftover := seedPair(t, repo, "0xbb", "0xaa", partner.RelationshipCustomer)
		require.NoError(t, repo.DeleteByID(ctx, deleted.ID))

		status := "removed"
		res, err := NewRelationshipService(repo, testDirectory()).Update(ctx, leftover.ID, UpdateRelationshipRequest{Status: &status})
		require.NoError(t, err)
		require.Len(t, res.Warnings, 1)
		require.Equal(t, partner.WarnMirrorNotFound, res.Warnings[0].Code)
		return repo, &res.Warnings[0]
	}

	t.Run("update repair never recreates a missing mirror under report policy", func(t *testing.T) {
		repo, warning := leftoverAfterDelete(t)
		metrics := &recordingMetrics{}

		svc := NewReconciliationService(repo, testDirectory(), WithReconcileMetrics(metrics))
		res, err := svc.Repair(ctx, RepairFromWarning(*warning))
		require.NoError(t, err)
		assert.Equal(t, RepairActionReported, res.Action)
		assert.Nil(t, repo.get("0xbb", "0xaa"))
		assert.Equal(t, 1, repo.count())
		assert.Equal(t, []string{"reported:success"}, metrics.repairs)
	})

	t.Run("update repair follows remove policy for a missing mirror", func(t *testing.T) {
		repo, warning := leftoverAfterDelete(t)

		svc := NewReconciliationService(repo, testDirectory(), WithOrphanPolicy(OrphanPolicyRemove))
		res, err := svc.Repair(ctx, RepairFromWarning(*warning))
		require.NoError(t, err)
		assert.Equal(t, RepairActionOrphanRemoved, res.Action)
		assert.Equal(t, 0, repo.count())
	})

	t.Run("update repair restores a missing mirror only when opted in", func(t *testing.T) {
		repo, warning := leftoverAfterDelete(t)

		svc := NewReconciliationService(repo, testDirectory(), WithOrphanPolicy(OrphanPolicyRestore))
		res, err := svc.Repair(ctx, RepairFromWarning(*warning))
		require.NoError(t, err)
		assert.Equal(t, RepairActionMirrorCreated, res.Action)
		restored := repo.get("0xbb", "0xaa")
		require.NotNil(t, restored)
		assert.Equal(t, partner.RelationshipStatusRemoved, restored.Status)
	})

	t.Run("consistent pair is left alone", func(t *testing.T) {
		repo := newMemoryRepository()
		seedPair(t, repo, "0xaa", "0xbb", partner.RelationshipSupplier)

		svc := NewReconciliationService(repo, testDirectory())
		res, err := svc.Repair(ctx, RepairRequest{Operation: partner.OperationUpdate, SelfAddress: "0xaa", CompanyAddress: "0xbb"})
		require.NoError(t, err)
		assert.Equal(t, RepairActionNone, res.Action)
		assert.Equal(t, 2, repo.count())
	})

	t.Run("create repair without primary does nothing", func(t *testing.T) {
		repo := newMemoryRepository()
		svc := NewReconciliationService(repo, testDirectory())
		res, err := svc.Repair(ctx, RepairRequest{Operation: partner.OperationCreate, SelfAddress: "0xaa", CompanyAddress: "0xbb"})
		require.NoError(t, err)
		assert.Equal(t, RepairActionNone, res.Action)
		assert.Equal(t, 0, repo.count())
	})

	t.Run("removes leftover mirror after failed delete", func(t *testing.T) {
		repo := newMemoryRepository()
		primary, _ := seedPair(t, repo, "0xaa", "0xbb", partner.RelationshipSupplier)
		require.NoError(t, repo.DeleteByID(ctx, primary.ID))

		svc := NewReconciliationService(repo, testDirectory())
		res, err := svc.Repair(ctx, RepairRequest{Operation: partner.OperationDelete, SelfAddress: "0xaa", CompanyAddress: "0xbb"})
		require.NoError(t, err)
		assert.Equal(t, RepairActionMirrorDeleted, res.Action)
		assert.Equal(t, 0, repo.count())
	})

	t.Run("delete repair keeps a recreated pair", func(t *testing.T) {
		repo := newMemoryRepository()
		seedPair(t, repo, "0xaa", "0xbb", partner.RelationshipSupplier)

		svc := NewReconciliationService(repo, testDirectory())
		res, err := svc.Repair(ctx, RepairRequest{Operation: partner.OperationDelete, SelfAddress: "0xaa", CompanyAddress: "0xbb"})
		require.NoError(t, err)
		assert.Equal(t, RepairActionNone, res.Action)
		assert.Equal(t, 2, repo.count())
	})

	t.Run("storage failure is returned for retry", func(t *testing.T) {
		repo := new(MockRelationshipRepository)
		repo.On("FindOne", mock.Anything, "0xaa", "0xbb").Return(nil, errBackend)
		metrics := &recordingMetrics{}

		svc := NewReconciliationService(repo, testDirectory(), WithReconcileMetrics(metrics))
		_, err := svc.Repair(ctx, RepairRequest{Operation: partner.OperationCreate, SelfAddress: "0xaa", CompanyAddress: "0xbb"})
		require.Error(t, err)
		assert.True(t, shared.IsStorage(err))
		assert.Equal(t, []string{"unknown:error"}, metrics.repairs)
	})

	t.Run("rejects unknown operation and bad pair", func(t *testing.T) {
		svc := NewReconciliationService(newMemoryRepository(), testDirectory())

		_, err := svc.Repair(ctx, RepairRequest{Operation: "merge", SelfAddress: "0xaa", CompanyAddress: "0xbb"})
		assert.True(t, shared.IsValidation(err))

		_, err = svc.Repair(ctx, RepairRequest{Operation: partner.OperationCreate, SelfAddress: "0xaa", CompanyAddress: "0xAA"})
		assert.True(t, shared.IsValidation(err))
	})
}

func TestReconciliationService_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("settles status mismatch by latest update", func(t *testing.T) {
		repo := newMemoryRepository()
		primary, mirror := seedPair(t, repo, "0xaa", "0xbb", partner.RelationshipSupplier)

		older := *primary
		older.Status = partner.RelationshipStatusActive
		older.UpdatedAt = time.Now().Add(-time.Hour)
		repo.put(&older)
		newer := *mirror
		newer.Status = partner.RelationshipStatusRemoved
		newer.UpdatedAt = time.Now()
		repo.put(&newer)

		metrics := &recordingMetrics{}
		svc := NewReconciliationService(repo, testDirectory(), WithReconcileMetrics(metrics))
		report, err := svc.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.StatusMismatch)
		assert.Equal(t, 1, report.Repaired)
		assert.Equal(t, partner.RelationshipStatusRemoved, repo.get("0xaa", "0xbb").Status)
		assert.Equal(t, partner.RelationshipStatusRemoved, repo.get("0xbb", "0xaa").Status)
		assert.Equal(t, 1, metrics.sweeps)
	})

	orphanRepo := func(t *testing.T) *memoryRepository {
		repo := newMemoryRepository()
		seedPair(t, repo, "0xaa", "0xbb", partner.RelationshipSupplier)
		orphan, err := partner.NewPartnerRelationship("0xcc", "0xaa", partner.RelationshipCustomer, "")
		require.NoError(t, err)
		repo.put(orphan)
		return repo
	}

	t.Run("report policy only reports orphans", func(t *testing.T) {
		repo := orphanRepo(t)
		svc := NewReconciliationService(repo, testDirectory())
		report, err := svc.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, string(OrphanPolicyReport), report.OrphanPolicy)
		assert.Equal(t, 1, report.Unpaired)
		assert.Equal(t, 1, report.Reported)
		assert.Equal(t, 0, report.Repaired)
		require.Len(t, report.Actions, 1)
		assert.Equal(t, RepairActionReported, report.Actions[0].Action)
		assert.Equal(t, 3, repo.count())
	})

	t.Run("restore policy recreates the mirror", func(t *testing.T) {
		repo := orphanRepo(t)
		svc := NewReconciliationService(repo, testDirectory(), WithOrphanPolicy(OrphanPolicyRestore))
		report, err := svc.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.Repaired)
		mirror := repo.get("0xaa", "0xcc")
		require.NotNil(t, mirror)
		assert.Equal(t, partner.RelationshipSupplier, mirror.Relationship)
		assert.Equal(t, "Gamma Bakery", mirror.CompanyName)
	})

	t.Run("remove policy deletes the orphan", func(t *testing.T) {
		repo := orphanRepo(t)
		svc := NewReconciliationService(repo, testDirectory(), WithOrphanPolicy(OrphanPolicyRemove))
		report, err := svc.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.Repaired)
		assert.Nil(t, repo.get("0xcc", "0xaa"))
		assert.Equal(t, 2, repo.count())
	})

	t.Run("failed repair is counted and sweep continues", func(t *testing.T) {
		repo := orphanRepo(t)
		repo.insertErr = func(*partner.PartnerRelationship) error { return errBackend }

		svc := NewReconciliationService(repo, testDirectory(), WithOrphanPolicy(OrphanPolicyRestore))
		report, err := svc.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 0, report.Repaired)
	})

	t.Run("scan failure aborts the sweep", func(t *testing.T) {
		repo := new(MockRelationshipRepository)
		repo.On("FindStatusMismatches", mock.Anything, 10).Return(nil, errBackend)

		svc := NewReconciliationService(repo, testDirectory(), WithSweepLimit(10))
		_, err := svc.Sweep(ctx)
		require.Error(t, err)
		assert.True(t, shared.IsStorage(err))
	})
}
