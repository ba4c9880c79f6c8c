package persistence

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/domain/shared"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&partner.PartnerRelationship{}))
	return db
}

func newRelationship(t *testing.T, self, company string, rel partner.RelationshipType) *partner.PartnerRelationship {
	t.Helper()
	r, err := partner.NewPartnerRelationship(self, company, rel, "")
	require.NoError(t, err)
	return r
}

func TestGormRelationshipRepository_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRelationshipRepository(newSQLiteDB(t))

	r := newRelationship(t, "0xAA", "0xbb", partner.RelationshipSupplier)
	r.CompanyName = "Beta Mill"
	require.NoError(t, repo.Insert(ctx, r))

	byID, err := repo.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xaa", byID.SelfAddress)
	assert.Equal(t, "Beta Mill", byID.CompanyName)
	assert.Equal(t, partner.RelationshipStatusActive, byID.Status)

	byPair, err := repo.FindOne(ctx, "0xaa", "0xbb")
	require.NoError(t, err)
	assert.Equal(t, r.ID, byPair.ID)

	_, err = repo.FindOne(ctx, "0xbb", "0xaa")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormRelationshipRepository_InsertDuplicatePair(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRelationshipRepository(newSQLiteDB(t))

	require.NoError(t, repo.Insert(ctx, newRelationship(t, "0xaa", "0xbb", partner.RelationshipSupplier)))
	err := repo.Insert(ctx, newRelationship(t, "0xaa", "0xbb", partner.RelationshipCustomer))
	assert.ErrorIs(t, err, partner.ErrRelationshipExists)

	// the reversed pair is a different key
	assert.NoError(t, repo.Insert(ctx, newRelationship(t, "0xbb", "0xaa", partner.RelationshipCustomer)))
}

func TestGormRelationshipRepository_FindAllBySelf(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRelationshipRepository(newSQLiteDB(t))

	older := newRelationship(t, "0xaa", "0xbb", partner.RelationshipSupplier)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newRelationship(t, "0xaa", "0xcc", partner.RelationshipCustomer)
	removed := newRelationship(t, "0xaa", "0xdd", partner.RelationshipCustomer)
	removed.Status = partner.RelationshipStatusRemoved
	foreign := newRelationship(t, "0xbb", "0xaa", partner.RelationshipCustomer)
	for _, r := range []*partner.PartnerRelationship{older, newer, removed, foreign} {
		require.NoError(t, repo.Insert(ctx, r))
	}

	active, err := repo.FindAllBySelf(ctx, "0xaa", partner.RelationshipStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, newer.ID, active[0].ID)
	assert.Equal(t, older.ID, active[1].ID)

	gone, err := repo.FindAllBySelf(ctx, "0xaa", partner.RelationshipStatusRemoved)
	require.NoError(t, err)
	require.Len(t, gone, 1)
	assert.Equal(t, removed.ID, gone[0].ID)

	none, err := repo.FindAllBySelf(ctx, "0xee", partner.RelationshipStatusActive)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormRelationshipRepository_UpdateFields(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRelationshipRepository(newSQLiteDB(t))

	r := newRelationship(t, "0xaa", "0xbb", partner.RelationshipSupplier)
	require.NoError(t, repo.Insert(ctx, r))

	name := "  Beta Mill  "
	require.NoError(t, repo.UpdateFields(ctx, r.ID, partner.RelationshipFields{CompanyName: &name}))
	got, err := repo.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Beta Mill", got.CompanyName)
	assert.Equal(t, partner.RelationshipStatusActive, got.Status)
	assert.Equal(t, r.Version+1, got.Version)

	require.NoError(t, repo.UpdateFields(ctx, r.ID, partner.StatusOnly(partner.RelationshipStatusRemoved)))
	got, err = repo.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, partner.RelationshipStatusRemoved, got.Status)
	assert.Equal(t, "Beta Mill", got.CompanyName)
	assert.Equal(t, "0xaa", got.SelfAddress)
	assert.Equal(t, partner.RelationshipSupplier, got.Relationship)

	err = repo.UpdateFields(ctx, uuid.New(), partner.StatusOnly(partner.RelationshipStatusActive))
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = repo.UpdateFields(ctx, r.ID, partner.RelationshipFields{})
	assert.True(t, shared.IsValidation(err))
}

func TestGormRelationshipRepository_DeleteByID(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRelationshipRepository(newSQLiteDB(t))

	r := newRelationship(t, "0xaa", "0xbb", partner.RelationshipSupplier)
	require.NoError(t, repo.Insert(ctx, r))

	require.NoError(t, repo.DeleteByID(ctx, r.ID))
	_, err := repo.FindByID(ctx, r.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.ErrorIs(t, repo.DeleteByID(ctx, r.ID), shared.ErrNotFound)
}

func TestGormRelationshipRepository_ConsistencyScans(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRelationshipRepository(newSQLiteDB(t))

	insertPair := func(self, company string) (*partner.PartnerRelationship, *partner.PartnerRelationship) {
		p := newRelationship(t, self, company, partner.RelationshipSupplier)
		m, err := p.NewMirror("")
		require.NoError(t, err)
		require.NoError(t, repo.Insert(ctx, p))
		require.NoError(t, repo.Insert(ctx, m))
		return p, m
	}

	insertPair("0xaa", "0xbb")
	p2, m2 := insertPair("0xaa", "0xcc")
	require.NoError(t, repo.UpdateFields(ctx, m2.ID, partner.StatusOnly(partner.RelationshipStatusRemoved)))

	orphan := newRelationship(t, "0xdd", "0xaa", partner.RelationshipCustomer)
	require.NoError(t, repo.Insert(ctx, orphan))
	removedOrphan := newRelationship(t, "0xee", "0xaa", partner.RelationshipCustomer)
	removedOrphan.Status = partner.RelationshipStatusRemoved
	require.NoError(t, repo.Insert(ctx, removedOrphan))

	unpaired, err := repo.FindUnpaired(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unpaired, 1)
	assert.Equal(t, orphan.ID, unpaired[0].ID)

	mismatched, err := repo.FindStatusMismatches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mismatched, 1)
	assert.Contains(t, []uuid.UUID{p2.ID, m2.ID}, mismatched[0].ID)
}

func TestGormPairTransactor(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	tx := NewGormPairTransactor(db)
	repo := NewGormRelationshipRepository(db)

	t.Run("commits both halves", func(t *testing.T) {
		p := newRelationship(t, "0xaa", "0xbb", partner.RelationshipSupplier)
		m, err := p.NewMirror("")
		require.NoError(t, err)

		err = tx.WithinPairTransaction(ctx, func(r partner.RelationshipRepository) error {
			if err := r.Insert(ctx, p); err != nil {
				return err
			}
			return r.Insert(ctx, m)
		})
		require.NoError(t, err)

		_, err = repo.FindOne(ctx, "0xbb", "0xaa")
		assert.NoError(t, err)
	})

	t.Run("rolls back on mirror failure", func(t *testing.T) {
		p := newRelationship(t, "0xcc", "0xdd", partner.RelationshipSupplier)
		mirrorErr := errors.New("mirror write failed")

		err := tx.WithinPairTransaction(ctx, func(r partner.RelationshipRepository) error {
			if err := r.Insert(ctx, p); err != nil {
				return err
			}
			return mirrorErr
		})
		assert.ErrorIs(t, err, mirrorErr)

		_, err = repo.FindOne(ctx, "0xcc", "0xdd")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormRelationshipRepository_QueryShape(t *testing.T) {
	ctx := context.Background()

	t.Run("FindOne filters by ordered pair", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "partner_relationships" WHERE self_address = \$1 AND company_address = \$2 ORDER BY .* LIMIT .*`).
			WithArgs("0xaa", "0xbb", 1).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := NewGormRelationshipRepository(db.DB).FindOne(ctx, "0xaa", "0xbb")
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdateFields touches only mutable columns", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		id := uuid.New()

		mock.ExpectExec(`UPDATE "partner_relationships" SET "status"=\$1,"updated_at"=\$2,"version"=version \+ 1 WHERE id = \$3`).
			WithArgs("removed", sqlmock.AnyArg(), id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := NewGormRelationshipRepository(db.DB).UpdateFields(ctx, id, partner.StatusOnly(partner.RelationshipStatusRemoved))
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DeleteByID reports missing row", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		id := uuid.New()

		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "partner_relationships" WHERE id = $1`)).
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewGormRelationshipRepository(db.DB).DeleteByID(ctx, id)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver errors pass through", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "partner_relationships" WHERE self_address = \$1 AND status = \$2`).
			WillReturnError(errors.New("connection reset"))

		_, err := NewGormRelationshipRepository(db.DB).FindAllBySelf(ctx, "0xaa", partner.RelationshipStatusActive)
		require.Error(t, err)
		assert.False(t, errors.Is(err, shared.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
