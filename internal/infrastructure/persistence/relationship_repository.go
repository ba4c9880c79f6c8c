package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/domain/shared"
	"gorm.io/gorm"
)

const mirrorJoin = "m.self_address = r.company_address AND m.company_address = r.self_address"

// GormRelationshipRepository implements RelationshipRepository using GORM
type GormRelationshipRepository struct {
	db *gorm.DB
}

// NewGormRelationshipRepository creates a new GormRelationshipRepository
func NewGormRelationshipRepository(db *gorm.DB) *GormRelationshipRepository {
	return &GormRelationshipRepository{db: db}
}

// FindByID finds a relationship by its ID
func (r *GormRelationshipRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.PartnerRelationship, error) {
	var rel partner.PartnerRelationship
	if err := r.db.WithContext(ctx).First(&rel, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rel, nil
}

// FindOne finds the relationship stored under the ordered address pair
func (r *GormRelationshipRepository) FindOne(ctx context.Context, selfAddress, companyAddress string) (*partner.PartnerRelationship, error) {
	var rel partner.PartnerRelationship
	if err := r.db.WithContext(ctx).
		Where("self_address = ? AND company_address = ?", selfAddress, companyAddress).
		First(&rel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rel, nil
}

// FindAllBySelf lists an owner's relationships with the given status, newest first
func (r *GormRelationshipRepository) FindAllBySelf(ctx context.Context, selfAddress string, status partner.RelationshipStatus) ([]partner.PartnerRelationship, error) {
	var rels []partner.PartnerRelationship
	if err := r.db.WithContext(ctx).
		Where("self_address = ? AND status = ?", selfAddress, status).
		Order("created_at DESC").
		Order("id").
		Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}

// Insert stores a new relationship
func (r *GormRelationshipRepository) Insert(ctx context.Context, rel *partner.PartnerRelationship) error {
	if err := r.db.WithContext(ctx).Create(rel).Error; err != nil {
		if isUniqueViolation(err) {
			return partner.ErrRelationshipExists
		}
		return err
	}
	return nil
}

// UpdateFields writes company_name and/or status, bumping updated_at and version
func (r *GormRelationshipRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields partner.RelationshipFields) error {
	if fields.IsEmpty() {
		return shared.NewValidationError("no fields to update")
	}
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
		"version":    gorm.Expr("version + 1"),
	}
	if fields.CompanyName != nil {
		updates["company_name"] = strings.TrimSpace(*fields.CompanyName)
	}
	if fields.Status != nil {
		updates["status"] = string(*fields.Status)
	}

	result := r.db.WithContext(ctx).
		Model(&partner.PartnerRelationship{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteByID removes a relationship
func (r *GormRelationshipRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&partner.PartnerRelationship{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindUnpaired returns active relationships whose mirror row is missing, oldest first
func (r *GormRelationshipRepository) FindUnpaired(ctx context.Context, limit int) ([]partner.PartnerRelationship, error) {
	var rels []partner.PartnerRelationship
	if err := r.db.WithContext(ctx).
		Table("partner_relationships AS r").
		Select("r.*").
		Where("r.status = ?", partner.RelationshipStatusActive).
		Where("NOT EXISTS (SELECT 1 FROM partner_relationships m WHERE " + mirrorJoin + ")").
		Order("r.created_at").
		Limit(limit).
		Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}

// FindStatusMismatches returns one side of every pair whose sides disagree on status
func (r *GormRelationshipRepository) FindStatusMismatches(ctx context.Context, limit int) ([]partner.PartnerRelationship, error) {
	var rels []partner.PartnerRelationship
	if err := r.db.WithContext(ctx).
		Table("partner_relationships AS r").
		Select("r.*").
		Joins("JOIN partner_relationships m ON " + mirrorJoin).
		Where("m.status <> r.status AND r.id < m.id").
		Order("r.updated_at").
		Limit(limit).
		Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}

var _ partner.RelationshipRepository = (*GormRelationshipRepository)(nil)

// GormPairTransactor runs pair writes inside one database transaction
type GormPairTransactor struct {
	db *gorm.DB
}

// NewGormPairTransactor creates a new GormPairTransactor
func NewGormPairTransactor(db *gorm.DB) *GormPairTransactor {
	return &GormPairTransactor{db: db}
}

// WithinPairTransaction implements partner.PairTransactor
func (t *GormPairTransactor) WithinPairTransaction(ctx context.Context, fn func(repo partner.RelationshipRepository) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRelationshipRepository(tx))
	})
}

var _ partner.PairTransactor = (*GormPairTransactor)(nil)
