package partner

import (
	"context"

	"github.com/google/uuid"
)

// RelationshipRepository persists relationship records keyed by the ordered
// (SelfAddress, CompanyAddress) pair. Every method is an independent write or
// read; the interface promises no atomicity across calls.
type RelationshipRepository interface {
	// FindByID finds a record by its ID. Returns shared.ErrNotFound when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*PartnerRelationship, error)

	// FindOne finds the record for the ordered pair. Addresses must be normalized.
	// Returns shared.ErrNotFound when absent.
	FindOne(ctx context.Context, selfAddress, companyAddress string) (*PartnerRelationship, error)

	// FindAllBySelf lists the records owned by selfAddress with the given status,
	// newest first.
	FindAllBySelf(ctx context.Context, selfAddress string, status RelationshipStatus) ([]PartnerRelationship, error)

	// Insert stores a new record. Returns ErrRelationshipExists when the pair is taken.
	Insert(ctx context.Context, relationship *PartnerRelationship) error

	// UpdateFields writes only the mutable columns of the record with the given ID.
	UpdateFields(ctx context.Context, id uuid.UUID, fields RelationshipFields) error

	// DeleteByID removes the record. Returns shared.ErrNotFound when absent.
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// FindUnpaired returns active records whose mirror does not exist
	FindUnpaired(ctx context.Context, limit int) ([]PartnerRelationship, error)

	// FindStatusMismatches returns records whose mirror exists with a different status.
	// Each pair is reported once, from the side with the lower ID.
	FindStatusMismatches(ctx context.Context, limit int) ([]PartnerRelationship, error)
}

// PairTransactor runs a unit of work against a repository bound to a single
// database transaction, so both halves of a pair commit or roll back together.
type PairTransactor interface {
	WithinPairTransaction(ctx context.Context, fn func(repo RelationshipRepository) error) error
}
