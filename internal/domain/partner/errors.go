package partner

import (
	"github.com/supplychain/backend/internal/domain/shared"
)

// Conflict codes for relationship pairs
const (
	CodeRelationshipExists        = "RELATIONSHIP_EXISTS"
	CodeReverseRelationshipExists = "RELATIONSHIP_EXISTS_REVERSE"
)

var (
	ErrSelfRelationship          = shared.NewValidationError("self_address and company_address must refer to different entities")
	ErrInvalidRelationshipType   = shared.NewValidationError("relationship must be one of: supplier, customer")
	ErrInvalidRelationshipStatus = shared.NewValidationError("status must be one of: active, removed")

	ErrRelationshipNotFound      = shared.NewDomainError(shared.CodeNotFound, "Relationship not found")
	ErrRelationshipExists        = shared.NewDomainError(CodeRelationshipExists, "A relationship with this company already exists")
	ErrReverseRelationshipExists = shared.NewDomainError(CodeReverseRelationshipExists, "The company already holds a relationship with this address; awaiting reconciliation")
)

// IsConflict reports whether err means the address pair is already taken
func IsConflict(err error) bool {
	switch shared.CodeOf(err) {
	case CodeRelationshipExists, CodeReverseRelationshipExists, shared.CodeConflict:
		return true
	}
	return false
}
