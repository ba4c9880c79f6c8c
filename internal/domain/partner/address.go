package partner

import (
	"strings"

	"github.com/supplychain/backend/internal/domain/shared"
)

// MaxAddressLength bounds an entity address after normalization
const MaxAddressLength = 128

// NormalizeAddress returns the canonical, case-insensitive form of an entity
// address: surrounding whitespace trimmed, then lowercased.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SameAddress reports whether two addresses identify the same entity
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}

// ValidateAddress checks a single address; field names the request field for the message.
func ValidateAddress(field, address string) error {
	normalized := NormalizeAddress(address)
	if normalized == "" {
		return shared.NewValidationError(field + " is required")
	}
	if len(normalized) > MaxAddressLength {
		return shared.NewValidationError(field + " cannot exceed 128 characters")
	}
	if !printableASCII(normalized) {
		return shared.NewValidationError(field + " must contain only printable ASCII characters")
	}
	return nil
}

// printableASCII keeps Go's lowercasing and the database's LOWER() in agreement
func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '!' || s[i] > '~' {
			return false
		}
	}
	return true
}

// ValidatePair checks both sides of a relationship and rejects self-references
func ValidatePair(selfAddress, companyAddress string) error {
	if err := ValidateAddress("self_address", selfAddress); err != nil {
		return err
	}
	if err := ValidateAddress("company_address", companyAddress); err != nil {
		return err
	}
	if SameAddress(selfAddress, companyAddress) {
		return ErrSelfRelationship
	}
	return nil
}
