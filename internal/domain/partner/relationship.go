package partner

import (
	"strings"
	"unicode/utf8"

	"github.com/supplychain/backend/internal/domain/shared"
)

// RelationshipType is the role the counterparty plays from the owner's perspective
type RelationshipType string

const (
	RelationshipSupplier RelationshipType = "supplier"
	RelationshipCustomer RelationshipType = "customer"
)

// IsValid reports whether t is a known relationship type
func (t RelationshipType) IsValid() bool {
	return t == RelationshipSupplier || t == RelationshipCustomer
}

// Invert returns the type seen from the other party. Unknown values are returned unchanged.
func (t RelationshipType) Invert() RelationshipType {
	switch t {
	case RelationshipSupplier:
		return RelationshipCustomer
	case RelationshipCustomer:
		return RelationshipSupplier
	default:
		return t
	}
}

// ParseRelationshipType parses a relationship type case-insensitively
func ParseRelationshipType(s string) (RelationshipType, error) {
	t := RelationshipType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidRelationshipType
	}
	return t, nil
}

// RelationshipStatus represents the status of one side of a relationship
type RelationshipStatus string

const (
	RelationshipStatusActive  RelationshipStatus = "active"
	RelationshipStatusRemoved RelationshipStatus = "removed"
)

// IsValid reports whether s is a known status
func (s RelationshipStatus) IsValid() bool {
	return s == RelationshipStatusActive || s == RelationshipStatusRemoved
}

// ParseRelationshipStatus parses a status case-insensitively
func ParseRelationshipStatus(s string) (RelationshipStatus, error) {
	st := RelationshipStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", ErrInvalidRelationshipStatus
	}
	return st, nil
}

// MaxCompanyNameLength bounds the cached display name
const MaxCompanyNameLength = 255

// PartnerRelationship is one party's view of a business relationship.
// Every active record (A, B, rel) has a mirror (B, A, rel.Invert()) owned by B.
// CompanyName always holds the name of CompanyAddress, never of SelfAddress.
type PartnerRelationship struct {
	shared.BaseAggregateRoot
	SelfAddress    string             `gorm:"type:varchar(128);not null;uniqueIndex:uq_partner_relationships_pair,priority:1;index:idx_partner_relationships_self_status,priority:1"`
	CompanyAddress string             `gorm:"type:varchar(128);not null;uniqueIndex:uq_partner_relationships_pair,priority:2"`
	Relationship   RelationshipType   `gorm:"type:varchar(20);not null"`
	CompanyName    string             `gorm:"type:varchar(255)"`
	Status         RelationshipStatus `gorm:"type:varchar(20);not null;default:'active';index:idx_partner_relationships_self_status,priority:2"`
}

// TableName returns the table name for GORM
func (PartnerRelationship) TableName() string {
	return "partner_relationships"
}

// NewPartnerRelationship creates an active relationship owned by selfAddress.
// Addresses are stored normalized.
func NewPartnerRelationship(selfAddress, companyAddress string, relationship RelationshipType, companyName string) (*PartnerRelationship, error) {
	if err := ValidatePair(selfAddress, companyAddress); err != nil {
		return nil, err
	}
	if !relationship.IsValid() {
		return nil, ErrInvalidRelationshipType
	}
	companyName = strings.TrimSpace(companyName)
	if err := validateCompanyName(companyName); err != nil {
		return nil, err
	}

	r := &PartnerRelationship{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SelfAddress:       NormalizeAddress(selfAddress),
		CompanyAddress:    NormalizeAddress(companyAddress),
		Relationship:      relationship,
		CompanyName:       companyName,
		Status:            RelationshipStatusActive,
	}
	r.AddDomainEvent(NewRelationshipCreatedEvent(r))
	return r, nil
}

// NewMirror builds the reciprocal record. callerName is the display name of
// this record's owner, which becomes the counterparty name on the mirror.
func (r *PartnerRelationship) NewMirror(callerName string) (*PartnerRelationship, error) {
	m, err := NewPartnerRelationship(r.CompanyAddress, r.SelfAddress, r.Relationship.Invert(), callerName)
	if err != nil {
		return nil, err
	}
	m.Status = r.Status
	return m, nil
}

// MirrorKey returns the (self, company) pair under which the mirror is stored
func (r *PartnerRelationship) MirrorKey() (selfAddress, companyAddress string) {
	return r.CompanyAddress, r.SelfAddress
}

// IsMirrorOf reports whether o is the reciprocal of r
func (r *PartnerRelationship) IsMirrorOf(o *PartnerRelationship) bool {
	if o == nil {
		return false
	}
	return r.SelfAddress == o.CompanyAddress &&
		r.CompanyAddress == o.SelfAddress &&
		r.Relationship.Invert() == o.Relationship
}

// IsActive reports whether the record is visible in listings
func (r *PartnerRelationship) IsActive() bool {
	return r.Status == RelationshipStatusActive
}

// Apply changes the mutable fields. It returns whether the status changed,
// which is the only change that propagates to the mirror.
func (r *PartnerRelationship) Apply(fields RelationshipFields) (statusChanged bool, err error) {
	if err := fields.Validate(); err != nil {
		return false, err
	}

	if fields.CompanyName != nil {
		r.CompanyName = strings.TrimSpace(*fields.CompanyName)
	}
	if fields.Status != nil && *fields.Status != r.Status {
		old := r.Status
		r.Status = *fields.Status
		statusChanged = true
		r.AddDomainEvent(NewRelationshipStatusChangedEvent(r, old))
	}

	r.Touch()
	r.IncrementVersion()
	r.AddDomainEvent(NewRelationshipUpdatedEvent(r))
	return statusChanged, nil
}

// RelationshipFields are the only columns that may change after creation
type RelationshipFields struct {
	CompanyName *string
	Status      *RelationshipStatus
}

// IsEmpty reports whether no field is set
func (f RelationshipFields) IsEmpty() bool {
	return f.CompanyName == nil && f.Status == nil
}

// Validate checks the supplied values
func (f RelationshipFields) Validate() error {
	if f.IsEmpty() {
		return shared.NewValidationError("at least one of company_name or status is required")
	}
	if f.CompanyName != nil {
		if err := validateCompanyName(strings.TrimSpace(*f.CompanyName)); err != nil {
			return err
		}
	}
	if f.Status != nil && !f.Status.IsValid() {
		return ErrInvalidRelationshipStatus
	}
	return nil
}

// StatusOnly returns fields carrying just the given status
func StatusOnly(status RelationshipStatus) RelationshipFields {
	return RelationshipFields{Status: &status}
}

func validateCompanyName(name string) error {
	if utf8.RuneCountInString(name) > MaxCompanyNameLength {
		return shared.NewValidationError("company_name cannot exceed 255 characters")
	}
	return nil
}
