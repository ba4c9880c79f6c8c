package partner

import (
	"github.com/google/uuid"
	"github.com/supplychain/backend/internal/domain/shared"
)

// Aggregate type constant for PartnerRelationship
const AggregateTypePartnerRelationship = "PartnerRelationship"

// Event type constants for PartnerRelationship
const (
	EventTypeRelationshipCreated         = "PartnerRelationshipCreated"
	EventTypeRelationshipUpdated         = "PartnerRelationshipUpdated"
	EventTypeRelationshipStatusChanged   = "PartnerRelationshipStatusChanged"
	EventTypeRelationshipDeleted         = "PartnerRelationshipDeleted"
	EventTypeMirrorInconsistencyDetected = "MirrorInconsistencyDetected"
)

// RelationshipCreatedEvent is published once a record has been stored
type RelationshipCreatedEvent struct {
	shared.BaseDomainEvent
	RelationshipID uuid.UUID        `json:"relationship_id"`
	SelfAddress    string           `json:"self_address"`
	CompanyAddress string           `json:"company_address"`
	Relationship   RelationshipType `json:"relationship"`
}

// NewRelationshipCreatedEvent creates a new RelationshipCreatedEvent
func NewRelationshipCreatedEvent(r *PartnerRelationship) *RelationshipCreatedEvent {
	return &RelationshipCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRelationshipCreated, AggregateTypePartnerRelationship, r.ID),
		RelationshipID:  r.ID,
		SelfAddress:     r.SelfAddress,
		CompanyAddress:  r.CompanyAddress,
		Relationship:    r.Relationship,
	}
}

// RelationshipUpdatedEvent is published when mutable fields change
type RelationshipUpdatedEvent struct {
	shared.BaseDomainEvent
	RelationshipID uuid.UUID          `json:"relationship_id"`
	CompanyName    string             `json:"company_name,omitempty"`
	Status         RelationshipStatus `json:"status"`
}

// NewRelationshipUpdatedEvent creates a new RelationshipUpdatedEvent
func NewRelationshipUpdatedEvent(r *PartnerRelationship) *RelationshipUpdatedEvent {
	return &RelationshipUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRelationshipUpdated, AggregateTypePartnerRelationship, r.ID),
		RelationshipID:  r.ID,
		CompanyName:     r.CompanyName,
		Status:          r.Status,
	}
}

// RelationshipStatusChangedEvent is published when a side moves between active and removed
type RelationshipStatusChangedEvent struct {
	shared.BaseDomainEvent
	RelationshipID uuid.UUID          `json:"relationship_id"`
	SelfAddress    string             `json:"self_address"`
	CompanyAddress string             `json:"company_address"`
	OldStatus      RelationshipStatus `json:"old_status"`
	NewStatus      RelationshipStatus `json:"new_status"`
}

// NewRelationshipStatusChangedEvent creates a new RelationshipStatusChangedEvent
func NewRelationshipStatusChangedEvent(r *PartnerRelationship, old RelationshipStatus) *RelationshipStatusChangedEvent {
	return &RelationshipStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRelationshipStatusChanged, AggregateTypePartnerRelationship, r.ID),
		RelationshipID:  r.ID,
		SelfAddress:     r.SelfAddress,
		CompanyAddress:  r.CompanyAddress,
		OldStatus:       old,
		NewStatus:       r.Status,
	}
}

// RelationshipDeletedEvent is published after a record is removed from the store
type RelationshipDeletedEvent struct {
	shared.BaseDomainEvent
	RelationshipID uuid.UUID `json:"relationship_id"`
	SelfAddress    string    `json:"self_address"`
	CompanyAddress string    `json:"company_address"`
}

// NewRelationshipDeletedEvent creates a new RelationshipDeletedEvent
func NewRelationshipDeletedEvent(r *PartnerRelationship) *RelationshipDeletedEvent {
	return &RelationshipDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRelationshipDeleted, AggregateTypePartnerRelationship, r.ID),
		RelationshipID:  r.ID,
		SelfAddress:     r.SelfAddress,
		CompanyAddress:  r.CompanyAddress,
	}
}

// MirrorInconsistencyDetectedEvent carries a consistency warning to the reconciler
type MirrorInconsistencyDetectedEvent struct {
	shared.BaseDomainEvent
	Warning ConsistencyWarning `json:"warning"`
}

// NewMirrorInconsistencyDetectedEvent creates a new MirrorInconsistencyDetectedEvent.
// relationshipID is the primary record the operation targeted.
func NewMirrorInconsistencyDetectedEvent(relationshipID uuid.UUID, w ConsistencyWarning) *MirrorInconsistencyDetectedEvent {
	return &MirrorInconsistencyDetectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMirrorInconsistencyDetected, AggregateTypePartnerRelationship, relationshipID),
		Warning:         w,
	}
}
