package partner

import (
	"time"

	"github.com/google/uuid"
	"github.com/supplychain/backend/internal/domain/partner"
)

// CreateRelationshipRequest represents a request to create a relationship pair.
// A non-empty CompanyName overrides the directory lookup for the partner's name.
type CreateRelationshipRequest struct {
	SelfAddress    string `json:"self_address" binding:"required,partner_address"`
	CompanyAddress string `json:"company_address" binding:"required,partner_address"`
	Relationship   string `json:"relationship" binding:"required"`
	CompanyName    string `json:"company_name" binding:"omitempty,max=255"`
}

// UpdateRelationshipRequest represents a partial update. Only these two
// fields are accepted; addresses and relationship type are immutable.
type UpdateRelationshipRequest struct {
	CompanyName *string `json:"company_name" binding:"omitempty,max=255"`
	Status      *string `json:"status"`
}

// ToFields converts the request into domain fields
func (r UpdateRelationshipRequest) ToFields() (partner.RelationshipFields, error) {
	var fields partner.RelationshipFields
	fields.CompanyName = r.CompanyName
	if r.Status != nil {
		status, err := partner.ParseRelationshipStatus(*r.Status)
		if err != nil {
			return fields, err
		}
		fields.Status = &status
	}
	return fields, fields.Validate()
}

// RelationshipResponse represents a relationship record in API responses
type RelationshipResponse struct {
	ID             uuid.UUID `json:"id"`
	SelfAddress    string    `json:"self_address"`
	CompanyAddress string    `json:"company_address"`
	Relationship   string    `json:"relationship"`
	CompanyName    string    `json:"company_name"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ToRelationshipResponse converts a domain record to a response DTO
func ToRelationshipResponse(r *partner.PartnerRelationship) RelationshipResponse {
	return RelationshipResponse{
		ID:             r.ID,
		SelfAddress:    r.SelfAddress,
		CompanyAddress: r.CompanyAddress,
		Relationship:   string(r.Relationship),
		CompanyName:    r.CompanyName,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ToRelationshipResponses converts a slice of domain records
func ToRelationshipResponses(records []partner.PartnerRelationship) []RelationshipResponse {
	out := make([]RelationshipResponse, len(records))
	for i := range records {
		out[i] = ToRelationshipResponse(&records[i])
	}
	return out
}

// MutationResult is returned by every write. Warnings is never nil so that
// callers always see an explicit, possibly empty, list.
type MutationResult struct {
	Relationship *RelationshipResponse        `json:"relationship,omitempty"`
	Warnings     []partner.ConsistencyWarning `json:"warnings"`
}

func newMutationResult(r *partner.PartnerRelationship) *MutationResult {
	res := &MutationResult{Warnings: []partner.ConsistencyWarning{}}
	if r != nil {
		resp := ToRelationshipResponse(r)
		res.Relationship = &resp
	}
	return res
}

// RepairRequest identifies one pair to reconcile, keyed by its primary side
type RepairRequest struct {
	Operation      partner.Operation `json:"operation"`
	SelfAddress    string            `json:"self_address"`
	CompanyAddress string            `json:"company_address"`
}

// RepairFromWarning builds the repair request for a consistency warning
func RepairFromWarning(w partner.ConsistencyWarning) RepairRequest {
	return RepairRequest{
		Operation:      w.Operation,
		SelfAddress:    w.SelfAddress,
		CompanyAddress: w.CompanyAddress,
	}
}

// Key identifies the repair by intent and ordered pair
func (r RepairRequest) Key() string {
	return string(r.Operation) + ":" + r.SelfAddress + ":" + r.CompanyAddress
}

// Repair actions
const (
	RepairActionNone          = "none"
	RepairActionMirrorCreated = "mirror_created"
	RepairActionMirrorUpdated = "mirror_updated"
	RepairActionMirrorDeleted = "mirror_deleted"
	RepairActionOrphanRemoved = "orphan_removed"
	RepairActionReported      = "reported"
)

// RepairResult describes what a repair did
type RepairResult struct {
	Action         string `json:"action"`
	SelfAddress    string `json:"self_address"`
	CompanyAddress string `json:"company_address"`
}

// SweepReport summarises one reconciliation sweep
type SweepReport struct {
	StartedAt      time.Time      `json:"started_at"`
	Duration       time.Duration  `json:"duration_ns"`
	OrphanPolicy   string         `json:"orphan_policy"`
	Unpaired       int            `json:"unpaired"`
	StatusMismatch int            `json:"status_mismatch"`
	Repaired       int            `json:"repaired"`
	Reported       int            `json:"reported"`
	Failed         int            `json:"failed"`
	Actions        []RepairResult `json:"actions"`
}
