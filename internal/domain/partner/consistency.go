package partner

import "fmt"

// Operation names the mutation that left a pair inconsistent
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Consistency warning codes
const (
	WarnMirrorCreateFailed = "MIRROR_CREATE_FAILED"
	WarnMirrorNotFound     = "MIRROR_NOT_FOUND"
	WarnMirrorUpdateFailed = "MIRROR_UPDATE_FAILED"
	WarnMirrorDeleteFailed = "MIRROR_DELETE_FAILED"
)

// ConsistencyWarning reports that the primary write committed but the mirror
// write did not, so the pair may be out of step until reconciled.
// SelfAddress/CompanyAddress identify the primary record.
type ConsistencyWarning struct {
	Code           string    `json:"code"`
	Operation      Operation `json:"operation"`
	SelfAddress    string    `json:"self_address"`
	CompanyAddress string    `json:"company_address"`
	Message        string    `json:"message"`
}

// NewConsistencyWarning builds a warning for the primary pair (self, company)
func NewConsistencyWarning(code string, op Operation, selfAddress, companyAddress string) ConsistencyWarning {
	msg := fmt.Sprintf("mirror record (%s, %s) was not updated by %s", companyAddress, selfAddress, op)
	if code == WarnMirrorNotFound {
		msg = fmt.Sprintf("mirror record (%s, %s) does not exist", companyAddress, selfAddress)
	}
	return ConsistencyWarning{
		Code:           code,
		Operation:      op,
		SelfAddress:    selfAddress,
		CompanyAddress: companyAddress,
		Message:        msg,
	}
}

// String implements fmt.Stringer
func (w ConsistencyWarning) String() string {
	return w.Code + ": " + w.Message
}
