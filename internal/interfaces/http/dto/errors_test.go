package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supplychain/backend/internal/domain/shared"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidJSON, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyExists, http.StatusConflict},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeBodyTooLarge, http.StatusRequestEntityTooLarge},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"VALIDATION_ERROR", ErrCodeValidation},
		{"NOT_FOUND", ErrCodeNotFound},
		{"FORBIDDEN", ErrCodeForbidden},
		{"STORAGE_ERROR", ErrCodeInternal},
		{"RELATIONSHIP_EXISTS", ErrCodeAlreadyExists},
		{"RELATIONSHIP_EXISTS_REVERSE", ErrCodeConflict},
		{ErrCodeNotFound, ErrCodeNotFound},
		{"SOMETHING_NEW", ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestNormalizeErrorCode_ValidationIsClientError(t *testing.T) {
	for _, err := range []error{
		shared.NewValidationError("bad address"),
		shared.NewDomainError("INVALID_INPUT", "legacy code"),
	} {
		code := shared.CodeOf(err)
		status := GetHTTPStatus(NormalizeErrorCode(code))
		if shared.IsValidation(err) {
			assert.Equal(t, http.StatusBadRequest, status, code)
		} else {
			assert.NotEqual(t, http.StatusBadRequest, status, code)
		}
	}
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "Relationship not found", "req-1")

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":{"code":"ERR_NOT_FOUND","message":"Relationship not found","request_id":"req-1"}}`, string(raw))
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []ValidationDetail{{Field: "self_address", Message: "is required"}}
	resp := NewValidationErrorResponse("Request validation failed", "", details)

	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, details, resp.Error.Details)
	assert.Empty(t, resp.Error.RequestID)
}

func TestNewListResponse(t *testing.T) {
	var none []string
	resp := NewListResponse(none)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{}, resp.Data)
	assert.Equal(t, 0, resp.Meta.Total)

	raw, err := json.Marshal(NewListResponse([]int{1, 2}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":[1,2],"meta":{"total":2}}`, string(raw))
}
