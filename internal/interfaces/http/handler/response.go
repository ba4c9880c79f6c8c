package handler

import "github.com/supplychain/backend/internal/interfaces/http/dto"

// APIResponse is dto.Response with a typed data field. Handlers write
// dto.Response; this shape is for API docs and for clients decoding a known
// payload.
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse documents a failed call
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error"`
}
