package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	partnerapp "github.com/supplychain/backend/internal/application/partner"
	"github.com/supplychain/backend/internal/domain/partner"
	"github.com/supplychain/backend/internal/interfaces/http/dto"
	"github.com/supplychain/backend/internal/interfaces/http/middleware"
)

// RelationshipHandler handles partner relationship endpoints
type RelationshipHandler struct {
	BaseHandler
	service *partnerapp.RelationshipService
}

// NewRelationshipHandler creates a new RelationshipHandler
func NewRelationshipHandler(service *partnerapp.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{service: service}
}

// DeleteRelationshipResponse is the body of a successful delete
type DeleteRelationshipResponse struct {
	Message  string                       `json:"message" example:"Relationship deleted"`
	Warnings []partner.ConsistencyWarning `json:"warnings"`
}

// List godoc
// @ID           listPartnerRelationships
// @Summary      List relationships owned by an address
// @Tags         partner-relationships
// @Produce      json
// @Param        self_address query    string true "Owner address"
// @Success      200          {object} APIResponse[[]partnerapp.RelationshipResponse]
// @Failure      400          {object} ErrorResponse
// @Failure      403          {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partner/relationships [get]
func (h *RelationshipHandler) List(c *gin.Context) {
	selfAddress := c.Query("self_address")
	if !middleware.AuthorizeAddress(c, selfAddress) {
		h.Forbidden(c, "Token address does not match self_address")
		return
	}

	items, err := h.service.List(c.Request.Context(), selfAddress)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(items))
}

// Get godoc
// @ID           getPartnerRelationship
// @Summary      Get one relationship record
// @Tags         partner-relationships
// @Produce      json
// @Param        id  path     string true "Relationship ID"
// @Success      200 {object} APIResponse[partnerapp.RelationshipResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partner/relationships/{id} [get]
func (h *RelationshipHandler) Get(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	record, ok := h.loadOwned(c, id)
	if !ok {
		return
	}
	h.Success(c, record)
}

// Create godoc
// @ID           createPartnerRelationship
// @Summary      Create a relationship and its mirror
// @Description  Stores (self, company, relationship) and (company, self, inverse). A failed mirror write is reported in warnings.
// @Tags         partner-relationships
// @Accept       json
// @Produce      json
// @Param        request body     partnerapp.CreateRelationshipRequest true "Relationship"
// @Success      201     {object} APIResponse[partnerapp.MutationResult]
// @Failure      400     {object} ErrorResponse
// @Failure      403     {object} ErrorResponse
// @Failure      409     {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partner/relationships [post]
func (h *RelationshipHandler) Create(c *gin.Context) {
	var req partnerapp.CreateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if !middleware.AuthorizeAddress(c, req.SelfAddress) {
		h.Forbidden(c, "Token address does not match self_address")
		return
	}

	result, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Update godoc
// @ID           updatePartnerRelationship
// @Summary      Update company name and/or status
// @Description  Only company_name and status are accepted. A status change is applied to the mirror as well.
// @Tags         partner-relationships
// @Accept       json
// @Produce      json
// @Param        id      path     string                               true "Relationship ID"
// @Param        request body     partnerapp.UpdateRelationshipRequest true "Fields to change"
// @Success      200     {object} APIResponse[partnerapp.MutationResult]
// @Failure      400     {object} ErrorResponse
// @Failure      404     {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partner/relationships/{id} [patch]
func (h *RelationshipHandler) Update(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}

	var req partnerapp.UpdateRelationshipRequest
	if err := decodeStrict(c.Request.Body, &req); err != nil {
		h.bindError(c, err)
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if _, ok := h.loadOwned(c, id); !ok {
		return
	}

	result, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Delete godoc
// @ID           deletePartnerRelationship
// @Summary      Delete a relationship and its mirror
// @Tags         partner-relationships
// @Produce      json
// @Param        id  path     string true "Relationship ID"
// @Success      200 {object} APIResponse[DeleteRelationshipResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /partner/relationships/{id} [delete]
func (h *RelationshipHandler) Delete(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	if _, ok := h.loadOwned(c, id); !ok {
		return
	}

	result, err := h.service.Delete(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, DeleteRelationshipResponse{
		Message:  "Relationship deleted",
		Warnings: result.Warnings,
	})
}

func (h *RelationshipHandler) bindID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}

// loadOwned reads the record and enforces that the caller owns it
func (h *RelationshipHandler) loadOwned(c *gin.Context, id uuid.UUID) (*partnerapp.RelationshipResponse, bool) {
	record, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	if !middleware.AuthorizeAddress(c, record.SelfAddress) {
		h.Forbidden(c, "Token address does not own this relationship")
		return nil, false
	}
	return record, true
}

func (h *RelationshipHandler) bindError(c *gin.Context, err error) {
	var maxBytes *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxBytes):
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBodyTooLarge, "Request body exceeds maximum allowed size")
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
	case strings.HasPrefix(err.Error(), unknownFieldPrefix):
		field := strings.TrimPrefix(err.Error(), unknownFieldPrefix)
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Field "+field+" cannot be updated")
	default:
		middleware.HandleValidationError(c, err)
	}
}

// encoding/json exposes no typed error for DisallowUnknownFields
const unknownFieldPrefix = "json: unknown field "

// decodeStrict decodes a single JSON object and rejects fields the target does not declare
func decodeStrict(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
