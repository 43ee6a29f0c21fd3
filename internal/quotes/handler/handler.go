package handler

import (
	"net/http"

	"crm_portal_backend/internal/quotes/domain"
	"crm_portal_backend/internal/quotes/repository"
	"crm_portal_backend/internal/quotes/service"
	"crm_portal_backend/internal/quotes/transport"
	"crm_portal_backend/platform/httpkit"
	"crm_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler handles HTTP requests for quotes
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new quotes handler
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the quote routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id/status", h.UpdateStatus)
	rg.DELETE("/:id", h.Delete)
}

// Create handles POST /api/v1/quotes
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	quote, err := h.svc.Create(c.Request.Context(), identity.UserID(), req.LeadID, req.AmountCents, req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Created(c, toQuoteResponse(quote))
}

// GetByID handles GET /api/v1/quotes/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	quote, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toQuoteResponse(quote))
}

// UpdateStatus handles PATCH /api/v1/quotes/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.UpdateQuoteStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	status, ok := domain.ParseStatus(req.Status)
	if !ok {
		httpkit.HandleError(c, domain.ErrUnknownStatus(req.Status))
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	result, err := h.svc.UpdateStatus(c.Request.Context(), id, status, identity.UserID(), req.Notes)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toStatusResponse(result))
}

// Delete handles DELETE /api/v1/quotes/:id
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

func toQuoteResponse(q *repository.Quote) transport.QuoteResponse {
	return transport.QuoteResponse{
		ID:              q.ID,
		LeadID:          q.LeadID,
		Status:          q.Status,
		AmountCents:     q.AmountCents,
		Notes:           q.Notes,
		UploadedBy:      q.UploadedBy,
		StatusChangedBy: q.StatusChangedBy,
		StatusChangedAt: q.StatusChangedAt,
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
	}
}

func toStatusResponse(r *service.StatusChangeResult) transport.QuoteStatusResponse {
	resp := transport.QuoteStatusResponse{
		Quote:          toQuoteResponse(&r.Quote),
		PreviousStatus: string(r.Previous),
	}
	switch {
	case r.Account != nil:
		resp.ClientAccount = &transport.ClientAccountResponse{
			UserID: r.Account.User.ID, Email: r.Account.User.Email, Created: true,
		}
	case r.ExistingClient != nil:
		resp.ClientAccount = &transport.ClientAccountResponse{
			UserID: r.ExistingClient.ID, Email: r.ExistingClient.Email,
		}
	}
	return resp
}
