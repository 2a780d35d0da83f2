package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/middleware"
	"licensehub/internal/services"
)

// ProductCatalog resolves products within the authenticated key's
// brand.
type ProductCatalog interface {
	GetProductBySlug(ctx context.Context, brandID uuid.UUID, slug string) (*domain.Product, error)
}

// ProductHandler serves the product-facing API, authenticated by
// X-License-Key.
type ProductHandler struct {
	catalog ProductCatalog
	seats   *services.SeatManager
	status  *services.StatusService
	logger  *slog.Logger
}

// NewProductHandler creates a ProductHandler.
func NewProductHandler(catalog ProductCatalog, seats *services.SeatManager, status *services.StatusService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		seats:   seats,
		status:  status,
		logger:  logger.With(slog.String("handler", "product")),
	}
}

// Routes returns the product API router. License key auth is applied
// by the caller.
func (h *ProductHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/activate", h.Activate)
	r.Get("/activations", h.ListActivations)
	r.Delete("/activations/{activationID}", h.Deactivate)
	r.Get("/status", h.GetStatus)
	return r
}

type activateRequest struct {
	ProductSlug        string         `json:"product_slug" validate:"required,max=100"`
	InstanceIdentifier string         `json:"instance_identifier" validate:"required,max=500"`
	InstanceType       string         `json:"instance_type" validate:"required,oneof=url hostname machine_id"`
	InstanceMetadata   map[string]any `json:"instance_metadata,omitempty"`
}

// Bind implements render.Binder.
func (p *activateRequest) Bind(*http.Request) error {
	return validate.Struct(p)
}

type activationResponse struct {
	ID                 uuid.UUID      `json:"id"`
	LicenseID          uuid.UUID      `json:"license_id"`
	InstanceIdentifier string         `json:"instance_identifier"`
	InstanceType       string         `json:"instance_type"`
	InstanceMetadata   map[string]any `json:"instance_metadata"`
	IsActive           bool           `json:"is_active"`
	ActivatedAt        time.Time      `json:"activated_at"`
	DeactivatedAt      *time.Time     `json:"deactivated_at"`
}

func toActivationResponse(a *domain.Activation) activationResponse {
	return activationResponse{
		ID:                 a.ID,
		LicenseID:          a.LicenseID,
		InstanceIdentifier: a.InstanceIdentifier,
		InstanceType:       string(a.InstanceType),
		InstanceMetadata:   a.InstanceMetadata,
		IsActive:           a.IsActive,
		ActivatedAt:        a.ActivatedAt,
		DeactivatedAt:      a.DeactivatedAt,
	}
}

type activateResponse struct {
	Activation activationResponse `json:"activation"`
	Outcome    string             `json:"outcome"`
	SeatLimit  int                `json:"seat_limit"`
	SeatsUsed  int                `json:"seats_used"`
}

// Activate handles POST /activate.
func (h *ProductHandler) Activate(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.LicenseKeyFromContext(r.Context())
	if !ok {
		middleware.RenderError(w, r, domain.ErrInvalidLicenseKey)
		return
	}
	var req activateRequest
	if err := render.Bind(r, &req); err != nil {
		middleware.RenderError(w, r, domain.NewError(domain.CodeValidationError, err.Error()))
		return
	}

	product, err := h.catalog.GetProductBySlug(r.Context(), key.BrandID, req.ProductSlug)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}

	res, err := h.seats.Activate(r.Context(), key, product.ID, req.InstanceIdentifier,
		domain.InstanceType(req.InstanceType), req.InstanceMetadata)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, activateResponse{
		Activation: toActivationResponse(res.Activation),
		Outcome:    string(res.Outcome),
		SeatLimit:  res.SeatLimit,
		SeatsUsed:  res.SeatsUsed,
	})
}

// ListActivations handles GET /activations?product_id=&active=&instance=.
func (h *ProductHandler) ListActivations(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.LicenseKeyFromContext(r.Context())
	if !ok {
		middleware.RenderError(w, r, domain.ErrInvalidLicenseKey)
		return
	}
	productID, err := uuid.Parse(r.URL.Query().Get("product_id"))
	if err != nil {
		middleware.RenderError(w, r, domain.NewError(domain.CodeValidationError, "product_id query parameter is required"))
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	instance := r.URL.Query().Get("instance")

	activations, err := h.seats.ListActivations(r.Context(), key, productID, activeOnly, instance)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}

	resp := make([]activationResponse, 0, len(activations))
	for _, a := range activations {
		resp = append(resp, toActivationResponse(a))
	}
	render.JSON(w, r, map[string]any{"activations": resp})
}

// Deactivate handles DELETE /activations/{activationID} on behalf of
// the key holder.
func (h *ProductHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.LicenseKeyFromContext(r.Context())
	if !ok {
		middleware.RenderError(w, r, domain.ErrInvalidLicenseKey)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "activationID"))
	if err != nil {
		middleware.RenderError(w, r, domain.NewError(domain.CodeValidationError, "invalid activation id"))
		return
	}

	a, err := h.seats.DeactivateForKey(r.Context(), key, id)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, toActivationResponse(a))
}

// GetStatus handles GET /status?instance_identifier=.
func (h *ProductHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	raw := middleware.RawLicenseKeyFromContext(r.Context())
	if raw == "" {
		middleware.RenderError(w, r, domain.ErrInvalidLicenseKey)
		return
	}

	status, err := h.status.GetStatus(r.Context(), raw, r.URL.Query().Get("instance_identifier"))
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}
