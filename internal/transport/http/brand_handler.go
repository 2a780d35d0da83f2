// Package http is the HTTP transport: request binding, response
// shaping and routing. All business rules live in the services layer.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"licensehub/internal/domain"
	"licensehub/internal/middleware"
	"licensehub/internal/services"
)

var validate = validator.New()

// BrandHandler serves the brand-facing API, authenticated by X-API-Key.
type BrandHandler struct {
	provision *services.ProvisionService
	lifecycle *services.LifecycleService
	status    *services.StatusService
	seats     *services.SeatManager
	logger    *slog.Logger
}

// NewBrandHandler creates a BrandHandler.
func NewBrandHandler(provision *services.ProvisionService, lifecycle *services.LifecycleService, status *services.StatusService, seats *services.SeatManager, logger *slog.Logger) *BrandHandler {
	return &BrandHandler{
		provision: provision,
		lifecycle: lifecycle,
		status:    status,
		seats:     seats,
		logger:    logger.With(slog.String("handler", "brand")),
	}
}

// Routes returns the brand API router. Auth, rate limiting and
// idempotency are applied by the caller.
func (h *BrandHandler) Routes(requireWrite func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/licenses", h.ListByEmail)
	r.Group(func(r chi.Router) {
		r.Use(requireWrite)
		r.Post("/licenses/provision", h.Provision)
		r.Patch("/licenses/{licenseID}/renew", h.Renew)
		r.Patch("/licenses/{licenseID}/suspend", h.Suspend)
		r.Patch("/licenses/{licenseID}/resume", h.Resume)
		r.Patch("/licenses/{licenseID}/cancel", h.Cancel)
		r.Delete("/activations/{activationID}", h.Deactivate)
	})
	return r
}

type provisionRequest struct {
	CustomerEmail  string      `json:"customer_email" validate:"required,email"`
	Products       []uuid.UUID `json:"products" validate:"required,min=1"`
	ExpirationDate *time.Time  `json:"expiration_date,omitempty"`
	MaxSeats       int         `json:"max_seats" validate:"omitempty,min=1"`
}

// Bind implements render.Binder. max_seats defaults to one seat per
// license.
func (p *provisionRequest) Bind(*http.Request) error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	if p.MaxSeats == 0 {
		p.MaxSeats = 1
	}
	return nil
}

type licenseResponse struct {
	ID        uuid.UUID            `json:"id"`
	ProductID uuid.UUID            `json:"product_id"`
	Status    domain.LicenseStatus `json:"status"`
	SeatLimit int                  `json:"seat_limit"`
	ExpiresAt *time.Time           `json:"expires_at"`
	CreatedAt time.Time            `json:"created_at"`
}

func toLicenseResponse(lic *domain.License) licenseResponse {
	return licenseResponse{
		ID:        lic.ID,
		ProductID: lic.ProductID,
		Status:    lic.Status,
		SeatLimit: lic.SeatLimit,
		ExpiresAt: lic.ExpiresAt,
		CreatedAt: lic.CreatedAt,
	}
}

type licenseKeyResponse struct {
	ID            uuid.UUID `json:"id"`
	Key           string    `json:"key"`
	BrandID       uuid.UUID `json:"brand_id"`
	CustomerEmail string    `json:"customer_email"`
	CreatedAt     time.Time `json:"created_at"`
}

type provisionResponse struct {
	LicenseKey licenseKeyResponse `json:"license_key"`
	Licenses   []licenseResponse  `json:"licenses"`
}

// Provision handles POST /licenses/provision. The response is the only place the
// raw license key ever appears.
func (h *BrandHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := render.Bind(r, &req); err != nil {
		middleware.RenderError(w, r, domain.NewError(domain.CodeValidationError, err.Error()))
		return
	}

	items := make([]services.ProvisionItem, 0, len(req.Products))
	for _, productID := range req.Products {
		items = append(items, services.ProvisionItem{
			ProductID: productID,
			SeatLimit: req.MaxSeats,
			ExpiresAt: req.ExpirationDate,
		})
	}

	res, err := h.provision.Provision(r.Context(), middleware.BrandIDFromContext(r.Context()), req.CustomerEmail, items)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}

	resp := provisionResponse{
		LicenseKey: licenseKeyResponse{
			ID:            res.Key.ID,
			Key:           res.Key.Key,
			BrandID:       res.Key.BrandID,
			CustomerEmail: res.Key.CustomerEmail,
			CreatedAt:     res.Key.CreatedAt,
		},
		Licenses: make([]licenseResponse, 0, len(res.Licenses)),
	}
	for _, lic := range res.Licenses {
		resp.Licenses = append(resp.Licenses, toLicenseResponse(lic))
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

type renewRequest struct {
	ExpirationDate time.Time `json:"expiration_date" validate:"required"`
}

// Bind implements render.Binder.
func (p *renewRequest) Bind(*http.Request) error {
	return validate.Struct(p)
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Bind implements render.Binder.
func (p *reasonRequest) Bind(*http.Request) error { return nil }

func licenseIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "licenseID"))
	if err != nil {
		return uuid.Nil, domain.NewError(domain.CodeValidationError, "invalid license id")
	}
	return id, nil
}

// Renew handles PATCH /licenses/{licenseID}/renew.
func (h *BrandHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id, err := licenseIDParam(r)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	var req renewRequest
	if err := render.Bind(r, &req); err != nil {
		middleware.RenderError(w, r, domain.NewError(domain.CodeValidationError, err.Error()))
		return
	}

	lic, err := h.lifecycle.Renew(r.Context(), middleware.BrandIDFromContext(r.Context()), id, req.ExpirationDate)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, toLicenseResponse(lic))
}

func (h *BrandHandler) transition(w http.ResponseWriter, r *http.Request, fn func(brandID, licenseID uuid.UUID, reason string) (*domain.License, error)) {
	id, err := licenseIDParam(r)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	var req reasonRequest
	// The body is optional for these transitions.
	_ = render.Bind(r, &req)

	lic, err := fn(middleware.BrandIDFromContext(r.Context()), id, req.Reason)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, toLicenseResponse(lic))
}

// Suspend handles PATCH /licenses/{licenseID}/suspend.
func (h *BrandHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(brandID, licenseID uuid.UUID, reason string) (*domain.License, error) {
		return h.lifecycle.Suspend(r.Context(), brandID, licenseID, reason)
	})
}

// Resume handles PATCH /licenses/{licenseID}/resume.
func (h *BrandHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(brandID, licenseID uuid.UUID, _ string) (*domain.License, error) {
		return h.lifecycle.Resume(r.Context(), brandID, licenseID)
	})
}

// Cancel handles PATCH /licenses/{licenseID}/cancel.
func (h *BrandHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(brandID, licenseID uuid.UUID, reason string) (*domain.License, error) {
		return h.lifecycle.Cancel(r.Context(), brandID, licenseID, reason)
	})
}

type customerLicenseResponse struct {
	licenseResponse
	ProductName    string `json:"product_name"`
	SeatsUsed      int    `json:"seats_used"`
	SeatsRemaining int    `json:"seats_remaining"`
}

type customerKeyResponse struct {
	LicenseKeyID  uuid.UUID                 `json:"license_key_id"`
	CustomerEmail string                    `json:"customer_email"`
	Licenses      []customerLicenseResponse `json:"licenses"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// ListByEmail handles GET /licenses?email=. Keys with only cancelled
// licenses are included so support sees full history.
func (h *BrandHandler) ListByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		middleware.RenderError(w, r, domain.NewError(domain.CodeValidationError, "email query parameter is required"))
		return
	}

	keys, err := h.status.ListByEmail(r.Context(), middleware.BrandIDFromContext(r.Context()), email)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}

	resp := make([]customerKeyResponse, 0, len(keys))
	for _, ck := range keys {
		item := customerKeyResponse{
			LicenseKeyID:  ck.Key.ID,
			CustomerEmail: ck.Key.CustomerEmail,
			Licenses:      make([]customerLicenseResponse, 0, len(ck.Licenses)),
			CreatedAt:     ck.Key.CreatedAt,
		}
		for _, cl := range ck.Licenses {
			item.Licenses = append(item.Licenses, customerLicenseResponse{
				licenseResponse: toLicenseResponse(cl.License),
				ProductName:     cl.ProductName,
				SeatsUsed:       cl.SeatsUsed,
				SeatsRemaining:  cl.SeatsRemaining,
			})
		}
		resp = append(resp, item)
	}
	render.JSON(w, r, map[string]any{"keys": resp})
}

// Deactivate handles DELETE /activations/{activationID} on behalf of
// the brand.
func (h *BrandHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "activationID"))
	if err != nil {
		middleware.RenderError(w, r, domain.NewError(domain.CodeValidationError, "invalid activation id"))
		return
	}

	a, err := h.seats.DeactivateForBrand(r.Context(), middleware.BrandIDFromContext(r.Context()), id)
	if err != nil {
		middleware.RenderError(w, r, err)
		return
	}
	render.JSON(w, r, toActivationResponse(a))
}
