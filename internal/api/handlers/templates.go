package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okazakov/bookbot/internal/api/middleware"
	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/recurring"
)

// Templates is the slice of the recurring engine the HTTP surface needs.
type Templates interface {
	CreateTemplate(ctx context.Context, in recurring.TemplateInput) (*domain.RecurringTemplate, error)
	Template(ctx context.Context, id string) (*domain.RecurringTemplate, error)
	TemplatesByOwner(ctx context.Context, ownerID string) ([]*domain.RecurringTemplate, error)
	RunsFor(ctx context.Context, templateID string) ([]*domain.RunHistory, error)
	Pause(ctx context.Context, id string) (*domain.RecurringTemplate, error)
	Resume(ctx context.Context, id string) (*domain.RecurringTemplate, error)
	Cancel(ctx context.Context, id string) (*domain.RecurringTemplate, error)
}

// TemplatesHandler handles recurring-template endpoints.
type TemplatesHandler struct {
	engine Templates
	log    zerolog.Logger
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(engine Templates, log zerolog.Logger) *TemplatesHandler {
	return &TemplatesHandler{engine: engine, log: log}
}

// Create handles POST /api/templates
func (h *TemplatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID      string  `json:"owner_id"`
		Type         string  `json:"type"`
		Amount       string  `json:"amount"`
		Description  string  `json:"description"`
		Counterparty string  `json:"counterparty"`
		Frequency    string  `json:"frequency"`
		Interval     int     `json:"interval"`
		DayOfWeek    string  `json:"day_of_week"`
		DayOfMonth   *int    `json:"day_of_month"`
		StartDate    string  `json:"start_date"`
		EndDate      *string `json:"end_date"`
		MaxRuns      *int    `json:"max_occurrences"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "amount must be a decimal string")
		return
	}

	start, err := civil.ParseDate(req.StartDate)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}

	in := recurring.TemplateInput{
		OwnerID:      req.OwnerID,
		Type:         domain.TransactionType(req.Type),
		Amount:       amount,
		Description:  req.Description,
		Counterparty: req.Counterparty,
		Frequency:    domain.Frequency(req.Frequency),
		Interval:     req.Interval,
		DayOfMonth:   req.DayOfMonth,
		StartDate:    start,
		MaxRuns:      req.MaxRuns,
	}

	if req.DayOfWeek != "" {
		dow, err := domain.ParseWeekday(req.DayOfWeek)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Unknown day_of_week")
			return
		}
		in.DayOfWeek = &dow
	}
	if req.EndDate != nil {
		end, err := civil.ParseDate(*req.EndDate)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
			return
		}
		in.EndDate = &end
	}

	tmpl, err := h.engine.CreateTemplate(r.Context(), in)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	h.log.Info().
		Str("template_id", tmpl.ID).
		Str("frequency", string(tmpl.Frequency)).
		Msg("Template created")

	middleware.WriteJSON(w, http.StatusCreated, tmpl)
}

// Get handles GET /api/templates/{id}
func (h *TemplatesHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	tmpl, err := h.engine.Template(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tmpl)
}

// List handles GET /api/templates?owner_id=...
func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	templates, err := h.engine.TemplatesByOwner(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

// Runs handles GET /api/templates/{id}/runs
func (h *TemplatesHandler) Runs(w http.ResponseWriter, r *http.Request, id string) {
	runs, err := h.engine.RunsFor(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// Pause handles POST /api/templates/{id}/pause
func (h *TemplatesHandler) Pause(w http.ResponseWriter, r *http.Request, id string) {
	h.transition(w, r, id, h.engine.Pause)
}

// Resume handles POST /api/templates/{id}/resume
func (h *TemplatesHandler) Resume(w http.ResponseWriter, r *http.Request, id string) {
	h.transition(w, r, id, h.engine.Resume)
}

// Cancel handles POST /api/templates/{id}/cancel
func (h *TemplatesHandler) Cancel(w http.ResponseWriter, r *http.Request, id string) {
	h.transition(w, r, id, h.engine.Cancel)
}

func (h *TemplatesHandler) transition(w http.ResponseWriter, r *http.Request, id string, op func(context.Context, string) (*domain.RecurringTemplate, error)) {
	tmpl, err := op(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tmpl)
}
