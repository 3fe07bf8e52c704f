package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/okazakov/bookbot/internal/api/middleware"
	"github.com/okazakov/bookbot/internal/domain"
	"github.com/okazakov/bookbot/internal/ledger"
	"github.com/okazakov/bookbot/internal/storage"
)

// Ledger is the slice of the ledger service the HTTP surface needs.
type Ledger interface {
	Create(ctx context.Context, in ledger.CreateInput) (*domain.Transaction, error)
	Approve(ctx context.Context, referenceCode, approverID string) (*domain.Transaction, error)
	Reject(ctx context.Context, referenceCode, approverID, reason string) (*domain.Transaction, error)
	ByReference(ctx context.Context, referenceCode string) (*domain.Transaction, error)
	ByOwner(ctx context.Context, ownerID string, f storage.TransactionFilter) ([]*domain.Transaction, error)
	Pending(ctx context.Context) ([]*domain.Transaction, error)
}

// TransactionsHandler handles ledger endpoints.
type TransactionsHandler struct {
	ledger Ledger
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(ledger Ledger, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{ledger: ledger, log: log}
}

// Create handles POST /api/transactions
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID      string `json:"owner_id"`
		Type         string `json:"type"`
		Amount       string `json:"amount"`
		Description  string `json:"description"`
		Counterparty string `json:"counterparty"`
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

	tx, err := h.ledger.Create(r.Context(), ledger.CreateInput{
		OwnerID:      req.OwnerID,
		Type:         domain.TransactionType(req.Type),
		Amount:       amount,
		Description:  req.Description,
		Counterparty: req.Counterparty,
	})
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	h.log.Info().
		Str("reference_code", tx.ReferenceCode).
		Str("status", string(tx.Status)).
		Msg("Transaction created")

	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// Approve handles POST /api/transactions/{ref}/approve
func (h *TransactionsHandler) Approve(w http.ResponseWriter, r *http.Request, ref string) {
	actorID := r.Header.Get("X-Actor-ID")
	if actorID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Actor-ID header is required")
		return
	}

	tx, err := h.ledger.Approve(r.Context(), ref, actorID)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// Reject handles POST /api/transactions/{ref}/reject
func (h *TransactionsHandler) Reject(w http.ResponseWriter, r *http.Request, ref string) {
	actorID := r.Header.Get("X-Actor-ID")
	if actorID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Actor-ID header is required")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.ledger.Reject(r.Context(), ref, actorID, req.Reason)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// Get handles GET /api/transactions/{ref}
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request, ref string) {
	tx, err := h.ledger.ByReference(r.Context(), ref)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// List handles GET /api/transactions?owner_id=...&type=...&status=...&from=...&to=...
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	ownerID := query.Get("owner_id")
	if ownerID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	filter := storage.TransactionFilter{
		Type:   domain.TransactionType(query.Get("type")),
		Status: domain.TransactionStatus(query.Get("status")),
	}

	var err error
	if from := query.Get("from"); from != "" {
		filter.From, err = time.Parse("2006-01-02", from)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid from date")
			return
		}
	}
	if to := query.Get("to"); to != "" {
		filter.To, err = time.Parse("2006-01-02", to)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid to date")
			return
		}
	}

	txs, err := h.ledger.ByOwner(r.Context(), ownerID, filter)
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Pending handles GET /api/transactions/pending
func (h *TransactionsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.Pending(r.Context())
	if err != nil {
		writeDomainError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}
