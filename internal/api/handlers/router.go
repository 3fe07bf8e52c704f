package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/okazakov/bookbot/internal/api/middleware"
)

// NewRouter builds the API mux over the two handlers.
func NewRouter(tx *TransactionsHandler, tmpl *TemplatesHandler, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			tx.Create(w, r)
		case http.MethodGet:
			tx.List(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/pending", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			tx.Pending(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if rest == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Reference code is required")
			return
		}

		ref, action, _ := strings.Cut(rest, "/")
		switch {
		case action == "" && r.Method == http.MethodGet:
			tx.Get(w, r, ref)
		case action == "approve" && r.Method == http.MethodPost:
			tx.Approve(w, r, ref)
		case action == "reject" && r.Method == http.MethodPost:
			tx.Reject(w, r, ref)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Templates endpoints
	mux.HandleFunc("/api/templates", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			tmpl.Create(w, r)
		case http.MethodGet:
			tmpl.List(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/templates/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/templates/")
		if rest == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Template ID is required")
			return
		}

		id, action, _ := strings.Cut(rest, "/")
		switch {
		case action == "" && r.Method == http.MethodGet:
			tmpl.Get(w, r, id)
		case action == "runs" && r.Method == http.MethodGet:
			tmpl.Runs(w, r, id)
		case action == "pause" && r.Method == http.MethodPost:
			tmpl.Pause(w, r, id)
		case action == "resume" && r.Method == http.MethodPost:
			tmpl.Resume(w, r, id)
		case action == "cancel" && r.Method == http.MethodPost:
			tmpl.Cancel(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)
}
