// Package api exposes the inbound webhook endpoint and the read-only
// observability endpoints described in §4.G and §6.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"lead-gateway/internal/config"
	"lead-gateway/internal/models"
	"lead-gateway/internal/queue"
	"lead-gateway/internal/telemetry"
)

// Store is the subset of persistence operations the ingest and
// observability handlers need. Satisfied by *store.Store.
type Store interface {
	Ping(ctx context.Context) error
	CreateLead(ctx context.Context, raw map[string]any, headers map[string]string) (models.Lead, error)
	GetLead(ctx context.Context, id int64) (models.Lead, error)
	ListRecentLeads(ctx context.Context, status string, limit int) ([]models.Lead, error)
	ListDeliveryAttempts(ctx context.Context, leadID int64) ([]models.DeliveryAttempt, error)
	CountLeadsByStatus(ctx context.Context) (map[string]int64, error)
}

// Server wires the HTTP handlers for the gateway.
type Server struct {
	cfg   config.Config
	store Store
	queue queue.Queue
}

// New constructs the API server.
func New(cfg config.Config, st Store, q queue.Queue) *Server {
	return &Server{cfg: cfg, store: st, queue: q}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/webhooks/leads", s.handleIngest)
	r.Get("/leads", s.handleListLeads)
	r.Get("/leads/{id}", s.handleGetLead)
	r.Get("/leads/{id}/attempts", s.handleLeadAttempts)
	r.Get("/stats", s.handleStats)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestResponse struct {
	LeadID        int64  `json:"lead_id"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.New().String()
	w.Header().Set("X-Correlation-ID", correlationID)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", correlationID)
		return
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body", correlationID)
		return
	}

	if s.cfg.AuthEnabled {
		got := r.Header.Get(s.cfg.AuthHeaderName)
		if got == "" || got != s.cfg.AuthSharedSecret {
			writeError(w, http.StatusUnauthorized, "unauthorized", correlationID)
			return
		}
	}

	headers := snapshotHeaders(r.Header)
	headers["X-Correlation-ID"] = correlationID

	lead, err := s.store.CreateLead(r.Context(), raw, headers)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "failed to persist lead", correlationID)
		return
	}

	job := models.Job{Type: models.ProcessLeadJobType, Payload: map[string]any{"lead_id": lead.ID}}
	if _, err := s.queue.Enqueue(r.Context(), job, time.Now()); err != nil {
		// The lead row survives; it is picked up later by the orphan
		// sweep rather than lost (§9).
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue lead for processing", correlationID)
		return
	}

	telemetry.LeadsIngested.Inc()
	writeJSON(w, http.StatusOK, ingestResponse{LeadID: lead.ID, Status: models.StatusReceived, CorrelationID: correlationID})
}

func snapshotHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		out[name] = h.Get(name)
	}
	return out
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	leads, err := s.store.ListRecentLeads(r.Context(), status, limit)
	if err != nil {
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}
	lead, err := s.store.GetLead(r.Context(), id)
	if err != nil {
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleLeadAttempts(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}
	attempts, err := s.store.ListDeliveryAttempts(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to list delivery attempts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead_id": id, "attempts": attempts})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountLeadsByStatus(r.Context())
	if err != nil {
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads_by_status": counts})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message, correlationID string) {
	writeJSON(w, code, errorResponse{Error: message, CorrelationID: correlationID})
}
