package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rguerramena-source/decision-api/internal/batch"
	"github.com/rguerramena-source/decision-api/internal/domain"
	"github.com/rguerramena-source/decision-api/internal/engine"
	"github.com/rguerramena-source/decision-api/internal/repository"
	"github.com/rguerramena-source/decision-api/internal/worker"
)

// historyCacheTTL bounds staleness of cached loan histories.
const historyCacheTTL = 5 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	policies     *engine.PolicyEngine
	orchestrator *batch.Orchestrator
	engineConfig domain.EngineConfig
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, policies *engine.PolicyEngine, orchestrator *batch.Orchestrator, engineConfig domain.EngineConfig, version string) *Handler {
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		policies:     policies,
		orchestrator: orchestrator,
		engineConfig: engineConfig,
		version:      version,
	}
}

// DecideRequest is the request body for POST /decide.
type DecideRequest struct {
	Loans []*domain.Loan `json:"loans"`

	// Transactions carries the loans' attempt history inline. When absent
	// the history is loaded from storage.
	Transactions []*domain.Transaction `json:"transactions,omitempty"`

	// Config overrides the engine defaults for this request only.
	Config *domain.EngineOverrides `json:"config,omitempty"`

	// Now pins the evaluation clock. Replaying a request with the same
	// now yields byte-identical decisions.
	Now domain.Timestamp `json:"now,omitzero"`
}

// DecideResponse is the response for POST /decide.
type DecideResponse struct {
	Decisions []domain.Decision `json:"decisions"`
	Metadata  struct {
		TraceID        string `json:"traceId"`
		LoansEvaluated int    `json:"loansEvaluated"`
		IngestMs       int64  `json:"ingestMs"`
		TotalMs        int64  `json:"totalMs"`
		Version        string `json:"version"`
	} `json:"metadata"`
}

// Decide handles POST /decide requests.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	// Parse request
	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate required fields
	if len(req.Loans) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "loans is required and must not be empty",
		})
		return
	}
	for i, loan := range req.Loans {
		if loan == nil || loan.ID() == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("loans[%d]: loan_id is required", i),
			})
			return
		}
	}

	ingestMs := time.Since(start).Milliseconds()

	// Pin the evaluation clock
	now := time.Now().UTC()
	if !req.Now.IsZero() {
		now = req.Now.UTC()
	}

	cfg := h.engineConfig.With(req.Config)

	txs := req.Transactions
	if txs == nil {
		loaded, err := h.loadHistory(ctx, req.Loans)
		if err != nil {
			slog.Error("failed to load transaction history", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load transaction history",
			})
			return
		}
		txs = loaded
	} else if h.repo != nil && len(txs) > 0 {
		// Inline history feeds the audit trail. Persistence failures do
		// not block the evaluation.
		if err := h.repo.SaveTransactions(ctx, txs); err != nil {
			slog.Error("failed to save transactions", "error", err)
		}
	}

	result := h.orchestrator.Decide(ctx, req.Loans, txs, cfg, now)

	// Persist decisions for the audit trail
	if h.repo != nil {
		for i := range result.Decisions {
			if err := h.repo.SaveDecision(ctx, &result.Decisions[i]); err != nil {
				slog.Error("failed to save decision",
					"loan_id", result.Decisions[i].LoanID,
					"error", err,
				)
			}
		}
	}

	h.publishResults(ctx, traceID, result)

	totalMs := time.Since(start).Milliseconds()

	resp := DecideResponse{Decisions: result.Decisions}
	resp.Metadata.TraceID = traceID
	resp.Metadata.LoansEvaluated = len(result.Decisions)
	resp.Metadata.IngestMs = ingestMs
	resp.Metadata.TotalMs = totalMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// loadHistory fetches transaction history for a set of loans, checking the
// cache first and falling back to storage for the misses.
func (h *Handler) loadHistory(ctx context.Context, loans []*domain.Loan) ([]*domain.Transaction, error) {
	var all []*domain.Transaction
	var missing []string

	for _, loan := range loans {
		id := loan.ID()
		if h.cache != nil {
			cached, err := h.cache.GetHistory(ctx, id)
			if err == nil && cached != nil {
				all = append(all, cached...)
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 || h.repo == nil {
		return all, nil
	}

	fetched, err := h.repo.GetTransactionsByLoanIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	all = append(all, fetched...)

	if h.cache != nil {
		byLoan := make(map[string][]*domain.Transaction, len(missing))
		for _, tx := range fetched {
			byLoan[tx.LoanID] = append(byLoan[tx.LoanID], tx)
		}
		for _, id := range missing {
			// Empty histories are cached too so repeat lookups of
			// fresh loans skip the database.
			if err := h.cache.SetHistory(ctx, id, byLoan[id], historyCacheTTL); err != nil {
				slog.Debug("failed to cache history", "loan_id", id, "error", err)
			}
		}
	}

	return all, nil
}

// publishResults emits completion and stop events. Best effort.
func (h *Handler) publishResults(ctx context.Context, traceID string, result batch.Result) {
	if h.bus == nil {
		return
	}

	completed := worker.CompletedMessage{
		TraceID:        traceID,
		Decisions:      result.Decisions,
		LoansEvaluated: len(result.Decisions),
		LoansSkipped:   result.LoansSkipped,
	}
	payload, _ := json.Marshal(completed)
	if err := h.bus.Publish(ctx, domain.TopicDecisionCompleted, payload); err != nil {
		slog.Error("failed to publish decision result", "error", err)
	}

	for i := range result.Decisions {
		d := &result.Decisions[i]
		if !d.Stopped() {
			continue
		}
		dp, _ := json.Marshal(d)
		if err := h.bus.Publish(ctx, domain.TopicCollectionStopped, dp); err != nil {
			slog.Error("failed to publish stop", "loan_id", d.LoanID, "error", err)
		}
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetDecision retrieves the latest decision for a loan.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loanID := chi.URLParam(r, "loanID")

	if loanID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "loan id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	d, err := h.repo.GetLatestDecision(ctx, loanID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get decision", "loan_id", loanID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// GetLoanTransactions retrieves the attempt history for a loan.
func (h *Handler) GetLoanTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loanID := chi.URLParam(r, "loanID")

	if loanID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "loan id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	txs, err := h.repo.GetTransactionsByLoan(ctx, loanID)
	if err != nil {
		slog.Error("failed to get transactions", "loan_id", loanID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loan_id":      loanID,
		"transactions": txs,
		"count":        len(txs),
	})
}

// ListPolicies returns all policies loaded in the engine.
// Policies are loaded from the database at startup and can be reloaded via
// POST /policies/reload.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	loaded := h.policies.Loaded()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": loaded,
		"count":    len(loaded),
		"source":   "database",
	})
}

// CreatePolicyRequest is the request body for creating a policy.
type CreatePolicyRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Expression  string  `json:"expression"`
	ReasonLabel string  `json:"reasonLabel,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Enabled     bool    `json:"enabled"`
}

// CreatePolicy creates a new stop policy and saves it to the database.
// After saving, call POST /policies/reload to hot-reload into the engine.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "confidence must be between 0 and 1",
		})
		return
	}

	policy := &domain.Policy{
		ID:          req.ID,
		Name:        req.Name,
		Expression:  req.Expression,
		ReasonLabel: req.ReasonLabel,
		Confidence:  req.Confidence,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression before persisting
	if err := h.policies.Validate(policy); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository
	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, policy); err != nil {
			slog.Error("failed to save policy", "id", policy.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	slog.Info("policy created", "id", policy.ID, "name", policy.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"policy":  policy,
		"message": "Policy created. Call POST /policies/reload to apply changes.",
	})
}

// DeletePolicy disables a policy and auto-reloads the engine.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := chi.URLParam(r, "id")

	if policyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policy id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeletePolicy(ctx, policyID); err != nil {
			slog.Error("failed to delete policy", "id", policyID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found",
			})
			return
		}

		// Auto-reload policy engine after delete
		if h.policies != nil {
			dbPolicies, err := h.repo.ListPolicies(ctx)
			if err != nil {
				slog.Error("failed to reload policies after delete", "error", err)
			} else if err := h.policies.Reload(dbPolicies); err != nil {
				slog.Error("failed to reload policies after delete", "error", err)
			} else {
				slog.Info("policies auto-reloaded after delete", "count", len(dbPolicies))
			}
		}
	}

	slog.Info("policy deleted", "id", policyID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Policy deleted and engine reloaded.",
	})
}

// ReloadPolicies reloads all policies from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	dbPolicies, err := h.repo.ListPolicies(ctx)
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	if err := h.policies.Reload(dbPolicies); err != nil {
		slog.Error("failed to reload policies into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("policies reloaded from database", "count", len(dbPolicies))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policies reloaded successfully",
		"count":   len(dbPolicies),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
