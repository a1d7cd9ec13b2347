// Package worker provides async portfolio processing from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rguerramena-source/decision-api/internal/batch"
	"github.com/rguerramena-source/decision-api/internal/domain"
)

// Worker consumes submitted portfolios from the EventBus, runs each one
// through the decision pipeline, and publishes the results.
type Worker struct {
	bus          domain.EventBus
	repo         domain.Repository
	cache        domain.Cache
	orchestrator *batch.Orchestrator
	baseConfig   domain.EngineConfig

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, orchestrator *batch.Orchestrator, baseConfig domain.EngineConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:          bus,
		repo:         repo,
		cache:        cache,
		orchestrator: orchestrator,
		baseConfig:   baseConfig,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start subscribes to the portfolio topic and begins processing.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicPortfolioSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicPortfolioSubmitted,
	)

	return nil
}

// PortfolioMessage is the payload for an asynchronously submitted portfolio.
type PortfolioMessage struct {
	TraceID      string                  `json:"traceId,omitempty"`
	Loans        []*domain.Loan          `json:"loans"`
	Transactions []*domain.Transaction   `json:"transactions,omitempty"`
	Config       *domain.EngineOverrides `json:"config,omitempty"`
	Now          domain.Timestamp        `json:"now,omitzero"`
}

// CompletedMessage is published after a portfolio run finishes.
type CompletedMessage struct {
	TraceID        string            `json:"traceId,omitempty"`
	Decisions      []domain.Decision `json:"decisions"`
	LoansEvaluated int               `json:"loansEvaluated"`
	LoansSkipped   int               `json:"loansSkipped,omitempty"`
	DurationMs     int64             `json:"durationMs"`
}

// handleMessage processes one submitted portfolio.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var pm PortfolioMessage
	if err := json.Unmarshal(msg.Payload, &pm); err != nil {
		slog.Error("failed to parse portfolio message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := pm.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	now := time.Now().UTC()
	if !pm.Now.IsZero() {
		now = pm.Now.UTC()
	}

	cfg := w.baseConfig.With(pm.Config)

	// When the submitter carries no history, load it from storage.
	txs := pm.Transactions
	if txs == nil && w.repo != nil {
		ids := make([]string, 0, len(pm.Loans))
		for _, loan := range pm.Loans {
			if loan != nil && loan.ID() != "" {
				ids = append(ids, loan.ID())
			}
		}
		fetched, err := w.repo.GetTransactionsByLoanIDs(ctx, ids)
		if err != nil {
			slog.Error("failed to load transaction history",
				"trace_id", traceID,
				"error", err,
			)
			return err
		}
		txs = fetched
	}

	result := w.orchestrator.Decide(ctx, pm.Loans, txs, cfg, now)

	// Persist decisions
	if w.repo != nil {
		for i := range result.Decisions {
			if err := w.repo.SaveDecision(ctx, &result.Decisions[i]); err != nil {
				slog.Error("failed to save decision",
					"loan_id", result.Decisions[i].LoanID,
					"error", err,
				)
			}
		}
	}

	// Publish completed result
	completed := CompletedMessage{
		TraceID:        traceID,
		Decisions:      result.Decisions,
		LoansEvaluated: len(result.Decisions),
		LoansSkipped:   result.LoansSkipped,
		DurationMs:     time.Since(start).Milliseconds(),
	}
	payload, _ := json.Marshal(completed)
	if err := w.bus.Publish(ctx, domain.TopicDecisionCompleted, payload); err != nil {
		slog.Error("failed to publish decision result",
			"trace_id", traceID,
			"error", err,
		)
	}

	// Stopped loans get their own topic so downstream collectors can
	// remove them from dialer queues immediately.
	stopped := 0
	for i := range result.Decisions {
		d := &result.Decisions[i]
		if !d.Stopped() {
			continue
		}
		stopped++
		dp, _ := json.Marshal(d)
		if err := w.bus.Publish(ctx, domain.TopicCollectionStopped, dp); err != nil {
			slog.Error("failed to publish stop",
				"loan_id", d.LoanID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		if _, err := w.cache.IncrementCounter(ctx, "stats:portfolios", time.Hour); err != nil {
			slog.Debug("failed to bump portfolio counter", "error", err)
		}
	}

	slog.Info("portfolio processed",
		"trace_id", traceID,
		"loans_evaluated", len(result.Decisions),
		"loans_skipped", result.LoansSkipped,
		"stopped", stopped,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
