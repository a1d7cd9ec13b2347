// Package batch maps the decision cascade over a whole portfolio.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rguerramena-source/decision-api/internal/domain"
	"github.com/rguerramena-source/decision-api/internal/engine"
	"github.com/rguerramena-source/decision-api/internal/history"
)

// Orchestrator runs the engine over every loan in a portfolio. Loans are
// independent, so evaluation fans out across a bounded worker pool; results
// keep the input loan order.
type Orchestrator struct {
	engine     *engine.Engine
	maxWorkers int
}

// New creates an orchestrator. maxWorkers bounds per-batch concurrency.
func New(eng *engine.Engine, maxWorkers int) *Orchestrator {
	if maxWorkers <= 0 {
		maxWorkers = 16
	}
	return &Orchestrator{engine: eng, maxWorkers: maxWorkers}
}

// Result aggregates a portfolio run.
type Result struct {
	Decisions []domain.Decision `json:"decisions"`

	// LoansSkipped counts loans dropped for lacking an identifier. The
	// boundary rejects these before the core, so normally zero.
	LoansSkipped int `json:"loansSkipped,omitempty"`
}

// Decide joins each loan to its transactions by trimmed loan id, summarizes
// the history, and runs the cascade. Loans with no matching transactions
// use the empty-history default state. Given identical inputs and the same
// now, the output is identical; no state is shared across loans.
func (o *Orchestrator) Decide(ctx context.Context, loans []*domain.Loan, txs []*domain.Transaction, cfg domain.EngineConfig, now time.Time) Result {
	grouped := history.GroupByLoan(txs)

	type slot struct {
		loan *domain.Loan
		idx  int
	}

	slots := make([]slot, 0, len(loans))
	skipped := 0
	for _, loan := range loans {
		if loan == nil || loan.ID() == "" {
			skipped++
			continue
		}
		slots = append(slots, slot{loan: loan, idx: len(slots)})
	}

	decisions := make([]domain.Decision, len(slots))

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.maxWorkers)

	for _, s := range slots {
		wg.Add(1)
		go func(s slot) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			state := history.Summarize(grouped[s.loan.ID()])
			decisions[s.idx] = o.engine.Decide(cfg, s.loan, state, now)
		}(s)
	}

	wg.Wait()

	return Result{Decisions: decisions, LoansSkipped: skipped}
}

// DecideOne evaluates a single loan against its transaction history.
func (o *Orchestrator) DecideOne(loan *domain.Loan, txs []*domain.Transaction, cfg domain.EngineConfig, now time.Time) domain.Decision {
	return o.engine.Decide(cfg, loan, history.Summarize(txs), now)
}
