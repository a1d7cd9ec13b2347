package engine

import (
	"math"
	"time"

	"github.com/rguerramena-source/decision-api/internal/domain"
	"github.com/rguerramena-source/decision-api/internal/schedule"
)

// Day-since-last-attempt bands used to place the proposed date in
// scoring mode.
const (
	recentAttemptDays = 4
	staleAttemptDays  = 15
)

// scoreTail is the drop-in replacement for the non-terminal rules of the
// cascade: a logistic function of a weighted sum of the failure-reason
// weight, attempt recency, debt size, and remaining attempt budget. The
// loan retries when the score clears the configured threshold; either way
// the proposed date comes from the recency bands, then minimum-gap
// enforcement applies as usual.
func scoreTail(ctx *evalContext) *verdict {
	sc := ctx.cfg.Scoring

	daysSince, ref := daysSinceReference(ctx)

	reasonWeight, ok := sc.ReasonWeights[string(ctx.category)]
	if !ok {
		reasonWeight = sc.ReasonWeights["unknown"]
	}

	budget := 0.0
	if ctx.cfg.MaxAttempts > 0 {
		budget = 1 - float64(ctx.attempts)/float64(ctx.cfg.MaxAttempts)
		budget = math.Max(0, math.Min(1, budget))
	}

	z := sc.Bias +
		sc.ReasonWeight*reasonWeight +
		sc.RecencyWeight*saturate(float64(daysSince)/7) +
		sc.AmountWeight*saturate(math.Log1p(math.Max(0, ctx.amount))) +
		sc.BudgetWeight*budget

	score := logistic(z)

	v := &verdict{conf: score}
	if score >= sc.RetryThreshold {
		v.action = domain.ActionRetry
		v.code = domain.ReasonScoreRetry
	} else {
		v.action = domain.ActionSchedule
		v.code = domain.ReasonScoreSchedule
	}

	switch {
	case daysSince <= recentAttemptDays:
		v.at = schedule.StartOfDay(ctx.now.AddDate(0, 0, 1))
	case daysSince < staleAttemptDays:
		v.at = schedule.NextSemimonthly(ctx.now)
	default:
		v.at = schedule.NextSemimonthly(ref)
	}

	return v
}

// daysSinceReference returns whole days since the last attempt, falling
// back to the overdue or creation reference when the loan has no history.
func daysSinceReference(ctx *evalContext) (int, time.Time) {
	ref := ctx.now
	switch {
	case ctx.state.LastAttemptAt != nil:
		ref = *ctx.state.LastAttemptAt
	case !ctx.loan.OverdueAt.IsZero():
		ref = ctx.loan.OverdueAt.Time
	case !ctx.loan.CreatedAt.IsZero():
		ref = ctx.loan.CreatedAt.Time
	}

	days := int(ctx.now.Sub(ref.UTC()).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, ref.UTC()
}

func saturate(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (1 + x)
}

func logistic(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
