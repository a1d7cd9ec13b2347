// Package engine implements the collections decision core: an ordered,
// short-circuiting rule cascade that classifies a loan's normalized state
// into a STOP, RETRY, or SCHEDULE decision.
package engine

import (
	"time"

	"github.com/rguerramena-source/decision-api/internal/classify"
	"github.com/rguerramena-source/decision-api/internal/domain"
	"github.com/rguerramena-source/decision-api/internal/schedule"
)

// settledThreshold is the negligible remainder below which a debt counts
// as settled.
const settledThreshold = 1.0

// Engine evaluates the rule cascade. It is stateless apart from the
// optional compiled policy overrides and safe for concurrent use.
type Engine struct {
	policies *PolicyEngine
}

// New creates an engine with no policy overrides.
func New() *Engine {
	return &Engine{}
}

// NewWithPolicies creates an engine that evaluates the given policy
// overrides between the bank kill-list and the zombie cap.
func NewWithPolicies(policies *PolicyEngine) *Engine {
	return &Engine{policies: policies}
}

// evalContext carries the per-loan inputs every rule sees.
type evalContext struct {
	cfg      domain.EngineConfig
	loan     *domain.Loan
	state    domain.LoanState
	category classify.Category
	amount   float64
	days     int
	attempts int
	now      time.Time
}

// verdict is the tagged outcome of a matched rule. A zero `at` with
// ActionStop means no next attempt; non-stop verdicts always carry a
// proposed date, later floored by minimum-gap enforcement.
type verdict struct {
	action domain.Action
	code   string
	label  string  // empty uses the standard label table
	conf   float64 // zero uses the configured confidence for the code
	at     time.Time
}

// rule is one guarded branch of the cascade: apply returns nil when the
// guard does not match. First match wins; no two rules ever both fire.
type rule struct {
	code  string
	apply func(*evalContext) *verdict
}

// killRules are the terminal rules evaluated first, in strict order:
// settled, chargeback, customer stop, possible data error, hard decline,
// bank kill-list.
var killRules = []rule{
	{domain.ReasonSettled, func(c *evalContext) *verdict {
		if c.amount <= settledThreshold {
			return &verdict{action: domain.ActionStop, code: domain.ReasonSettled}
		}
		return nil
	}},
	{domain.ReasonChargeback, func(c *evalContext) *verdict {
		if c.state.LastStatus == domain.StatusChargeback {
			return &verdict{action: domain.ActionStop, code: domain.ReasonChargeback}
		}
		return nil
	}},
	{domain.ReasonCustomerStop, func(c *evalContext) *verdict {
		if c.category == classify.CategoryCustomerStop {
			return &verdict{action: domain.ActionStop, code: domain.ReasonCustomerStop}
		}
		return nil
	}},
	{domain.ReasonPossibleError, func(c *evalContext) *verdict {
		if c.category == classify.CategoryPossibleError {
			return &verdict{action: domain.ActionStop, code: domain.ReasonPossibleError}
		}
		return nil
	}},
	{domain.ReasonHardDecline, func(c *evalContext) *verdict {
		if c.category == classify.CategoryHardDecline {
			return &verdict{action: domain.ActionStop, code: domain.ReasonHardDecline}
		}
		return nil
	}},
	{domain.ReasonBankBlocked, func(c *evalContext) *verdict {
		if classify.BankMatches(c.loan.PaymentMethodBank, c.cfg.KillBanks) {
			return &verdict{action: domain.ActionStop, code: domain.ReasonBankBlocked}
		}
		return nil
	}},
}

// capRules enforce the hard caps: zombie cadence and the attempt limit.
var capRules = []rule{
	{domain.ReasonAgeLimit, func(c *evalContext) *verdict {
		if c.days <= c.cfg.ZombieDaysThreshold {
			return nil
		}
		if c.attempts >= c.cfg.ZombieMaxAttempts {
			return &verdict{action: domain.ActionStop, code: domain.ReasonAgeLimit}
		}
		return &verdict{
			action: domain.ActionSchedule,
			code:   domain.ReasonZombieCadence,
			at:     schedule.NextSemimonthly(c.now),
		}
	}},
	{domain.ReasonAttemptLimit, func(c *evalContext) *verdict {
		if c.attempts >= c.cfg.MaxAttempts {
			return &verdict{action: domain.ActionStop, code: domain.ReasonAttemptLimit}
		}
		return nil
	}},
}

// tailRules compute the scheduling decision once every terminal rule has
// declined: micro-debt, fresh debt, risk exposure, mid-range, aged, and the
// default standard retry.
var tailRules = []rule{
	{domain.ReasonMicroDebt, func(c *evalContext) *verdict {
		if c.amount > 0 && c.amount < c.cfg.MicroDebtThreshold {
			return &verdict{
				action: domain.ActionRetry,
				code:   domain.ReasonMicroDebt,
				at:     schedule.ImmediateRetry(c.now),
			}
		}
		return nil
	}},
	{domain.ReasonFreshDebt, func(c *evalContext) *verdict {
		if c.days <= c.cfg.FreshDaysThreshold {
			return &verdict{
				action: domain.ActionRetry,
				code:   domain.ReasonFreshDebt,
				at:     schedule.ImmediateRetry(c.now),
			}
		}
		return nil
	}},
	{domain.ReasonRiskExposure, func(c *evalContext) *verdict {
		if classify.BankMatches(c.loan.PaymentMethodBank, c.cfg.RiskBanks) || c.amount > c.cfg.HighAmountThreshold {
			return &verdict{
				action: domain.ActionSchedule,
				code:   domain.ReasonRiskExposure,
				at:     schedule.NextSemimonthly(c.now),
			}
		}
		return nil
	}},
	{domain.ReasonMidRange, func(c *evalContext) *verdict {
		if c.days >= 6 && c.days <= 20 {
			return &verdict{
				action: domain.ActionRetry,
				code:   domain.ReasonMidRange,
				at:     schedule.StandardRetry(c.now),
			}
		}
		return nil
	}},
	{domain.ReasonAged, func(c *evalContext) *verdict {
		if c.days > 20 {
			return &verdict{
				action: domain.ActionSchedule,
				code:   domain.ReasonAged,
				at:     schedule.NextSemimonthly(c.now),
			}
		}
		return nil
	}},
	{domain.ReasonDefaultRetry, func(c *evalContext) *verdict {
		return &verdict{
			action: domain.ActionRetry,
			code:   domain.ReasonDefaultRetry,
			at:     schedule.StandardRetry(c.now),
		}
	}},
}

// Decide runs the cascade for one loan. It is a pure function of its
// inputs: identical loan, state, configuration, and now produce an
// identical decision.
func (e *Engine) Decide(cfg domain.EngineConfig, loan *domain.Loan, state domain.LoanState, now time.Time) domain.Decision {
	now = now.UTC()

	ctx := &evalContext{
		cfg:      cfg,
		loan:     loan,
		state:    state,
		category: classify.Message(state.LastFailedMessage),
		amount:   float64(loan.TotalOutstanding),
		days:     int(loan.OverdueDays),
		attempts: state.EffectiveAttempts(),
		now:      now,
	}

	v := e.evaluate(ctx)
	return e.finalize(ctx, v)
}

func (e *Engine) evaluate(ctx *evalContext) *verdict {
	for _, r := range killRules {
		if v := r.apply(ctx); v != nil {
			return v
		}
	}

	if e.policies != nil {
		if v := e.policies.EvaluateStop(ctx); v != nil {
			return v
		}
	}

	for _, r := range capRules {
		if v := r.apply(ctx); v != nil {
			return v
		}
	}

	if ctx.cfg.Mode == domain.ModeScoring {
		return scoreTail(ctx)
	}

	for _, r := range tailRules {
		if v := r.apply(ctx); v != nil {
			return v
		}
	}

	// Unreachable: the default rule always matches.
	return &verdict{
		action: domain.ActionRetry,
		code:   domain.ReasonDefaultRetry,
		at:     schedule.StandardRetry(ctx.now),
	}
}

func (e *Engine) finalize(ctx *evalContext, v *verdict) domain.Decision {
	reason := domain.NewReason(v.code)
	if v.label != "" {
		reason.Label = v.label
	}

	conf := v.conf
	if conf == 0 {
		conf = ctx.cfg.ConfidenceFor(v.code)
	}

	d := domain.Decision{
		LoanID:     ctx.loan.ID(),
		Action:     v.action,
		Reason:     reason,
		Confidence: conf,
		DecidedAt:  ctx.now,
	}

	if v.action != domain.ActionStop {
		at := schedule.EnforceMinGap(v.at, ctx.state.LastAttemptAt, ctx.now, ctx.cfg.MinDaysBetweenAttempts)
		d.NextAttemptDate = &at
	}

	return d
}
