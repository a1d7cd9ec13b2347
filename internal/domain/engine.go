package domain

import "time"

// EngineMode selects how the non-terminal tail of the cascade is evaluated.
type EngineMode string

const (
	// ModeCascade evaluates the fixed ordered rule list (rules 9-14).
	ModeCascade EngineMode = "cascade"

	// ModeScoring replaces the scheduling tail with a continuous logistic
	// score. Kill-switch and hard-cap rules apply identically in both modes.
	ModeScoring EngineMode = "scoring"
)

// EngineConfig holds every tunable of the decision engine. A value is built
// once per call by merging caller overrides onto the defaults; there is no
// ambient mutable configuration.
type EngineConfig struct {
	Mode EngineMode `json:"mode"`

	// MicroDebtThreshold: debts strictly below this amount (and above zero)
	// are cheap enough to keep retrying immediately.
	MicroDebtThreshold float64 `json:"microDebtThreshold"`

	// ZombieDaysThreshold: loans overdue beyond this many days follow the
	// stricter zombie cadence.
	ZombieDaysThreshold int `json:"zombieDaysThreshold"`

	// MaxAttempts stops collection once a cycle accumulates this many
	// attempts without a success.
	MaxAttempts int `json:"maxAttempts"`

	// ZombieMaxAttempts is the lower attempt cap applied to zombie loans.
	ZombieMaxAttempts int `json:"zombieMaxAttempts"`

	// FreshDaysThreshold: delinquencies at most this old retry immediately.
	FreshDaysThreshold int `json:"freshDaysThreshold"`

	// HighAmountThreshold: amounts above this are spread onto the
	// semi-monthly cadence instead of rapid retries.
	HighAmountThreshold float64 `json:"highAmountThreshold"`

	// MinDaysBetweenAttempts floors any proposed date at the last attempt
	// plus this many days.
	MinDaysBetweenAttempts int `json:"minDaysBetweenAttempts"`

	// RiskBanks are matched by containment against the loan's bank name;
	// a hit routes the loan to the semi-monthly cadence.
	RiskBanks []string `json:"riskBanks"`

	// KillBanks unconditionally stop collection on a containment hit.
	KillBanks []string `json:"killBanks"`

	// Confidence maps reason codes to the fixed confidence attached to
	// decisions made by that rule. Missing codes fall back to defaults.
	Confidence map[string]float64 `json:"confidence"`

	Scoring ScoringConfig `json:"scoring"`
}

// ScoringConfig holds the weights of the optional logistic scoring mode.
type ScoringConfig struct {
	// RetryThreshold: scores at or above it produce RETRY, below SCHEDULE.
	RetryThreshold float64 `json:"retryThreshold"`

	Bias          float64 `json:"bias"`
	ReasonWeight  float64 `json:"reasonWeight"`
	RecencyWeight float64 `json:"recencyWeight"`
	AmountWeight  float64 `json:"amountWeight"`
	BudgetWeight  float64 `json:"budgetWeight"`

	// ReasonWeights scores failure categories by how retryable they are.
	ReasonWeights map[string]float64 `json:"reasonWeights"`
}

// DefaultEngineConfig returns the hand-tuned production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Mode:                   ModeCascade,
		MicroDebtThreshold:     1000,
		ZombieDaysThreshold:    365,
		MaxAttempts:            12,
		ZombieMaxAttempts:      3,
		FreshDaysThreshold:     5,
		HighAmountThreshold:    5000,
		MinDaysBetweenAttempts: 3,
		RiskBanks:              []string{"azteca", "coppel", "famsa"},
		KillBanks:              []string{"monterrey"},
		Confidence: map[string]float64{
			ReasonSettled:       0.99,
			ReasonChargeback:    0.95,
			ReasonCustomerStop:  0.90,
			ReasonPossibleError: 0.75,
			ReasonHardDecline:   0.90,
			ReasonBankBlocked:   0.95,
			ReasonAgeLimit:      0.85,
			ReasonZombieCadence: 0.60,
			ReasonAttemptLimit:  0.85,
			ReasonMicroDebt:     0.80,
			ReasonFreshDebt:     0.75,
			ReasonRiskExposure:  0.65,
			ReasonMidRange:      0.70,
			ReasonAged:          0.60,
			ReasonDefaultRetry:  0.60,
			ReasonPolicyStop:    0.80,
		},
		Scoring: ScoringConfig{
			RetryThreshold: 0.5,
			Bias:           -1.0,
			ReasonWeight:   1.5,
			RecencyWeight:  1.0,
			AmountWeight:   -0.5,
			BudgetWeight:   1.0,
			ReasonWeights: map[string]float64{
				"insufficient_funds": 0.8,
				"network_error":      0.9,
				"fraud":              0.1,
				"unknown":            0.5,
			},
		},
	}
}

// EngineOverrides carries the per-request configuration overrides accepted
// by the decide endpoint. Nil fields keep the default.
type EngineOverrides struct {
	Mode                   *EngineMode        `json:"mode,omitempty"`
	MicroDebtThreshold     *float64           `json:"microDebtThreshold,omitempty"`
	ZombieDaysThreshold    *int               `json:"zombieDaysThreshold,omitempty"`
	MaxAttempts            *int               `json:"maxAttempts,omitempty"`
	ZombieMaxAttempts      *int               `json:"zombieMaxAttempts,omitempty"`
	FreshDaysThreshold     *int               `json:"freshDaysThreshold,omitempty"`
	HighAmountThreshold    *float64           `json:"highAmountThreshold,omitempty"`
	MinDaysBetweenAttempts *int               `json:"minDaysBetweenAttempts,omitempty"`
	RiskBanks              []string           `json:"riskBanks,omitempty"`
	KillBanks              []string           `json:"killBanks,omitempty"`
	Confidence             map[string]float64 `json:"confidence,omitempty"`
	RetryThreshold         *float64           `json:"retryThreshold,omitempty"`
}

// With returns a copy of the configuration with the overrides applied
// field by field. The receiver is never mutated.
func (c EngineConfig) With(o *EngineOverrides) EngineConfig {
	merged := c

	// Maps and slices are replaced, not shared, so per-request values
	// cannot leak back into the defaults.
	merged.RiskBanks = append([]string(nil), c.RiskBanks...)
	merged.KillBanks = append([]string(nil), c.KillBanks...)
	merged.Confidence = make(map[string]float64, len(c.Confidence))
	for k, v := range c.Confidence {
		merged.Confidence[k] = v
	}

	if o == nil {
		return merged
	}

	if o.Mode != nil {
		merged.Mode = *o.Mode
	}
	if o.MicroDebtThreshold != nil {
		merged.MicroDebtThreshold = *o.MicroDebtThreshold
	}
	if o.ZombieDaysThreshold != nil {
		merged.ZombieDaysThreshold = *o.ZombieDaysThreshold
	}
	if o.MaxAttempts != nil {
		merged.MaxAttempts = *o.MaxAttempts
	}
	if o.ZombieMaxAttempts != nil {
		merged.ZombieMaxAttempts = *o.ZombieMaxAttempts
	}
	if o.FreshDaysThreshold != nil {
		merged.FreshDaysThreshold = *o.FreshDaysThreshold
	}
	if o.HighAmountThreshold != nil {
		merged.HighAmountThreshold = *o.HighAmountThreshold
	}
	if o.MinDaysBetweenAttempts != nil {
		merged.MinDaysBetweenAttempts = *o.MinDaysBetweenAttempts
	}
	if o.RiskBanks != nil {
		merged.RiskBanks = append([]string(nil), o.RiskBanks...)
	}
	if o.KillBanks != nil {
		merged.KillBanks = append([]string(nil), o.KillBanks...)
	}
	for code, conf := range o.Confidence {
		merged.Confidence[code] = conf
	}
	if o.RetryThreshold != nil {
		merged.Scoring.RetryThreshold = *o.RetryThreshold
	}

	return merged
}

// ConfidenceFor returns the configured confidence for a reason code.
func (c EngineConfig) ConfidenceFor(code string) float64 {
	if conf, ok := c.Confidence[code]; ok {
		return conf
	}
	return 0.6
}

// Policy is an operator-defined stop rule expressed in CEL. Policies run
// after the bank kill-list and before the zombie cap; a policy returning
// true stops collection for the loan. With no policies configured the
// cascade is unchanged.
type Policy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Expression  string    `json:"expression"`
	ReasonLabel string    `json:"reasonLabel"`
	Confidence  float64   `json:"confidence"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
