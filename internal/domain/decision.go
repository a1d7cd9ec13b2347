package domain

import "time"

// Action is the outcome of the rule cascade for one loan.
type Action string

// Possible decision actions.
const (
	ActionStop     Action = "STOP"
	ActionRetry    Action = "RETRY"
	ActionSchedule Action = "SCHEDULE"
)

// Reason codes emitted by the cascade. Codes are stable API contract;
// labels are for humans working the collections queue.
const (
	ReasonSettled       = "settled"
	ReasonChargeback    = "chargeback"
	ReasonCustomerStop  = "customer_stop"
	ReasonPossibleError = "possible_error"
	ReasonHardDecline   = "hard_decline"
	ReasonBankBlocked   = "bank_blocked"
	ReasonAgeLimit      = "age_limit"
	ReasonZombieCadence = "zombie_cadence"
	ReasonAttemptLimit  = "attempt_limit"
	ReasonMicroDebt     = "micro_debt"
	ReasonFreshDebt     = "fresh_debt"
	ReasonRiskExposure  = "risk_exposure"
	ReasonMidRange      = "mid_range"
	ReasonAged          = "aged"
	ReasonDefaultRetry  = "default_retry"
	ReasonPolicyStop    = "policy_stop"
	ReasonScoreRetry    = "score_retry"
	ReasonScoreSchedule = "score_schedule"
)

// ReasonLabels maps reason codes to their display labels.
var ReasonLabels = map[string]string{
	ReasonSettled:       "settled",
	ReasonChargeback:    "chargeback received",
	ReasonCustomerStop:  "customer ordered stop",
	ReasonPossibleError: "possible data error",
	ReasonHardDecline:   "account permanently declined",
	ReasonBankBlocked:   "bank blocked",
	ReasonAgeLimit:      "age limit exceeded",
	ReasonZombieCadence: "zombie: quarterly cadence only",
	ReasonAttemptLimit:  "attempt limit exceeded",
	ReasonMicroDebt:     "micro debt, retry immediately",
	ReasonFreshDebt:     "fresh delinquency, retry immediately",
	ReasonRiskExposure:  "risk bank or high amount",
	ReasonMidRange:      "mid range delinquency",
	ReasonAged:          "aged delinquency",
	ReasonDefaultRetry:  "standard retry",
	ReasonPolicyStop:    "policy override stop",
	ReasonScoreRetry:    "score above retry threshold",
	ReasonScoreSchedule: "score below retry threshold",
}

// Reason is a stable string code plus a human-readable label.
type Reason struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// NewReason builds a Reason from a code, using the standard label table.
func NewReason(code string) Reason {
	return Reason{Code: code, Label: ReasonLabels[code]}
}

// Decision is the engine output for one loan.
type Decision struct {
	LoanID     string  `json:"loan_id"`
	Action     Action  `json:"decision"`
	Reason     Reason  `json:"decision_reason"`
	Confidence float64 `json:"confidence"`

	// NextAttemptDate is present if and only if Action is not STOP.
	NextAttemptDate *time.Time `json:"next_attempt_date,omitempty"`

	DecidedAt time.Time `json:"decided_at"`
}

// Stopped reports whether collection attempts halt for this loan.
func (d *Decision) Stopped() bool {
	return d.Action == ActionStop
}
