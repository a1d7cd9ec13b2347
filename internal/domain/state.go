package domain

import "time"

// LoanState is the compact per-loan state derived from the transaction log.
// It is recomputed from scratch on every invocation and never persisted.
type LoanState struct {
	// LastStatus is the normalized status of the most recent transaction,
	// or "new" when the loan has no history.
	LastStatus string `json:"last_status"`

	// LastFailedMessage is the most recent non-empty failure message.
	// A successful transaction clears it.
	LastFailedMessage string `json:"last_failed_message"`

	// AttemptsInCycle counts transactions since (and excluding) the last
	// successful one. A success resets the cycle; the success row itself
	// is not counted against attempt limits.
	AttemptsInCycle int `json:"attempts_in_cycle"`

	// LastAttemptAt is the effective timestamp of the most recent ordered
	// transaction, nil when the loan has no usable history.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// NewLoanState returns the default state for a loan with no history.
func NewLoanState() LoanState {
	return LoanState{LastStatus: StatusNew}
}

// EffectiveAttempts returns the attempt count the cascade reads for limit
// checks. When the most recent transaction succeeded the cycle is over, so
// the counter reads as zero going forward.
func (s LoanState) EffectiveAttempts() int {
	if s.LastStatus == StatusSuccessful {
		return 0
	}
	return s.AttemptsInCycle
}
