package domain

import (
	"strings"
	"time"
)

// Normalized transaction statuses.
const (
	StatusNew        = "new"
	StatusSuccessful = "successful"
	StatusChargeback = "chargeback"
)

// Transaction represents one historical payment attempt against a loan.
type Transaction struct {
	ID     string `json:"id,omitempty"`
	LoanID string `json:"loan_id"`

	// Status is the free-text outcome (e.g. "successful", "failed",
	// "chargeback"). It is normalized to lowercase before use.
	Status string `json:"status,omitempty"`

	// FailedMessage and FailedReason carry free-text failure detail.
	FailedMessage string `json:"failed_message,omitempty"`
	FailedReason  string `json:"failed_reason,omitempty"`

	CreatedAt   Timestamp `json:"created_at,omitzero"`
	CompletedAt Timestamp `json:"completed_at,omitzero"`

	// ChargebackAt, when set, forces the effective status to "chargeback"
	// regardless of the Status field.
	ChargebackAt Timestamp `json:"chargeback_at,omitzero"`
}

// EffectiveStatus returns the normalized outcome of the attempt. A present
// chargeback timestamp wins over whatever the status field says.
func (t *Transaction) EffectiveStatus() string {
	if !t.ChargebackAt.IsZero() {
		return StatusChargeback
	}
	return strings.ToLower(strings.TrimSpace(t.Status))
}

// IsSuccessful reports whether this attempt collected money.
func (t *Transaction) IsSuccessful() bool {
	switch t.EffectiveStatus() {
	case "successful", "success", "paid":
		return true
	}
	return false
}

// EffectiveTime returns the timestamp used for chronological ordering:
// completed_at when present, created_at otherwise, nil when neither parsed.
func (t *Transaction) EffectiveTime() *time.Time {
	if !t.CompletedAt.IsZero() {
		return t.CompletedAt.Ptr()
	}
	return t.CreatedAt.Ptr()
}

// FailureText returns the best available failure detail for classification.
func (t *Transaction) FailureText() string {
	if msg := strings.TrimSpace(t.FailedMessage); msg != "" {
		return msg
	}
	return strings.TrimSpace(t.FailedReason)
}
