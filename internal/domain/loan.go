// Package domain defines the core interfaces and types for the decision API.
package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Loan represents one delinquent debt instrument in a portfolio.
type Loan struct {
	// LoanID is the opaque unique identifier. Loans with an empty trimmed
	// LoanID are rejected at the API boundary and never reach the engine.
	LoanID string `json:"loan_id"`

	// PaymentMethodBank is the free-text bank/issuer name. It is compared
	// case-insensitively against the configured kill and risk bank lists.
	PaymentMethodBank string `json:"payment_method_bank,omitempty"`

	// TotalOutstanding is the remaining amount owed. Absent or malformed
	// values decode as 0.
	TotalOutstanding Money `json:"total_amount_outstanding"`

	// OverdueDays is the age of the delinquency in days. Absent or
	// malformed values decode as 0.
	OverdueDays Days `json:"overdue_days"`

	// Reference timestamps used when no transaction history exists.
	OverdueAt Timestamp `json:"overdue_at,omitzero"`
	CreatedAt Timestamp `json:"created_at,omitzero"`
}

// ID returns the trimmed loan identifier.
func (l *Loan) ID() string {
	return strings.TrimSpace(l.LoanID)
}

// Money is a monetary amount that tolerates sloppy payloads: JSON numbers,
// numeric strings, null, and garbage all decode without error. Anything
// unparseable becomes 0 so the engine always completes.
type Money float64

// UnmarshalJSON implements tolerant decoding for Money.
func (m *Money) UnmarshalJSON(data []byte) error {
	*m = Money(parseFloat(data))
	return nil
}

// Days is an integer day count with the same tolerant decoding as Money.
type Days int

// UnmarshalJSON implements tolerant decoding for Days.
func (d *Days) UnmarshalJSON(data []byte) error {
	*d = Days(int(parseFloat(data)))
	return nil
}

func parseFloat(data []byte) float64 {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return f
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	}
	return 0
}

// timestampLayouts are tried in order when decoding a Timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a tolerant wall-clock timestamp. Unparseable or null values
// decode as the zero value rather than failing the request; the zero value
// means "no timestamp" and is excluded from chronological ordering.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps a time.Time.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// UnmarshalJSON implements tolerant decoding for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = Timestamp{}
		return nil
	}

	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp{Time: parsed.UTC()}
			return nil
		}
	}

	*t = Timestamp{}
	return nil
}

// MarshalJSON renders the timestamp as RFC3339 UTC, or null when unset.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// Ptr returns the timestamp as *time.Time, nil when unset.
func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	tt := t.UTC()
	return &tt
}
