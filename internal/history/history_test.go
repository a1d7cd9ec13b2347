package history

import (
	"testing"
	"time"

	"github.com/rguerramena-source/decision-api/internal/domain"
)

func ts(day int) domain.Timestamp {
	return domain.NewTimestamp(time.Date(2025, 6, day, 12, 0, 0, 0, time.UTC))
}

func TestSummarize(t *testing.T) {
	t.Run("EmptyHistory", func(t *testing.T) {
		state := Summarize(nil)

		if state.LastStatus != domain.StatusNew {
			t.Errorf("expected status new, got %s", state.LastStatus)
		}
		if state.AttemptsInCycle != 0 {
			t.Errorf("expected 0 attempts, got %d", state.AttemptsInCycle)
		}
		if state.LastAttemptAt != nil {
			t.Error("expected nil last attempt")
		}
	})

	t.Run("FailuresAccumulate", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", FailedMessage: "insufficient funds", CreatedAt: ts(1)},
			{LoanID: "l1", Status: "failed", FailedMessage: "timeout", CreatedAt: ts(3)},
			{LoanID: "l1", Status: "failed", FailedMessage: "insufficient funds", CreatedAt: ts(5)},
		})

		if state.AttemptsInCycle != 3 {
			t.Errorf("expected 3 attempts, got %d", state.AttemptsInCycle)
		}
		if state.LastStatus != "failed" {
			t.Errorf("expected failed, got %s", state.LastStatus)
		}
		if state.LastFailedMessage != "insufficient funds" {
			t.Errorf("expected most recent message, got %q", state.LastFailedMessage)
		}
		if state.LastAttemptAt == nil || !state.LastAttemptAt.Equal(ts(5).Time) {
			t.Errorf("expected last attempt at %v, got %v", ts(5).Time, state.LastAttemptAt)
		}
	})

	t.Run("InputOrderIrrelevant", func(t *testing.T) {
		shuffled := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", FailedMessage: "timeout", CreatedAt: ts(5)},
			{LoanID: "l1", Status: "failed", FailedMessage: "insufficient funds", CreatedAt: ts(1)},
			{LoanID: "l1", Status: "failed", FailedMessage: "nsf", CreatedAt: ts(3)},
		})

		if shuffled.LastFailedMessage != "timeout" {
			t.Errorf("expected chronological last message, got %q", shuffled.LastFailedMessage)
		}
		if shuffled.AttemptsInCycle != 3 {
			t.Errorf("expected 3 attempts, got %d", shuffled.AttemptsInCycle)
		}
	})

	t.Run("SuccessResetsCycle", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", FailedMessage: "nsf", CreatedAt: ts(1)},
			{LoanID: "l1", Status: "failed", FailedMessage: "nsf", CreatedAt: ts(2)},
			{LoanID: "l1", Status: "successful", CreatedAt: ts(3)},
			{LoanID: "l1", Status: "failed", FailedMessage: "timeout", CreatedAt: ts(4)},
			{LoanID: "l1", Status: "failed", FailedMessage: "timeout", CreatedAt: ts(5)},
		})

		// New cycle after the success: only the two trailing failures count
		if state.AttemptsInCycle != 2 {
			t.Errorf("expected 2 attempts in new cycle, got %d", state.AttemptsInCycle)
		}
		if state.EffectiveAttempts() != 2 {
			t.Errorf("expected 2 effective attempts, got %d", state.EffectiveAttempts())
		}
	})

	t.Run("TrailingSuccessReadsAsZeroAttempts", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", FailedMessage: "nsf", CreatedAt: ts(1)},
			{LoanID: "l1", Status: "successful", CreatedAt: ts(2)},
		})

		if state.LastStatus != domain.StatusSuccessful {
			t.Errorf("expected successful, got %s", state.LastStatus)
		}
		if state.LastFailedMessage != "" {
			t.Errorf("expected cleared message, got %q", state.LastFailedMessage)
		}
		// The success row itself is counted in the cycle but not against
		// attempt limits.
		if state.EffectiveAttempts() != 0 {
			t.Errorf("expected 0 effective attempts after success, got %d", state.EffectiveAttempts())
		}
	})

	t.Run("ChargebackTimestampWins", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "successful", CreatedAt: ts(1), ChargebackAt: ts(2)},
		})

		if state.LastStatus != domain.StatusChargeback {
			t.Errorf("expected chargeback, got %s", state.LastStatus)
		}
		if state.EffectiveAttempts() != 1 {
			t.Errorf("expected 1 effective attempt, got %d", state.EffectiveAttempts())
		}
	})

	t.Run("ChargebackLatchesPastLaterAttempts", func(t *testing.T) {
		// Attempts recorded after the chargeback stamp must not unset it
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", ChargebackAt: ts(1)},
			{LoanID: "l1", Status: "failed", FailedMessage: "timeout", CreatedAt: ts(5)},
		})

		if state.LastStatus != domain.StatusChargeback {
			t.Errorf("expected chargeback to latch, got %s", state.LastStatus)
		}
	})

	t.Run("ChargebackLatchesPastSuccess", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", ChargebackAt: ts(1)},
			{LoanID: "l1", Status: "successful", CreatedAt: ts(3)},
		})

		if state.LastStatus != domain.StatusChargeback {
			t.Errorf("expected chargeback to latch, got %s", state.LastStatus)
		}
	})

	t.Run("SuccessSpellingsNormalize", func(t *testing.T) {
		for _, status := range []string{"success", "paid", "SUCCESSFUL"} {
			txs := make([]*domain.Transaction, 0, 12)
			for i := 1; i <= 11; i++ {
				txs = append(txs, &domain.Transaction{LoanID: "l1", Status: "failed", FailedMessage: "nsf", CreatedAt: ts(i)})
			}
			txs = append(txs, &domain.Transaction{LoanID: "l1", Status: status, CreatedAt: ts(12)})

			state := Summarize(txs)

			if state.LastStatus != domain.StatusSuccessful {
				t.Errorf("%q: expected normalized successful, got %s", status, state.LastStatus)
			}
			if state.EffectiveAttempts() != 0 {
				t.Errorf("%q: expected 0 effective attempts, got %d", status, state.EffectiveAttempts())
			}
			if state.LastFailedMessage != "" {
				t.Errorf("%q: expected cleared message, got %q", status, state.LastFailedMessage)
			}
		}
	})

	t.Run("MissingTimestampsSortEarliest", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", FailedMessage: "late", CreatedAt: ts(5)},
			{LoanID: "l1", Status: "failed", FailedMessage: "undated"},
		})

		if state.LastFailedMessage != "late" {
			t.Errorf("expected dated transaction last, got %q", state.LastFailedMessage)
		}
	})

	t.Run("CompletedAtPreferredOverCreatedAt", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", FailedMessage: "first", CreatedAt: ts(1), CompletedAt: ts(6)},
			{LoanID: "l1", Status: "failed", FailedMessage: "second", CreatedAt: ts(4)},
		})

		// completed_at places the first transaction after the second
		if state.LastFailedMessage != "first" {
			t.Errorf("expected completed_at ordering, got %q", state.LastFailedMessage)
		}
	})

	t.Run("FailureWithoutMessageKeepsPrevious", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", FailedMessage: "insufficient funds", CreatedAt: ts(1)},
			{LoanID: "l1", Status: "failed", CreatedAt: ts(2)},
		})

		if state.LastFailedMessage != "insufficient funds" {
			t.Errorf("expected previous message kept, got %q", state.LastFailedMessage)
		}
	})

	t.Run("FailedReasonFallback", func(t *testing.T) {
		state := Summarize([]*domain.Transaction{
			{LoanID: "l1", Status: "failed", FailedReason: "saldo insuficiente", CreatedAt: ts(1)},
		})

		if state.LastFailedMessage != "saldo insuficiente" {
			t.Errorf("expected failed_reason fallback, got %q", state.LastFailedMessage)
		}
	})
}

func TestGroupByLoan(t *testing.T) {
	grouped := GroupByLoan([]*domain.Transaction{
		{LoanID: "a", Status: "failed"},
		{LoanID: " a ", Status: "failed"},
		{LoanID: "b", Status: "successful"},
		{LoanID: "   ", Status: "failed"},
		{LoanID: "", Status: "failed"},
	})

	if len(grouped) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(grouped))
	}
	if len(grouped["a"]) != 2 {
		t.Errorf("expected trimmed ids to group together, got %d", len(grouped["a"]))
	}
	if len(grouped["b"]) != 1 {
		t.Errorf("expected 1 transaction for b, got %d", len(grouped["b"]))
	}
}
