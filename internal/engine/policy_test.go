package engine

import (
	"strings"
	"testing"

	"github.com/rguerramena-source/decision-api/internal/domain"
)

func newPolicyEngine(t *testing.T) *PolicyEngine {
	t.Helper()
	pe, err := NewPolicyEngine()
	if err != nil {
		t.Fatalf("NewPolicyEngine: %v", err)
	}
	return pe
}

func policy(id, expr string) *domain.Policy {
	return &domain.Policy{
		ID:         id,
		Name:       "policy " + id,
		Expression: expr,
		Confidence: 0.85,
		Enabled:    true,
	}
}

func TestPolicyValidate(t *testing.T) {
	pe := newPolicyEngine(t)

	t.Run("ValidExpression", func(t *testing.T) {
		if err := pe.Validate(policy("p1", "amount > 50000.0 && overdue_days > 365")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("SyntaxError", func(t *testing.T) {
		if err := pe.Validate(policy("p1", "amount >")); err == nil {
			t.Error("expected a compile error")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		if err := pe.Validate(policy("p1", "balance > 100.0")); err == nil {
			t.Error("expected a compile error for an undeclared variable")
		}
	})

	t.Run("NonBoolOutput", func(t *testing.T) {
		err := pe.Validate(policy("p1", "amount"))
		if err == nil {
			t.Fatal("expected rejection of a non-bool expression")
		}
		if !strings.Contains(err.Error(), "must return bool") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("NilPolicy", func(t *testing.T) {
		if err := pe.Validate(nil); err == nil {
			t.Error("expected an error for a nil policy")
		}
	})

	t.Run("ValidateDoesNotLoad", func(t *testing.T) {
		if pe.Count() != 0 {
			t.Errorf("validation must not load, count = %d", pe.Count())
		}
	})
}

func TestPolicyLoading(t *testing.T) {
	t.Run("LoadAllSkipsDisabled", func(t *testing.T) {
		pe := newPolicyEngine(t)
		disabled := policy("p2", "true")
		disabled.Enabled = false

		if err := pe.LoadAll([]*domain.Policy{policy("p1", "amount > 100.0"), disabled}); err != nil {
			t.Fatalf("LoadAll: %v", err)
		}
		if pe.Count() != 1 {
			t.Errorf("count = %d, want 1", pe.Count())
		}
	})

	t.Run("ReloadReplaces", func(t *testing.T) {
		pe := newPolicyEngine(t)
		if err := pe.Load(policy("old", "amount > 100.0")); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if err := pe.Reload([]*domain.Policy{policy("new-1", "attempts > 5"), policy("new-2", "overdue_days > 90")}); err != nil {
			t.Fatalf("Reload: %v", err)
		}

		loaded := pe.Loaded()
		if len(loaded) != 2 {
			t.Fatalf("loaded = %d, want 2", len(loaded))
		}
		if loaded[0].ID != "new-1" || loaded[1].ID != "new-2" {
			t.Errorf("Loaded must sort by ID, got %s, %s", loaded[0].ID, loaded[1].ID)
		}
	})

	t.Run("ReloadRejectsBrokenSet", func(t *testing.T) {
		pe := newPolicyEngine(t)
		if err := pe.Reload([]*domain.Policy{policy("bad", "amount >")}); err == nil {
			t.Error("expected a compile error from Reload")
		}
	})
}

func TestPolicyDecisions(t *testing.T) {
	loan := &domain.Loan{LoanID: "l1", PaymentMethodBank: "BBVA", TotalOutstanding: 2500, OverdueDays: 40}

	t.Run("MatchingPolicyStops", func(t *testing.T) {
		pe := newPolicyEngine(t)
		p := policy("halt-aged", "overdue_days > 30 && amount > 1000.0")
		p.ReasonLabel = "regulator hold"
		p.Confidence = 0.91
		if err := pe.Load(p); err != nil {
			t.Fatalf("Load: %v", err)
		}

		d := NewWithPolicies(pe).Decide(domain.DefaultEngineConfig(), loan, freshState(), testNow)
		assertOutcome(t, d, domain.ActionStop, domain.ReasonPolicyStop)
		if d.Reason.Label != "regulator hold" {
			t.Errorf("label = %q, want the policy reason label", d.Reason.Label)
		}
		if d.Confidence != 0.91 {
			t.Errorf("confidence = %v, want the policy confidence", d.Confidence)
		}
	})

	t.Run("LabelFallsBackToName", func(t *testing.T) {
		pe := newPolicyEngine(t)
		if err := pe.Load(policy("p1", "bank == 'BBVA'")); err != nil {
			t.Fatalf("Load: %v", err)
		}

		d := NewWithPolicies(pe).Decide(domain.DefaultEngineConfig(), loan, freshState(), testNow)
		if d.Reason.Label != "policy p1" {
			t.Errorf("label = %q, want the policy name", d.Reason.Label)
		}
	})

	t.Run("KillRulesWinOverPolicies", func(t *testing.T) {
		pe := newPolicyEngine(t)
		if err := pe.Load(policy("p1", "true")); err != nil {
			t.Fatalf("Load: %v", err)
		}

		settled := &domain.Loan{LoanID: "l1", TotalOutstanding: 0.5, OverdueDays: 40}
		d := NewWithPolicies(pe).Decide(domain.DefaultEngineConfig(), settled, freshState(), testNow)
		assertOutcome(t, d, domain.ActionStop, domain.ReasonSettled)
	})

	t.Run("PoliciesWinOverCapRules", func(t *testing.T) {
		pe := newPolicyEngine(t)
		if err := pe.Load(policy("p1", "attempts >= 12")); err != nil {
			t.Fatalf("Load: %v", err)
		}

		d := NewWithPolicies(pe).Decide(domain.DefaultEngineConfig(), loan,
			failedState("insufficient funds", 12, testNow.AddDate(0, 0, -5)), testNow)
		assertOutcome(t, d, domain.ActionStop, domain.ReasonPolicyStop)
	})

	t.Run("FirstMatchByID", func(t *testing.T) {
		pe := newPolicyEngine(t)
		a := policy("a-first", "amount > 1000.0")
		a.ReasonLabel = "first"
		b := policy("b-second", "amount > 1000.0")
		b.ReasonLabel = "second"
		if err := pe.LoadAll([]*domain.Policy{b, a}); err != nil {
			t.Fatalf("LoadAll: %v", err)
		}

		d := NewWithPolicies(pe).Decide(domain.DefaultEngineConfig(), loan, freshState(), testNow)
		if d.Reason.Label != "first" {
			t.Errorf("label = %q, want the lowest policy ID to win", d.Reason.Label)
		}
	})

	t.Run("CategoryVariable", func(t *testing.T) {
		pe := newPolicyEngine(t)
		if err := pe.Load(policy("p1", "category == 'fraud'")); err != nil {
			t.Fatalf("Load: %v", err)
		}

		eng := NewWithPolicies(pe)
		d := eng.Decide(domain.DefaultEngineConfig(), loan,
			failedState("suspected fraud", 2, testNow.AddDate(0, 0, -5)), testNow)
		assertOutcome(t, d, domain.ActionStop, domain.ReasonPolicyStop)

		d = eng.Decide(domain.DefaultEngineConfig(), loan,
			failedState("timeout", 2, testNow.AddDate(0, 0, -5)), testNow)
		if d.Reason.Code == domain.ReasonPolicyStop {
			t.Error("non-fraud failure must not match the fraud policy")
		}
	})

	t.Run("NoPoliciesLeavesCascadeUnchanged", func(t *testing.T) {
		pe := newPolicyEngine(t)
		with := NewWithPolicies(pe).Decide(domain.DefaultEngineConfig(), loan, freshState(), testNow)
		without := New().Decide(domain.DefaultEngineConfig(), loan, freshState(), testNow)
		if with.Action != without.Action || with.Reason.Code != without.Reason.Code {
			t.Errorf("empty policy engine changed the outcome: %+v vs %+v", with, without)
		}
	})
}
