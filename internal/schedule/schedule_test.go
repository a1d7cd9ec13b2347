package schedule

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextSemimonthly(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"EarlyMonthGoesTo15th", time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC), date(2025, 6, 15)},
		{"The15thStaysOn15th", date(2025, 6, 15), date(2025, 6, 15)},
		{"LateMonthGoesTo30th", date(2025, 6, 20), date(2025, 6, 30)},
		{"The30thStaysOn30th", date(2025, 6, 30), date(2025, 6, 30)},
		{"FebruaryClampsToLastDay", date(2025, 2, 20), date(2025, 2, 28)},
		{"LeapFebruaryClampsTo29th", date(2024, 2, 20), date(2024, 2, 29)},
		{"Day31RollsToNextMonth15th", date(2025, 7, 31), date(2025, 8, 15)},
		{"December31RollsToJanuary15th", date(2025, 12, 31), date(2026, 1, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextSemimonthly(tt.from)
			if !got.Equal(tt.want) {
				t.Errorf("NextSemimonthly(%v) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestImmediateRetry(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
	got := ImmediateRetry(now)
	if !got.Equal(now.Add(time.Hour)) {
		t.Errorf("ImmediateRetry(%v) = %v, want %v", now, got, now.Add(time.Hour))
	}
	if !got.After(now) {
		t.Error("immediate retry must be strictly after now")
	}
}

func TestStandardRetry(t *testing.T) {
	now := time.Date(2025, 6, 10, 23, 45, 12, 0, time.UTC)
	got := StandardRetry(now)
	want := date(2025, 6, 14)
	if !got.Equal(want) {
		t.Errorf("StandardRetry(%v) = %v, want %v", now, got, want)
	}
}

func TestStartOfDay(t *testing.T) {
	got := StartOfDay(time.Date(2025, 6, 10, 23, 45, 12, 345, time.UTC))
	if !got.Equal(date(2025, 6, 10)) {
		t.Errorf("StartOfDay = %v, want %v", got, date(2025, 6, 10))
	}
}

func TestEnforceMinGap(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	t.Run("NoLastAttemptKeepsProposal", func(t *testing.T) {
		proposed := date(2025, 6, 14)
		got := EnforceMinGap(proposed, nil, now, 3)
		if !got.Equal(proposed) {
			t.Errorf("got %v, want %v", got, proposed)
		}
	})

	t.Run("FloorsAtLastAttemptPlusGap", func(t *testing.T) {
		last := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
		proposed := now.Add(time.Hour) // before last+3d
		got := EnforceMinGap(proposed, &last, now, 3)
		want := last.AddDate(0, 0, 3)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("ProposalAfterFloorUnchanged", func(t *testing.T) {
		last := date(2025, 6, 1)
		proposed := date(2025, 6, 14)
		got := EnforceMinGap(proposed, &last, now, 3)
		if !got.Equal(proposed) {
			t.Errorf("got %v, want %v", got, proposed)
		}
	})

	t.Run("StaleProposalAdvancesToSemimonthly", func(t *testing.T) {
		proposed := date(2025, 6, 1) // in the past
		got := EnforceMinGap(proposed, nil, now, 3)
		if !got.After(now) {
			t.Errorf("got %v, want a date after %v", got, now)
		}
		if !got.Equal(date(2025, 6, 15)) {
			t.Errorf("got %v, want %v", got, date(2025, 6, 15))
		}
	})

	t.Run("LateOn15thPushesToNextCheckpoint", func(t *testing.T) {
		lateNow := time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)
		proposed := date(2025, 6, 1)
		got := EnforceMinGap(proposed, nil, lateNow, 3)
		if !got.After(lateNow) {
			t.Errorf("got %v, want a date after %v", got, lateNow)
		}
	})

	t.Run("ZeroGapIgnoresLastAttempt", func(t *testing.T) {
		last := date(2025, 6, 9)
		proposed := date(2025, 6, 14)
		got := EnforceMinGap(proposed, &last, now, 0)
		if !got.Equal(proposed) {
			t.Errorf("got %v, want %v", got, proposed)
		}
	})
}
