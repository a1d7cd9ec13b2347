// Package schedule provides the date arithmetic for collection scheduling:
// semi-monthly checkpoints, retry offsets, and minimum-gap enforcement.
package schedule

import "time"

const (
	// StandardRetryDays is the fixed interval of a standard retry.
	StandardRetryDays = 4

	// ImmediateRetryOffset keeps immediate retries strictly in the future
	// of the decision moment.
	ImmediateRetryOffset = time.Hour

	// semimonthlyTarget is the late-month collection day, clamped to the
	// last valid day of short months.
	semimonthlyTarget = 30
)

// StartOfDay normalizes a timestamp to midnight UTC for determinism.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextSemimonthly returns the next semi-monthly (quincena) collection date
// at or after from: the 15th when the day of month is at most 15, otherwise
// the 30th clamped to the month's last valid day. Days past 30 roll to the
// 15th of the next month, with year rollover at December.
func NextSemimonthly(from time.Time) time.Time {
	from = from.UTC()
	year, month, day := from.Year(), from.Month(), from.Day()

	switch {
	case day <= 15:
		return time.Date(year, month, 15, 0, 0, 0, 0, time.UTC)
	case day <= semimonthlyTarget:
		target := semimonthlyTarget
		if last := lastDayOfMonth(year, month); last < target {
			target = last
		}
		return time.Date(year, month, target, 0, 0, 0, 0, time.UTC)
	default:
		// Day 31: the month's late checkpoint is already behind us.
		if month == time.December {
			return time.Date(year+1, time.January, 15, 0, 0, 0, 0, time.UTC)
		}
		return time.Date(year, month+1, 15, 0, 0, 0, 0, time.UTC)
	}
}

// ImmediateRetry proposes a retry right away, shifted forward slightly so
// the proposed date is strictly after the decision moment.
func ImmediateRetry(from time.Time) time.Time {
	return from.UTC().Add(ImmediateRetryOffset)
}

// StandardRetry proposes a retry at the fixed standard interval,
// normalized to start of day.
func StandardRetry(from time.Time) time.Time {
	return StartOfDay(from.UTC().AddDate(0, 0, StandardRetryDays))
}

// EnforceMinGap floors a proposed date at lastAttempt + minGapDays. If the
// floored date still is not strictly after now, it advances to the next
// semi-monthly date following now + 1 day. A nil lastAttempt or
// non-positive gap leaves the proposal at the mercy of the now check only.
func EnforceMinGap(proposed time.Time, lastAttempt *time.Time, now time.Time, minGapDays int) time.Time {
	proposed = proposed.UTC()
	now = now.UTC()

	if lastAttempt != nil && minGapDays > 0 {
		floor := lastAttempt.UTC().AddDate(0, 0, minGapDays)
		if proposed.Before(floor) {
			proposed = floor
		}
	}

	if !proposed.After(now) {
		proposed = NextSemimonthly(now.AddDate(0, 0, 1))
		if !proposed.After(now) {
			// Same-month 15th can still land at or before now late in
			// the day; push one more checkpoint out.
			proposed = NextSemimonthly(proposed.AddDate(0, 0, 1))
		}
	}

	return proposed
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
