// Package history reduces a loan's raw transaction log into its compact
// derived state.
package history

import (
	"sort"
	"strings"

	"github.com/rguerramena-source/decision-api/internal/domain"
)

// Summarize folds a loan's transactions (any input order) into a LoanState.
//
// Transactions are stably sorted by effective timestamp ascending, with
// missing timestamps treated as earliest; ties keep input order. The fold
// carries (counter, lastStatus, lastMessage): the counter resets at the
// start of a new cycle, meaning the previous transaction was successful,
// and every transaction then increments it. A success therefore reads as
// counter 1 for its own step; the cascade reads the counter as 0 once the
// last status is successful, because a success cancels the cycle going
// forward. A chargeback timestamp on any transaction forces the final
// status to chargeback regardless of what came after it.
func Summarize(txs []*domain.Transaction) domain.LoanState {
	state := domain.NewLoanState()
	if len(txs) == 0 {
		return state
	}

	ordered := make([]*domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].EffectiveTime(), ordered[j].EffectiveTime()
		if ti == nil {
			return tj != nil
		}
		if tj == nil {
			return false
		}
		return ti.Before(*tj)
	})

	counter := 0
	prevSuccessful := false
	chargeback := false

	for _, tx := range ordered {
		if prevSuccessful {
			counter = 0
		}
		counter++

		state.LastStatus = tx.EffectiveStatus()
		if state.LastStatus == "" {
			state.LastStatus = domain.StatusNew
		}

		if tx.IsSuccessful() {
			// Normalize the spelling ("success", "paid") so downstream
			// reads see one canonical success status.
			state.LastStatus = domain.StatusSuccessful
			state.LastFailedMessage = ""
		} else if msg := tx.FailureText(); msg != "" {
			state.LastFailedMessage = msg
		}

		if !tx.ChargebackAt.IsZero() {
			chargeback = true
		}

		if ts := tx.EffectiveTime(); ts != nil {
			state.LastAttemptAt = ts
		}

		prevSuccessful = tx.IsSuccessful()
	}

	// A chargeback anywhere in the log is terminal for the loan, even when
	// later attempts were recorded after the stamp.
	if chargeback {
		state.LastStatus = domain.StatusChargeback
	}

	state.AttemptsInCycle = counter
	return state
}

// GroupByLoan indexes transactions by trimmed loan id. Transactions with an
// empty loan id are dropped.
func GroupByLoan(txs []*domain.Transaction) map[string][]*domain.Transaction {
	grouped := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		id := strings.TrimSpace(tx.LoanID)
		if id == "" {
			continue
		}
		grouped[id] = append(grouped[id], tx)
	}
	return grouped
}
