package repository

// Schema definitions for the decision store.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    loan_id TEXT NOT NULL,
    status TEXT,
    failed_message TEXT,
    failed_reason TEXT,
    created_at TIMESTAMP,
    completed_at TIMESTAMP,
    chargeback_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transactions_loan ON transactions(loan_id);
CREATE INDEX IF NOT EXISTS idx_transactions_loan_created ON transactions(loan_id, created_at);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    loan_id TEXT NOT NULL,
    action TEXT NOT NULL,
    reason_code TEXT NOT NULL,
    reason_label TEXT NOT NULL,
    confidence REAL NOT NULL,
    next_attempt_at TIMESTAMP,
    decided_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_loan ON decisions(loan_id);
CREATE INDEX IF NOT EXISTS idx_decisions_loan_decided ON decisions(loan_id, decided_at);
CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(action);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    expression TEXT NOT NULL,
    reason_label TEXT,
    confidence REAL NOT NULL DEFAULT 0.8,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_enabled ON policies(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaDecisions,
		schemaPolicies,
	}
}
