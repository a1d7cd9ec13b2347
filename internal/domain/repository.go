package domain

import (
	"context"
	"time"
)

// Repository defines the interface for the persistent transaction store.
type Repository interface {
	// Transaction history
	SaveTransaction(ctx context.Context, tx *Transaction) error
	SaveTransactions(ctx context.Context, txs []*Transaction) error
	GetTransactionsByLoan(ctx context.Context, loanID string) ([]*Transaction, error)

	// GetTransactionsByLoanIDs fetches history for a set of loans. The
	// implementation chunks the IN clause to bound query size.
	GetTransactionsByLoanIDs(ctx context.Context, loanIDs []string) ([]*Transaction, error)

	// Decision audit trail
	SaveDecision(ctx context.Context, d *Decision) error
	GetLatestDecision(ctx context.Context, loanID string) (*Decision, error)

	// CEL policy overrides
	SavePolicy(ctx context.Context, p *Policy) error
	ListPolicies(ctx context.Context) ([]*Policy, error)
	DeletePolicy(ctx context.Context, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// LoanIDChunkSize bounds the IN clause of history queries. Zero uses
	// the default of 500.
	LoanIDChunkSize int
}
