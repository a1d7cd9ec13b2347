// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rguerramena-source/decision-api/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// defaultChunkSize bounds the IN clause of multi-loan history queries.
const defaultChunkSize = 500

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db        *sql.DB
	driver    string
	chunkSize int
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	chunkSize := cfg.LoanIDChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	repo := &SQLRepository{
		db:        db,
		driver:    cfg.Driver,
		chunkSize: chunkSize,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores one payment attempt.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	loanID := strings.TrimSpace(tx.LoanID)
	if loanID == "" {
		return fmt.Errorf("%w: loan_id is required", ErrInvalidInput)
	}

	id := tx.ID
	if id == "" {
		id = uuid.New().String()
	}

	query := `
		INSERT INTO transactions (
			id, loan_id, status, failed_message, failed_reason,
			created_at, completed_at, chargeback_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		id, loanID, tx.Status, tx.FailedMessage, tx.FailedReason,
		tx.CreatedAt.Ptr(), tx.CompletedAt.Ptr(), tx.ChargebackAt.Ptr(),
	)
	return err
}

// SaveTransactions stores a batch of payment attempts in one transaction.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (
			id, loan_id, status, failed_message, failed_reason,
			created_at, completed_at, chargeback_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := dbtx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tx := range txs {
		loanID := strings.TrimSpace(tx.LoanID)
		if loanID == "" {
			continue
		}
		id := tx.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx,
			id, loanID, tx.Status, tx.FailedMessage, tx.FailedReason,
			tx.CreatedAt.Ptr(), tx.CompletedAt.Ptr(), tx.ChargebackAt.Ptr(),
		); err != nil {
			return err
		}
	}

	return dbtx.Commit()
}

// GetTransactionsByLoan retrieves all attempts for one loan, oldest first.
func (r *SQLRepository) GetTransactionsByLoan(ctx context.Context, loanID string) ([]*domain.Transaction, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, fmt.Errorf("%w: loan_id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, loan_id, status, failed_message, failed_reason,
			   created_at, completed_at, chargeback_at
		FROM transactions
		WHERE loan_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetTransactionsByLoanIDs fetches history for a set of loans, chunking the
// IN clause to bound query size.
func (r *SQLRepository) GetTransactionsByLoanIDs(ctx context.Context, loanIDs []string) ([]*domain.Transaction, error) {
	ids := make([]string, 0, len(loanIDs))
	for _, id := range loanIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var all []*domain.Transaction
	for start := 0; start < len(ids); start += r.chunkSize {
		end := start + r.chunkSize
		if end > len(ids) {
			end = len(ids)
		}

		chunk, err := r.getTransactionsChunk(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		all = append(all, chunk...)
	}

	return all, nil
}

func (r *SQLRepository) getTransactionsChunk(ctx context.Context, ids []string) ([]*domain.Transaction, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := fmt.Sprintf(`
		SELECT id, loan_id, status, failed_message, failed_reason,
			   created_at, completed_at, chargeback_at
		FROM transactions
		WHERE loan_id IN (%s)
		ORDER BY loan_id, created_at ASC
	`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var status, failedMessage, failedReason sql.NullString
		var createdAt, completedAt, chargebackAt sql.NullTime

		if err := rows.Scan(
			&tx.ID, &tx.LoanID, &status, &failedMessage, &failedReason,
			&createdAt, &completedAt, &chargebackAt,
		); err != nil {
			return nil, err
		}

		tx.Status = status.String
		tx.FailedMessage = failedMessage.String
		tx.FailedReason = failedReason.String
		if createdAt.Valid {
			tx.CreatedAt = domain.NewTimestamp(createdAt.Time)
		}
		if completedAt.Valid {
			tx.CompletedAt = domain.NewTimestamp(completedAt.Time)
		}
		if chargebackAt.Valid {
			tx.ChargebackAt = domain.NewTimestamp(chargebackAt.Time)
		}

		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}

// SaveDecision appends a decision to the audit trail.
func (r *SQLRepository) SaveDecision(ctx context.Context, d *domain.Decision) error {
	if strings.TrimSpace(d.LoanID) == "" {
		return fmt.Errorf("%w: loan_id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO decisions (
			id, loan_id, action, reason_code, reason_label,
			confidence, next_attempt_at, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.New().String(), strings.TrimSpace(d.LoanID), string(d.Action),
		d.Reason.Code, d.Reason.Label, d.Confidence,
		d.NextAttemptDate, d.DecidedAt,
	)
	return err
}

// GetLatestDecision retrieves the most recent decision for a loan.
func (r *SQLRepository) GetLatestDecision(ctx context.Context, loanID string) (*domain.Decision, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, fmt.Errorf("%w: loan_id is required", ErrInvalidInput)
	}

	query := `
		SELECT loan_id, action, reason_code, reason_label,
			   confidence, next_attempt_at, decided_at
		FROM decisions
		WHERE loan_id = ?
		ORDER BY decided_at DESC
		LIMIT 1
	`

	var d domain.Decision
	var action string
	var nextAttempt sql.NullTime

	err := r.db.QueryRowContext(ctx, r.rebind(query), loanID).Scan(
		&d.LoanID, &action, &d.Reason.Code, &d.Reason.Label,
		&d.Confidence, &nextAttempt, &d.DecidedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Action = domain.Action(action)
	if nextAttempt.Valid {
		t := nextAttempt.Time.UTC()
		d.NextAttemptDate = &t
	}
	d.DecidedAt = d.DecidedAt.UTC()

	return &d, nil
}

// SavePolicy stores a CEL policy override, replacing any previous version.
func (r *SQLRepository) SavePolicy(ctx context.Context, p *domain.Policy) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: policy id is required", ErrInvalidInput)
	}

	enabled := 0
	if p.Enabled {
		enabled = 1
	}

	query := `
		INSERT INTO policies (
			id, name, expression, reason_label, confidence, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			expression = excluded.expression,
			reason_label = excluded.reason_label,
			confidence = excluded.confidence,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.Name, p.Expression, p.ReasonLabel, p.Confidence, enabled,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// ListPolicies retrieves all enabled policies ordered by ID.
func (r *SQLRepository) ListPolicies(ctx context.Context) ([]*domain.Policy, error) {
	query := `
		SELECT id, name, expression, reason_label, confidence, enabled, created_at, updated_at
		FROM policies
		WHERE enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		var reasonLabel sql.NullString
		var enabled int

		if err := rows.Scan(
			&p.ID, &p.Name, &p.Expression, &reasonLabel,
			&p.Confidence, &enabled, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}

		p.ReasonLabel = reasonLabel.String
		p.Enabled = enabled == 1
		policies = append(policies, &p)
	}

	return policies, rows.Err()
}

// DeletePolicy soft-deletes a policy by setting enabled = 0.
func (r *SQLRepository) DeletePolicy(ctx context.Context, policyID string) error {
	query := `
		UPDATE policies
		SET enabled = 0
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), policyID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
