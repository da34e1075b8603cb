package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"survivor-pool-bot/internal/model"
)

// TransactionRepository handles the money ledger and deposit bookkeeping.
type TransactionRepository struct {
	db Querier
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(db Querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create creates a new ledger record.
func (r *TransactionRepository) Create(ctx context.Context, userID int64, amount decimal.Decimal, txType string, description *string) (*model.Transaction, error) {
	const query = `
		INSERT INTO transactions (user_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, amount, type, description, created_at
	`

	var tx model.Transaction
	err := r.db.QueryRow(ctx, query, userID, amount, txType, description).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Type,
		&tx.Description,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &tx, nil
}

// GetByUserID retrieves transactions for a user, newest first.
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id, amount, type, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Amount,
			&tx.Type,
			&tx.Description,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// RecordDeposit inserts a deposit keyed by its idempotency key. Returns
// false without error when the key was already applied, which is what makes
// repeated delivery of the same payment event safe.
func (r *TransactionRepository) RecordDeposit(ctx context.Context, key string, userID int64, amount decimal.Decimal) (bool, error) {
	const query = `
		INSERT INTO deposits (idempotency_key, user_id, amount, applied_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query, key, userID, amount)
	if err != nil {
		return false, fmt.Errorf("failed to record deposit: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetDeposit retrieves a deposit by idempotency key.
func (r *TransactionRepository) GetDeposit(ctx context.Context, key string) (*model.Deposit, error) {
	const query = `
		SELECT idempotency_key, user_id, amount, applied_at
		FROM deposits
		WHERE idempotency_key = $1
	`

	var dep model.Deposit
	err := r.db.QueryRow(ctx, query, key).Scan(
		&dep.IdempotencyKey,
		&dep.UserID,
		&dep.Amount,
		&dep.AppliedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return &dep, nil
}
