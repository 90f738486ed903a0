// Package points is the points ledger consulted by matchmaking for
// acceleration debits. Balances live in PostgreSQL; every debit is
// recorded as a ledger row inside the same transaction as the balance
// update.
package points

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrInsufficientPoints is returned when a debit cannot be covered by the
// user's balance. Callers surface it to the user; it is never retried.
var ErrInsufficientPoints = errors.New("points: insufficient points")

// Ledger manages point balances in PostgreSQL.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger backed by the given database handle.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Balance returns the user's current point balance; users without an
// account have a balance of zero.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int, error) {
	var balance int
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM point_accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("points: balance %d: %w", userID, err)
	}
	return balance, nil
}

// Consume debits amount from the user's balance and records a ledger row,
// atomically. Returns ErrInsufficientPoints when the balance (or the
// account itself) cannot cover the debit.
func (l *Ledger) Consume(ctx context.Context, userID int64, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("points: invalid debit amount %d", amount)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("points: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE point_accounts SET balance = balance - $2
		 WHERE user_id = $1 AND balance >= $2`, userID, amount)
	if err != nil {
		return fmt.Errorf("points: debit %d: %w", userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("points: debit %d: %w", userID, err)
	}
	if affected == 0 {
		return ErrInsufficientPoints
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO point_ledger (user_id, amount, reason, created_at)
		 VALUES ($1, $2, $3, NOW())`, userID, -amount, reason)
	if err != nil {
		return fmt.Errorf("points: ledger row %d: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("points: commit debit %d: %w", userID, err)
	}
	return nil
}
