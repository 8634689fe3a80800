package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PostgresLedger keeps balances in credit_balances(user_id, balance, updated_at).
type PostgresLedger struct {
	db DB
}

func NewPostgresLedger(db DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) GetBalance(ctx context.Context, userID string) (int64, error) {
	query := `SELECT balance FROM credit_balances WHERE user_id = $1`
	var balance int64
	err := l.db.QueryRow(ctx, query, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return balance, nil
}

// Authorize debits in a single conditional statement so concurrent requests
// for one user can never take the balance below zero.
func (l *PostgresLedger) Authorize(ctx context.Context, userID string, cost int64) (*Authorization, error) {
	query := `
		UPDATE credit_balances
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`
	var remaining int64
	err := l.db.QueryRow(ctx, query, userID, cost).Scan(&remaining)
	if err == nil {
		return &Authorization{UserID: userID, Cost: cost, Remaining: remaining}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}

	balance, err := l.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return nil, &InsufficientCreditsError{Balance: balance, Required: cost}
}

// Grant adds credits, creating the balance row if needed.
func (l *PostgresLedger) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	query := `
		INSERT INTO credit_balances (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`
	var balance int64
	if err := l.db.QueryRow(ctx, query, userID, amount).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to grant credits: %w", err)
	}
	return balance, nil
}
