package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ClientRepository caches the contact email each client submitted to the subscription gate.
type ClientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) GetEmail(ctx context.Context, key string) (string, error) {
	const query = `SELECT email FROM client_emails WHERE client_key = ?`
	var email string
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("select client email: %w", err)
	}
	return email, nil
}

func (r *ClientRepository) SetEmail(ctx context.Context, key, email string) error {
	const query = `
INSERT INTO client_emails (client_key, email) VALUES (?, ?)
ON DUPLICATE KEY UPDATE email = VALUES(email), updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, key, email); err != nil {
		return fmt.Errorf("upsert client email: %w", err)
	}
	return nil
}
