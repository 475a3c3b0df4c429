package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// TimestampRepository stores rate-limiter logs, one JSON array per client key.
type TimestampRepository struct {
	db *sql.DB
}

func NewTimestampRepository(db *sql.DB) *TimestampRepository {
	return &TimestampRepository{db: db}
}

func (r *TimestampRepository) Load(ctx context.Context, key string) ([]int64, error) {
	const query = `SELECT timestamps FROM request_timestamps WHERE client_key = ?`
	var raw string
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select timestamps: %w", err)
	}
	var timestamps []int64
	if err := json.Unmarshal([]byte(raw), &timestamps); err != nil {
		return nil, fmt.Errorf("parse timestamps: %w", err)
	}
	return timestamps, nil
}

func (r *TimestampRepository) Save(ctx context.Context, key string, timestamps []int64) error {
	if timestamps == nil {
		timestamps = []int64{}
	}
	raw, err := json.Marshal(timestamps)
	if err != nil {
		return fmt.Errorf("marshal timestamps: %w", err)
	}
	const query = `
INSERT INTO request_timestamps (client_key, timestamps) VALUES (?, ?)
ON DUPLICATE KEY UPDATE timestamps = VALUES(timestamps), updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, key, string(raw)); err != nil {
		return fmt.Errorf("upsert timestamps: %w", err)
	}
	return nil
}
