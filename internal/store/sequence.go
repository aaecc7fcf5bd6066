package store

import (
	"context"
	"database/sql"
	"fmt"
)

// eventRepo implements EventRepo with raw SQL.
type eventRepo struct {
	db *sql.DB
}

// nextSequence returns the next value of the sequence shared by every
// event table, so LLM requests and served questions order against each
// other. The upsert is a single statement, which keeps it atomic across
// processes sharing the database file.
func (r *eventRepo) nextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx, `INSERT INTO global_sequence (id, next_val) VALUES (1, 2)
		ON CONFLICT (id) DO UPDATE SET next_val = next_val + 1
		RETURNING next_val - 1`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
