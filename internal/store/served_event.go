package store

import (
	"context"
	"fmt"
	"time"
)

func (r *eventRepo) AppendServed(ctx context.Context, data ServedEventData) error {
	seqNum, err := r.nextSequence(ctx)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO served_questions
		(sequence, ts, session_id, question_id, chapter, origin, fallback_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seqNum, time.Now().UTC().UnixMilli(), data.SessionID, data.QuestionID,
		data.Chapter, data.Origin, data.FallbackReason,
	)
	if err != nil {
		return fmt.Errorf("save served event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryServed(ctx context.Context, opts QueryOpts) ([]ServedEvent, error) {
	q := `SELECT id, sequence, ts, session_id, question_id, chapter, origin, fallback_reason
		FROM served_questions`
	var args []any
	if opts.Session != "" {
		q += " WHERE session_id = ?"
		args = append(args, opts.Session)
	}
	q += " ORDER BY sequence DESC"
	if opts.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query served events: %w", err)
	}
	defer rows.Close()

	var out []ServedEvent
	for rows.Next() {
		var (
			e  ServedEvent
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &ts, &e.SessionID, &e.QuestionID,
			&e.Chapter, &e.Origin, &e.FallbackReason); err != nil {
			return nil, fmt.Errorf("scan served event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventRepo) ServedByOrigin(ctx context.Context) ([]OriginCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT origin, COUNT(*) FROM served_questions GROUP BY origin ORDER BY origin`)
	if err != nil {
		return nil, fmt.Errorf("query served by origin: %w", err)
	}
	defer rows.Close()

	var out []OriginCount
	for rows.Next() {
		var oc OriginCount
		if err := rows.Scan(&oc.Origin, &oc.Count); err != nil {
			return nil, fmt.Errorf("scan origin count: %w", err)
		}
		out = append(out, oc)
	}
	return out, rows.Err()
}
