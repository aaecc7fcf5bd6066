package store

import (
	"context"
	"fmt"
	"time"
)

func (r *eventRepo) AppendAnswer(ctx context.Context, data AnswerEventData) error {
	seqNum, err := r.nextSequence(ctx)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO answers
		(sequence, ts, session_id, question_id, chapter, origin, choice, correct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, time.Now().UTC().UnixMilli(), data.SessionID, data.QuestionID,
		data.Chapter, data.Origin, data.Choice, boolInt(data.Correct),
	)
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryAnswers(ctx context.Context, opts QueryOpts) ([]AnswerEvent, error) {
	q := `SELECT id, sequence, ts, session_id, question_id, chapter, origin, choice, correct
		FROM answers`
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
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []AnswerEvent
	for rows.Next() {
		var (
			e       AnswerEvent
			ts      int64
			correct int
		)
		if err := rows.Scan(&e.ID, &e.Sequence, &ts, &e.SessionID, &e.QuestionID,
			&e.Chapter, &e.Origin, &e.Choice, &correct); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.Correct = correct != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *eventRepo) AnswersByChapter(ctx context.Context) ([]AnswerStat, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chapter, COUNT(*), COALESCE(SUM(correct), 0)
		FROM answers GROUP BY chapter ORDER BY chapter`)
	if err != nil {
		return nil, fmt.Errorf("query answers by chapter: %w", err)
	}
	defer rows.Close()

	var out []AnswerStat
	for rows.Next() {
		var s AnswerStat
		if err := rows.Scan(&s.Chapter, &s.Answered, &s.Correct); err != nil {
			return nil, fmt.Errorf("scan answer stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
