package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SaveChallenge inserts or replaces a challenge. UpdatedAt defaults to now.
func (s *SQLiteStorage) SaveChallenge(ctx context.Context, ch Challenge) error {
	if ch.Category == "" || ch.ID == "" {
		return errors.New("challenge category and id are required")
	}

	data, err := json.Marshal(ch.Assignment)
	if err != nil {
		return fmt.Errorf("failed to serialize assignment: %w", err)
	}

	updatedAt := ch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return s.retryWithBackoff(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO challenges (category, challenge_id, title, max_score, file_count, preview_type, assignment_json, source_path, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(category, challenge_id) DO UPDATE SET
				title = excluded.title,
				max_score = excluded.max_score,
				file_count = excluded.file_count,
				preview_type = excluded.preview_type,
				assignment_json = excluded.assignment_json,
				source_path = excluded.source_path,
				updated_at = excluded.updated_at
		`,
			ch.Category, ch.ID, ch.Assignment.Title, ch.Assignment.MaxScore, len(ch.Assignment.Files),
			ch.Assignment.PreviewType, string(data), ch.SourcePath, updatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save challenge %s/%s: %w", ch.Category, ch.ID, err)
		}
		return nil
	})
}

// GetChallenge loads one challenge with its full assignment.
func (s *SQLiteStorage) GetChallenge(ctx context.Context, category, id string) (Challenge, bool, error) {
	var (
		ch   Challenge
		data string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT category, challenge_id, assignment_json, source_path, updated_at
		FROM challenges
		WHERE category = ? AND challenge_id = ?
	`, category, id).Scan(&ch.Category, &ch.ID, &data, &ch.SourcePath, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Challenge{}, false, nil
	}
	if err != nil {
		return Challenge{}, false, fmt.Errorf("failed to query challenge %s/%s: %w", category, id, err)
	}

	if err := json.Unmarshal([]byte(data), &ch.Assignment); err != nil {
		return Challenge{}, false, fmt.Errorf("failed to deserialize challenge %s/%s: %w", category, id, err)
	}
	return ch, true, nil
}

// ListChallenges lists summaries, optionally restricted to one category.
func (s *SQLiteStorage) ListChallenges(ctx context.Context, category string) ([]ChallengeSummary, error) {
	query := `
		SELECT category, challenge_id, title, max_score, file_count, preview_type, updated_at
		FROM challenges`
	var args []any
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY category, challenge_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	return scanChallengeSummaries(rows)
}

func scanChallengeSummaries(rows *sql.Rows) ([]ChallengeSummary, error) {
	summaries := make([]ChallengeSummary, 0)
	for rows.Next() {
		var cs ChallengeSummary
		if err := rows.Scan(&cs.Category, &cs.ID, &cs.Title, &cs.MaxScore, &cs.FileCount, &cs.PreviewType, &cs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan challenge summary: %w", err)
		}
		summaries = append(summaries, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenge rows: %w", err)
	}
	return summaries, nil
}

// ListCategories returns every category with its challenge count.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]CategorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM challenges
		GROUP BY category
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]CategorySummary, 0)
	for rows.Next() {
		var c CategorySummary
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteChallenge removes a challenge.
func (s *SQLiteStorage) DeleteChallenge(ctx context.Context, category, id string) (bool, error) {
	var affected int64
	err := s.retryWithBackoff(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM challenges WHERE category = ? AND challenge_id = ?", category, id)
		if err != nil {
			return fmt.Errorf("failed to delete challenge %s/%s: %w", category, id, err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected > 0, err
}
