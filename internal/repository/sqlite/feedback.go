package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

var _ repository.FeedbackRepository = (*DB)(nil)

const feedbackSelect = `
	SELECT f.id, f.rating, f.comment, f.topic_id, f.from_user_id, f.to_user_id,
	       f.created_at, f.updated_at,
	       t.name, COALESCE(fu.name, ''), COALESCE(tu.name, '')
	FROM feedback f
	JOIN topics t ON t.id = f.topic_id
	LEFT JOIN users fu ON fu.id = f.from_user_id
	LEFT JOIN users tu ON tu.id = f.to_user_id`

func (db *DB) CreateFeedback(ctx context.Context, f *model.Feedback) error {
	now := time.Now().UTC()
	if f.ID == "" {
		f.ID = xid.New().String()
	}
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO feedback (id, rating, comment, topic_id, from_user_id, to_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.Rating,
		f.Comment,
		f.TopicID,
		nullString(f.FromUserID),
		f.ToUserID,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting feedback on topic %s: %w", f.TopicID, err)
	}
	return nil
}

func (db *DB) GetFeedbackByID(ctx context.Context, id string) (*model.Feedback, error) {
	f, err := scanFeedback(db.conn.QueryRowContext(ctx, feedbackSelect+` WHERE f.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("feedback", id)
		}
		return nil, fmt.Errorf("sqlite: getting feedback %s: %w", id, err)
	}
	return f, nil
}

// UpdateFeedback changes rating and comment only.
func (db *DB) UpdateFeedback(ctx context.Context, f *model.Feedback) error {
	f.UpdatedAt = time.Now().UTC()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE feedback SET rating = ?, comment = ?, updated_at = ? WHERE id = ?`,
		f.Rating, f.Comment, f.UpdatedAt, f.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating feedback %s: %w", f.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("feedback", f.ID)
	}
	return nil
}

func (db *DB) DeleteFeedback(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM feedback WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting feedback %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("feedback", id)
	}
	return nil
}

func (db *DB) ListFeedbackByTopic(ctx context.Context, topicID string) ([]model.Feedback, error) {
	return db.listFeedback(ctx, feedbackSelect+` WHERE f.topic_id = ? ORDER BY f.created_at DESC, f.id`, topicID)
}

func (db *DB) ListFeedbackByAuthor(ctx context.Context, userID string) ([]model.Feedback, error) {
	return db.listFeedback(ctx, feedbackSelect+` WHERE f.from_user_id = ? ORDER BY f.created_at DESC, f.id`, userID)
}

func (db *DB) listFeedback(ctx context.Context, query string, args ...any) ([]model.Feedback, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing feedback: %w", err)
	}
	defer rows.Close()

	list := []model.Feedback{}
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning feedback row: %w", err)
		}
		list = append(list, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating feedback rows: %w", err)
	}
	return list, nil
}

func scanFeedback(s scanner) (*model.Feedback, error) {
	var (
		f    model.Feedback
		from sql.NullString
	)
	err := s.Scan(
		&f.ID, &f.Rating, &f.Comment, &f.TopicID, &from, &f.ToUserID,
		&f.CreatedAt, &f.UpdatedAt,
		&f.TopicName, &f.FromName, &f.ToName,
	)
	if err != nil {
		return nil, err
	}
	f.FromUserID = stringPtr(from)
	return &f, nil
}
