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

var _ repository.TopicRepository = (*DB)(nil)

func (db *DB) CreateTopic(ctx context.Context, topic *model.Topic) error {
	now := time.Now().UTC()
	if topic.ID == "" {
		topic.ID = xid.New().String()
	}
	topic.CreatedAt = now
	topic.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO topics (id, name, course_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		topic.ID, topic.Name, topic.CourseID, topic.CreatedAt, topic.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return topicNameConflict()
		}
		return fmt.Errorf("sqlite: inserting topic %q: %w", topic.Name, err)
	}
	return nil
}

func (db *DB) GetTopicByID(ctx context.Context, id string) (*model.Topic, error) {
	var t model.Topic
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, course_id, created_at, updated_at FROM topics WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.CourseID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("topic", id)
		}
		return nil, fmt.Errorf("sqlite: getting topic %s: %w", id, err)
	}
	return &t, nil
}

// UpdateTopic renames a topic. CourseID is immutable.
func (db *DB) UpdateTopic(ctx context.Context, topic *model.Topic) error {
	topic.UpdatedAt = time.Now().UTC()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE topics SET name = ?, updated_at = ? WHERE id = ?`,
		topic.Name, topic.UpdatedAt, topic.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return topicNameConflict()
		}
		return fmt.Errorf("sqlite: updating topic %s: %w", topic.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("topic", topic.ID)
	}
	return nil
}

func (db *DB) DeleteTopicCascade(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM feedback WHERE topic_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting feedback of topic %s: %w", id, err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting topic %s: %w", id, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rows == 0 {
			return apperror.NotFound("topic", id)
		}
		return nil
	})
}

func (db *DB) ListTopicsByCourse(ctx context.Context, courseID string) ([]model.Topic, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, course_id, created_at, updated_at
		 FROM topics WHERE course_id = ? ORDER BY created_at, id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing topics of course %s: %w", courseID, err)
	}
	defer rows.Close()

	topics := []model.Topic{}
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.CourseID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning topic row: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating topic rows: %w", err)
	}
	return topics, nil
}

func topicNameConflict() error {
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: "a topic with this name already exists in the course",
		Field:   "name",
	}
}
