package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

var _ repository.MembershipRepository = (*DB)(nil)

func (db *DB) GetMembership(ctx context.Context, userID, courseID string) (*model.Membership, error) {
	var m model.Membership
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, course_id, created_at FROM memberships WHERE user_id = ? AND course_id = ?`,
		userID, courseID,
	).Scan(&m.UserID, &m.CourseID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("membership", userID+"/"+courseID)
		}
		return nil, fmt.Errorf("sqlite: getting membership %s/%s: %w", userID, courseID, err)
	}
	return &m, nil
}

// CreateMembership relies on the (user_id, course_id) primary key to reject
// duplicates, which closes the check-then-insert race in the service.
func (db *DB) CreateMembership(ctx context.Context, m *model.Membership) error {
	m.CreatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO memberships (user_id, course_id, created_at) VALUES (?, ?, ?)`,
		m.UserID, m.CourseID, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMsg("already enrolled in this course")
		}
		return fmt.Errorf("sqlite: inserting membership %s/%s: %w", m.UserID, m.CourseID, err)
	}
	return nil
}

func (db *DB) DeleteMembership(ctx context.Context, userID, courseID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM memberships WHERE user_id = ? AND course_id = ?`, userID, courseID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting membership %s/%s: %w", userID, courseID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("membership", userID+"/"+courseID)
	}
	return nil
}

func (db *DB) ListMembers(ctx context.Context, courseID string) ([]model.PublicUser, error) {
	return db.listPublicUsers(ctx,
		`SELECT u.id, u.name, u.email
		 FROM users u
		 JOIN memberships m ON m.user_id = u.id
		 WHERE m.course_id = ?
		 ORDER BY u.name, u.id`,
		courseID,
	)
}

func (db *DB) SearchNonMembers(ctx context.Context, courseID, query string, limit int) ([]model.PublicUser, error) {
	folded := foldString(query)
	return db.listPublicUsers(ctx,
		`SELECT u.id, u.name, u.email
		 FROM users u
		 WHERE (instr(casefold(u.name), ?) > 0 OR instr(casefold(u.email), ?) > 0)
		   AND NOT EXISTS (
		       SELECT 1 FROM memberships m WHERE m.user_id = u.id AND m.course_id = ?
		   )
		 ORDER BY u.name, u.id
		 LIMIT ?`,
		folded, folded, courseID, limit,
	)
}

func (db *DB) listPublicUsers(ctx context.Context, query string, args ...any) ([]model.PublicUser, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.PublicUser{}
	for rows.Next() {
		var u model.PublicUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}
