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

var _ repository.CourseRepository = (*DB)(nil)

// summarySelect projects courses to model.CourseSummary. The passkey itself
// never leaves this query; only whether one is set.
const summarySelect = `
	SELECT c.id, c.name, c.instructor_id, COALESCE(u.name, ''),
	       (c.pass_key IS NOT NULL AND c.pass_key <> '')
	FROM courses c
	LEFT JOIN users u ON u.id = c.instructor_id`

func (db *DB) CreateCourse(ctx context.Context, course *model.Course) error {
	now := time.Now().UTC()
	if course.ID == "" {
		course.ID = xid.New().String()
	}
	course.CreatedAt = now
	course.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO courses (id, name, pass_key, instructor_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		course.ID,
		course.Name,
		nullString(course.PassKey),
		nullString(course.InstructorID),
		course.CreatedAt,
		course.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return courseNameConflict()
		}
		return fmt.Errorf("sqlite: inserting course %q: %w", course.Name, err)
	}
	return nil
}

// GetCourseByID returns the full course, passkey included. Only the service
// layer sees this shape; handlers expose CourseSummary.
func (db *DB) GetCourseByID(ctx context.Context, id string) (*model.Course, error) {
	var (
		c            model.Course
		passKey      sql.NullString
		instructorID sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, pass_key, instructor_id, created_at, updated_at
		 FROM courses WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.Name, &passKey, &instructorID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("course", id)
		}
		return nil, fmt.Errorf("sqlite: getting course %s: %w", id, err)
	}
	c.PassKey = stringPtr(passKey)
	c.InstructorID = stringPtr(instructorID)
	return &c, nil
}

func (db *DB) GetCourseSummary(ctx context.Context, id string) (*model.CourseSummary, error) {
	s, err := scanSummary(db.conn.QueryRowContext(ctx, summarySelect+` WHERE c.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("course", id)
		}
		return nil, fmt.Errorf("sqlite: getting course summary %s: %w", id, err)
	}
	return s, nil
}

func (db *DB) UpdateCourse(ctx context.Context, course *model.Course) error {
	course.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE courses SET name = ?, pass_key = ?, instructor_id = ?, updated_at = ?
		 WHERE id = ?`,
		course.Name,
		nullString(course.PassKey),
		nullString(course.InstructorID),
		course.UpdatedAt,
		course.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return courseNameConflict()
		}
		return fmt.Errorf("sqlite: updating course %s: %w", course.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("course", course.ID)
	}
	return nil
}

// DeleteCourseCascade deletes dependents child-first so foreign keys hold at
// every statement. Any failure rolls the whole delete back.
func (db *DB) DeleteCourseCascade(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM courses WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("course", id)
			}
			return fmt.Errorf("sqlite: checking course %s: %w", id, err)
		}

		steps := []struct {
			what  string
			query string
		}{
			{"feedback", `DELETE FROM feedback WHERE topic_id IN (SELECT id FROM topics WHERE course_id = ?)`},
			{"topics", `DELETE FROM topics WHERE course_id = ?`},
			{"memberships", `DELETE FROM memberships WHERE course_id = ?`},
			{"course", `DELETE FROM courses WHERE id = ?`},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, id); err != nil {
				return fmt.Errorf("sqlite: deleting %s of course %s: %w", step.what, id, err)
			}
		}
		return nil
	})
}

func (db *DB) ListCourses(ctx context.Context) ([]model.CourseSummary, error) {
	return db.listSummaries(ctx, summarySelect+` ORDER BY c.name, c.id`)
}

func (db *DB) ListCoursesByInstructor(ctx context.Context, instructorID string) ([]model.CourseSummary, error) {
	return db.listSummaries(ctx, summarySelect+` WHERE c.instructor_id = ? ORDER BY c.name, c.id`, instructorID)
}

func (db *DB) ListCoursesByMember(ctx context.Context, userID string) ([]model.CourseSummary, error) {
	return db.listSummaries(ctx,
		summarySelect+`
		JOIN memberships m ON m.course_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.name, c.id`,
		userID,
	)
}

func (db *DB) listSummaries(ctx context.Context, query string, args ...any) ([]model.CourseSummary, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing courses: %w", err)
	}
	defer rows.Close()

	courses := []model.CourseSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning course row: %w", err)
		}
		courses = append(courses, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating course rows: %w", err)
	}
	return courses, nil
}

func scanSummary(s scanner) (*model.CourseSummary, error) {
	var (
		cs           model.CourseSummary
		instructorID sql.NullString
	)
	if err := s.Scan(&cs.ID, &cs.Name, &instructorID, &cs.InstructorName, &cs.RequiresPassKey); err != nil {
		return nil, err
	}
	cs.InstructorID = stringPtr(instructorID)
	return &cs, nil
}

func courseNameConflict() error {
	return &apperror.AppError{
		Err:     apperror.ErrConflict,
		Message: "a course with this name already exists",
		Field:   "name",
	}
}
