package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

var _ repository.DashboardRepository = (*DB)(nil)

const courseStatsSelect = `
	SELECT c.id, c.name,
	       (SELECT COUNT(*) FROM topics tt WHERE tt.course_id = c.id),
	       (SELECT COUNT(*) FROM memberships m WHERE m.course_id = c.id),
	       COUNT(f.id),
	       COALESCE(AVG(f.rating), 0.0)
	FROM courses c
	LEFT JOIN topics t ON t.course_id = c.id
	LEFT JOIN feedback f ON f.topic_id = t.id`

// StudentActivity lists the user's enrolled courses with how much feedback
// they have submitted in each.
func (db *DB) StudentActivity(ctx context.Context, userID string) ([]model.CourseActivity, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.name,
		        (SELECT COUNT(*) FROM feedback f
		          JOIN topics t ON t.id = f.topic_id
		          WHERE t.course_id = c.id AND f.from_user_id = m.user_id)
		 FROM memberships m
		 JOIN courses c ON c.id = m.course_id
		 WHERE m.user_id = ?
		 ORDER BY c.name, c.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: student activity for %s: %w", userID, err)
	}
	defer rows.Close()

	activity := []model.CourseActivity{}
	for rows.Next() {
		var a model.CourseActivity
		if err := rows.Scan(&a.CourseID, &a.CourseName, &a.FeedbackSubmitted); err != nil {
			return nil, fmt.Errorf("sqlite: scanning activity row: %w", err)
		}
		activity = append(activity, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating activity rows: %w", err)
	}
	return activity, nil
}

func (db *DB) CountFeedbackByAuthor(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback WHERE from_user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting feedback by %s: %w", userID, err)
	}
	return n, nil
}

func (db *DB) InstructorCourseStats(ctx context.Context, instructorID string) ([]model.CourseStats, error) {
	return db.courseStats(ctx,
		courseStatsSelect+` WHERE c.instructor_id = ? GROUP BY c.id, c.name ORDER BY c.name, c.id`,
		instructorID,
	)
}

func (db *DB) AllCourseStats(ctx context.Context) ([]model.CourseStats, error) {
	return db.courseStats(ctx, courseStatsSelect+` GROUP BY c.id, c.name ORDER BY c.name, c.id`)
}

func (db *DB) courseStats(ctx context.Context, query string, args ...any) ([]model.CourseStats, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: course stats: %w", err)
	}
	defer rows.Close()

	stats := []model.CourseStats{}
	for rows.Next() {
		var s model.CourseStats
		if err := rows.Scan(&s.CourseID, &s.CourseName, &s.TopicCount, &s.MemberCount,
			&s.FeedbackCount, &s.AverageRating); err != nil {
			return nil, fmt.Errorf("sqlite: scanning course stats row: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating course stats rows: %w", err)
	}
	return stats, nil
}

// TopicStats aggregates every topic of a course, including a 1..5 histogram.
func (db *DB) TopicStats(ctx context.Context, courseID string) ([]model.TopicStats, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.id, t.name, COUNT(f.id), COALESCE(AVG(f.rating), 0.0),
		        COALESCE(SUM(f.rating = 1), 0), COALESCE(SUM(f.rating = 2), 0),
		        COALESCE(SUM(f.rating = 3), 0), COALESCE(SUM(f.rating = 4), 0),
		        COALESCE(SUM(f.rating = 5), 0)
		 FROM topics t
		 LEFT JOIN feedback f ON f.topic_id = t.id
		 WHERE t.course_id = ?
		 GROUP BY t.id, t.name
		 ORDER BY t.created_at, t.id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: topic stats for course %s: %w", courseID, err)
	}
	defer rows.Close()

	stats := []model.TopicStats{}
	for rows.Next() {
		var s model.TopicStats
		if err := rows.Scan(&s.TopicID, &s.TopicName, &s.FeedbackCount, &s.AverageRating,
			&s.Histogram[0], &s.Histogram[1], &s.Histogram[2], &s.Histogram[3], &s.Histogram[4]); err != nil {
			return nil, fmt.Errorf("sqlite: scanning topic stats row: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating topic stats rows: %w", err)
	}
	return stats, nil
}

func (db *DB) Totals(ctx context.Context) (model.Totals, error) {
	var t model.Totals
	err := db.conn.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM users),
		        (SELECT COUNT(*) FROM users WHERE is_instructor = 1),
		        (SELECT COUNT(*) FROM users WHERE is_admin = 1),
		        (SELECT COUNT(*) FROM courses),
		        (SELECT COUNT(*) FROM topics),
		        (SELECT COUNT(*) FROM memberships),
		        (SELECT COUNT(*) FROM feedback)`,
	).Scan(&t.Users, &t.Instructors, &t.Admins, &t.Courses, &t.Topics, &t.Memberships, &t.Feedback)
	if err != nil {
		return model.Totals{}, fmt.Errorf("sqlite: counting totals: %w", err)
	}
	return t, nil
}
