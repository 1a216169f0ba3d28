package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, name, email, password_hash, github_id, is_admin, is_instructor,
	reset_token, reset_token_expiry, created_at, updated_at`

// CreateUser inserts a new user, assigning ID and timestamps in place.
// Email is stored lowercased. A duplicate email or GitHub ID is a Conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = xid.New().String()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		nullString(user.PasswordHash),
		nullInt64(user.GitHubID),
		user.IsAdmin,
		user.IsInstructor,
		nullString(user.ResetToken),
		nullTime(user.ResetTokenExpiry),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err, user)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUserRow(row, "user", id)
}

// GetUserByEmail matches case-insensitively; emails are stored lowercased.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUserRow(row, "user", email)
}

func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID)
	return scanUserRow(row, "user", fmt.Sprintf("github:%d", githubID))
}

// GetUserByResetToken does not check expiry; the service does.
func (db *DB) GetUserByResetToken(ctx context.Context, token string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token = ?`, token)
	return scanUserRow(row, "reset token", "")
}

// UpdateUser overwrites every mutable column of an existing user.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, password_hash = ?, github_id = ?,
		        is_admin = ?, is_instructor = ?, reset_token = ?, reset_token_expiry = ?,
		        updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		nullString(user.PasswordHash),
		nullInt64(user.GitHubID),
		user.IsAdmin,
		user.IsInstructor,
		nullString(user.ResetToken),
		nullTime(user.ResetTokenExpiry),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err, user)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// ListUsers returns users ordered by name. A non-empty query filters by
// case-folded substring of name or email.
func (db *DB) ListUsers(ctx context.Context, query string, opts repository.ListOptions) ([]model.User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if q := strings.TrimSpace(query); q != "" {
		folded := foldString(q)
		rows, err = db.conn.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users
			 WHERE instr(casefold(name), ?) > 0 OR instr(casefold(email), ?) > 0
			 ORDER BY name, id LIMIT ? OFFSET ?`,
			folded, folded, limit, opts.Offset,
		)
	} else {
		rows, err = db.conn.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users ORDER BY name, id LIMIT ? OFFSET ?`,
			limit, opts.Offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}

func scanUserRow(row *sql.Row, resource, key string) (*model.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(resource, key)
		}
		return nil, fmt.Errorf("sqlite: getting %s %s: %w", resource, key, err)
	}
	return u, nil
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u            model.User
		passwordHash sql.NullString
		githubID     sql.NullInt64
		resetToken   sql.NullString
		resetExpiry  sql.NullTime
	)
	err := s.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&passwordHash,
		&githubID,
		&u.IsAdmin,
		&u.IsInstructor,
		&resetToken,
		&resetExpiry,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = stringPtr(passwordHash)
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	u.ResetToken = stringPtr(resetToken)
	if resetExpiry.Valid {
		t := resetExpiry.Time
		u.ResetTokenExpiry = &t
	}
	return &u, nil
}

func userConflict(err error, user *model.User) error {
	switch violatedColumn(err) {
	case "users.github_id":
		return apperror.ConflictMsg("this GitHub account is already linked to another user")
	case "users.reset_token":
		return apperror.ConflictMsg("reset token collision")
	case "users.id":
		return apperror.Conflict("user", user.ID)
	default:
		return &apperror.AppError{
			Err:     apperror.ErrConflict,
			Message: "an account with this email already exists",
			Field:   "email",
		}
	}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
