package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

const (
	resetTokenBytes = 32
	ResetTokenTTL   = time.Hour
)

// UserService covers profile management, password reset and admin role
// management.
type UserService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	publicURL string
	now       func() time.Time
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	publicURL string,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
		logger:    logger,
	}
}

func (s *UserService) Me(ctx context.Context, actor model.Principal) (*model.User, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.Unauthorized("session user no longer exists")
		}
		return nil, fmt.Errorf("loading user %s: %w", actor.UserID, err)
	}
	return user, nil
}

// UpdateProfile changes name and/or email. Nil arguments are left untouched.
func (s *UserService) UpdateProfile(ctx context.Context, actor model.Principal, name, email *string) (*model.User, error) {
	user, err := s.Me(ctx, actor)
	if err != nil {
		return nil, err
	}
	if name != nil {
		n, err := cleanName("name", "name", *name)
		if err != nil {
			return nil, err
		}
		user.Name = n
	}
	if email != nil {
		e, err := cleanEmail(*email)
		if err != nil {
			return nil, err
		}
		user.Email = e
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if isConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	s.logger.Info("profile updated", slog.String("userID", user.ID))
	return user, nil
}

// ChangePassword requires the current password when one is set. Accounts
// created through GitHub may set a first password without it.
func (s *UserService) ChangePassword(ctx context.Context, actor model.Principal, current, next string) error {
	user, err := s.Me(ctx, actor)
	if err != nil {
		return err
	}
	if user.HasPassword() {
		if err := s.passwords.Verify(*user.PasswordHash, current); err != nil {
			if errors.Is(err, auth.ErrInvalidPassword) {
				return apperror.ValidationFailed("currentPassword", "current password is incorrect")
			}
			return fmt.Errorf("verifying password: %w", err)
		}
	}
	if err := s.setPassword(ctx, user, next); err != nil {
		return err
	}
	s.logger.Info("password changed", slog.String("userID", user.ID))
	return nil
}

func (s *UserService) setPassword(ctx context.Context, user *model.User, password string) error {
	if err := ValidatePassword("newPassword", password); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user.PasswordHash = &hash
	user.ResetToken = nil
	user.ResetTokenExpiry = nil
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("saving password: %w", err)
	}
	return nil
}

// RequestPasswordReset stores a one-hour reset token for the account and
// logs the reset link. It reports success whether or not the email exists.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("loading user: %w", err)
	}

	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating reset token: %w", err)
	}
	token := hex.EncodeToString(buf)
	expiry := s.now().Add(ResetTokenTTL).UTC()

	user.ResetToken = &token
	user.ResetTokenExpiry = &expiry
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	// Mail delivery is outside this service; operators relay the link.
	s.logger.Info("password reset requested",
		slog.String("userID", user.ID),
		slog.String("resetURL", s.publicURL+"/reset-password?token="+url.QueryEscape(token)),
		slog.Time("expires", expiry),
	)
	return nil
}

func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	invalid := apperror.ValidationFailed("token", "invalid or expired reset token")

	token = strings.TrimSpace(token)
	if token == "" {
		return invalid
	}
	user, err := s.users.GetUserByResetToken(ctx, token)
	if err != nil {
		if isNotFound(err) {
			return invalid
		}
		return fmt.Errorf("loading reset token: %w", err)
	}
	if user.ResetTokenExpiry == nil || !s.now().Before(*user.ResetTokenExpiry) {
		return invalid
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return err
	}
	s.logger.Info("password reset", slog.String("userID", user.ID))
	return nil
}

func requireAdmin(actor model.Principal) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin {
		return apperror.Forbidden("administrator access required")
	}
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, actor model.Principal, query string, limit, offset int) ([]model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	users, err := s.users.ListUsers(ctx, query, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// SetRoles overwrites both role flags. Admins cannot drop their own admin
// flag, so the system always keeps at least the acting admin.
func (s *UserService) SetRoles(ctx context.Context, actor model.Principal, userID string, isAdmin, isInstructor bool) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validID("userId", userID); err != nil {
		return nil, err
	}
	if userID == actor.UserID && !isAdmin {
		return nil, apperror.ValidationFailed("isAdmin", "you cannot remove your own admin role")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("loading user %s: %w", userID, err)
	}
	user.IsAdmin = isAdmin
	user.IsInstructor = isInstructor
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("updating roles: %w", err)
	}

	s.logger.Info("roles updated",
		slog.String("actorID", actor.UserID),
		slog.String("userID", userID),
		slog.Bool("isAdmin", isAdmin),
		slog.Bool("isInstructor", isInstructor),
	)
	return user, nil
}
