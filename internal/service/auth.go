package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/repository"
)

// PasswordHasher is the slice of auth.PasswordService that sign-in needs.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
	VerifyDummy(plaintext string) error
}

// AuthService handles signup and sign-in. It issues session tokens; setting
// the cookie is the handler's job.
type AuthService struct {
	users       repository.UserRepository
	enrollments *EnrollmentService
	tokens      *auth.TokenService
	passwords   PasswordHasher
	logger      *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	enrollments *EnrollmentService,
	tokens *auth.TokenService,
	passwords PasswordHasher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		enrollments: enrollments,
		tokens:      tokens,
		passwords:   passwords,
		logger:      logger,
	}
}

// AuthResult bundles the authenticated user with their new session token.
type AuthResult struct {
	User  *model.User
	Token string
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
	CourseID string
	PassKey  *string
}

// SignupResult reports the optional enrollment separately: a failed
// enrollment does not undo the account.
type SignupResult struct {
	AuthResult
	Enrollment      *model.Enrollment
	EnrollmentError error
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	name, err := cleanName("name", "name", in.Name)
	if err != nil {
		return nil, err
	}
	email, err := cleanEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword("password", in.Password); err != nil {
		return nil, err
	}
	courseID := strings.TrimSpace(in.CourseID)
	if courseID != "" {
		if err := validID("courseId", courseID); err != nil {
			return nil, err
		}
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{Name: name, Email: email, PasswordHash: &hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if isConflict(err) {
			return nil, err
		}
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating user: %w", err)
	}
	s.logger.Info("user signed up", slog.String("userID", user.ID))

	token, err := s.tokens.Generate(model.PrincipalFor(user))
	if err != nil {
		return nil, fmt.Errorf("generating token for user %s: %w", user.ID, err)
	}

	result := &SignupResult{AuthResult: AuthResult{User: user, Token: token}}
	if courseID != "" {
		result.Enrollment, result.EnrollmentError = s.enrollments.EnrollUser(ctx, user.ID, courseID, in.PassKey)
		if result.EnrollmentError != nil {
			s.logger.Warn("signup enrollment failed",
				slog.String("userID", user.ID),
				slog.String("courseID", courseID),
				slog.String("error", result.EnrollmentError.Error()),
			)
		}
	}
	return result, nil
}

// Login verifies email and password. Every failure returns the same
// Unauthorized so callers cannot tell which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			_ = s.passwords.VerifyDummy(password)
			return nil, invalid
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if !user.HasPassword() {
		_ = s.passwords.VerifyDummy(password)
		return nil, invalid
	}
	if err := s.passwords.Verify(*user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, invalid
		}
		return nil, fmt.Errorf("verifying password: %w", err)
	}

	token, err := s.tokens.Generate(model.PrincipalFor(user))
	if err != nil {
		return nil, fmt.Errorf("generating token for user %s: %w", user.ID, err)
	}
	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Token: token}, nil
}

// LoginWithGitHub signs in by GitHub id. An unknown GitHub id is linked to
// the existing account with the same email, or a new account is created.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("GitHub user must not be nil")
	}

	user, err := s.users.GetUserByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
	case isNotFound(err):
		user, err = s.linkOrCreateGitHubUser(ctx, gh)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("looking up user (githubID=%d): %w", gh.ID, err)
	}

	token, err := s.tokens.Generate(model.PrincipalFor(user))
	if err != nil {
		return nil, fmt.Errorf("generating token for user %s: %w", user.ID, err)
	}
	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) linkOrCreateGitHubUser(ctx context.Context, gh *auth.GitHubUser) (*model.User, error) {
	ghID := gh.ID
	email := strings.ToLower(strings.TrimSpace(gh.Email))
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, strings.ToLower(gh.Login))
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.GitHubID != nil {
			return nil, apperror.ConflictMsg("this email is linked to a different GitHub account")
		}
		existing.GitHubID = &ghID
		if err := s.users.UpdateUser(ctx, existing); err != nil {
			return nil, fmt.Errorf("linking GitHub account to %s: %w", existing.ID, err)
		}
		s.logger.Info("GitHub account linked", slog.String("userID", existing.ID))
		return existing, nil
	case !isNotFound(err):
		return nil, fmt.Errorf("looking up user by email: %w", err)
	}

	user := &model.User{Name: gh.DisplayName(), Email: email, GitHubID: &ghID}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating GitHub user: %w", err)
	}
	s.logger.Info("user created via GitHub", slog.String("userID", user.ID))
	return user, nil
}
