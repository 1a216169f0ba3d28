// Command seed bootstraps a PulseCheck database: the first admin account
// and, with -demo, an instructor, a passkey-protected course and a few
// topics to click through.
//
// Usage:
//
//	PULSECHECK_SEED_ADMIN_EMAIL=admin@example.com \
//	PULSECHECK_SEED_ADMIN_PASSWORD=change-me-now \
//	go run ./cmd/seed -demo
//
// Seeding is idempotent: existing rows are left alone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/config"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/service"
	sqliteRepo "github.com/sakif/pulsecheck/internal/repository/sqlite"
)

const (
	demoInstructorEmail    = "instructor@example.com"
	demoInstructorPassword = "instructor123"
	demoCourseName         = "Intro to Go"
	demoPassKey            = "GO101"
)

var demoTopics = []string{"Week 1: Syntax", "Week 2: Interfaces", "Week 3: Concurrency"}

func main() {
	demo := flag.Bool("demo", false, "also create a demo instructor, course and topics")
	flag.Parse()

	cfg, err := config.LoadStore()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)

	if err := run(context.Background(), cfg, *demo, logger); err != nil {
		logger.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("seed complete")
}

func run(ctx context.Context, cfg config.Config, demo bool, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	passwords := auth.NewPasswordServiceWithCost(cfg.BcryptCost)

	if cfg.SeedAdminEmail != "" {
		if cfg.SeedAdminPassword == "" {
			return errors.New("PULSECHECK_SEED_ADMIN_PASSWORD is required with PULSECHECK_SEED_ADMIN_EMAIL")
		}
		admin, err := ensureUser(ctx, db, passwords, "Administrator", cfg.SeedAdminEmail, cfg.SeedAdminPassword)
		if err != nil {
			return fmt.Errorf("seeding admin: %w", err)
		}
		if !admin.IsAdmin {
			admin.IsAdmin = true
			if err := db.UpdateUser(ctx, admin); err != nil {
				return fmt.Errorf("promoting admin: %w", err)
			}
		}
		logger.Info("admin ready", slog.String("email", admin.Email))
	} else {
		logger.Warn("PULSECHECK_SEED_ADMIN_EMAIL not set: no admin account created")
	}

	if !demo {
		return nil
	}

	instructor, err := ensureUser(ctx, db, passwords, "Demo Instructor", demoInstructorEmail, demoInstructorPassword)
	if err != nil {
		return fmt.Errorf("seeding instructor: %w", err)
	}
	if !instructor.IsInstructor {
		instructor.IsInstructor = true
		if err := db.UpdateUser(ctx, instructor); err != nil {
			return fmt.Errorf("promoting instructor: %w", err)
		}
	}

	course, err := ensureCourse(ctx, db, instructor.ID, logger)
	if err != nil {
		return err
	}

	existing, err := db.ListTopicsByCourse(ctx, course.ID)
	if err != nil {
		return fmt.Errorf("listing demo topics: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t.Name] = true
	}
	for _, name := range demoTopics {
		if have[name] {
			continue
		}
		err := db.CreateTopic(ctx, &model.Topic{Name: name, CourseID: course.ID})
		if err != nil && !errors.Is(err, apperror.ErrConflict) {
			return fmt.Errorf("seeding topic %q: %w", name, err)
		}
	}

	logger.Info("demo data ready",
		slog.String("instructor", demoInstructorEmail),
		slog.String("course", demoCourseName),
		slog.String("passKey", demoPassKey),
	)
	return nil
}

// ensureCourse returns the demo course, creating it when no course of that
// name exists.
func ensureCourse(ctx context.Context, db *sqliteRepo.DB, instructorID string, logger *slog.Logger) (*model.CourseSummary, error) {
	passKey := demoPassKey
	course := &model.Course{Name: demoCourseName, PassKey: &passKey, InstructorID: &instructorID}
	err := db.CreateCourse(ctx, course)
	if err == nil {
		return &model.CourseSummary{ID: course.ID, Name: course.Name}, nil
	}
	if !errors.Is(err, apperror.ErrConflict) {
		return nil, fmt.Errorf("seeding course: %w", err)
	}

	courses, err := db.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	for i := range courses {
		if strings.EqualFold(courses[i].Name, demoCourseName) {
			logger.Info("demo course already exists", slog.String("id", courses[i].ID))
			return &courses[i], nil
		}
	}
	return nil, fmt.Errorf("seeding course: %q conflicts but was not listed", demoCourseName)
}

// ensureUser returns the account for email, creating it with password when
// it does not exist yet. New passwords follow the signup rules.
func ensureUser(ctx context.Context, db *sqliteRepo.DB, passwords *auth.PasswordService, name, email, password string) (*model.User, error) {
	existing, err := db.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	if err := service.ValidatePassword("password", password); err != nil {
		return nil, err
	}
	hash, err := passwords.Hash(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{Name: name, Email: email, PasswordHash: &hash}
	if err := db.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
