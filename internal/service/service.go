// Package service holds the business rules. Services take primitives or
// small input structs, validate them, enforce authorization against a
// model.Principal and return apperror values the handler layer maps to HTTP.
package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel"

	"github.com/sakif/pulsecheck/internal/apperror"
	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/model"
)

const (
	MaxNameLength     = 100
	MaxCommentLength  = 2000
	MaxPassKeyLength  = 6
	MinPasswordLength = 8

	DefaultSearchLimit = 10
	MaxSearchLimit     = 50

	DefaultListLimit = 50
	MaxListLimit     = 200
)

var tracer = otel.Tracer("github.com/sakif/pulsecheck/internal/service")

// Recorder receives business events for metrics. *metrics.Metrics
// implements it; NopRecorder discards everything.
type Recorder interface {
	RecordEnrollment(outcome string)
	RecordMembershipChange(action string)
	RecordFeedback(anonymous bool)
}

type NopRecorder struct{}

func (NopRecorder) RecordEnrollment(string)       {}
func (NopRecorder) RecordMembershipChange(string) {}
func (NopRecorder) RecordFeedback(bool)           {}

// requireActor rejects anonymous callers.
func requireActor(actor model.Principal) error {
	if !actor.Authenticated() {
		return apperror.Unauthorized("authentication required")
	}
	return nil
}

// validID checks that id is a well-formed identifier.
func validID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	if _, err := xid.FromString(id); err != nil {
		return apperror.ValidationFailed(field, field+" is not a valid identifier")
	}
	return nil
}

// cleanName trims name and enforces presence and MaxNameLength (in runes).
func cleanName(field, label, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed(field, label+" is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", label, MaxNameLength))
	}
	return name, nil
}

// cleanPassKey normalises a passkey input for storage: blank clears it,
// anything else must be 1..MaxPassKeyLength ASCII letters or digits.
func cleanPassKey(raw string) (*string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return nil, nil
	}
	if len(key) > MaxPassKeyLength {
		return nil, apperror.ValidationFailed("passKey",
			fmt.Sprintf("passkey must be %d characters or less", MaxPassKeyLength))
	}
	for _, r := range key {
		if !isASCIIAlnum(r) {
			return nil, apperror.ValidationFailed("passKey", "passkey must contain only letters and digits")
		}
	}
	return &key, nil
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// ValidatePassword applies the signup password rules, reporting failures
// against field.
func ValidatePassword(field, password string) error {
	if len(password) < MinPasswordLength {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	return nil
}

func cleanEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", apperror.ValidationFailed("email", "invalid email format")
	}
	return email, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, apperror.ErrConflict)
}
