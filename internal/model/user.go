// Package model defines the data structures used throughout the application.
// Structs here carry JSON tags for the API; fields that must never leave the
// server are tagged "-".
package model

import "time"

// User represents a registered account.
//
// Role flags are independent booleans rather than a single role column: an
// admin may also teach, and the dashboard picks the richest view available.
//
// PasswordHash is nil for accounts created through GitHub sign-in that never
// set a password. GitHubID is nil for password-only accounts.
type User struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     *string    `json:"-"`
	GitHubID         *int64     `json:"githubId,omitempty"`
	IsAdmin          bool       `json:"isAdmin"`
	IsInstructor     bool       `json:"isInstructor"`
	ResetToken       *string    `json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// PublicUser is the profile shape other users are allowed to see.
// It never carries the password hash, reset token or role flags.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Public projects the user down to its public profile.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
