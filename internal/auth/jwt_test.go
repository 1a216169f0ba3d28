package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/sakif/pulsecheck/internal/model"
)

// newTestTokenService uses a fixed secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func student(id string) model.Principal {
	return model.Principal{UserID: id}
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
	if ts.TTL() != DefaultTokenTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultTokenTTL)
	}
}

// =========================================================================
// GENERATE TESTS
// =========================================================================

func TestGenerate_ReturnsJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(student("user-123"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// header.payload.signature
	if got := strings.Count(token, "."); got != 2 {
		t.Errorf("Generate() token doesn't look like a JWT (expected 2 dots, got %d)", got)
	}
}

func TestGenerate_RequiresSubject(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Generate(model.Principal{IsAdmin: true}); err == nil {
		t.Fatal("Generate() should refuse an anonymous principal")
	}
}

// =========================================================================
// VALIDATE TESTS
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	tests := []struct {
		name string
		p    model.Principal
	}{
		{"student", model.Principal{UserID: "u1"}},
		{"instructor", model.Principal{UserID: "u2", IsInstructor: true}},
		{"admin and instructor", model.Principal{UserID: "u3", IsAdmin: true, IsInstructor: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := ts.Generate(tt.p)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			got, err := ts.Validate(token)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got != tt.p {
				t.Errorf("Validate() = %+v, want %+v", got, tt.p)
			}
		})
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration(student("user-123"), -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}
	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(student("user-123"))
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", time.Hour)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	token, _ := ts1.Generate(student("user-123"))

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, input := range []string{"", "not.a.jwt.token", "abc"} {
		if _, err := ts.Validate(input); err == nil {
			t.Errorf("Validate(%q) should return an error", input)
		}
	}
}
