package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor for production hashes.
const DefaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer inputs are rejected
// rather than silently truncated.
const MaxPasswordBytes = 72

// ErrInvalidPassword is returned by Verify on a mismatch.
var ErrInvalidPassword = errors.New("auth: invalid password")

type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: DefaultCost}
}

// NewPasswordServiceWithCost uses the given work factor. Values outside
// bcrypt's range fall back to DefaultCost.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Cost reports the work factor new hashes are created with.
func (p *PasswordService) Cost() int {
	return p.cost
}

func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// VerifyDummy runs a full bcrypt comparison against a throwaway hash of the
// service's cost and always returns ErrInvalidPassword. Login uses it for
// unknown emails so both paths take the same time.
func (p *PasswordService) VerifyDummy(plaintext string) error {
	p.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("pulsecheck-dummy-password"), p.cost)
		if err == nil {
			p.dummyHash = hash
		}
	})
	if p.dummyHash != nil {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
	}
	return ErrInvalidPassword
}
