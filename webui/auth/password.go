// Package auth protects the web front end with a single shared password.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt cost used when hashing WEBUI_PWD at startup.
	DefaultCost = 12

	// MinCost is the lowest cost accepted for a configured hash.
	MinCost = 10

	// MaxCost is bcrypt's upper bound.
	MaxCost = bcrypt.MaxCost
)

var (
	ErrEmptyPassword    = errors.New("auth: password cannot be empty")
	ErrPasswordMismatch = errors.New("auth: password does not match")
	ErrInvalidHash      = errors.New("auth: invalid password hash format")
	ErrCostTooLow       = errors.New("auth: hash cost is below minimum acceptable value")
)

// HashPassword hashes password at DefaultCost.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultCost)
}

// HashPasswordWithCost hashes password at cost, which must be in [MinCost, MaxCost].
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if cost < MinCost || cost > MaxCost {
		return "", bcrypt.InvalidCostError(cost)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares password with hash in constant time.
// Any bcrypt failure is reported as ErrPasswordMismatch.
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

// IsValidHash reports whether s is a well-formed bcrypt hash.
func IsValidHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// ValidateHashStrength rejects malformed hashes and hashes below MinCost.
func ValidateHashStrength(hash string) error {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return ErrInvalidHash
	}
	if cost < MinCost {
		return ErrCostTooLow
	}
	return nil
}

// PasswordHash turns the configured secret into a hash. A value that is
// already a bcrypt hash is used as-is after a strength check; anything else
// is treated as plaintext and hashed at cost.
func PasswordHash(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptyPassword
	}
	if IsValidHash(secret) {
		if err := ValidateHashStrength(secret); err != nil {
			return "", err
		}
		return secret, nil
	}
	return HashPasswordWithCost(secret, cost)
}
