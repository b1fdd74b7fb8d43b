package storage

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// bcryptCost defines the computational cost for bcrypt hashing.
	// Cost 10 = ~60ms per hash (MVP performance vs security balance)
	// Can be increased to 12 (~250ms) for production security hardening.
	bcryptCost  = 10
	bcryptLimit = 72
)

// ErrSecretEmpty is returned when an empty secret is passed to HashSecret.
var ErrSecretEmpty = errors.New("secret cannot be empty")

// HashSecret generates a bcrypt hash of a secret for secure storage.
// Used to persist callback tokens (internal/callback) without ever storing
// the plaintext token.
//
// Performance: ~60ms per call with cost 10 (intentionally slow for security)
// Security: each hash includes a random salt, so identical secrets produce different hashes.
//
// Note: Bcrypt has a 72-byte input limit. For longer secrets, we pre-hash with SHA-256
// to ensure consistent behavior while maintaining security properties.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrSecretEmpty
	}

	hash, err := bcrypt.GenerateFromPassword(prepareBcryptInput(secret), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}

	return string(hash), nil
}

// CompareSecretHash performs constant-time comparison of a secret against its bcrypt hash.
// This is the primary method for callback token validation - never compare plaintext tokens.
//
// Returns true if the secret matches the stored hash, false otherwise. Returns false for
// any error condition (empty inputs, invalid hash format, etc).
func CompareSecretHash(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), prepareBcryptInput(secret))

	return err == nil
}

// prepareBcryptInput pre-hashes secrets longer than bcrypt's 72-byte limit with SHA-256,
// so HashSecret and CompareSecretHash always apply bcrypt to an input of bounded size.
func prepareBcryptInput(secret string) []byte {
	if len(secret) > bcryptLimit {
		hasher := sha256.New()
		hasher.Write([]byte(secret))

		return hasher.Sum(nil)
	}

	return []byte(secret)
}
