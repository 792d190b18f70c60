// Package cryptox holds the server's password and token hashing.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/zelebiz/zelebiz/internal/common"
)

// MinPasswordLength is the shortest password accepted on sign up.
const MinPasswordLength = 6

// refreshTokenSize is the number of random bytes in a refresh token.
const refreshTokenSize = 32

// ErrPasswordMismatch is returned by CheckPassword for a wrong password.
var ErrPasswordMismatch = errors.New("password mismatch")

// bcryptCost is a seam so tests can hash at the minimum cost.
var bcryptCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password. Passwords longer than
// bcrypt's 72 byte limit are rejected as a validation error.
func HashPassword(password string) ([]byte, error) {
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("password shorter than %d characters: %w", MinPasswordLength, common.ErrValidation)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
		}
		return nil, err
	}
	return h, nil
}

// CheckPassword compares password with a hash made by HashPassword.
func CheckPassword(hash []byte, password string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// NewRefreshToken returns a random opaque token.
func NewRefreshToken() (string, error) {
	return common.MakeRandHexString(refreshTokenSize)
}

// HashToken returns the hex SHA-256 of token, the form refresh tokens are
// stored in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
