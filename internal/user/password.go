package user

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"vidtube-serverless/internal/httpx"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// CheckPasswordLength rejects passwords bcrypt would refuse to hash.
func CheckPasswordLength(plain string) error {
	if len(plain) > MaxPasswordBytes {
		return httpx.BadRequest(fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}

func HashPassword(plain string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", CheckPasswordLength(plain)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plain matches the stored bcrypt hash.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
