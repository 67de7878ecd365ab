package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password is empty")

// HashPassword returns a bcrypt hash of password. A zero cost uses bcrypt.DefaultCost.
func HashPassword(password string, cost int) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(password), cost)
}

// CheckPassword validates a password against a stored bcrypt hash.
func CheckPassword(password string, hash []byte) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
