package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}

// Bcrypt adapts HashPassword and CheckPassword to a hasher value. A zero Cost uses bcrypt.DefaultCost.
type Bcrypt struct {
	Cost int
}

// Hash hashes password at the configured cost.
func (b Bcrypt) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		return HashPassword(password)
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// Compare reports whether plain matches hashed.
func (b Bcrypt) Compare(plain, hashed string) bool {
	return CheckPassword(plain, hashed)
}
