// utils/hash.go
package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// HashOtp produces a one-way, per-call-salted hash of a short numeric code.
// Hashing the same code twice yields different outputs.
func HashOtp(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckOtp reports whether code matches the stored hash. Malformed hashes
// fail closed: the answer is false, never an error the caller could leak.
func CheckOtp(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
