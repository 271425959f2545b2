// utils/normalize.go
package utils

import (
	"regexp"
	"strings"
)

var (
	nonAlnumRegex = regexp.MustCompile(`[^a-zA-Z0-9]`)
	nonDigitRegex = regexp.MustCompile(`\D`)
	phoneRegex    = regexp.MustCompile(`^\d{11}$`)
	otpRegex      = regexp.MustCompile(`^\d{5}$`)
)

// NormalizeCode canonicalizes a referral code so that "code-1", "Code 1" and
// "CODE1" all compare equal. An empty result means the input was invalid.
func NormalizeCode(raw string) string {
	cleaned := nonAlnumRegex.ReplaceAllString(strings.TrimSpace(raw), "")
	return strings.ToUpper(cleaned)
}

// NormalizePhone strips every non-digit character from a phone number.
func NormalizePhone(raw string) string {
	return nonDigitRegex.ReplaceAllString(raw, "")
}

// IsValidPhone checks the normalized 11-digit mobile number format.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// IsValidOtp checks the 5-digit code format before any store access.
func IsValidOtp(code string) bool {
	return otpRegex.MatchString(code)
}
