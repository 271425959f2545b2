// utils/otp.go
package utils

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrTooManyOtpRequests is returned when a phone exceeds its hourly budget.
var ErrTooManyOtpRequests = errors.New("too many OTP requests")

// GenerateSecureOTP returns a 5-digit numeric code from a cryptographically
// secure source.
func GenerateSecureOTP() (string, error) {
	// 10000..99999 so the code is always exactly five digits
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+10000), nil
}

// GenerateAccountReferralCode returns the 8-character code a freshly
// registered account hands out to others.
func GenerateAccountReferralCode() (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const length = 8

	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}
	return string(b), nil
}

// ValidateOTPAttempts enforces an hourly per-phone budget on OTP traffic.
// A nil client disables throttling (Redis is optional infrastructure).
func ValidateOTPAttempts(phone string, rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}

	key := "otp_attempts:" + strings.TrimSpace(phone)
	attempts, err := rdb.Incr(context.Background(), key).Result()
	if err != nil {
		return err
	}

	// Set expiry if first attempt
	if attempts == 1 {
		rdb.Expire(context.Background(), key, 1*time.Hour)
	}

	// Limit to 5 attempts per hour
	if attempts > 5 {
		return ErrTooManyOtpRequests
	}

	return nil
}
