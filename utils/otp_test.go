package utils

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureOTP_Format(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateSecureOTP()
		require.NoError(t, err)
		require.Len(t, code, 5)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 10000)
		assert.LessOrEqual(t, n, 99999)
	}
}

func TestGenerateAccountReferralCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateAccountReferralCode()
		require.NoError(t, err)
		require.Len(t, code, 8)

		// Charset excludes the ambiguous I, O, 0 and 1
		for _, r := range code {
			assert.Contains(t, "ABCDEFGHJKLMNPQRSTUVWXYZ23456789", string(r))
		}
		seen[code] = true
	}
	// 50 draws from a 32^8 space colliding would mean a broken generator
	assert.Greater(t, len(seen), 45)
}

func TestValidateOTPAttempts_NilClient(t *testing.T) {
	assert.NoError(t, ValidateOTPAttempts("09121234567", nil))
}
