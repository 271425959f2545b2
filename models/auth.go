// models/auth.go

package models

// OtpRequestPayload is the body of POST /api/auth/otp/request.
type OtpRequestPayload struct {
	Phone        string `json:"phone" validate:"required"`
	Flow         string `json:"flow"`
	ReferralCode string `json:"referralCode,omitempty"`
}

// OtpVerifyPayload is the body of POST /api/auth/otp/verify.
type OtpVerifyPayload struct {
	Phone string `json:"phone" validate:"required"`
	Flow  string `json:"flow"`
	OTP   string `json:"otp" validate:"required"`
}

// OtpRequestResponse acknowledges a dispatched code without ever carrying it.
type OtpRequestResponse struct {
	Message     string `json:"message"`
	ExpiresInMs int64  `json:"expiresInMs"`
}

// AuthResponse is returned on a fully verified login or registration.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// TwoFAPendingResponse is returned when the account still has to pass 2FA.
type TwoFAPendingResponse struct {
	TwoFAPending bool   `json:"twoFAPending"`
	TempToken    string `json:"tempToken"`
}

// ReferralUpsertPayload is the body of POST /api/referrals.
type ReferralUpsertPayload struct {
	Code     string `json:"code" validate:"required"`
	Label    string `json:"label"`
	IsActive *bool  `json:"isActive"`
	MaxUses  *int   `json:"maxUses"`
}

// ReferralSeedPayload is the body of POST /api/referrals/seed.
type ReferralSeedPayload struct {
	Force interface{} `json:"force"` // accepts bool or "true"/"1"/"yes"
}
