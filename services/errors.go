package services

import "errors"

// Typed failures of the OTP and referral flows. Controllers map these to
// HTTP statuses and stable user-facing messages; anything else coming out of
// a service is a transient store failure and is logged, never echoed.
var (
	// ErrReferralConfig means the referral-code manifest is missing,
	// malformed, or empty after normalization. Fatal to the request that
	// triggered seeding.
	ErrReferralConfig = errors.New("referral code manifest is missing or invalid")

	// ErrOtpNotFound means no challenge exists for (phone, purpose).
	ErrOtpNotFound = errors.New("no OTP request found")

	// ErrOtpConsumed means the challenge was already spent.
	ErrOtpConsumed = errors.New("OTP already used")

	// ErrOtpExpired means the challenge is past its TTL.
	ErrOtpExpired = errors.New("OTP expired")

	// ErrOtpInvalid means the submitted code does not match.
	ErrOtpInvalid = errors.New("invalid OTP")

	// ErrSmsDispatch means the SMS provider failed. The challenge stays in
	// place; a fresh issue overwrites it on retry.
	ErrSmsDispatch = errors.New("failed to dispatch OTP via SMS provider")
)
