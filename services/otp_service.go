package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hooshchat/hooshchat_backend/models"
	"github.com/hooshchat/hooshchat_backend/utils"
)

// DefaultOtpTTL is how long an issued code stays verifiable.
const DefaultOtpTTL = 2 * time.Minute

// OtpStore is the challenge persistence the service needs. Implemented by
// repositories.OtpRepository.
type OtpStore interface {
	Upsert(ctx context.Context, phone, purpose, codeHash string, ttl time.Duration, referralCode string) (*models.OtpRequest, error)
	Find(ctx context.Context, phone, purpose string) (*models.OtpRequest, error)
	IncrementAttempts(ctx context.Context, phone, purpose string) error
	Delete(ctx context.Context, phone, purpose string) (bool, error)
}

// SmsSender delivers a short code to a phone, out-of-band.
type SmsSender interface {
	SendOtp(ctx context.Context, phone, code string) error
}

// VerifyResult is returned on a successful verification.
type VerifyResult struct {
	// ReferralCode is the code carried by a register-purpose challenge,
	// empty otherwise.
	ReferralCode string
}

// OtpService issues and verifies phone-bound OTP challenges. Challenge state
// per (phone, purpose) moves NONE -> PENDING -> consumed/expired/superseded;
// a successful verify deletes the document, so single use is enforced by
// deletion rather than a flag.
type OtpService struct {
	store  OtpStore
	sender SmsSender
	ttl    time.Duration
	logger *log.Logger
}

// NewOtpService creates the service. OTP_TTL_SECONDS overrides the default
// two-minute lifetime.
func NewOtpService(store OtpStore, sender SmsSender) *OtpService {
	ttl := DefaultOtpTTL
	if raw := os.Getenv("OTP_TTL_SECONDS"); raw != "" {
		if parsed, err := time.ParseDuration(raw + "s"); err == nil && parsed > 0 {
			ttl = parsed
		}
	}

	return &OtpService{
		store:  store,
		sender: sender,
		ttl:    ttl,
		logger: log.New(os.Stdout, "[OTP] ", log.LstdFlags),
	}
}

// TTL returns the configured challenge lifetime.
func (s *OtpService) TTL() time.Duration {
	return s.ttl
}

// Issue generates a fresh 5-digit code, hashes it, overwrites any previous
// challenge for (phone, purpose), and dispatches the code by SMS. The code
// itself never leaves this method. A dispatch failure leaves the challenge in
// place and surfaces ErrSmsDispatch; retrying with a fresh Issue simply
// overwrites it.
func (s *OtpService) Issue(ctx context.Context, phone, purpose, referralCode string) (time.Duration, error) {
	code, err := utils.GenerateSecureOTP()
	if err != nil {
		return 0, fmt.Errorf("failed to generate OTP: %w", err)
	}

	codeHash, err := utils.HashOtp(code)
	if err != nil {
		return 0, fmt.Errorf("failed to hash OTP: %w", err)
	}

	record, err := s.store.Upsert(ctx, phone, purpose, codeHash, s.ttl, referralCode)
	if err != nil {
		return 0, fmt.Errorf("failed to store OTP challenge: %w", err)
	}

	if err := s.sender.SendOtp(ctx, phone, code); err != nil {
		s.logger.Printf("SMS dispatch failed for %s (%s): %v", phone, purpose, err)
		return 0, ErrSmsDispatch
	}

	s.logger.Printf("OTP dispatched for %s (%s) [resendCount=%d]", phone, purpose, record.ResendCount)
	return s.ttl, nil
}

// Verify hash-compares a submitted code against the pending challenge.
// Mismatches bump the attempts counter and leave the challenge standing; a
// match consumes it. Of two concurrent verifies with the correct code only
// one can win, because only one observes the delete removing a document.
func (s *OtpService) Verify(ctx context.Context, phone, purpose, code string) (*VerifyResult, error) {
	record, err := s.store.Find(ctx, phone, purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to load OTP challenge: %w", err)
	}
	if record == nil {
		return nil, ErrOtpNotFound
	}

	if record.Consumed {
		return nil, ErrOtpConsumed
	}

	if record.Expired(time.Now()) {
		return nil, ErrOtpExpired
	}

	if !utils.CheckOtp(code, record.CodeHash) {
		if err := s.store.IncrementAttempts(ctx, phone, purpose); err != nil {
			s.logger.Printf("failed to increment attempts for %s (%s): %v", phone, purpose, err)
		}
		return nil, ErrOtpInvalid
	}

	deleted, err := s.store.Delete(ctx, phone, purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to consume OTP challenge: %w", err)
	}
	if !deleted {
		// A concurrent verify won the race for the same code.
		return nil, ErrOtpConsumed
	}

	return &VerifyResult{ReferralCode: record.ReferralCode}, nil
}
