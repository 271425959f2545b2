// models/otp.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OTP purposes. Every challenge is bound to exactly one of these.
const (
	OtpPurposeLogin    = "login"
	OtpPurposeRegister = "register"
)

// OtpRequest represents a single OTP challenge bound to (phone, purpose).
// The collection holds at most one live document per pair; a new request
// overwrites the previous one.
type OtpRequest struct {
	ID           primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Phone        string             `json:"phone" bson:"phone"`
	Purpose      string             `json:"purpose" bson:"purpose"`
	CodeHash     string             `json:"-" bson:"codeHash"`
	ReferralCode string             `json:"referralCode,omitempty" bson:"referralCode,omitempty"`
	ExpiresAt    time.Time          `json:"expiresAt" bson:"expiresAt"`
	Consumed     bool               `json:"consumed" bson:"consumed"`
	Attempts     int                `json:"attempts" bson:"attempts"`
	ResendCount  int                `json:"resendCount" bson:"resendCount"`
	LastSentAt   time.Time          `json:"lastSentAt" bson:"lastSentAt"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt,omitempty"`
}

// Expired reports whether the challenge is past its TTL at the given instant.
// An expired challenge is treated as nonexistent for verification.
func (o *OtpRequest) Expired(now time.Time) bool {
	return o.ExpiresAt.IsZero() || !now.Before(o.ExpiresAt)
}
