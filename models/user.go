// models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User model. Accounts are created through the phone OTP registration flow,
// so phone is the primary identifier.
type User struct {
	ID               primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Phone            string             `json:"phone" bson:"phone"`
	Username         string             `json:"username" bson:"username"`
	Provider         string             `json:"provider" bson:"provider"`
	Role             string             `json:"role" bson:"role"`
	IsActive         bool               `json:"isActive" bson:"isActive"`
	PhoneVerified    bool               `json:"phoneVerified" bson:"phoneVerified"`
	TwoFactorEnabled bool               `json:"twoFactorEnabled,omitempty" bson:"twoFactorEnabled,omitempty"`
	// ReferralCodeUsed is the ledger code consumed at registration,
	// permanently recorded on the account.
	ReferralCodeUsed string `json:"referralCodeUsed,omitempty" bson:"referralCodeUsed,omitempty"`
	// ReferralCode is the account's own code it can hand out to others,
	// distinct from the one it consumed.
	ReferralCode string    `json:"referralCode,omitempty" bson:"referralCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Response model
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
