// models/referral.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReferralCode is one entry of the referral ledger. Codes are stored
// normalized (uppercase alphanumeric) and compared case-insensitively
// through a collated index, so legacy casing never splits the ledger.
type ReferralCode struct {
	ID         primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Code       string             `json:"code" bson:"code"`
	Label      string             `json:"label" bson:"label"`
	IsActive   bool               `json:"isActive" bson:"isActive"`
	UsageCount int                `json:"usageCount" bson:"usageCount"`
	MaxUses    int                `json:"maxUses" bson:"maxUses"` // 0 means unlimited
	Metadata   map[string]string  `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt,omitempty"`
	UpdatedAt  time.Time          `json:"updatedAt" bson:"updatedAt,omitempty"`
}

// Redeemable reports whether the code can still gate a registration.
func (r *ReferralCode) Redeemable() bool {
	if r == nil || !r.IsActive {
		return false
	}
	return r.MaxUses == 0 || r.UsageCount < r.MaxUses
}

// ReferralCodeUpdate is the partial patch accepted by the admin PATCH
// endpoint. Nil fields are left untouched.
type ReferralCodeUpdate struct {
	Label    *string           `json:"label,omitempty"`
	IsActive *bool             `json:"isActive,omitempty"`
	MaxUses  *int              `json:"maxUses,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
