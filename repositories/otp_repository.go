package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hooshchat/hooshchat_backend/config"
	"github.com/hooshchat/hooshchat_backend/models"
)

// OtpRepository is the persistence boundary for OTP challenges. One live
// document per (phone, purpose); Mongo's TTL index on expiresAt sweeps
// abandoned challenges.
type OtpRepository struct {
	collection *mongo.Collection
}

func NewOtpRepository(db *mongo.Client) *OtpRepository {
	return &OtpRepository{
		collection: config.GetCollection(db, "otp_requests"),
	}
}

// Upsert creates or overwrites the challenge for (phone, purpose). The write
// resets consumed/attempts, installs the new hash and deadline, and bumps
// resendCount, all in a single atomic document update. Concurrent callers for
// the same key race last-writer-wins, which is exactly the "resend replaces
// the old code" behavior users expect.
func (r *OtpRepository) Upsert(ctx context.Context, phone, purpose, codeHash string, ttl time.Duration, referralCode string) (*models.OtpRequest, error) {
	now := time.Now()

	set := bson.M{
		"phone":      phone,
		"purpose":    purpose,
		"codeHash":   codeHash,
		"expiresAt":  now.Add(ttl),
		"consumed":   false,
		"attempts":   0,
		"lastSentAt": now,
		"updatedAt":  now,
	}
	if referralCode != "" {
		set["referralCode"] = referralCode
	}

	update := bson.M{
		"$set":         set,
		"$inc":         bson.M{"resendCount": 1},
		"$setOnInsert": bson.M{"createdAt": now},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var record models.OtpRequest
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"phone": phone, "purpose": purpose},
		update, opts,
	).Decode(&record)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// Find returns the active challenge for (phone, purpose), or nil when none
// exists.
func (r *OtpRepository) Find(ctx context.Context, phone, purpose string) (*models.OtpRequest, error) {
	var record models.OtpRequest
	err := r.collection.FindOne(ctx, bson.M{"phone": phone, "purpose": purpose}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// IncrementAttempts bumps the failed-verify counter. Best-effort telemetry,
// not a security decision.
func (r *OtpRepository) IncrementAttempts(ctx context.Context, phone, purpose string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"phone": phone, "purpose": purpose},
		bson.M{"$inc": bson.M{"attempts": 1}},
	)
	return err
}

// Delete removes the challenge and reports whether a document was actually
// deleted. The delete is the linearization point for single-use consumption:
// of two concurrent verifies with the correct code, only one observes
// deleted=true.
func (r *OtpRepository) Delete(ctx context.Context, phone, purpose string) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"phone": phone, "purpose": purpose})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}
