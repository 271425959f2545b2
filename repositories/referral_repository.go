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

// codeCollation makes code lookups case-insensitive, so documents carrying
// legacy casing still resolve while the seeder converges them.
var codeCollation = &options.Collation{Locale: "en", Strength: 2}

// ReferralRepository is the persistence boundary for the referral ledger.
type ReferralRepository struct {
	collection *mongo.Collection
}

func NewReferralRepository(db *mongo.Client) *ReferralRepository {
	return &ReferralRepository{
		collection: config.GetCollection(db, "referral_codes"),
	}
}

// Get looks up a code case-insensitively. Returns nil when absent.
func (r *ReferralRepository) Get(ctx context.Context, code string) (*models.ReferralCode, error) {
	opts := options.FindOne().SetCollation(codeCollation)

	var record models.ReferralCode
	err := r.collection.FindOne(ctx, bson.M{"code": code}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListAll returns the full ledger, newest first.
func (r *ReferralRepository) ListAll(ctx context.Context) ([]models.ReferralCode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var codes []models.ReferralCode
	if err := cursor.All(ctx, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// ListCodes returns the code+isActive projection the seeder needs to decide
// whether the ledger drifted from the manifest.
func (r *ReferralRepository) ListCodes(ctx context.Context) ([]models.ReferralCode, error) {
	opts := options.Find().SetProjection(bson.M{"code": 1, "isActive": 1})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var codes []models.ReferralCode
	if err := cursor.All(ctx, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// Upsert creates or replaces a code administratively.
func (r *ReferralRepository) Upsert(ctx context.Context, code, label string, isActive bool, maxUses int) (*models.ReferralCode, error) {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"code":      code,
			"label":     label,
			"isActive":  isActive,
			"maxUses":   maxUses,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"usageCount": 0,
			"createdAt":  now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetCollation(codeCollation)

	var record models.ReferralCode
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"code": code}, update, opts).Decode(&record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Update applies a partial administrative patch. Returns nil when the code
// does not exist.
func (r *ReferralRepository) Update(ctx context.Context, code string, patch models.ReferralCodeUpdate) (*models.ReferralCode, error) {
	set := bson.M{"updatedAt": time.Now()}
	if patch.Label != nil {
		set["label"] = *patch.Label
	}
	if patch.IsActive != nil {
		set["isActive"] = *patch.IsActive
	}
	if patch.MaxUses != nil {
		set["maxUses"] = *patch.MaxUses
	}
	if patch.Metadata != nil {
		set["metadata"] = patch.Metadata
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetCollation(codeCollation)

	var record models.ReferralCode
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"code": code}, bson.M{"$set": set}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// IncrementUsage bumps usageCount atomically and returns the new document,
// or nil when the code is unknown. The cap is checked by the caller before
// this call; two redemptions racing at usageCount=maxUses-1 can both land,
// pushing usage one above the cap. Known race, kept on purpose — use
// IncrementUsageStrict for exact cap enforcement.
func (r *ReferralRepository) IncrementUsage(ctx context.Context, code string) (*models.ReferralCode, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetCollation(codeCollation)

	var record models.ReferralCode
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"code": code},
		bson.M{"$inc": bson.M{"usageCount": 1}},
		opts,
	).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// IncrementUsageStrict folds the cap check into the same atomic update, so
// usageCount can never exceed maxUses. Returns nil when the code is unknown
// or already exhausted.
func (r *ReferralRepository) IncrementUsageStrict(ctx context.Context, code string) (*models.ReferralCode, error) {
	filter := bson.M{
		"code": code,
		"$or": []bson.M{
			{"maxUses": 0},
			{"$expr": bson.M{"$lt": []string{"$usageCount", "$maxUses"}}},
		},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetCollation(codeCollation)

	var record models.ReferralCode
	err := r.collection.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"usageCount": 1}}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteAll wipes the ledger. Used only by the seeder ahead of a reseed.
func (r *ReferralRepository) DeleteAll(ctx context.Context) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{})
	return err
}

// BulkInsert inserts fresh pre-seeded records. Unordered, so a duplicate-key
// rejection of one document does not abort the rest; the seeder verifies the
// resulting count instead.
func (r *ReferralRepository) BulkInsert(ctx context.Context, codes []string, label string) error {
	if len(codes) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(codes))
	for _, code := range codes {
		docs = append(docs, models.ReferralCode{
			Code:       code,
			Label:      label,
			IsActive:   true,
			UsageCount: 0,
			MaxUses:    0,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		// Tolerate partial rejections; the seeder re-counts afterwards.
		if bulkErr, ok := err.(mongo.BulkWriteException); ok && len(bulkErr.WriteErrors) < len(docs) {
			return nil
		}
		return err
	}
	return nil
}

// Count returns the ledger size.
func (r *ReferralRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}
