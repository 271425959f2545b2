package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooshchat/hooshchat_backend/models"
)

// fakeReferralStore is an in-memory ledger with the same case-insensitive
// lookup and atomic increment semantics as the Mongo repository.
type fakeReferralStore struct {
	mu             sync.Mutex
	codes          map[string]*models.ReferralCode // keyed by uppercase code
	deleteAllCalls int
	bulkInserts    int
}

func newFakeReferralStore() *fakeReferralStore {
	return &fakeReferralStore{codes: make(map[string]*models.ReferralCode)}
}

func (f *fakeReferralStore) key(code string) string { return strings.ToUpper(code) }

func (f *fakeReferralStore) Get(_ context.Context, code string) (*models.ReferralCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.codes[f.key(code)]
	if !ok {
		return nil, nil
	}
	snapshot := *record
	return &snapshot, nil
}

func (f *fakeReferralStore) ListAll(_ context.Context) ([]models.ReferralCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ReferralCode, 0, len(f.codes))
	for _, record := range f.codes {
		out = append(out, *record)
	}
	return out, nil
}

func (f *fakeReferralStore) ListCodes(ctx context.Context) ([]models.ReferralCode, error) {
	return f.ListAll(ctx)
}

func (f *fakeReferralStore) Upsert(_ context.Context, code, label string, isActive bool, maxUses int) (*models.ReferralCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.codes[f.key(code)]
	if !ok {
		record = &models.ReferralCode{Code: code}
		f.codes[f.key(code)] = record
	}
	record.Code = code
	record.Label = label
	record.IsActive = isActive
	record.MaxUses = maxUses
	snapshot := *record
	return &snapshot, nil
}

func (f *fakeReferralStore) Update(_ context.Context, code string, patch models.ReferralCodeUpdate) (*models.ReferralCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.codes[f.key(code)]
	if !ok {
		return nil, nil
	}
	if patch.Label != nil {
		record.Label = *patch.Label
	}
	if patch.IsActive != nil {
		record.IsActive = *patch.IsActive
	}
	if patch.MaxUses != nil {
		record.MaxUses = *patch.MaxUses
	}
	if patch.Metadata != nil {
		record.Metadata = patch.Metadata
	}
	snapshot := *record
	return &snapshot, nil
}

func (f *fakeReferralStore) IncrementUsage(_ context.Context, code string) (*models.ReferralCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.codes[f.key(code)]
	if !ok {
		return nil, nil
	}
	record.UsageCount++
	snapshot := *record
	return &snapshot, nil
}

func (f *fakeReferralStore) IncrementUsageStrict(_ context.Context, code string) (*models.ReferralCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.codes[f.key(code)]
	if !ok {
		return nil, nil
	}
	if record.MaxUses > 0 && record.UsageCount >= record.MaxUses {
		return nil, nil
	}
	record.UsageCount++
	snapshot := *record
	return &snapshot, nil
}

func (f *fakeReferralStore) DeleteAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteAllCalls++
	f.codes = make(map[string]*models.ReferralCode)
	return nil
}

func (f *fakeReferralStore) BulkInsert(_ context.Context, codes []string, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkInserts++
	for _, code := range codes {
		if _, exists := f.codes[f.key(code)]; exists {
			continue
		}
		f.codes[f.key(code)] = &models.ReferralCode{
			Code:     code,
			Label:    label,
			IsActive: true,
			MaxUses:  0,
		}
	}
	return nil
}

func (f *fakeReferralStore) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.codes)), nil
}

func (f *fakeReferralStore) seedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteAllCalls
}

// preload installs a ledger state without counting as a seed.
func (f *fakeReferralStore) preload(records ...*models.ReferralCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range records {
		f.codes[f.key(record.Code)] = record
	}
}

func newTestReferralService(t *testing.T, manifest string) (*ReferralService, *fakeReferralStore) {
	t.Helper()
	t.Setenv("REFERRAL_CODES", manifest)
	store := newFakeReferralStore()
	return NewReferralService(store), store
}

func TestParseManifest_NormalizesAndDeduplicates(t *testing.T) {
	svc, _ := newTestReferralService(t, `["abc-1","ABC1","xyz2"]`)

	codes, signature, err := svc.ParseManifest()
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC1", "XYZ2"}, codes)
	assert.NotEmpty(t, signature)

	// The signature is stable across orderings of the same set
	t.Setenv("REFERRAL_CODES", `["xyz2","abc 1"]`)
	_, reordered, err := svc.ParseManifest()
	require.NoError(t, err)
	assert.Equal(t, signature, reordered)
}

func TestParseManifest_ConfigErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"missing", ""},
		{"invalid json", `not-json`},
		{"empty array", `[]`},
		{"no valid codes", `["---","   ",""]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestReferralService(t, tt.manifest)
			_, _, err := svc.ParseManifest()
			assert.ErrorIs(t, err, ErrReferralConfig)
		})
	}
}

func TestEnsureSeeded_SeedsOnceAndIsIdempotent(t *testing.T) {
	svc, store := newTestReferralService(t, `["abc-1","ABC1","xyz2"]`)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeeded(ctx, false))
	assert.Equal(t, 1, store.seedCount())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// Unchanged manifest: repeated calls never touch the store again
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.EnsureSeeded(ctx, false))
	}
	assert.Equal(t, 1, store.seedCount())
}

func TestEnsureSeeded_ConcurrentCallersShareOneSeed(t *testing.T) {
	svc, store := newTestReferralService(t, `["abc-1","xyz2","qrs3"]`)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.EnsureSeeded(ctx, false)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.seedCount())
}

func TestEnsureSeeded_ForceReseedsMatchingLedger(t *testing.T) {
	svc, store := newTestReferralService(t, `["abc1"]`)
	ctx := context.Background()

	require.NoError(t, svc.EnsureSeeded(ctx, false))
	require.Equal(t, 1, store.seedCount())

	require.NoError(t, svc.EnsureSeeded(ctx, true))
	assert.Equal(t, 2, store.seedCount())
}

func TestEnsureSeeded_AdoptsMatchingLedgerWithoutReseed(t *testing.T) {
	svc, store := newTestReferralService(t, `["abc1","xyz2"]`)
	store.preload(
		&models.ReferralCode{Code: "ABC1", IsActive: true, UsageCount: 7},
		&models.ReferralCode{Code: "XYZ2", IsActive: false},
	)

	require.NoError(t, svc.EnsureSeeded(context.Background(), false))

	// Ledger already mirrors the manifest: usage counts survive
	assert.Equal(t, 0, store.seedCount())
	record, err := store.Get(context.Background(), "ABC1")
	require.NoError(t, err)
	assert.Equal(t, 7, record.UsageCount)
}

func TestEnsureSeeded_ReseedsOnLegacyCasing(t *testing.T) {
	svc, store := newTestReferralService(t, `["abc1","xyz2"]`)
	store.preload(
		&models.ReferralCode{Code: "abc1", IsActive: true},
		&models.ReferralCode{Code: "XYZ2", IsActive: true},
	)

	require.NoError(t, svc.EnsureSeeded(context.Background(), false))
	assert.Equal(t, 1, store.seedCount(), "non-canonical stored code must trigger a reseed")
}

func TestEnsureSeeded_ReseedsOnCountDrift(t *testing.T) {
	svc, store := newTestReferralService(t, `["abc1","xyz2","qrs3"]`)
	store.preload(&models.ReferralCode{Code: "ABC1", IsActive: true})

	require.NoError(t, svc.EnsureSeeded(context.Background(), false))
	assert.Equal(t, 1, store.seedCount())

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestEnsureSeeded_ConfigErrorReleasesGuard(t *testing.T) {
	svc, store := newTestReferralService(t, `[]`)
	ctx := context.Background()

	err := svc.EnsureSeeded(ctx, false)
	assert.ErrorIs(t, err, ErrReferralConfig)

	// A fixed manifest on the next call succeeds: the guard was released
	t.Setenv("REFERRAL_CODES", `["abc1"]`)
	require.NoError(t, svc.EnsureSeeded(ctx, false))
	assert.Equal(t, 1, store.seedCount())
}

func TestValidate_Gates(t *testing.T) {
	svc, store := newTestReferralService(t, `["seed1"]`)
	require.NoError(t, svc.EnsureSeeded(context.Background(), false))
	store.preload(
		&models.ReferralCode{Code: "SEED1", IsActive: true},
		&models.ReferralCode{Code: "OFF1", IsActive: false},
		&models.ReferralCode{Code: "FULL1", IsActive: true, MaxUses: 3, UsageCount: 3},
		&models.ReferralCode{Code: "OPEN1", IsActive: true, MaxUses: 0, UsageCount: 9000},
	)
	ctx := context.Background()

	record, err := svc.Validate(ctx, "seed 1")
	require.NoError(t, err)
	require.NotNil(t, record, "normalized spelling must resolve")
	assert.Equal(t, "SEED1", record.Code)

	record, err = svc.Validate(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, record)

	record, err = svc.Validate(ctx, "off1")
	require.NoError(t, err)
	assert.Nil(t, record, "inactive code is not redeemable")

	record, err = svc.Validate(ctx, "full1")
	require.NoError(t, err)
	assert.Nil(t, record, "exhausted code is not redeemable")

	record, err = svc.Validate(ctx, "open1")
	require.NoError(t, err)
	assert.NotNil(t, record, "maxUses=0 is uncapped regardless of usage")

	record, err = svc.Validate(ctx, "  --  ")
	require.NoError(t, err)
	assert.Nil(t, record, "empty after normalization never reaches the store")
}

func TestRecordUsage_SingleUseLifecycle(t *testing.T) {
	svc, store := newTestReferralService(t, `["seed1"]`)
	require.NoError(t, svc.EnsureSeeded(context.Background(), false))
	store.preload(&models.ReferralCode{Code: "ONCE1", IsActive: true, MaxUses: 1})
	ctx := context.Background()

	record, err := svc.Validate(ctx, "once1")
	require.NoError(t, err)
	require.NotNil(t, record)

	updated, err := svc.RecordUsage(ctx, "once1")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 1, updated.UsageCount)

	record, err = svc.Validate(ctx, "once1")
	require.NoError(t, err)
	assert.Nil(t, record, "cap reached: no longer redeemable")
}

func TestRecordUsage_StrictCapStopsAtMax(t *testing.T) {
	t.Setenv("REFERRAL_STRICT_CAP", "true")
	svc, store := newTestReferralService(t, `["seed1"]`)
	store.preload(&models.ReferralCode{Code: "CAP1", IsActive: true, MaxUses: 1, UsageCount: 1})

	updated, err := svc.RecordUsage(context.Background(), "cap1")
	require.NoError(t, err)
	assert.Nil(t, updated, "strict increment refuses to exceed the cap")
}

func TestRecordUsage_UnknownCode(t *testing.T) {
	svc, _ := newTestReferralService(t, `["seed1"]`)

	updated, err := svc.RecordUsage(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestUpsertAndUpdate_Normalize(t *testing.T) {
	svc, _ := newTestReferralService(t, `["seed1"]`)
	ctx := context.Background()

	record, err := svc.Upsert(ctx, " vip-10 ", "Launch batch", true, 10)
	require.NoError(t, err)
	assert.Equal(t, "VIP10", record.Code)

	label := "Renamed"
	active := false
	updated, err := svc.Update(ctx, "vip 10", models.ReferralCodeUpdate{Label: &label, IsActive: &active})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Renamed", updated.Label)
	assert.False(t, updated.IsActive)

	_, err = svc.Upsert(ctx, "---", "", true, 0)
	assert.Error(t, err, "code empty after normalization is rejected")
}
