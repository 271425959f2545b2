package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/hooshchat/hooshchat_backend/models"
	"github.com/hooshchat/hooshchat_backend/utils"
)

// seedLabel marks ledger entries that came from the manifest.
const seedLabel = "Pre-seeded code"

// ReferralStore is the ledger persistence the service needs. Implemented by
// repositories.ReferralRepository.
type ReferralStore interface {
	Get(ctx context.Context, code string) (*models.ReferralCode, error)
	ListAll(ctx context.Context) ([]models.ReferralCode, error)
	ListCodes(ctx context.Context) ([]models.ReferralCode, error)
	Upsert(ctx context.Context, code, label string, isActive bool, maxUses int) (*models.ReferralCode, error)
	Update(ctx context.Context, code string, patch models.ReferralCodeUpdate) (*models.ReferralCode, error)
	IncrementUsage(ctx context.Context, code string) (*models.ReferralCode, error)
	IncrementUsageStrict(ctx context.Context, code string) (*models.ReferralCode, error)
	DeleteAll(ctx context.Context) error
	BulkInsert(ctx context.Context, codes []string, label string) error
	Count(ctx context.Context) (int64, error)
}

// seedAttempt is one in-flight physical seed shared by all concurrent
// EnsureSeeded callers.
type seedAttempt struct {
	done chan struct{}
	err  error
}

// ReferralService owns the referral ledger: it seeds it idempotently from the
// manifest, gates registrations against it, and records redemptions.
type ReferralService struct {
	store    ReferralStore
	manifest func() (string, bool)

	mu            sync.Mutex
	inflight      *seedAttempt
	seeded        bool
	lastSignature string
	forcePending  bool

	strictCap bool
	logger    *log.Logger
}

// NewReferralService builds the service around the ledger store. The
// manifest comes from the REFERRAL_CODES env var (a JSON array of codes);
// REFERRAL_CODES_FORCE_RESEED forces the first seed of this process, and
// REFERRAL_STRICT_CAP switches redemption to the conditional increment.
func NewReferralService(store ReferralStore) *ReferralService {
	return &ReferralService{
		store:        store,
		manifest:     func() (string, bool) { return os.LookupEnv("REFERRAL_CODES") },
		forcePending: envFlag("REFERRAL_CODES_FORCE_RESEED"),
		strictCap:    envFlag("REFERRAL_STRICT_CAP"),
		logger:       log.New(os.Stdout, "[REFERRAL] ", log.LstdFlags),
	}
}

func envFlag(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ParseManifest reads the configured code list, normalizes and deduplicates
// it, and computes a stable content signature. The signature lets the seeder
// detect drift between manifest and ledger without comparing full arrays on
// every request.
func (s *ReferralService) ParseManifest() ([]string, string, error) {
	raw, ok := s.manifest()
	if !ok || raw == "" {
		return nil, "", fmt.Errorf("%w: REFERRAL_CODES is required and must be a JSON array", ErrReferralConfig)
	}

	var parsed []string
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, "", fmt.Errorf("%w: REFERRAL_CODES must be valid JSON (e.g. [\"CODE1\",\"CODE2\"])", ErrReferralConfig)
	}
	if len(parsed) == 0 {
		return nil, "", fmt.Errorf("%w: REFERRAL_CODES must be a non-empty JSON array", ErrReferralConfig)
	}

	seen := make(map[string]bool, len(parsed))
	codes := make([]string, 0, len(parsed))
	for _, entry := range parsed {
		code := utils.NormalizeCode(entry)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}

	if len(codes) == 0 {
		return nil, "", fmt.Errorf("%w: REFERRAL_CODES contains no valid codes after normalization", ErrReferralConfig)
	}

	return codes, buildSignature(codes), nil
}

// buildSignature hashes the sorted normalized code set.
func buildSignature(codes []string) string {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)

	encoded, _ := json.Marshal(sorted)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// EnsureSeeded reconciles the ledger with the manifest. Concurrent callers
// while a seed is in flight all await the same physical attempt; none can
// observe a half-seeded ledger through this path. The guard is released on
// every exit, so a failed attempt is retried by the next caller instead of
// wedging the service.
func (s *ReferralService) EnsureSeeded(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.inflight != nil {
		attempt := s.inflight
		s.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	attempt := &seedAttempt{done: make(chan struct{})}
	s.inflight = attempt
	consumedForce := s.forcePending
	if consumedForce {
		force = true
		s.forcePending = false
	}
	s.mu.Unlock()

	attempt.err = s.seed(ctx, force)

	s.mu.Lock()
	s.inflight = nil
	if attempt.err != nil && consumedForce {
		// Keep the boot-time force alive for the retry.
		s.forcePending = true
	}
	s.mu.Unlock()
	close(attempt.done)

	return attempt.err
}

// seed is the single physical seed attempt.
func (s *ReferralService) seed(ctx context.Context, force bool) error {
	manifestCodes, signature, err := s.ParseManifest()
	if err != nil {
		return err
	}

	s.mu.Lock()
	upToDate := s.seeded && s.lastSignature == signature
	s.mu.Unlock()
	if upToDate && !force {
		return nil
	}

	existing, err := s.store.ListCodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to read referral ledger: %w", err)
	}

	if !force && !ledgerDrifted(existing, manifestCodes, signature) {
		s.markSeeded(signature)
		return nil
	}

	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear referral ledger: %w", err)
	}
	if err := s.store.BulkInsert(ctx, manifestCodes, seedLabel); err != nil {
		return fmt.Errorf("failed to insert referral codes: %w", err)
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify referral ledger: %w", err)
	}
	if count != int64(len(manifestCodes)) {
		return fmt.Errorf("referral reseed incomplete: expected %d codes, found %d", len(manifestCodes), count)
	}

	s.markSeeded(signature)
	s.logger.Printf("Seeded %d referral codes from manifest (force=%t)", len(manifestCodes), force)
	return nil
}

func (s *ReferralService) markSeeded(signature string) {
	s.mu.Lock()
	s.seeded = true
	s.lastSignature = signature
	s.mu.Unlock()
}

// ledgerDrifted decides whether the stored codes still mirror the manifest.
// Any stored code that fails re-normalization to itself signals corruption or
// legacy casing and triggers a reseed.
func ledgerDrifted(existing []models.ReferralCode, manifestCodes []string, manifestSignature string) bool {
	if len(existing) != len(manifestCodes) {
		return true
	}

	normalized := make([]string, 0, len(existing))
	for _, doc := range existing {
		cleaned := utils.NormalizeCode(doc.Code)
		if cleaned == "" || cleaned != doc.Code {
			return true
		}
		normalized = append(normalized, cleaned)
	}

	return buildSignature(normalized) != manifestSignature
}

// Validate returns the ledger record for a redeemable code: known, active,
// and below its cap (maxUses 0 means uncapped). Empty input short-circuits
// without touching the store; otherwise validation guarantees the ledger is
// seeded before the lookup.
func (s *ReferralService) Validate(ctx context.Context, code string) (*models.ReferralCode, error) {
	normalized := utils.NormalizeCode(code)
	if normalized == "" {
		return nil, nil
	}

	if err := s.EnsureSeeded(ctx, false); err != nil {
		return nil, err
	}

	record, err := s.store.Get(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}
	if record == nil || !record.Redeemable() {
		return nil, nil
	}

	return record, nil
}

// RecordUsage increments the code's redemption counter and returns the new
// record, or nil for an unknown code. Call it only after the referral-gated
// action has durably succeeded, so a failed registration never burns a
// redemption. The plain increment re-checks no cap; the validate-then-
// increment window can push usage one above maxUses under concurrency unless
// strict-cap mode is on.
func (s *ReferralService) RecordUsage(ctx context.Context, code string) (*models.ReferralCode, error) {
	normalized := utils.NormalizeCode(code)
	if normalized == "" {
		return nil, nil
	}

	if s.strictCap {
		return s.store.IncrementUsageStrict(ctx, normalized)
	}
	return s.store.IncrementUsage(ctx, normalized)
}

// List returns the whole ledger for the admin surface, seeding it first.
func (s *ReferralService) List(ctx context.Context) ([]models.ReferralCode, error) {
	if err := s.EnsureSeeded(ctx, false); err != nil {
		return nil, err
	}
	return s.store.ListAll(ctx)
}

// Upsert creates or replaces a code administratively.
func (s *ReferralService) Upsert(ctx context.Context, code, label string, isActive bool, maxUses int) (*models.ReferralCode, error) {
	normalized := utils.NormalizeCode(code)
	if normalized == "" {
		return nil, fmt.Errorf("referral code is required")
	}
	return s.store.Upsert(ctx, normalized, label, isActive, maxUses)
}

// Update patches a code administratively. Returns nil when it does not exist.
func (s *ReferralService) Update(ctx context.Context, code string, patch models.ReferralCodeUpdate) (*models.ReferralCode, error) {
	normalized := utils.NormalizeCode(code)
	if normalized == "" {
		return nil, nil
	}
	return s.store.Update(ctx, normalized, patch)
}
