package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tournament-registration/cache"
	"tournament-registration/models"
	"tournament-registration/repository"
	"tournament-registration/repository/repotest"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func openTournament(id string, fee int64, maxTeams, registered int) models.Tournament {
	return models.Tournament{
		ID:              id,
		Name:            "Weekend Cup",
		Game:            "eFootball",
		EntryFee:        decimal.NewFromInt(fee),
		Currency:        "NGN",
		MaxTeams:        maxTeams,
		RegisteredTeams: registered,
		TeamSize:        2,
		StartTime:       testNow.Add(48 * time.Hour),
	}
}

type fixture struct {
	store *repository.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return fixture{store: repotest.NewStore(t)}
}

func (f fixture) tournament(t *testing.T, tour models.Tournament) {
	t.Helper()
	require.NoError(t, f.store.DB().Create(&tour).Error)
}

func (f fixture) user(t *testing.T, userID string, balance int64, kyc string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertUserProfiles(ctx, []models.UserProfile{{ExternalUserID: userID, Username: userID, KycStatus: kyc}}))
	if balance > 0 {
		require.NoError(t, f.store.CreditWallet(ctx, userID, decimal.NewFromInt(balance), "NGN"))
	}
}

func (f fixture) coordinator() *SubmissionCoordinator {
	c := NewSubmissionCoordinator(f.store, nil)
	c.now = fixedClock
	return c
}

func completeForm(tournamentID string) models.RegistrationStepData {
	return models.RegistrationStepData{
		TournamentID:  tournamentID,
		PaymentMethod: models.PaymentMethodWallet,
		TeamName:      "Alpha",
		PlayerIDs:     []string{"p1", "p2"},
		TermsAccepted: true,
	}
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, v)
	return nil
}

func (p *recordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// memoryUploadCache is an in-process UploadCache.
type memoryUploadCache struct {
	mu      sync.Mutex
	entries map[[2]string]cache.UploadedEvidence
}

func newMemoryUploadCache() *memoryUploadCache {
	return &memoryUploadCache{entries: map[[2]string]cache.UploadedEvidence{}}
}

func (c *memoryUploadCache) Get(userID, requestID string) (cache.UploadedEvidence, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := c.entries[[2]string{userID, requestID}]
	return ev, ok, nil
}

func (c *memoryUploadCache) Put(userID, requestID string, ev cache.UploadedEvidence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[[2]string{userID, requestID}] = ev
	return nil
}

func (c *memoryUploadCache) Forget(userID, requestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, [2]string{userID, requestID})
	return nil
}
