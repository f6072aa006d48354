package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-registration/models"
	"tournament-registration/repository"
)

type fakeBlobStore struct {
	mu      sync.Mutex
	keys    []string
	failFor map[string]error
}

func (b *fakeBlobStore) UploadImage(_ context.Context, key, _ string, _ []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for slot, err := range b.failFor {
		if containsSlot(key, slot) {
			return "", err
		}
	}
	b.keys = append(b.keys, key)
	return "https://cdn.test/" + key, nil
}

func (b *fakeBlobStore) uploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.keys)
}

func containsSlot(key, slot string) bool {
	return strings.Contains(key, "/"+slot+".")
}

func png() *EvidenceFile {
	return &EvidenceFile{Filename: "proof.png", ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\nfake")}
}

func upiSubmission(requestID string) ProofSubmission {
	return ProofSubmission{
		RequestID: requestID,
		UserID:    "u1",
		Amount:    decimal.NewFromInt(2500),
		Currency:  "inr",
		Method:    models.PaymentMethodUPI,
		Reference: "12345",
		Fields:    map[string]string{"upi_app": "gpay"},
		Evidence:  png(),
	}
}

func newPipeline(t *testing.T) (*PaymentProofPipeline, fixture, *fakeBlobStore, *memoryUploadCache, *recordingPublisher) {
	t.Helper()
	f := newFixture(t)
	blobs := &fakeBlobStore{}
	uploads := newMemoryUploadCache()
	pub := &recordingPublisher{}
	return NewPaymentProofPipeline(f.store, blobs, uploads, pub, nil), f, blobs, uploads, pub
}

// UPI references need 3 characters, bank transfers 6.
func TestValidateReferenceLength(t *testing.T) {
	p, _, _, _, _ := newPipeline(t)

	sub := upiSubmission("req-1")
	sub.Reference = "12"
	_, err := p.Validate(sub)
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "too short")

	sub.Reference = "12345"
	_, err = p.Validate(sub)
	assert.NoError(t, err)

	sub.Method = models.PaymentMethodBankTransfer
	sub.Fields = nil
	_, err = p.Validate(sub)
	assert.ErrorContains(t, err, "too short")
}

func TestValidateRejections(t *testing.T) {
	p, _, _, _, _ := newPipeline(t)
	cases := map[string]func(*ProofSubmission){
		"zero amount":      func(s *ProofSubmission) { s.Amount = decimal.Zero },
		"unknown currency": func(s *ProofSubmission) { s.Currency = "XXQ" },
		"bad method":       func(s *ProofSubmission) { s.Method = "CASH" },
		"blank reference":  func(s *ProofSubmission) { s.Reference = "   " },
		"no evidence":      func(s *ProofSubmission) { s.Evidence = nil },
		"foreign field":    func(s *ProofSubmission) { s.Fields = map[string]string{"bank_name": "GTB"} },
		"no request id":    func(s *ProofSubmission) { s.RequestID = "" },
		"not an image": func(s *ProofSubmission) {
			s.Evidence = &EvidenceFile{Filename: "a.txt", ContentType: "text/plain", Data: []byte("hello")}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			sub := upiSubmission("req-1")
			mutate(&sub)
			_, err := p.Validate(sub)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestBankStatementThreshold(t *testing.T) {
	p, _, _, _, _ := newPipeline(t)

	sub := upiSubmission("req-1")
	sub.Amount = decimal.NewFromInt(100000)
	_, err := p.Validate(sub)
	assert.NoError(t, err, "at the threshold no statement is needed")

	sub.Amount = decimal.NewFromInt(100001)
	_, err = p.Validate(sub)
	assert.ErrorContains(t, err, "bank statement")

	sub.BankStatement = png()
	_, err = p.Validate(sub)
	assert.NoError(t, err)

	assert.True(t, p.RequiresBankStatement(decimal.NewFromInt(50001), "NGN"))
	assert.False(t, p.RequiresBankStatement(decimal.NewFromInt(999), "USD"))
	assert.False(t, p.RequiresBankStatement(decimal.NewFromInt(1_000_000), "EUR"))
}

func TestSubmitProofRecordsPendingDeposit(t *testing.T) {
	p, f, blobs, uploads, pub := newPipeline(t)
	ctx := context.Background()

	id, err := p.SubmitProof(ctx, upiSubmission("req-1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	d, err := p.Deposit(ctx, id, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, d.Status)
	assert.Equal(t, "INR", d.Currency)
	assert.Equal(t, "12345", d.ReferenceID)
	assert.Equal(t, "https://cdn.test/deposits/u1/req-1/screenshot.png", d.ScreenshotURL)
	assert.Equal(t, 1, blobs.uploads())
	assert.Equal(t, []string{EventDepositSubmitted}, pub.Keys())

	_, found, _ := uploads.Get("u1", "req-1")
	assert.False(t, found, "cache is cleared once the record exists")

	// Same request id: same deposit, no new upload.
	again, err := p.SubmitProof(ctx, upiSubmission("req-1"))
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, blobs.uploads())

	_, err = p.Deposit(ctx, id, "someone-else")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.store.GetPendingDepositByRequestID(ctx, "req-1")
	assert.NoError(t, err)
}

func TestSubmitProofUploadFailureIsRetryable(t *testing.T) {
	p, _, blobs, uploads, _ := newPipeline(t)
	ctx := context.Background()

	sub := upiSubmission("req-2")
	sub.Amount = decimal.NewFromInt(200000)
	sub.BankStatement = png()
	blobs.failFor = map[string]error{"bank-statement": errors.New("503 from bucket")}

	_, err := p.SubmitProof(ctx, sub)
	require.ErrorIs(t, err, models.ErrUploadFailed)

	cached, found, _ := uploads.Get("u1", "req-2")
	require.True(t, found)
	assert.NotEmpty(t, cached.ScreenshotURL)
	assert.Empty(t, cached.BankStatementURL)
	assert.Equal(t, 1, blobs.uploads())

	blobs.failFor = nil
	id, err := p.SubmitProof(ctx, sub)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 2, blobs.uploads(), "only the failed upload is repeated")
}

func TestSubmitProofNeverReusesAnotherUsersUploads(t *testing.T) {
	p, f, blobs, _, _ := newPipeline(t)
	ctx := context.Background()

	first := upiSubmission("shared-req")
	first.Amount = decimal.NewFromInt(200000)
	first.BankStatement = png()
	blobs.failFor = map[string]error{"bank-statement": errors.New("503 from bucket")}
	_, err := p.SubmitProof(ctx, first)
	require.ErrorIs(t, err, models.ErrUploadFailed)

	blobs.failFor = nil
	second := upiSubmission("shared-req")
	second.UserID = "u2"
	id, err := p.SubmitProof(ctx, second)
	require.NoError(t, err)

	d, err := f.store.GetPendingDeposit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u2", d.UserID)
	assert.Equal(t, "https://cdn.test/deposits/u2/shared-req/screenshot.png", d.ScreenshotURL)

	_, err = p.SubmitProof(ctx, first)
	assert.ErrorIs(t, err, models.ErrDuplicateRequest)
}

// flakyDeposits fails the first failures record writes.
type flakyDeposits struct {
	repository.DepositStore
	failures int
}

func (d *flakyDeposits) CreatePendingDeposit(ctx context.Context, dep *models.PendingDeposit) error {
	if d.failures > 0 {
		d.failures--
		return fmt.Errorf("insert deposit: %w", models.ErrRemoteUnavailable)
	}
	return d.DepositStore.CreatePendingDeposit(ctx, dep)
}

func TestSubmitProofRecordFailureKeepsUploads(t *testing.T) {
	f := newFixture(t)
	blobs := &fakeBlobStore{}
	uploads := newMemoryUploadCache()
	p := NewPaymentProofPipeline(&flakyDeposits{DepositStore: f.store, failures: 1}, blobs, uploads, nil, nil)
	ctx := context.Background()

	_, err := p.SubmitProof(ctx, upiSubmission("req-5"))
	require.ErrorIs(t, err, models.ErrRemoteUnavailable)
	assert.Equal(t, 1, blobs.uploads())
	_, found, _ := uploads.Get("u1", "req-5")
	require.True(t, found, "uploads survive a failed record write")

	id, err := p.SubmitProof(ctx, upiSubmission("req-5"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, blobs.uploads(), "the retry does not upload again")

	d, err := f.store.GetPendingDeposit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/deposits/u1/req-5/screenshot.png", d.ScreenshotURL)
	_, found, _ = uploads.Get("u1", "req-5")
	assert.False(t, found)
}

func TestWatchDepositStopsOnTerminalStatus(t *testing.T) {
	p, f, _, _, _ := newPipeline(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := p.SubmitProof(ctx, upiSubmission("req-3"))
	require.NoError(t, err)

	updates := p.WatchDeposit(ctx, id, "u1", 10*time.Millisecond)
	first := <-updates
	assert.Equal(t, models.DepositPending, first.Status)

	review := NewDepositReviewService(f.store)
	_, err = review.Review(ctx, id, "approved", "", "admin-1")
	require.NoError(t, err)

	var last models.PendingDeposit
	for d := range updates {
		last = d
	}
	assert.Equal(t, models.DepositApproved, last.Status)

	bal, _ := f.store.GetWalletBalance(ctx, "u1", "INR")
	assert.True(t, decimal.NewFromInt(2500).Equal(bal), bal.String())
}

func TestReviewRequiresNoteOnReject(t *testing.T) {
	p, f, _, _, _ := newPipeline(t)
	ctx := context.Background()
	id, err := p.SubmitProof(ctx, upiSubmission("req-4"))
	require.NoError(t, err)

	review := NewDepositReviewService(f.store)
	_, err = review.Review(ctx, id, "REJECTED", " ", "admin-1")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = review.Review(ctx, id, "MAYBE", "hmm", "admin-1")
	assert.ErrorIs(t, err, models.ErrValidation)

	d, err := review.Review(ctx, id, "REJECTED", "amount does not match", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.DepositRejected, d.Status)

	_, err = review.Review(ctx, id, "APPROVED", "", "admin-1")
	assert.ErrorIs(t, err, models.ErrAlreadyReviewed)

	pending, err := review.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
