package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"tournament-registration/cache"
	"tournament-registration/models"
	"tournament-registration/repository"
	"tournament-registration/utils"
)

// DefaultProofThresholds: amounts above these need a bank statement.
var DefaultProofThresholds = map[string]decimal.Decimal{
	"NGN": decimal.NewFromInt(50000),
	"INR": decimal.NewFromInt(100000),
	"USD": decimal.NewFromInt(1000),
}

const maxEvidenceBytes = 10 << 20

// EvidenceFile is one uploaded image of a proof submission.
type EvidenceFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (f *EvidenceFile) empty() bool {
	return f == nil || len(f.Data) == 0
}

// ProofSubmission is everything the client sends for one off-platform payment.
type ProofSubmission struct {
	RequestID     string
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	Method        models.PaymentMethodKind
	Reference     string
	Fields        map[string]string
	Evidence      *EvidenceFile
	BankStatement *EvidenceFile
	Receipt       *EvidenceFile
}

// PaymentProofPipeline validates, uploads and records payment proofs. It never
// approves or rejects them; it only observes the admin review's outcome.
type PaymentProofPipeline struct {
	deposits   repository.DepositStore
	blobs      BlobStore
	uploads    UploadCache
	publisher  EventPublisher
	thresholds map[string]decimal.Decimal
	newID      func() string
}

func NewPaymentProofPipeline(deposits repository.DepositStore, blobs BlobStore, uploads UploadCache, publisher EventPublisher, thresholds map[string]decimal.Decimal) *PaymentProofPipeline {
	if len(thresholds) == 0 {
		thresholds = DefaultProofThresholds
	}
	return &PaymentProofPipeline{
		deposits:   deposits,
		blobs:      blobs,
		uploads:    uploads,
		publisher:  publisher,
		thresholds: thresholds,
		newID:      uuid.NewString,
	}
}

// RequiresBankStatement reports whether amount in currency is above the threshold.
func (p *PaymentProofPipeline) RequiresBankStatement(amount decimal.Decimal, currency string) bool {
	limit, ok := p.thresholds[strings.ToUpper(currency)]
	return ok && amount.GreaterThan(limit)
}

// Validate checks a submission without any network call and returns the normalized proof.
func (p *PaymentProofPipeline) Validate(sub ProofSubmission) (models.PaymentProof, error) {
	if strings.TrimSpace(sub.RequestID) == "" {
		return models.PaymentProof{}, models.NewValidationError("request_id", "request id is required")
	}
	if strings.TrimSpace(sub.UserID) == "" {
		return models.PaymentProof{}, models.NewValidationError("user_id", "user identity is required")
	}
	if !sub.Amount.IsPositive() {
		return models.PaymentProof{}, models.NewValidationError("amount", "amount must be greater than zero")
	}
	currency, err := utils.NormalizeCurrency(sub.Currency)
	if err != nil {
		return models.PaymentProof{}, models.NewValidationError("currency", "unknown currency "+sub.Currency)
	}
	if !sub.Method.Valid() {
		return models.PaymentProof{}, models.NewValidationError("payment_method", "payment method must be UPI or BANK_TRANSFER")
	}

	ref := strings.TrimSpace(sub.Reference)
	if ref == "" {
		return models.PaymentProof{}, models.NewValidationError("reference", "reference id is required")
	}
	if minLen := sub.Method.MinReferenceLength(); len([]rune(ref)) < minLen {
		return models.PaymentProof{}, models.NewValidationError("reference", fmt.Sprintf("reference id is too short (minimum %d characters)", minLen))
	}

	fields := map[string]string{}
	for k, v := range sub.Fields {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !sub.Method.AllowsField(k) {
			return models.PaymentProof{}, models.NewValidationError(k, fmt.Sprintf("field %s is not valid for %s", k, sub.Method))
		}
		fields[k] = v
	}

	if sub.Evidence.empty() {
		return models.PaymentProof{}, models.NewValidationError("evidence", "payment screenshot is required")
	}
	if p.RequiresBankStatement(sub.Amount, currency) && sub.BankStatement.empty() {
		return models.PaymentProof{}, models.NewValidationError("bank_statement", fmt.Sprintf(
			"a bank statement is required for amounts above %s", utils.FormatMoney(p.thresholds[currency], currency)))
	}
	for name, f := range map[string]*EvidenceFile{"evidence": sub.Evidence, "bank_statement": sub.BankStatement, "receipt": sub.Receipt} {
		if f.empty() {
			continue
		}
		if len(f.Data) > maxEvidenceBytes {
			return models.PaymentProof{}, models.NewValidationError(name, name+" exceeds 10MB")
		}
		if !strings.HasPrefix(contentTypeOf(f), "image/") && contentTypeOf(f) != "application/pdf" {
			return models.PaymentProof{}, models.NewValidationError(name, name+" must be an image or PDF")
		}
	}

	return models.PaymentProof{
		Currency:      currency,
		Amount:        sub.Amount.Round(2),
		PaymentMethod: sub.Method,
		Reference:     ref,
		Fields:        fields,
	}, nil
}

// SubmitProof uploads the evidence and records a PENDING deposit, returning its id.
// Retrying with the same request id returns the existing deposit and skips uploads
// that already succeeded.
func (p *PaymentProofPipeline) SubmitProof(ctx context.Context, sub ProofSubmission) (string, error) {
	ctx, span := tracer.Start(ctx, "deposit.submit_proof")
	defer span.End()
	span.SetAttributes(
		attribute.String("deposit.request_id", sub.RequestID),
		attribute.String("deposit.method", string(sub.Method)),
	)

	id, err := p.submitProof(ctx, sub)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return id, nil
}

func (p *PaymentProofPipeline) submitProof(ctx context.Context, sub ProofSubmission) (string, error) {
	proof, err := p.Validate(sub)
	if err != nil {
		return "", err
	}

	if existing, err := p.existing(ctx, sub.RequestID, sub.UserID); err != nil || existing != "" {
		return existing, err
	}

	uploaded, err := p.uploadEvidence(ctx, sub)
	if err != nil {
		return "", err
	}
	proof.ScreenshotURL = uploaded.ScreenshotURL
	proof.BankStatementURL = uploaded.BankStatementURL
	proof.ReceiptURL = uploaded.ReceiptURL

	deposit := proof.ToPendingDeposit(p.newID(), sub.RequestID, sub.UserID)
	if err := p.deposits.CreatePendingDeposit(ctx, &deposit); err != nil {
		if errors.Is(err, models.ErrDuplicateRequest) {
			return p.existing(ctx, sub.RequestID, sub.UserID)
		}
		log.Printf("[PROOF] ❌ failed to record deposit request=%s: %v", sub.RequestID, err)
		return "", err
	}

	if p.uploads != nil {
		if err := p.uploads.Forget(sub.UserID, sub.RequestID); err != nil {
			log.Printf("[PROOF] ⚠️ failed to clear upload cache for %s: %v", sub.RequestID, err)
		}
	}
	log.Printf("[PROOF] ✅ deposit %s recorded for user %s (%s %s)", deposit.ID, sub.UserID,
		utils.FormatMoney(deposit.Amount, deposit.Currency), deposit.Method)

	publish(ctx, p.publisher, EventDepositSubmitted, DepositEvent{
		DepositID: deposit.ID,
		RequestID: deposit.RequestID,
		UserID:    deposit.UserID,
		Amount:    deposit.Amount,
		Currency:  deposit.Currency,
		Status:    string(deposit.Status),
		At:        time.Now().UTC(),
	})
	return deposit.ID, nil
}

// existing returns the deposit id already recorded for requestID, or "".
func (p *PaymentProofPipeline) existing(ctx context.Context, requestID, userID string) (string, error) {
	d, err := p.deposits.GetPendingDepositByRequestID(ctx, requestID)
	if errors.Is(err, models.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if d.UserID != userID {
		return "", fmt.Errorf("request id %s: %w", requestID, models.ErrDuplicateRequest)
	}
	log.Printf("[PROOF] ↩️ request %s already recorded as deposit %s", requestID, d.ID)
	return d.ID, nil
}

func (p *PaymentProofPipeline) uploadEvidence(ctx context.Context, sub ProofSubmission) (cache.UploadedEvidence, error) {
	var ev cache.UploadedEvidence
	if p.uploads != nil {
		cached, found, err := p.uploads.Get(sub.UserID, sub.RequestID)
		if err != nil {
			log.Printf("[PROOF] ⚠️ upload cache read failed for %s: %v", sub.RequestID, err)
		} else if found {
			ev = cached
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	upload := func(slot string, f *EvidenceFile, dst *string) {
		if f.empty() || *dst != "" {
			return
		}
		g.Go(func() error {
			key := utils.EvidenceObjectKey(sub.UserID, sub.RequestID, slot, f.Filename)
			url, err := p.blobs.UploadImage(gctx, key, contentTypeOf(f), f.Data)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", models.ErrUploadFailed, slot, err)
			}
			*dst = url
			return nil
		})
	}
	upload("screenshot", sub.Evidence, &ev.ScreenshotURL)
	upload("bank-statement", sub.BankStatement, &ev.BankStatementURL)
	upload("receipt", sub.Receipt, &ev.ReceiptURL)
	err := g.Wait()

	// Partial progress is cached too, so a retry only re-sends what failed.
	if p.uploads != nil && (ev.ScreenshotURL != "" || ev.BankStatementURL != "" || ev.ReceiptURL != "") {
		if cerr := p.uploads.Put(sub.UserID, sub.RequestID, ev); cerr != nil {
			log.Printf("[PROOF] ⚠️ upload cache write failed for %s: %v", sub.RequestID, cerr)
		}
	}
	if err != nil {
		log.Printf("[PROOF] ❌ evidence upload failed request=%s: %v", sub.RequestID, err)
		return ev, err
	}
	return ev, nil
}

// Deposit returns the user's deposit. Deposits of other users are reported as not found.
func (p *PaymentProofPipeline) Deposit(ctx context.Context, id, userID string) (*models.PendingDeposit, error) {
	d, err := p.deposits.GetPendingDeposit(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && d.UserID != userID {
		return nil, fmt.Errorf("deposit %s: %w", id, models.ErrNotFound)
	}
	return d, nil
}

// WatchDeposit polls the deposit and emits it on every status change. The channel
// closes after a terminal status, on ctx cancellation, or when the deposit can't be read.
func (p *PaymentProofPipeline) WatchDeposit(ctx context.Context, id, userID string, interval time.Duration) <-chan models.PendingDeposit {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	out := make(chan models.PendingDeposit, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last models.DepositStatus
		for {
			d, err := p.Deposit(ctx, id, userID)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[PROOF] ⚠️ watch of deposit %s stopped: %v", id, err)
				}
				return
			}
			if d.Status != last {
				last = d.Status
				select {
				case out <- *d:
				case <-ctx.Done():
					return
				}
			}
			if d.Status.Terminal() {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func contentTypeOf(f *EvidenceFile) string {
	if f.ContentType != "" && f.ContentType != "application/octet-stream" {
		return strings.ToLower(f.ContentType)
	}
	return http.DetectContentType(f.Data)
}
