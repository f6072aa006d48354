package services

import (
	"context"
	"log"
	"strings"
	"time"

	"tournament-registration/models"
)

// DepositReviewer is the store side of the admin review.
type DepositReviewer interface {
	ReviewDeposit(ctx context.Context, id string, status models.DepositStatus, note, reviewer string, at time.Time) (*models.PendingDeposit, error)
	ListPendingDeposits(ctx context.Context, limit int) ([]models.PendingDeposit, error)
}

// DepositReviewService is the admin process that settles pending deposits.
type DepositReviewService struct {
	store DepositReviewer
	now   func() time.Time
}

func NewDepositReviewService(store DepositReviewer) *DepositReviewService {
	return &DepositReviewService{store: store, now: time.Now}
}

func (s *DepositReviewService) Pending(ctx context.Context, limit int) ([]models.PendingDeposit, error) {
	return s.store.ListPendingDeposits(ctx, limit)
}

// Review approves or rejects a PENDING deposit. Rejections must carry a note for the user.
func (s *DepositReviewService) Review(ctx context.Context, id, status, note, reviewerID string) (*models.PendingDeposit, error) {
	st := models.DepositStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !st.Terminal() {
		return nil, models.NewValidationError("status", "status must be APPROVED or REJECTED")
	}
	note = strings.TrimSpace(note)
	if st == models.DepositRejected && note == "" {
		return nil, models.NewValidationError("note", "a note is required when rejecting a deposit")
	}
	if strings.TrimSpace(reviewerID) == "" {
		return nil, models.NewValidationError("reviewer", "reviewer identity is required")
	}

	d, err := s.store.ReviewDeposit(ctx, id, st, note, reviewerID, s.now().UTC())
	if err != nil {
		log.Printf("[REVIEW] ❌ %s on deposit %s by %s failed: %v", st, id, reviewerID, err)
		return nil, err
	}
	log.Printf("[REVIEW] ✅ deposit %s %s by %s", id, st, reviewerID)
	return d, nil
}
