package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tournament-registration/models"
)

// CreatePendingDeposit inserts a PENDING record; a second insert for the same request id
// returns ErrDuplicateRequest.
func (s *Store) CreatePendingDeposit(ctx context.Context, d *models.PendingDeposit) error {
	d.Status = models.DepositPending
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("deposit request %s: %w", d.RequestID, models.ErrDuplicateRequest)
		}
		return translate(err, "pending deposit")
	}
	return nil
}

func (s *Store) GetPendingDeposit(ctx context.Context, id string) (*models.PendingDeposit, error) {
	var d models.PendingDeposit
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err, "deposit "+id)
	}
	return &d, nil
}

func (s *Store) GetPendingDepositByRequestID(ctx context.Context, requestID string) (*models.PendingDeposit, error) {
	var d models.PendingDeposit
	if err := s.db.WithContext(ctx).First(&d, "request_id = ?", requestID).Error; err != nil {
		return nil, translate(err, "deposit request "+requestID)
	}
	return &d, nil
}

func (s *Store) ListPendingDeposits(ctx context.Context, limit int) ([]models.PendingDeposit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.PendingDeposit
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DepositPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err, "pending deposits")
	}
	return out, nil
}

// ReviewDeposit moves a PENDING deposit to a terminal status. Approval credits the
// user's wallet in the same transaction, so a deposit is credited at most once.
func (s *Store) ReviewDeposit(ctx context.Context, id string, status models.DepositStatus, note, reviewer string, at time.Time) (*models.PendingDeposit, error) {
	if !status.Terminal() {
		return nil, models.NewValidationError("status", "status must be APPROVED or REJECTED")
	}
	var reviewed models.PendingDeposit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PendingDeposit{}).
			Where("id = ? AND status = ?", id, models.DepositPending).
			Updates(map[string]interface{}{
				"status":      status,
				"review_note": note,
				"reviewed_by": reviewer,
				"reviewed_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if err := tx.First(&reviewed, "id = ?", id).Error; err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return models.ErrAlreadyReviewed
		}
		if status == models.DepositApproved {
			return (&Store{db: tx}).CreditWallet(ctx, reviewed.UserID, reviewed.Amount, reviewed.Currency)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyReviewed) {
			return nil, fmt.Errorf("deposit %s: %w", id, err)
		}
		if errors.Is(err, models.ErrRemoteUnavailable) {
			return nil, err
		}
		return nil, translate(err, "deposit "+id)
	}
	return &reviewed, nil
}

// ListReviewedDepositsSince pages through reviewed deposits in (reviewed_at, id) order,
// starting strictly after the (since, afterID) key.
func (s *Store) ListReviewedDepositsSince(ctx context.Context, since time.Time, afterID string, limit int) ([]models.PendingDeposit, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.PendingDeposit
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.DepositStatus{models.DepositApproved, models.DepositRejected}).
		Where("(reviewed_at > ? OR (reviewed_at = ? AND id > ?))", since, since, afterID).
		Order("reviewed_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err, "reviewed deposits")
	}
	return out, nil
}
