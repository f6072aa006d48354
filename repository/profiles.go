package repository

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"tournament-registration/models"
)

// UpsertUserProfiles mirrors remote profiles keyed by external_user_id.
func (s *Store) UpsertUserProfiles(ctx context.Context, profiles []models.UserProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	for i := range profiles {
		profiles[i].KycStatus = models.NormalizeKycStatus(profiles[i].KycStatus)
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "email", "kyc_status", "account_status", "updated_at",
		}),
	}).Create(&profiles).Error
	if err != nil {
		return translate(err, "user profiles")
	}
	return nil
}

// LatestProfileUpdate is the sync watermark; zero when nothing has been mirrored.
func (s *Store) LatestProfileUpdate(ctx context.Context) (time.Time, error) {
	var p models.UserProfile
	err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(1).Find(&p).Error
	if err != nil {
		return time.Time{}, translate(err, "user profiles")
	}
	return p.UpdatedAt, nil
}
