package models

import (
	"strings"
	"time"
)

const (
	KycStatusNotSubmitted = "NOT_SUBMITTED"
	KycStatusPending      = "PENDING"
	KycStatusVerified     = "VERIFIED"
	KycStatusRejected     = "REJECTED"
)

// UserProfile is a local snapshot of the profile service's user.
// Populated by the profile sync worker; KycStatus here is the only KYC source the flow reads.
type UserProfile struct {
	ExternalUserID string    `gorm:"primaryKey;type:varchar(64)" json:"external_user_id"`
	Username       string    `gorm:"index" json:"username"`
	Email          string    `json:"email,omitempty"`
	KycStatus      string    `gorm:"type:varchar(32);not null;default:'NOT_SUBMITTED'" json:"kyc_status"`
	AccountStatus  string    `gorm:"type:varchar(32)" json:"account_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeKycStatus upper-cases the remote value and maps blanks to NOT_SUBMITTED.
func NormalizeKycStatus(status string) string {
	s := strings.ToUpper(strings.TrimSpace(status))
	if s == "" {
		return KycStatusNotSubmitted
	}
	return s
}
