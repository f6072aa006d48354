package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentMethodKind separates UPI-class from bank-transfer-class proofs.
type PaymentMethodKind string

const (
	PaymentMethodUPI          PaymentMethodKind = "UPI"
	PaymentMethodBankTransfer PaymentMethodKind = "BANK_TRANSFER"
)

func (k PaymentMethodKind) Valid() bool {
	return k == PaymentMethodUPI || k == PaymentMethodBankTransfer
}

// MinReferenceLength is the shortest reference id accepted per method.
func (k PaymentMethodKind) MinReferenceLength() int {
	if k == PaymentMethodBankTransfer {
		return 6
	}
	return 3
}

// Method-specific optional fields of a proof.
var proofFieldsByMethod = map[PaymentMethodKind][]string{
	PaymentMethodUPI:          {"upi_app", "upi_id", "upi_transaction_id", "payer_name"},
	PaymentMethodBankTransfer: {"bank_name", "account_name", "account_number", "transfer_reference", "sort_code"},
}

func (k PaymentMethodKind) AllowsField(name string) bool {
	for _, f := range proofFieldsByMethod[k] {
		if f == name {
			return true
		}
	}
	return false
}

type DepositStatus string

const (
	DepositPending  DepositStatus = "PENDING"
	DepositApproved DepositStatus = "APPROVED"
	DepositRejected DepositStatus = "REJECTED"
)

func (s DepositStatus) Terminal() bool {
	return s == DepositApproved || s == DepositRejected
}

// PaymentProof is the user-facing evidence of an off-platform payment.
// It is filled step by step and frozen into a PendingDeposit on submit.
type PaymentProof struct {
	Currency         string            `json:"currency"`
	Amount           decimal.Decimal   `json:"amount"`
	PaymentMethod    PaymentMethodKind `json:"payment_method"`
	Reference        string            `json:"reference"`
	Fields           map[string]string `json:"fields,omitempty"`
	ScreenshotURL    string            `json:"screenshot_url"`
	ReceiptURL       string            `json:"receipt_url,omitempty"`
	BankStatementURL string            `json:"bank_statement_url,omitempty"`
}

// PendingDeposit is the persisted verification record. Only the admin review moves Status.
type PendingDeposit struct {
	ID               string            `gorm:"primaryKey" json:"id"`
	RequestID        string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	UserID           string            `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Amount           decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency         string            `gorm:"type:varchar(3);not null" json:"currency"`
	Method           PaymentMethodKind `gorm:"type:varchar(32);not null" json:"method"`
	ReferenceID      string            `gorm:"not null" json:"reference_id"`
	ScreenshotURL    string            `gorm:"type:text;not null" json:"screenshot_url"`
	ReceiptURL       string            `gorm:"type:text" json:"receipt_url,omitempty"`
	BankStatementURL string            `gorm:"type:text" json:"bank_statement_url,omitempty"`
	Details          datatypes.JSONMap `json:"details,omitempty"`
	Status           DepositStatus     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	ReviewNote       string            `json:"review_note,omitempty"`
	ReviewedBy       string            `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time        `gorm:"index" json:"reviewed_at,omitempty"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// ToPendingDeposit freezes the proof into a PENDING record.
func (p PaymentProof) ToPendingDeposit(id, requestID, userID string) PendingDeposit {
	var details datatypes.JSONMap
	if len(p.Fields) > 0 {
		details = datatypes.JSONMap{}
		for k, v := range p.Fields {
			details[k] = v
		}
	}
	return PendingDeposit{
		ID:               id,
		RequestID:        requestID,
		UserID:           userID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Method:           p.PaymentMethod,
		ReferenceID:      p.Reference,
		ScreenshotURL:    p.ScreenshotURL,
		ReceiptURL:       p.ReceiptURL,
		BankStatementURL: p.BankStatementURL,
		Details:          details,
		Status:           DepositPending,
	}
}
