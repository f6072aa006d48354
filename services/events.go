package services

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys on the events exchange.
const (
	EventRegistrationCreated = "registration.created"
	EventDepositSubmitted    = "deposit.submitted"
	EventDepositApproved     = "deposit.approved"
	EventDepositRejected     = "deposit.rejected"
)

type RegistrationCreatedEvent struct {
	RegistrationID string          `json:"registration_id"`
	TournamentID   string          `json:"tournament_id"`
	UserID         string          `json:"user_id"`
	TeamName       string          `json:"team_name"`
	EntryFee       decimal.Decimal `json:"entry_fee"`
	Currency       string          `json:"currency"`
	CreatedAt      time.Time       `json:"created_at"`
}

type DepositEvent struct {
	DepositID  string          `json:"deposit_id"`
	RequestID  string          `json:"request_id"`
	UserID     string          `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	ReviewNote string          `json:"review_note,omitempty"`
	At         time.Time       `json:"at"`
}
