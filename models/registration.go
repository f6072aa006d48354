package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RegistrationStep is one screen of the registration wizard, in order.
type RegistrationStep string

const (
	StepReview  RegistrationStep = "REVIEW"
	StepPayment RegistrationStep = "PAYMENT"
	StepDetails RegistrationStep = "DETAILS"
	StepConfirm RegistrationStep = "CONFIRM"
)

var registrationSteps = []RegistrationStep{StepReview, StepPayment, StepDetails, StepConfirm}

func (s RegistrationStep) index() int {
	for i, step := range registrationSteps {
		if step == s {
			return i
		}
	}
	return -1
}

// Next returns the step after s; false on CONFIRM (submit is not a step).
func (s RegistrationStep) Next() (RegistrationStep, bool) {
	i := s.index()
	if i < 0 || i == len(registrationSteps)-1 {
		return s, false
	}
	return registrationSteps[i+1], true
}

// Previous returns the step before s; false on REVIEW.
func (s RegistrationStep) Previous() (RegistrationStep, bool) {
	i := s.index()
	if i <= 0 {
		return s, false
	}
	return registrationSteps[i-1], true
}

const PaymentMethodWallet = "wallet"

// AllowedPaymentMethods is the fixed set accepted on the PAYMENT step.
var AllowedPaymentMethods = []string{PaymentMethodWallet}

func IsAllowedPaymentMethod(method string) bool {
	for _, m := range AllowedPaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// RegistrationStepData is the form state accumulated across the wizard.
// It lives only as long as the session that owns it.
type RegistrationStepData struct {
	TournamentID  string   `json:"tournament_id"`
	PaymentMethod string   `json:"payment_method"`
	TeamName      string   `json:"team_name"`
	PlayerIDs     []string `json:"player_ids"`
	TermsAccepted bool     `json:"terms_accepted"`
}

// Clone copies the player list so transforms can't alias session state.
func (d RegistrationStepData) Clone() RegistrationStepData {
	out := d
	if d.PlayerIDs != nil {
		out.PlayerIDs = make([]string, len(d.PlayerIDs))
		copy(out.PlayerIDs, d.PlayerIDs)
	}
	return out
}

// RegistrationUiState is what the client renders. Error and Loading are never both set.
type RegistrationUiState struct {
	Step         RegistrationStep     `json:"step"`
	Data         RegistrationStepData `json:"data"`
	Error        *string              `json:"error,omitempty"`
	Loading      bool                 `json:"loading"`
	Completed    bool                 `json:"completed"`
	Registration *Registration        `json:"registration,omitempty"`
}

func NewRegistrationUiState(tournamentID string) RegistrationUiState {
	return RegistrationUiState{
		Step: StepReview,
		Data: RegistrationStepData{TournamentID: tournamentID},
	}
}

// Registration is the committed entry of a team into a tournament.
type Registration struct {
	ID            string                      `json:"id" gorm:"primaryKey"`
	TournamentID  string                      `json:"tournament_id" gorm:"not null;uniqueIndex:idx_registration_tournament_user"`
	UserID        string                      `json:"user_id" gorm:"not null;uniqueIndex:idx_registration_tournament_user"`
	TeamName      string                      `json:"team_name" gorm:"not null"`
	TeamSlug      string                      `json:"team_slug" gorm:"index"`
	PlayerIDs     datatypes.JSONSlice[string] `json:"player_ids"`
	PaymentMethod string                      `json:"payment_method" gorm:"type:varchar(32);not null"`
	EntryFee      decimal.Decimal             `json:"entry_fee" gorm:"type:numeric(20,2);not null;default:0"`
	Currency      string                      `json:"currency" gorm:"type:varchar(3)"`
	CreatedAt     time.Time                   `json:"created_at" gorm:"autoCreateTime"`
}
