package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"tournament-registration/models"
	"tournament-registration/repository"
	"tournament-registration/utils"
)

// Requirement names reported by Failures.
const (
	RequirementBalance = "balance"
	RequirementKyc     = "kyc"
	RequirementWindow  = "registration_window"
	RequirementSlots   = "slots"
)

// PrerequisiteResult is the outcome of checking a user against a tournament at one instant.
type PrerequisiteResult struct {
	HasSufficientBalance bool `json:"has_sufficient_balance"`
	IsKycVerified        bool `json:"is_kyc_verified"`
	RegistrationOpen     bool `json:"registration_open"`
	SlotsAvailable       bool `json:"slots_available"`
	AllRequirementsMet   bool `json:"all_requirements_met"`

	EntryFee       decimal.Decimal `json:"entry_fee"`
	WalletBalance  decimal.Decimal `json:"wallet_balance"`
	Currency       string          `json:"currency"`
	KycStatus      string          `json:"kyc_status"`
	AvailableSlots int             `json:"available_slots"`
}

// EvaluatePrerequisites is pure; now is supplied by the caller.
func EvaluatePrerequisites(t models.Tournament, walletBalance decimal.Decimal, kycStatus string, now time.Time) PrerequisiteResult {
	r := PrerequisiteResult{
		HasSufficientBalance: walletBalance.GreaterThanOrEqual(t.EntryFee),
		IsKycVerified:        strings.EqualFold(strings.TrimSpace(kycStatus), models.KycStatusVerified),
		RegistrationOpen:     registrationOpen(t, now),
		SlotsAvailable:       t.MaxTeams > 0 && t.RegisteredTeams < t.MaxTeams,
		EntryFee:             t.EntryFee,
		WalletBalance:        walletBalance,
		Currency:             t.Currency,
		KycStatus:            models.NormalizeKycStatus(kycStatus),
		AvailableSlots:       t.AvailableSlots(),
	}
	r.AllRequirementsMet = r.HasSufficientBalance && r.IsKycVerified && r.RegistrationOpen && r.SlotsAvailable
	return r
}

// The window opens at RegistrationStartTime (or always) and closes at
// RegistrationEndTime, falling back to StartTime.
func registrationOpen(t models.Tournament, now time.Time) bool {
	if t.RegistrationStartTime != nil && now.Before(*t.RegistrationStartTime) {
		return false
	}
	closes := t.StartTime
	if t.RegistrationEndTime != nil {
		closes = *t.RegistrationEndTime
	}
	return now.Before(closes)
}

func (r PrerequisiteResult) Failures() []string {
	var out []string
	if !r.HasSufficientBalance {
		out = append(out, RequirementBalance)
	}
	if !r.IsKycVerified {
		out = append(out, RequirementKyc)
	}
	if !r.RegistrationOpen {
		out = append(out, RequirementWindow)
	}
	if !r.SlotsAvailable {
		out = append(out, RequirementSlots)
	}
	return out
}

// Reason names every failed requirement in one sentence.
func (r PrerequisiteResult) Reason() string {
	var parts []string
	for _, f := range r.Failures() {
		switch f {
		case RequirementBalance:
			parts = append(parts, fmt.Sprintf("insufficient wallet balance (need %s, have %s)",
				utils.FormatMoney(r.EntryFee, r.Currency), utils.FormatMoney(r.WalletBalance, r.Currency)))
		case RequirementKyc:
			parts = append(parts, fmt.Sprintf("KYC not verified (status %s)", r.KycStatus))
		case RequirementWindow:
			parts = append(parts, "registration window is closed")
		case RequirementSlots:
			parts = append(parts, "no slots available")
		}
	}
	return strings.Join(parts, "; ")
}

// PrerequisiteError carries the failing result so handlers can render each requirement.
type PrerequisiteError struct {
	Result PrerequisiteResult
}

func (e *PrerequisiteError) Error() string {
	return "PrerequisiteNotMet: " + e.Result.Reason()
}

func (e *PrerequisiteError) Is(target error) bool {
	return target == models.ErrPrerequisiteNotMet
}

// LoadPrerequisites reads the tournament (then its currency's balance) and the KYC status
// concurrently and evaluates them.
// Not for use with a transaction-bound store.
func LoadPrerequisites(ctx context.Context, store repository.DocumentStore, tournamentID, userID string, now time.Time) (*models.Tournament, PrerequisiteResult, error) {
	var (
		tournament *models.Tournament
		balance    decimal.Decimal
		kycStatus  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := store.GetTournament(gctx, tournamentID)
		if err != nil {
			return err
		}
		tournament = t
		// Only the wallet in the tournament's currency can pay its fee.
		balance, err = store.GetWalletBalance(gctx, userID, t.Currency)
		return err
	})
	g.Go(func() error {
		k, err := store.GetKycStatus(gctx, userID)
		kycStatus = k
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, PrerequisiteResult{}, err
	}
	return tournament, EvaluatePrerequisites(*tournament, balance, kycStatus, now), nil
}

// readPrerequisites is the sequential variant used inside a transaction.
func readPrerequisites(ctx context.Context, store repository.DocumentStore, tournamentID, userID string, now time.Time) (*models.Tournament, PrerequisiteResult, error) {
	tournament, err := store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, PrerequisiteResult{}, err
	}
	balance, err := store.GetWalletBalance(ctx, userID, tournament.Currency)
	if err != nil {
		return nil, PrerequisiteResult{}, err
	}
	kycStatus, err := store.GetKycStatus(ctx, userID)
	if err != nil {
		return nil, PrerequisiteResult{}, err
	}
	return tournament, EvaluatePrerequisites(*tournament, balance, kycStatus, now), nil
}
