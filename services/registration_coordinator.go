package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"tournament-registration/models"
	"tournament-registration/repository"
)

// SubmissionCoordinator turns a confirmed form into a registration: it re-checks
// prerequisites, debits the entry fee, records the entry and takes a slot.
type SubmissionCoordinator struct {
	store     repository.DocumentStore
	publisher EventPublisher
	now       func() time.Time
	newID     func() string
}

func NewSubmissionCoordinator(store repository.DocumentStore, publisher EventPublisher) *SubmissionCoordinator {
	return &SubmissionCoordinator{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (c *SubmissionCoordinator) Submit(ctx context.Context, tournamentID string, data models.RegistrationStepData, userID string) (*models.Registration, error) {
	ctx, span := tracer.Start(ctx, "registration.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("tournament.id", tournamentID),
		attribute.String("user.id", userID),
	)

	reg, err := c.submit(ctx, tournamentID, data, userID)
	if err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	publish(ctx, c.publisher, EventRegistrationCreated, RegistrationCreatedEvent{
		RegistrationID: reg.ID,
		TournamentID:   reg.TournamentID,
		UserID:         reg.UserID,
		TeamName:       reg.TeamName,
		EntryFee:       reg.EntryFee,
		Currency:       reg.Currency,
		CreatedAt:      reg.CreatedAt,
	})
	return reg, nil
}

func (c *SubmissionCoordinator) submit(ctx context.Context, tournamentID string, data models.RegistrationStepData, userID string) (*models.Registration, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, models.NewValidationError("user_id", "user identity is required")
	}
	if data.TournamentID != "" && data.TournamentID != tournamentID {
		return nil, models.NewValidationError("tournament_id", "form belongs to a different tournament")
	}
	if err := ValidatePaymentStep(data); err != nil {
		return nil, err
	}

	if tx, ok := c.store.(repository.Transactor); ok {
		var reg *models.Registration
		err := tx.WithinTransaction(ctx, func(s repository.DocumentStore) error {
			var err error
			reg, err = c.commit(ctx, s, tournamentID, data, userID, nil)
			return err
		})
		if err != nil {
			return nil, err
		}
		return reg, nil
	}

	var undo []func(context.Context) error
	reg, err := c.commit(ctx, c.store, tournamentID, data, userID, &undo)
	if err != nil {
		c.compensate(undo, tournamentID, userID)
		return nil, err
	}
	return reg, nil
}

// commit runs every check and write against s. When undo is non-nil each completed
// write registers its inverse there.
func (c *SubmissionCoordinator) commit(ctx context.Context, s repository.DocumentStore, tournamentID string, data models.RegistrationStepData, userID string, undo *[]func(context.Context) error) (*models.Registration, error) {
	tournament, result, err := readPrerequisites(ctx, s, tournamentID, userID, c.now())
	if err != nil {
		return nil, err
	}
	if err := ValidateDetailsStep(data, tournament.EffectiveTeamSize()); err != nil {
		return nil, err
	}
	if err := prerequisiteFailure(result); err != nil {
		return nil, err
	}

	exists, err := s.GetRegistrationStatus(ctx, tournamentID, userID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.ErrAlreadyRegistered
	}

	fee := tournament.EntryFee
	if err := s.DebitWallet(ctx, userID, fee, tournament.Currency); err != nil {
		return nil, err
	}
	if undo != nil {
		*undo = append(*undo, func(ctx context.Context) error {
			return s.CreditWallet(ctx, userID, fee, tournament.Currency)
		})
	}

	reg := &models.Registration{
		ID:            c.newID(),
		TournamentID:  tournamentID,
		UserID:        userID,
		TeamName:      strings.TrimSpace(data.TeamName),
		TeamSlug:      slug.Make(data.TeamName),
		PlayerIDs:     datatypes.NewJSONSlice(trimAll(data.PlayerIDs)),
		PaymentMethod: data.PaymentMethod,
		EntryFee:      fee,
		Currency:      tournament.Currency,
		CreatedAt:     c.now().UTC(),
	}
	if err := s.CreateRegistration(ctx, reg); err != nil {
		return nil, err
	}
	if undo != nil {
		*undo = append(*undo, func(ctx context.Context) error {
			return s.DeleteRegistration(ctx, reg.ID)
		})
	}

	if err := s.IncrementRegisteredTeams(ctx, tournamentID); err != nil {
		return nil, err
	}
	return reg, nil
}

// prerequisiteFailure picks the error a failed re-check surfaces as. Capacity and
// balance have dedicated errors; anything else is a plain prerequisite failure.
func prerequisiteFailure(r PrerequisiteResult) error {
	switch {
	case r.AllRequirementsMet:
		return nil
	case !r.RegistrationOpen || !r.IsKycVerified:
		return &PrerequisiteError{Result: r}
	case !r.SlotsAvailable:
		return models.ErrSlotsFull
	default:
		return models.ErrInsufficientBalance
	}
}

// compensate replays the undo log newest first on a context that outlives the request.
func (c *SubmissionCoordinator) compensate(undo []func(context.Context) error, tournamentID, userID string) {
	if len(undo) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(undo) - 1; i >= 0; i-- {
		if err := undo[i](ctx); err != nil {
			log.Printf("[REGISTRATION] ⚠️ compensation step failed tournament=%s user=%s: %v", tournamentID, userID, err)
		}
	}
	log.Printf("[REGISTRATION] ↩️ rolled back partial registration tournament=%s user=%s", tournamentID, userID)
}

// classify keeps taxonomy errors and folds everything else into ErrUnknown.
func classify(err error) error {
	known := []error{
		models.ErrValidation,
		models.ErrPrerequisiteNotMet,
		models.ErrInsufficientBalance,
		models.ErrSlotsFull,
		models.ErrAlreadyRegistered,
		models.ErrRemoteUnavailable,
		models.ErrNotFound,
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%w: %v", models.ErrUnknown, err)
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
