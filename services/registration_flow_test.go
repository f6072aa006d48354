package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-registration/models"
)

func stateAt(step models.RegistrationStep, data models.RegistrationStepData) models.RegistrationUiState {
	s := models.NewRegistrationUiState(data.TournamentID)
	s.Step = step
	s.Data = data
	return s
}

func TestReduceNextAdvancesOneStepAtATime(t *testing.T) {
	met := PrerequisiteResult{AllRequirementsMet: true}
	s := models.NewRegistrationUiState("t-1")

	s = Reduce(s, NextRequested{Prerequisites: &met})
	assert.Equal(t, models.StepPayment, s.Step)

	// PAYMENT without a method stays put.
	s = Reduce(s, NextRequested{})
	assert.Equal(t, models.StepPayment, s.Step)
	require.NotNil(t, s.Error)

	s = Reduce(s, DataUpdated{Transform: func(d models.RegistrationStepData) models.RegistrationStepData {
		d.PaymentMethod = models.PaymentMethodWallet
		return d
	}})
	assert.Nil(t, s.Error)
	s = Reduce(s, NextRequested{})
	assert.Equal(t, models.StepDetails, s.Step)

	// DETAILS validation blocks the jump to CONFIRM.
	s = Reduce(s, NextRequested{TeamSize: 2})
	assert.Equal(t, models.StepDetails, s.Step)

	s = Reduce(s, DataUpdated{Transform: func(d models.RegistrationStepData) models.RegistrationStepData {
		d.TeamName = "Alpha"
		d.PlayerIDs = []string{"p1", "p2"}
		d.TermsAccepted = true
		return d
	}})
	s = Reduce(s, NextRequested{TeamSize: 2})
	assert.Equal(t, models.StepConfirm, s.Step)

	s = Reduce(s, NextRequested{TeamSize: 2})
	assert.Equal(t, models.StepConfirm, s.Step)
	require.NotNil(t, s.Error)
	assert.Contains(t, *s.Error, "use submit")
}

func TestReduceReviewWithoutPrerequisitesStays(t *testing.T) {
	s := Reduce(models.NewRegistrationUiState("t-1"), NextRequested{})
	assert.Equal(t, models.StepReview, s.Step)
	assert.NotNil(t, s.Error)
}

func TestReducePreviousFromReviewIsRejected(t *testing.T) {
	s := Reduce(models.NewRegistrationUiState("t-1"), PreviousRequested{})
	assert.Equal(t, models.StepReview, s.Step)
	require.NotNil(t, s.Error)

	s = Reduce(stateAt(models.StepDetails, models.RegistrationStepData{TournamentID: "t-1"}), PreviousRequested{})
	assert.Equal(t, models.StepPayment, s.Step)
	assert.Nil(t, s.Error)
}

func TestUpdateDataNeverChangesStep(t *testing.T) {
	for _, step := range []models.RegistrationStep{models.StepReview, models.StepPayment, models.StepDetails, models.StepConfirm} {
		msg := "old error"
		s := stateAt(step, models.RegistrationStepData{TournamentID: "t-1"})
		s.Error = &msg
		s = Reduce(s, DataUpdated{Transform: func(d models.RegistrationStepData) models.RegistrationStepData {
			d.TeamName = "Bravo"
			d.TournamentID = "hijacked"
			return d
		}})
		assert.Equal(t, step, s.Step)
		assert.Equal(t, "Bravo", s.Data.TeamName)
		assert.Equal(t, "t-1", s.Data.TournamentID)
		assert.Nil(t, s.Error)
	}
}

func TestUserEventsIgnoredWhileLoading(t *testing.T) {
	s := Reduce(stateAt(models.StepPayment, models.RegistrationStepData{TournamentID: "t-1", PaymentMethod: "wallet"}), OperationStarted{})
	require.True(t, s.Loading)

	for _, e := range []Event{
		NextRequested{},
		PreviousRequested{},
		DataUpdated{Transform: func(d models.RegistrationStepData) models.RegistrationStepData { d.TeamName = "x"; return d }},
	} {
		got := Reduce(s, e)
		assert.Equal(t, s, got)
	}
}

func TestErrorAndLoadingNeverBothSet(t *testing.T) {
	s := Reduce(models.NewRegistrationUiState("t-1"), OperationStarted{})
	assert.True(t, s.Loading)
	assert.Nil(t, s.Error)

	s = Reduce(s, OperationFailed{Err: models.ErrRemoteUnavailable})
	assert.False(t, s.Loading)
	require.NotNil(t, s.Error)

	s = Reduce(s, OperationStarted{})
	assert.True(t, s.Loading)
	assert.Nil(t, s.Error)
}

// A balance below the fee keeps the flow on REVIEW.
func TestFlowReviewInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.tournament(t, openTournament("t-1", 100, 4, 0))
	f.user(t, "u1", 50, models.KycStatusVerified)

	flow := NewRegistrationFlow("t-1", "u1", f.store, f.coordinator(), fixedClock)
	s, err := flow.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StepReview, s.Step)
	assert.False(t, s.Loading)
	require.NotNil(t, s.Error)
	assert.Contains(t, *s.Error, "PrerequisiteNotMet")
	assert.Contains(t, *s.Error, "insufficient wallet balance")
}

// Every requirement met moves REVIEW to PAYMENT.
func TestFlowReviewAllMet(t *testing.T) {
	f := newFixture(t)
	f.tournament(t, openTournament("t-1", 100, 4, 0))
	f.user(t, "u1", 100, models.KycStatusVerified)

	flow := NewRegistrationFlow("t-1", "u1", f.store, f.coordinator(), fixedClock)
	s, err := flow.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepPayment, s.Step)
	assert.Nil(t, s.Error)
}

func TestFlowReviewMissingTournament(t *testing.T) {
	f := newFixture(t)
	flow := NewRegistrationFlow("nope", "u1", f.store, f.coordinator(), fixedClock)
	s, err := flow.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, s.Step)
	assert.False(t, s.Loading)
	assert.NotNil(t, s.Error)
}

func walkToDetails(t *testing.T, flow *RegistrationFlow) {
	t.Helper()
	ctx := context.Background()
	s, err := flow.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StepPayment, s.Step, "review failed: %v", s.Error)
	_, err = flow.UpdateData(func(d models.RegistrationStepData) models.RegistrationStepData {
		d.PaymentMethod = models.PaymentMethodWallet
		return d
	})
	require.NoError(t, err)
	s, err = flow.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StepDetails, s.Step)
}

// A blank player id fails DETAILS.
func TestFlowDetailsBlankPlayer(t *testing.T) {
	f := newFixture(t)
	f.tournament(t, openTournament("t-1", 100, 4, 0))
	f.user(t, "u1", 100, models.KycStatusVerified)

	flow := NewRegistrationFlow("t-1", "u1", f.store, f.coordinator(), fixedClock)
	walkToDetails(t, flow)

	_, err := flow.UpdateData(func(d models.RegistrationStepData) models.RegistrationStepData {
		d.TeamName = "Alpha"
		d.PlayerIDs = []string{"p1", ""}
		d.TermsAccepted = true
		return d
	})
	require.NoError(t, err)

	s, err := flow.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepDetails, s.Step)
	require.NotNil(t, s.Error)
	assert.Contains(t, *s.Error, "blank")
	assert.Equal(t, []string{"p1", ""}, s.Data.PlayerIDs)
}

func TestFlowDetailsTooManyPlayers(t *testing.T) {
	f := newFixture(t)
	f.tournament(t, openTournament("t-1", 100, 4, 0))
	f.user(t, "u1", 100, models.KycStatusVerified)

	flow := NewRegistrationFlow("t-1", "u1", f.store, f.coordinator(), fixedClock)
	walkToDetails(t, flow)
	flow.UpdateData(func(d models.RegistrationStepData) models.RegistrationStepData {
		d.TeamName = "Alpha"
		d.PlayerIDs = []string{"p1", "p2", "p3"}
		d.TermsAccepted = true
		return d
	})
	s, _ := flow.Next(context.Background())
	assert.Equal(t, models.StepDetails, s.Step)
	assert.NotNil(t, s.Error)
}

func TestFlowSubmitEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.tournament(t, openTournament("t-1", 100, 4, 0))
	f.user(t, "u1", 100, models.KycStatusVerified)

	flow := NewRegistrationFlow("t-1", "u1", f.store, f.coordinator(), fixedClock)
	walkToDetails(t, flow)
	flow.UpdateData(func(d models.RegistrationStepData) models.RegistrationStepData {
		d.TeamName = "Alpha"
		d.PlayerIDs = []string{"p1", "p2"}
		d.TermsAccepted = true
		return d
	})
	s, err := flow.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.StepConfirm, s.Step)

	s, err = flow.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Completed)
	assert.False(t, s.Loading)
	require.NotNil(t, s.Registration)
	assert.Equal(t, "alpha", s.Registration.TeamSlug)

	// Completed flows ignore further input.
	s2, _ := flow.Previous()
	assert.Equal(t, s.Step, s2.Step)
	assert.True(t, s2.Completed)
}

func TestFlowSubmitOutsideConfirm(t *testing.T) {
	sub := &blockingSubmitter{}
	flow := NewRegistrationFlow("t-1", "u1", nil, sub, fixedClock)

	s, err := flow.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, s.Step)
	assert.NotNil(t, s.Error)
	assert.EqualValues(t, 0, sub.calls.Load())
}

type blockingSubmitter struct {
	calls   atomic.Int32
	release chan struct{}
	entered chan struct{}
	err     error
}

func (b *blockingSubmitter) Submit(ctx context.Context, tournamentID string, data models.RegistrationStepData, userID string) (*models.Registration, error) {
	b.calls.Add(1)
	if b.entered != nil {
		close(b.entered)
	}
	if b.release != nil {
		<-b.release
	}
	if b.err != nil {
		return nil, b.err
	}
	return &models.Registration{ID: "r-1", TournamentID: tournamentID, UserID: userID, TeamName: data.TeamName}, nil
}

func confirmFlow(sub Submitter) *RegistrationFlow {
	flow := NewRegistrationFlow("t-1", "u1", nil, sub, fixedClock)
	flow.state = stateAt(models.StepConfirm, completeForm("t-1"))
	return flow
}

func TestSubmitWhileLoadingHasNoSideEffect(t *testing.T) {
	sub := &blockingSubmitter{release: make(chan struct{}), entered: make(chan struct{})}
	flow := confirmFlow(sub)

	var wg sync.WaitGroup
	wg.Add(1)
	var first models.RegistrationUiState
	go func() {
		defer wg.Done()
		first, _ = flow.Submit(context.Background())
	}()

	select {
	case <-sub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("submitter was not called")
	}

	second, err := flow.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Loading)
	assert.Nil(t, second.Error)

	next, _ := flow.Next(context.Background())
	assert.True(t, next.Loading)
	assert.Equal(t, models.StepConfirm, next.Step)

	close(sub.release)
	wg.Wait()

	assert.EqualValues(t, 1, sub.calls.Load())
	assert.True(t, first.Completed)
}

func TestSubmitFailureStaysOnConfirm(t *testing.T) {
	flow := confirmFlow(&blockingSubmitter{err: models.ErrSlotsFull})

	s, err := flow.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StepConfirm, s.Step)
	assert.False(t, s.Loading)
	assert.False(t, s.Completed)
	require.NotNil(t, s.Error)
	assert.Equal(t, models.ErrSlotsFull.Error(), *s.Error)
	assert.Equal(t, "Alpha", s.Data.TeamName)
}

func TestCancelledFlowRejectsEvents(t *testing.T) {
	flow := confirmFlow(&blockingSubmitter{})
	flow.Cancel()

	_, err := flow.Submit(context.Background())
	assert.True(t, errors.Is(err, ErrFlowClosed))
	_, err = flow.UpdateData(func(d models.RegistrationStepData) models.RegistrationStepData { return d })
	assert.ErrorIs(t, err, ErrFlowClosed)
}
