package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"tournament-registration/models"
	"tournament-registration/repository"
)

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

// NextRequested asks to advance one step. Prerequisites is only read on REVIEW;
// TeamSize bounds the player list on DETAILS.
type NextRequested struct {
	Prerequisites *PrerequisiteResult
	TeamSize      int
}

type PreviousRequested struct{}

// DataUpdated applies a pure transform to the form data.
type DataUpdated struct {
	Transform func(models.RegistrationStepData) models.RegistrationStepData
}

// OperationStarted marks the start of a remote call.
type OperationStarted struct{}

// PrerequisitesEvaluated delivers the asynchronous REVIEW check.
type PrerequisitesEvaluated struct {
	Result PrerequisiteResult
}

type OperationFailed struct {
	Err error
}

type SubmitSucceeded struct {
	Registration *models.Registration
}

func (NextRequested) isEvent()          {}
func (PreviousRequested) isEvent()      {}
func (DataUpdated) isEvent()            {}
func (OperationStarted) isEvent()       {}
func (PrerequisitesEvaluated) isEvent() {}
func (OperationFailed) isEvent()        {}
func (SubmitSucceeded) isEvent()        {}

// Reduce is the registration state machine. It never performs I/O.
// User events are ignored while loading or once the flow has completed.
func Reduce(s models.RegistrationUiState, e Event) models.RegistrationUiState {
	s.Data = s.Data.Clone()

	switch ev := e.(type) {
	case NextRequested:
		if s.Loading || s.Completed {
			return s
		}
		return reduceNext(s, ev)

	case PreviousRequested:
		if s.Loading || s.Completed {
			return s
		}
		prev, ok := s.Step.Previous()
		if !ok {
			return withError(s, models.NewValidationError("step", "already at the first step"))
		}
		s.Step = prev
		s.Error = nil
		return s

	case DataUpdated:
		if s.Loading || s.Completed || ev.Transform == nil {
			return s
		}
		tid := s.Data.TournamentID
		s.Data = ev.Transform(s.Data.Clone())
		s.Data.TournamentID = tid
		s.Error = nil
		return s

	case OperationStarted:
		if s.Completed {
			return s
		}
		s.Loading = true
		s.Error = nil
		return s

	case PrerequisitesEvaluated:
		if !s.Loading || s.Step != models.StepReview {
			return s
		}
		s.Loading = false
		if !ev.Result.AllRequirementsMet {
			return withError(s, &PrerequisiteError{Result: ev.Result})
		}
		s.Step = models.StepPayment
		s.Error = nil
		return s

	case OperationFailed:
		s.Loading = false
		return withError(s, ev.Err)

	case SubmitSucceeded:
		if s.Step != models.StepConfirm {
			return s
		}
		s.Loading = false
		s.Error = nil
		s.Completed = true
		s.Registration = ev.Registration
		return s
	}
	return s
}

func reduceNext(s models.RegistrationUiState, ev NextRequested) models.RegistrationUiState {
	var err error
	switch s.Step {
	case models.StepReview:
		if ev.Prerequisites == nil {
			return withError(s, models.NewValidationError("step", "prerequisites have not been checked"))
		}
		if !ev.Prerequisites.AllRequirementsMet {
			return withError(s, &PrerequisiteError{Result: *ev.Prerequisites})
		}
	case models.StepPayment:
		err = ValidatePaymentStep(s.Data)
	case models.StepDetails:
		err = ValidateDetailsStep(s.Data, ev.TeamSize)
	case models.StepConfirm:
		err = models.NewValidationError("step", "use submit to finish registration")
	}
	if err != nil {
		return withError(s, err)
	}
	next, ok := s.Step.Next()
	if !ok {
		return s
	}
	s.Step = next
	s.Error = nil
	return s
}

func withError(s models.RegistrationUiState, err error) models.RegistrationUiState {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	s.Loading = false
	s.Error = &msg
	return s
}

func ValidatePaymentStep(d models.RegistrationStepData) error {
	method := strings.TrimSpace(d.PaymentMethod)
	if method == "" {
		return models.NewValidationError("payment_method", "choose a payment method")
	}
	if !models.IsAllowedPaymentMethod(method) {
		return models.NewValidationError("payment_method", "payment method "+method+" is not supported")
	}
	return nil
}

func ValidateDetailsStep(d models.RegistrationStepData, teamSize int) error {
	if teamSize < 1 {
		teamSize = 1
	}
	if strings.TrimSpace(d.TeamName) == "" {
		return models.NewValidationError("team_name", "team name is required")
	}
	if len(d.PlayerIDs) == 0 {
		return models.NewValidationError("player_ids", "add at least one player")
	}
	if len(d.PlayerIDs) > teamSize {
		return models.NewValidationError("player_ids", "too many players for this tournament")
	}
	for _, id := range d.PlayerIDs {
		if strings.TrimSpace(id) == "" {
			return models.NewValidationError("player_ids", "player ids must not be blank")
		}
	}
	if !d.TermsAccepted {
		return models.NewValidationError("terms_accepted", "accept the tournament terms to continue")
	}
	return nil
}

// Submitter commits a completed form.
type Submitter interface {
	Submit(ctx context.Context, tournamentID string, data models.RegistrationStepData, userID string) (*models.Registration, error)
}

// ErrFlowClosed is returned once a flow has been cancelled.
var ErrFlowClosed = errors.New("registration flow closed")

// RegistrationFlow owns one user's walk through the wizard. Events are applied under
// the mutex; remote calls run with it released and fold back in through Reduce.
type RegistrationFlow struct {
	mu         sync.Mutex
	state      models.RegistrationUiState
	userID     string
	store      repository.DocumentStore
	submitter  Submitter
	now        func() time.Time
	tournament *models.Tournament
	closed     bool
}

func NewRegistrationFlow(tournamentID, userID string, store repository.DocumentStore, submitter Submitter, now func() time.Time) *RegistrationFlow {
	if now == nil {
		now = time.Now
	}
	return &RegistrationFlow{
		state:     models.NewRegistrationUiState(tournamentID),
		userID:    userID,
		store:     store,
		submitter: submitter,
		now:       now,
	}
}

func (f *RegistrationFlow) UserID() string {
	return f.userID
}

func (f *RegistrationFlow) State() models.RegistrationUiState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

func (f *RegistrationFlow) snapshot() models.RegistrationUiState {
	s := f.state
	s.Data = s.Data.Clone()
	return s
}

func (f *RegistrationFlow) apply(e Event) models.RegistrationUiState {
	f.state = Reduce(f.state, e)
	return f.snapshot()
}

// Next advances one step. On REVIEW it loads fresh prerequisites first.
func (f *RegistrationFlow) Next(ctx context.Context) (models.RegistrationUiState, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return models.RegistrationUiState{}, ErrFlowClosed
	}
	if f.state.Loading || f.state.Completed {
		s := f.snapshot()
		f.mu.Unlock()
		return s, nil
	}
	if f.state.Step != models.StepReview {
		s := f.apply(NextRequested{TeamSize: f.teamSize()})
		f.mu.Unlock()
		return s, nil
	}
	f.apply(OperationStarted{})
	tournamentID := f.state.Data.TournamentID
	f.mu.Unlock()

	tournament, result, err := LoadPrerequisites(ctx, f.store, tournamentID, f.userID, f.now())

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		log.Printf("[REGISTRATION] ❌ prerequisite load failed tournament=%s user=%s: %v", tournamentID, f.userID, err)
		return f.apply(OperationFailed{Err: err}), nil
	}
	f.tournament = tournament
	return f.apply(PrerequisitesEvaluated{Result: result}), nil
}

func (f *RegistrationFlow) Previous() (models.RegistrationUiState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return models.RegistrationUiState{}, ErrFlowClosed
	}
	return f.apply(PreviousRequested{}), nil
}

func (f *RegistrationFlow) UpdateData(transform func(models.RegistrationStepData) models.RegistrationStepData) (models.RegistrationUiState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return models.RegistrationUiState{}, ErrFlowClosed
	}
	return f.apply(DataUpdated{Transform: transform}), nil
}

// Submit commits the registration from CONFIRM. A second call while the first is
// in flight returns the loading state without touching the store.
func (f *RegistrationFlow) Submit(ctx context.Context) (models.RegistrationUiState, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return models.RegistrationUiState{}, ErrFlowClosed
	}
	if f.state.Loading || f.state.Completed {
		s := f.snapshot()
		f.mu.Unlock()
		return s, nil
	}
	if f.state.Step != models.StepConfirm {
		s := f.apply(OperationFailed{Err: models.NewValidationError("step", "registration can only be submitted from the confirm step")})
		f.mu.Unlock()
		return s, nil
	}
	f.apply(OperationStarted{})
	data := f.state.Data.Clone()
	f.mu.Unlock()

	reg, err := f.submitter.Submit(ctx, data.TournamentID, data, f.userID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		log.Printf("[REGISTRATION] ❌ submit failed tournament=%s user=%s: %v", data.TournamentID, f.userID, err)
		return f.apply(OperationFailed{Err: err}), nil
	}
	log.Printf("[REGISTRATION] ✅ user %s registered team %q for tournament %s", f.userID, reg.TeamName, reg.TournamentID)
	return f.apply(SubmitSucceeded{Registration: reg}), nil
}

// Cancel abandons the flow without any remote write.
func (f *RegistrationFlow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *RegistrationFlow) teamSize() int {
	if f.tournament == nil {
		return 1
	}
	return f.tournament.EffectiveTeamSize()
}
