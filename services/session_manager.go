// services/session_manager.go
package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"tournament-registration/models"
	"tournament-registration/repository"
)

type session struct {
	flow     *RegistrationFlow
	lastSeen time.Time
}

// SessionManager keeps live registration flows keyed by session id and expires idle ones.
type SessionManager struct {
	mu        sync.Mutex
	sessions  map[string]*session
	ttl       time.Duration
	store     repository.DocumentStore
	submitter Submitter
	now       func() time.Time
	sched     gocron.Scheduler
}

func NewSessionManager(store repository.DocumentStore, submitter Submitter, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionManager{
		sessions:  make(map[string]*session),
		ttl:       ttl,
		store:     store,
		submitter: submitter,
		now:       time.Now,
	}
}

// Start opens a new flow at REVIEW for the given user and tournament.
func (m *SessionManager) Start(tournamentID, userID string) (string, *RegistrationFlow, error) {
	if tournamentID == "" {
		return "", nil, models.NewValidationError("tournament_id", "tournament id is required")
	}
	if userID == "" {
		return "", nil, models.NewValidationError("user_id", "user identity is required")
	}
	id := uuid.NewString()
	flow := NewRegistrationFlow(tournamentID, userID, m.store, m.submitter, m.now)

	m.mu.Lock()
	m.sessions[id] = &session{flow: flow, lastSeen: m.now()}
	m.mu.Unlock()

	log.Printf("[SESSIONS] ▶️ session %s opened user=%s tournament=%s", id, userID, tournamentID)
	return id, flow, nil
}

// Get returns the flow if it exists and belongs to userID. Other users' sessions look missing.
func (m *SessionManager) Get(id, userID string) (*RegistrationFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.flow.UserID() != userID {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	s.lastSeen = m.now()
	return s.flow, nil
}

// Cancel abandons and forgets the session.
func (m *SessionManager) Cancel(id, userID string) error {
	flow, err := m.Get(id, userID)
	if err != nil {
		return err
	}
	flow.Cancel()
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	log.Printf("[SESSIONS] ⏹️ session %s cancelled", id)
	return nil
}

// Sweep drops sessions idle longer than the TTL, skipping any with a request in flight.
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) < m.ttl {
			continue
		}
		if s.flow.State().Loading {
			continue
		}
		s.flow.Cancel()
		delete(m.sessions, id)
		removed++
	}
	return removed
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartSweeper runs Sweep on a gocron duration job.
func (m *SessionManager) StartSweeper(every time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if n := m.Sweep(); n > 0 {
				log.Printf("[SESSIONS] 🧹 expired %d idle session(s)", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	sched.Start()
	m.sched = sched
	return nil
}

func (m *SessionManager) Stop() {
	if m.sched != nil {
		if err := m.sched.Shutdown(); err != nil {
			log.Printf("[SESSIONS] scheduler shutdown: %v", err)
		}
	}
}
