package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tournament is the read-only snapshot the registration flow consumes.
// RegisteredTeams is only ever moved by the conditional increment in the store.
type Tournament struct {
	ID                    string          `json:"id" gorm:"primaryKey"`
	Name                  string          `json:"name" gorm:"not null"`
	Game                  string          `json:"game"`
	EntryFee              decimal.Decimal `json:"entry_fee" gorm:"type:numeric(20,2);not null;default:0"`
	Currency              string          `json:"currency" gorm:"type:varchar(3);not null;default:'NGN'"`
	PrizePool             decimal.Decimal `json:"prize_pool" gorm:"type:numeric(20,2);not null;default:0"`
	MaxTeams              int             `json:"max_teams" gorm:"not null;default:0"`
	RegisteredTeams       int             `json:"registered_teams" gorm:"not null;default:0"`
	TeamSize              int             `json:"team_size" gorm:"not null;default:1"`
	StartTime             time.Time       `json:"start_time" gorm:"not null"`
	EndTime               *time.Time      `json:"end_time,omitempty"`
	RegistrationStartTime *time.Time      `json:"registration_start_time,omitempty"`
	RegistrationEndTime   *time.Time      `json:"registration_end_time,omitempty"`
	CreatedAt             time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

type TournamentStatus string

const (
	TournamentUpcoming   TournamentStatus = "UPCOMING"
	TournamentStartsSoon TournamentStatus = "STARTS_SOON"
	TournamentRoomOpen   TournamentStatus = "ROOM_OPEN"
	TournamentOngoing    TournamentStatus = "ONGOING"
	TournamentCompleted  TournamentStatus = "COMPLETED"
)

const (
	startsSoonWindow   = time.Hour
	roomOpenWindow     = 15 * time.Minute
	defaultMatchLength = 3 * time.Hour
)

// EndsAt falls back to StartTime plus the default match length when EndTime is unset.
func (t Tournament) EndsAt() time.Time {
	if t.EndTime != nil {
		return *t.EndTime
	}
	return t.StartTime.Add(defaultMatchLength)
}

// Status is computed against the supplied clock, never stored.
func (t Tournament) Status(now time.Time) TournamentStatus {
	switch {
	case !now.Before(t.EndsAt()):
		return TournamentCompleted
	case !now.Before(t.StartTime):
		return TournamentOngoing
	case !now.Before(t.StartTime.Add(-roomOpenWindow)):
		return TournamentRoomOpen
	case !now.Before(t.StartTime.Add(-startsSoonWindow)):
		return TournamentStartsSoon
	default:
		return TournamentUpcoming
	}
}

// AvailableSlots never goes negative, even for misconfigured MaxTeams.
func (t Tournament) AvailableSlots() int {
	if t.MaxTeams <= 0 || t.RegisteredTeams >= t.MaxTeams {
		return 0
	}
	return t.MaxTeams - t.RegisteredTeams
}

// EffectiveTeamSize treats an unset team size as solo entry.
func (t Tournament) EffectiveTeamSize() int {
	if t.TeamSize < 1 {
		return 1
	}
	return t.TeamSize
}
