package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TerminalStatus is the observed liveness of a terminal, inferred from its
// heartbeat gap by the availability sweep.
type TerminalStatus int

const (
	StatusOnline       TerminalStatus = 0
	StatusOfflineShort TerminalStatus = 1 // no heartbeat for over 5 minutes
	StatusOfflineLong  TerminalStatus = 2 // no heartbeat for over an hour
)

func (s TerminalStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOfflineShort:
		return "offline_short"
	case StatusOfflineLong:
		return "offline_long"
	}
	return "unknown"
}

// Terminal is an unattended broadcast kiosk. Operators create and schedule
// it; the terminal itself only mutates version and hardware info via
// check-in. Rows are soft-deleted because orders keep referencing them.
type Terminal struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Article     int    `gorm:"uniqueIndex;not null" json:"article"`
	Name        string `gorm:"uniqueIndex;size:255;not null" json:"name"`
	OwnerID     string `gorm:"size:64" json:"owner_id"`
	Description string `json:"description,omitempty"`
	Timezone    string `gorm:"size:31;not null;default:Etc/GMT-7" json:"timezone"`
	Version     string `gorm:"size:127" json:"version"`
	// Settings holds the per-weekday broadcast schedule, keyed mon..sun.
	Settings  Schedule  `json:"settings"`
	HWInfo    JSON      `gorm:"column:hw_info" json:"hw_info,omitempty"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"-"`
}

func (t *Terminal) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Schedule is the broadcast schedule JSON. It is stored opaquely but its
// top-level keys are validated on write.
type Schedule = JSON

// ScheduleDays are the only keys a terminal schedule may carry.
var ScheduleDays = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// ValidateSchedule checks a schedule document before it is stored. It must
// be a JSON object keyed by ScheduleDays; the per-day values are opaque to
// the backend and travel to the terminal as-is. An empty document is fine.
func ValidateSchedule(raw Schedule) error {
	if len(raw) == 0 {
		return nil
	}
	var schedule map[string]json.RawMessage
	if err := json.Unmarshal(raw, &schedule); err != nil {
		return fmt.Errorf("schedule must be a JSON object keyed by weekday: %w", err)
	}
	for key := range schedule {
		known := false
		for _, day := range ScheduleDays {
			if key == day {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown schedule day %q", key)
		}
	}
	return nil
}

// Availability is the single live liveness record of a terminal. Check-in
// upserts the timestamp; only the availability sweep writes the status.
type Availability struct {
	TerminalID string         `gorm:"type:uuid;primaryKey" json:"terminal_id"`
	Status     TerminalStatus `gorm:"not null;default:2;index" json:"status"`
	LastSeenAt time.Time      `gorm:"not null" json:"last_seen_at"`

	Terminal Terminal `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// StatusHistory is the append-only log of availability transitions.
type StatusHistory struct {
	ID         int64          `gorm:"autoIncrement;primaryKey" json:"id"`
	TerminalID string         `gorm:"type:uuid;not null;index" json:"terminal_id"`
	Status     TerminalStatus `gorm:"not null" json:"status"`
	ChangedAt  time.Time      `gorm:"not null;index" json:"changed_at"`

	Terminal Terminal `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
