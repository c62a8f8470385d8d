package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of a broadcast order. WAITING, ON_AIR
// and COMPLETED advance monotonically by wall clock; CANCELLED and ERROR
// are reachable from WAITING or ON_AIR only.
type OrderStatus int

const (
	OrderWaiting   OrderStatus = 0
	OrderOnAir     OrderStatus = 1
	OrderCompleted OrderStatus = 2
	OrderCancelled OrderStatus = 3
	OrderError     OrderStatus = 4
)

func (s OrderStatus) String() string {
	switch s {
	case OrderWaiting:
		return "waiting"
	case OrderOnAir:
		return "on_air"
	case OrderCompleted:
		return "completed"
	case OrderCancelled:
		return "cancelled"
	case OrderError:
		return "error"
	}
	return "unknown"
}

// BroadcastType selects the ad scheduling variant and decides which
// parameters the validator requires.
type BroadcastType int

const (
	BroadcastFullWindow      BroadcastType = 0 // whole working hours of the terminal
	BroadcastOffsetFromOpen  BroadcastType = 1 // opening time + timedelta
	BroadcastOffsetFromClose BroadcastType = 2 // closing time - timedelta
	BroadcastFixedBoth       BroadcastType = 3 // fixed start and end hours
	BroadcastFixedEnd        BroadcastType = 4 // from opening until a fixed hour
	BroadcastFixedStart      BroadcastType = 5 // from a fixed hour until closing
	BroadcastEventTrigger    BroadcastType = 6 // started by a terminal-side event
)

// OrderBase carries the fields shared by both order kinds. One creation
// request fans out into one row per targeted terminal.
type OrderBase struct {
	ID          string      `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string      `gorm:"size:255;not null" json:"name"`
	Description string      `json:"description,omitempty"`
	OwnerID     string      `gorm:"size:64" json:"owner_id"`
	TerminalID  string      `gorm:"type:uuid;not null;index" json:"terminal_id"`
	PlaylistID  string      `gorm:"type:uuid;not null;index" json:"playlist_id"`
	StartAt     time.Time   `gorm:"not null" json:"start_at"`
	EndAt       time.Time   `gorm:"not null" json:"end_at"`
	Status      OrderStatus `gorm:"not null;default:0;index" json:"status"`
	Parameters  JSON        `json:"parameters,omitempty"`
	CreatedAt   time.Time   `json:"created"`
}

func (o *OrderBase) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// Cancellable reports whether the order may still be cancelled or resent.
func (o *OrderBase) Cancellable() bool {
	return o.Status == OrderWaiting || o.Status == OrderOnAir
}

// AdOrder is a scheduled advertisement broadcast.
type AdOrder struct {
	OrderBase
	BroadcastType BroadcastType `gorm:"not null;default:0" json:"broadcast_type"`
	// Slides maps playlist file ids to overlay slide definitions.
	Slides JSON `json:"slides,omitempty"`

	Terminal Terminal `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Playlist Playlist `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// BgOrder is a scheduled background broadcast (music, image, video or
// ticker, per Category).
type BgOrder struct {
	OrderBase
	Category ContentCategory `gorm:"not null" json:"category"`

	Terminal Terminal `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Playlist Playlist `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}
