package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommandStatus tracks a command through the pull-based delivery cycle.
// Only the owning terminal (via check-in) or an operator cancelling before
// dispatch may move it.
type CommandStatus int

const (
	CommandPending    CommandStatus = 0
	CommandInProgress CommandStatus = 1
	CommandDone       CommandStatus = 2
	CommandCancelled  CommandStatus = 3
	CommandError      CommandStatus = 4
)

func (s CommandStatus) String() string {
	switch s {
	case CommandPending:
		return "pending"
	case CommandInProgress:
		return "in_progress"
	case CommandDone:
		return "done"
	case CommandCancelled:
		return "cancelled"
	case CommandError:
		return "error"
	}
	return "unknown"
}

// CommandType is the fixed wire enumeration terminals execute against.
// Background create types equal their content category value; the cancel
// and update blocks are offset lookups resolved in the fleet package.
type CommandType int

const (
	// create order
	CmdBgMusic CommandType = 0
	CmdBgImage CommandType = 1
	CmdBgVideo CommandType = 2
	CmdTicker  CommandType = 3
	CmdAd      CommandType = 4
	// cancel order
	CmdCancelBgMusic CommandType = 5
	CmdCancelBgImage CommandType = 6
	CmdCancelBgVideo CommandType = 7
	CmdCancelTicker  CommandType = 8
	CmdCancelAd      CommandType = 9
	// update order
	CmdUpdateBgMusic CommandType = 10
	CmdUpdateBgImage CommandType = 11
	CmdUpdateBgVideo CommandType = 12
	CmdUpdateTicker  CommandType = 13
	CmdUpdateAd      CommandType = 14
	// administrative
	CmdReboot         CommandType = 15
	CmdSoftwareUpdate CommandType = 16
	CmdShellCustom    CommandType = 17
	CmdSettingsPush   CommandType = 18
)

// Command is the unit of the ledger: one instruction queued for one
// terminal. Rows are append-only except for status.
type Command struct {
	ID         string        `gorm:"type:uuid;primaryKey" json:"id"`
	TerminalID string        `gorm:"type:uuid;not null;index" json:"terminal_id"`
	OwnerID    string        `gorm:"size:64" json:"owner_id"`
	Type       CommandType   `gorm:"not null" json:"type"`
	Parameters JSON          `json:"parameters,omitempty"`
	Status     CommandStatus `gorm:"not null;default:0" json:"status"`
	CreatedAt  time.Time     `json:"created"`
	UpdatedAt  time.Time     `json:"updated"`

	Terminal Terminal `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

func (c *Command) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
