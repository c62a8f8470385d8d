package model

import "time"

// PushSubscription holds a browser push subscription of an operator who
// wants to be told when one of their terminals drops offline.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Terminals []*Terminal `gorm:"many2many:subscription_terminal_mapping;"`
}
