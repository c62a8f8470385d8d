package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContentCategory tags a file (and a background order) with its media kind.
type ContentCategory int

const (
	CategoryMusic  ContentCategory = 0
	CategoryImage  ContentCategory = 1
	CategoryVideo  ContentCategory = 2
	CategoryTicker ContentCategory = 3
	CategoryAd     ContentCategory = 4
)

func (c ContentCategory) String() string {
	switch c {
	case CategoryMusic:
		return "music"
	case CategoryImage:
		return "image"
	case CategoryVideo:
		return "video"
	case CategoryTicker:
		return "ticker"
	case CategoryAd:
		return "ad"
	}
	return "unknown"
}

// File is a content-addressed media asset. The bytes live in external
// storage; the backend only registers identity and digests. Hash is the
// concatenation of the md5 and sha256 digests and is what terminals use to
// verify downloaded content.
type File struct {
	ID        string          `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	OwnerID   string          `gorm:"size:64" json:"owner_id"`
	Category  ContentCategory `gorm:"not null;index" json:"category"`
	MD5       string          `gorm:"size:32;not null" json:"-"`
	SHA256    string          `gorm:"size:64;not null" json:"-"`
	Hash      string          `gorm:"size:96;uniqueIndex;not null" json:"hash"`
	Size      int64           `json:"size"`
	Active    bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time       `json:"created"`
}

func (f *File) BeforeCreate(*gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Hash == "" {
		f.Hash = f.MD5 + f.SHA256
	}
	return nil
}

// Playlist is a set of files sharing one content category. Membership
// mutations on a playlist referenced by an active order fan out update
// commands to the affected terminals.
type Playlist struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	OwnerID     string    `gorm:"size:64" json:"owner_id"`
	Description string    `json:"description,omitempty"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"-"`

	Files []File `gorm:"many2many:playlist_files;" json:"files,omitempty"`
}

func (p *Playlist) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
