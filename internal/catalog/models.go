package catalog

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type TrackModel struct {
	ID          string `gorm:"primaryKey"`
	Prompt      string `gorm:"not null"`
	Title       string `gorm:"not null"`
	CoverImage  string
	GroupID     string `gorm:"index"`
	Variation   int
	IsLiked     bool
	IsDisliked  bool
	CreatedAt   time.Time `gorm:"not null"`
	CompletedAt *time.Time
}

type VersionModel struct {
	ID       string `gorm:"primaryKey"`
	TrackID  string `gorm:"not null;index"`
	Version  int    `gorm:"not null"`
	Duration int    `gorm:"not null"`
	Waveform datatypes.JSON
}
