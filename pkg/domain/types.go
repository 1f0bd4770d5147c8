package domain

import "time"

type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusGenerating GenerationStatus = "generating"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// Terminal reports whether a status admits no further transitions.
func (s GenerationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Generation is one unit of simulated music-generation work. Paired
// generations share GroupID, Prompt, Title and CoverImage but carry
// independent progress and terminal outcomes.
type Generation struct {
	ID            string              `json:"id"`
	Prompt        string              `json:"prompt"`
	Title         string              `json:"title"`
	Status        GenerationStatus    `json:"status"`
	Progress      int                 `json:"progress"`
	StatusMessage string              `json:"statusMessage,omitempty"`
	Error         string              `json:"error,omitempty"`
	Versions      []GenerationVersion `json:"versions"`
	CoverImage    string              `json:"coverImage,omitempty"`
	IsLiked       bool                `json:"isLiked,omitempty"`
	IsDisliked    bool                `json:"isDisliked,omitempty"`
	IsNew         bool                `json:"isNew,omitempty"`
	GroupID       string              `json:"groupId,omitempty"`
	Variation     int                 `json:"variationNumber,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
}

// GenerationVersion is one finished take of a generation.
type GenerationVersion struct {
	ID           string    `json:"id"`
	Version      int       `json:"version"`
	Duration     int       `json:"duration"`
	AudioURL     string    `json:"audioUrl,omitempty"`
	WaveformData []float64 `json:"waveformData"`
}

// UserProfile is the demo account shown in the profile surface.
type UserProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
	Credits     int    `json:"credits"`
	MaxCredits  int    `json:"maxCredits"`
}
