package models

import (
	"time"

	"github.com/google/uuid"
)

// KioskDevice is a registered check-in terminal. The selected church context
// is the only state that survives across check-in sessions; it lives here.
type KioskDevice struct {
	BaseModel
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	ChurchID   *uuid.UUID `gorm:"type:uuid" json:"church_id"`
	Church     *Church    `json:"church,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}
