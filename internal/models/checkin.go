package models

import "github.com/google/uuid"

// CheckIn records one verified walk-in at a kiosk.
type CheckIn struct {
	BaseModel
	ChurchID uuid.UUID  `gorm:"type:uuid;index" json:"church_id"`
	EventID  *uuid.UUID `gorm:"type:uuid;index" json:"event_id,omitempty"`
	DeviceID *uuid.UUID `gorm:"type:uuid" json:"device_id,omitempty"`
	MemberID string     `gorm:"index" json:"member_id"`
	FullName string     `json:"full_name"`
	Phone    string     `json:"phone"`
	IsGuest  bool       `json:"is_guest"`
}
