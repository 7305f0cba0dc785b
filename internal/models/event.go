package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is an activity people can register for at the kiosk.
type Event struct {
	BaseModel
	ChurchID  uuid.UUID       `gorm:"type:uuid;index" json:"church_id"`
	Title     string          `json:"title"`
	Location  string          `json:"location"`
	StartsAt  time.Time       `json:"starts_at"`
	EndsAt    *time.Time      `json:"ends_at,omitempty"`
	Attendees []EventAttendee `json:"attendees,omitempty"`
}

// EventAttendee is one registered person. MemberID is the opaque directory
// identifier; for guests created during submission it is filled with the id
// the directory assigned to the new pre-visitor.
type EventAttendee struct {
	BaseModel
	EventID      uuid.UUID  `gorm:"type:uuid;index" json:"event_id"`
	SubmissionID *uuid.UUID `gorm:"type:uuid;index" json:"submission_id,omitempty"`
	MemberID     string     `gorm:"index" json:"member_id"`
	FullName     string     `json:"full_name"`
	Phone        string     `json:"phone"`
	Gender       string     `json:"gender,omitempty"`
	DateOfBirth  string     `json:"date_of_birth,omitempty"`
	IsNewGuest   bool       `json:"is_new_guest"`
	TempID       string     `json:"temp_id,omitempty"`
}

// RosterSubmission groups the attendees added together in one kiosk
// submission, the way an order header groups its line items.
type RosterSubmission struct {
	BaseModel
	ChurchID       uuid.UUID `gorm:"type:uuid;index" json:"church_id"`
	EventID        uuid.UUID `gorm:"type:uuid;index" json:"event_id"`
	SessionID      string    `json:"session_id"`
	SubmittedPhone string    `json:"submitted_phone"`
	EntryCount     int       `json:"entry_count"`
}
