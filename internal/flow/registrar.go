package flow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// RosterEntryType distinguishes entries backed by a directory record from
// freshly-authored guests awaiting server-side creation.
type RosterEntryType string

const (
	RosterExisting RosterEntryType = "existing"
	RosterNew      RosterEntryType = "new"
)

// RosterEntry is a finalized item ready for group submission. Immutable after
// creation; removed only by explicit user action on the roster.
type RosterEntry struct {
	Type        RosterEntryType `json:"type"`
	MemberID    string          `json:"member_id,omitempty"`
	TempID      string          `json:"temp_id,omitempty"`
	FullName    string          `json:"full_name"`
	Phone       string          `json:"phone,omitempty"`
	PhotoURL    string          `json:"photo,omitempty"`
	Gender      string          `json:"gender,omitempty"`
	DateOfBirth string          `json:"date_of_birth,omitempty"`
}

// Key returns the identifier used for roster membership and removal: the
// member ID for existing entries, the client-generated temp ID otherwise.
func (e RosterEntry) Key() string {
	if e.Type == RosterExisting {
		return e.MemberID
	}
	return e.TempID
}

// ValidationError blocks finalize until the named field is corrected.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// DuplicateError carries the classification so the caller can show which
// collection the candidate conflicts with.
type DuplicateError struct {
	Candidate      string
	Classification Classification
}

func (e *DuplicateError) Error() string {
	if e.Classification.AlreadyRegistered {
		return "person is already registered for this event"
	}
	return "person is already in the list"
}

// PhoneChecker is the slice of the directory the registrar needs: an exact
// point lookup to catch manual entries colliding with known members.
type PhoneChecker interface {
	LookupMemberByPhone(phone, churchID string) (*Member, error)
}

// Registrar turns an accepted selection into a roster entry. Validation runs
// in a fixed order, first failure wins: required fields, manual-phone
// collision with the directory, then duplicate classification.
type Registrar struct {
	directory     PhoneChecker
	churchID      string
	requireGender bool
	countryCode   string
	now           func() time.Time
}

// NewRegistrar builds a registrar for one church context. requireGender makes
// gender mandatory for manual entries.
func NewRegistrar(directory PhoneChecker, churchID, countryCode string, requireGender bool, clock func() time.Time) *Registrar {
	if clock == nil {
		clock = time.Now
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return &Registrar{
		directory:     directory,
		churchID:      churchID,
		requireGender: requireGender,
		countryCode:   countryCode,
		now:           clock,
	}
}

// Finalize validates the selection against the staged roster and the
// already-registered set, and synthesizes the roster entry. It does not
// mutate the roster; the owning session appends on success.
func (r *Registrar) Finalize(sel SelectedPerson, roster []RosterEntry, registered []string) (RosterEntry, error) {
	switch sel.Mode {
	case ModeSelf, ModeSelected:
		return r.finalizeExisting(sel, roster, registered)
	case ModeManual:
		return r.finalizeManual(sel, roster)
	default:
		return RosterEntry{}, &ValidationError{Field: "mode", Message: "no person selected"}
	}
}

func (r *Registrar) finalizeExisting(sel SelectedPerson, roster []RosterEntry, registered []string) (RosterEntry, error) {
	if sel.Member == nil || sel.Member.ID == "" {
		return RosterEntry{}, &ValidationError{Field: "member", Message: "no member selected"}
	}
	if c := Classify(sel.Member.ID, roster, registered); c.Duplicate() {
		return RosterEntry{}, &DuplicateError{Candidate: sel.Member.ID, Classification: c}
	}
	return RosterEntry{
		Type:     RosterExisting,
		MemberID: sel.Member.ID,
		FullName: sel.Member.FullName,
		Phone:    sel.Member.Phone,
		PhotoURL: sel.Member.PhotoURL,
	}, nil
}

func (r *Registrar) finalizeManual(sel SelectedPerson, roster []RosterEntry) (RosterEntry, error) {
	if sel.ManualName == "" {
		return RosterEntry{}, &ValidationError{Field: "name", Message: "name is required"}
	}
	if sel.ManualPhone == "" {
		return RosterEntry{}, &ValidationError{Field: "phone", Message: "phone is required"}
	}
	phone := NormalizePhoneCountry(sel.ManualPhone, r.countryCode)
	if !ValidPhone(phone) {
		return RosterEntry{}, &ValidationError{Field: "phone", Message: "phone number is too short"}
	}
	if r.requireGender && sel.Supplement.Gender == "" {
		return RosterEntry{}, &ValidationError{Field: "gender", Message: "gender is required"}
	}

	// A manual entry whose phone belongs to a known member must go through
	// the add-existing path instead of creating a duplicate account.
	existing, err := r.directory.LookupMemberByPhone(phone, r.churchID)
	if err != nil {
		return RosterEntry{}, fmt.Errorf("check phone against directory: %w", err)
	}
	if existing != nil {
		return RosterEntry{}, &ValidationError{
			Field:   "phone",
			Message: "this number belongs to an existing member, use add existing member instead",
		}
	}

	if phoneInRoster(phone, roster) {
		return RosterEntry{}, &DuplicateError{Candidate: phone, Classification: Classification{InRoster: true}}
	}

	return RosterEntry{
		Type:        RosterNew,
		TempID:      r.newTempID(),
		FullName:    sel.ManualName,
		Phone:       phone,
		Gender:      sel.Supplement.Gender,
		DateOfBirth: sel.Supplement.BirthDate,
		PhotoURL:    sel.Supplement.PhotoURL,
	}, nil
}

// newTempID generates a token unique within the session: millisecond
// timestamp plus a random suffix. Not cryptographic, just never reused.
func (r *Registrar) newTempID() string {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("tmp-%d", r.now().UnixNano())
	}
	return fmt.Sprintf("tmp-%d-%s", r.now().UnixMilli(), hex.EncodeToString(suffix))
}
