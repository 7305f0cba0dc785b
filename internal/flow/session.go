package flow

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrPhoneTooShort    = errors.New("phone number needs at least 10 digits")
	ErrNotVerified      = errors.New("phone is not verified yet")
	ErrSessionClosed    = errors.New("session is closed")
	ErrAlreadyCheckedIn = errors.New("already checked in")
)

// SessionConfig carries the per-church knobs for one check-in session.
type SessionConfig struct {
	ChurchID       string
	CountryCode    string
	Debounce       time.Duration
	OtpExpiry      time.Duration // default validity when the server omits it
	ResendCooldown time.Duration
	RequireGender  bool
	Clock          func() time.Time
}

// Session owns the identity-resolution and phone-verification state for one
// kiosk interaction: the normalized phone, the resolved member (if any), the
// OTP session, the person selector and the staged roster. The roster is
// mutated only through FinalizeCompanion and RemoveCompanion. All methods are
// safe for concurrent use; the mutex gives the flow its single-threaded,
// event-driven semantics.
type Session struct {
	mu sync.Mutex

	id        string
	cfg       SessionConfig
	directory Directory

	createdAt  time.Time
	lastActive time.Time

	phone    string
	member   *Member // resolved existing member, nil on the new-guest path
	resolved bool    // lookup completed for the current phone

	otp       *OtpSession
	selector  *PersonSelector
	registrar *Registrar
	roster    []RosterEntry

	checkedInAt *time.Time
	closed      bool
}

// NewSession builds an empty session. The identity-resolution state is never
// persisted; it is rebuilt each time the flow is entered.
func NewSession(id string, directory Directory, cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	now := cfg.Clock()
	return &Session{
		id:         id,
		cfg:        cfg,
		directory:  directory,
		createdAt:  now,
		lastActive: now,
		registrar:  NewRegistrar(directory, cfg.ChurchID, cfg.CountryCode, cfg.RequireGender, cfg.Clock),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ChurchID returns the directory identifier of the church this session
// serves.
func (s *Session) ChurchID() string { return s.cfg.ChurchID }

// LastActive returns the time of the most recent user action, for janitor
// sweeps.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touchLocked() {
	s.lastActive = s.cfg.Clock()
}

// SubmitPhone normalizes the raw input, resolves it against the member
// directory and requests an OTP. Entering a different number than before
// destroys the previous OTP session and starts over. Lookup and send
// failures are recoverable; the caller may retry.
func (s *Session) SubmitPhone(raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if CountDigits(raw) < MinPhoneDigits {
		return ErrPhoneTooShort
	}
	s.touchLocked()

	phone := NormalizePhoneCountry(raw, s.cfg.CountryCode)
	if phone != s.phone {
		// A different number resets the whole verification state.
		s.phone = phone
		s.member = nil
		s.resolved = false
		s.otp = nil
		if s.selector != nil {
			s.selector.Close()
			s.selector = nil
		}
	}

	if !s.resolved {
		member, err := s.directory.LookupMemberByPhone(phone, s.cfg.ChurchID)
		if err != nil {
			return err
		}
		s.member = member
		s.resolved = true
	}

	if s.otp == nil {
		s.otp = NewOtpSessionWindows(phone, s.cfg.ChurchID, s.directory, s.cfg.Clock, s.cfg.OtpExpiry, s.cfg.ResendCooldown)
	}
	return s.otp.Send()
}

// Member returns the directory record the phone resolved to, nil on the
// new-guest path.
func (s *Session) Member() *Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.member
}

// ResendOTP requests a fresh code once the cooldown elapsed.
func (s *Session) ResendOTP() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.otp == nil {
		return ErrOtpNotActive
	}
	s.touchLocked()
	return s.otp.Resend()
}

// SubmitCode verifies the entered code. On success the selection flow is
// unlocked, with the resolved member (when known) as the self context.
func (s *Session) SubmitCode(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.otp == nil {
		return ErrOtpNotActive
	}
	s.touchLocked()
	if err := s.otp.SubmitCode(code); err != nil {
		return err
	}
	if s.selector == nil {
		s.selector = NewPersonSelector(s.member, s.searchFunc(), s.cfg.Debounce, nil)
	}
	return nil
}

func (s *Session) searchFunc() SearchFunc {
	churchID := s.cfg.ChurchID
	directory := s.directory
	return func(query string) ([]Member, error) {
		return directory.SearchMembers(query, churchID)
	}
}

// Verified reports whether the current phone passed OTP verification.
func (s *Session) Verified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otp != nil && s.otp.Status() == OtpVerified
}

// Selector exposes the person-selection state machine. Nil until the phone
// has been verified.
func (s *Session) Selector() (*PersonSelector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selector == nil {
		return nil, ErrNotVerified
	}
	s.touchLocked()
	return s.selector, nil
}

// FinalizeCompanion validates the current selection and appends the resulting
// entry to the roster. registered is the set of member IDs already registered
// for the event in question. The selector is cleared on success, closing the
// input surface.
func (s *Session) FinalizeCompanion(registered []string) (RosterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RosterEntry{}, ErrSessionClosed
	}
	if s.selector == nil {
		return RosterEntry{}, ErrNotVerified
	}
	s.touchLocked()

	entry, err := s.registrar.Finalize(s.selector.Selection(), s.roster, registered)
	if err != nil {
		return RosterEntry{}, err
	}
	s.roster = append(s.roster, entry)
	s.selector.Clear()
	return entry, nil
}

// RemoveCompanion drops the entry with the given key (member ID or temp ID).
func (s *Session) RemoveCompanion(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.roster {
		if entry.Key() == key {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			s.touchLocked()
			return true
		}
	}
	return false
}

// Roster returns a copy of the staged entries.
func (s *Session) Roster() []RosterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	roster := make([]RosterEntry, len(s.roster))
	copy(roster, s.roster)
	return roster
}

// ClearRoster empties the staged list, typically after a successful
// submission.
func (s *Session) ClearRoster() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = nil
}

// CheckedIn reports whether the session already produced a check-in.
func (s *Session) CheckedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkedInAt != nil
}

// MarkCheckedIn records the check-in moment. Requires a verified phone.
func (s *Session) MarkCheckedIn() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.otp == nil || s.otp.Status() != OtpVerified {
		return time.Time{}, ErrNotVerified
	}
	if s.checkedInAt != nil {
		return *s.checkedInAt, ErrAlreadyCheckedIn
	}
	now := s.cfg.Clock()
	s.checkedInAt = &now
	return now, nil
}

// OtpSnapshot is the display state of the verification step.
type OtpSnapshot struct {
	Status           OtpStatus `json:"status"`
	RemainingSeconds int       `json:"remaining_seconds"`
	Display          string    `json:"display"`
	CanResend        bool      `json:"can_resend"`
	ResendInSeconds  int       `json:"resend_in_seconds"`
	Error            string    `json:"error,omitempty"`
}

// Snapshot is the full client-facing view of one session.
type Snapshot struct {
	ID          string         `json:"id"`
	Phone       string         `json:"phone,omitempty"`
	Member      *Member        `json:"member,omitempty"`
	KnownMember bool           `json:"known_member"`
	Otp         *OtpSnapshot   `json:"otp,omitempty"`
	Verified    bool           `json:"verified"`
	Selection   *SelectedPerson `json:"selection,omitempty"`
	Roster      []RosterEntry  `json:"roster"`
	CheckedInAt *time.Time     `json:"checked_in_at,omitempty"`
}

// Snapshot ticks the OTP countdown against the current clock and returns the
// session view. Reading a snapshot stands in for the once-per-second tick:
// remaining time is recomputed from the absolute deadlines on every read.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		Phone:       s.phone,
		Member:      s.member,
		KnownMember: s.member != nil,
		Roster:      append([]RosterEntry(nil), s.roster...),
		CheckedInAt: s.checkedInAt,
	}
	if snap.Roster == nil {
		snap.Roster = []RosterEntry{}
	}
	if s.otp != nil {
		s.otp.Tick()
		remaining := s.otp.RemainingSeconds()
		snap.Otp = &OtpSnapshot{
			Status:           s.otp.Status(),
			RemainingSeconds: remaining,
			Display:          FormatCountdown(remaining),
			CanResend:        s.otp.CanResend(),
			ResendInSeconds:  s.otp.ResendInSeconds(),
			Error:            s.otp.LastError(),
		}
		snap.Verified = s.otp.Status() == OtpVerified
	}
	if s.selector != nil {
		sel := s.selector.Selection()
		snap.Selection = &sel
	}
	return snap
}

// Close tears the session down, cancelling pending selector timers. Any
// in-flight network call resolves into a closed selector and is ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.selector != nil {
		s.selector.Close()
	}
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
