package flow

import (
	"errors"
	"fmt"
	"time"
)

// OtpStatus describes where a verification attempt is in its lifecycle.
type OtpStatus string

const (
	OtpIdle         OtpStatus = "idle"
	OtpSending      OtpStatus = "sending"
	OtpAwaitingCode OtpStatus = "awaiting_code"
	OtpVerifying    OtpStatus = "verifying"
	OtpVerified     OtpStatus = "verified"
	OtpFailed       OtpStatus = "failed"
	OtpExpired      OtpStatus = "expired"
)

const (
	// DefaultExpirySeconds applies when the server omits expires_in_seconds.
	DefaultExpirySeconds = 300
	// ResendCooldown is the fixed wait after each successful send.
	ResendCooldown = 60 * time.Second
)

var (
	ErrOtpBusy         = errors.New("otp request already in flight")
	ErrOtpNotActive    = errors.New("no active otp session")
	ErrCodeIncorrect   = errors.New("incorrect verification code")
	ErrResendCooldown  = errors.New("resend not yet available")
	ErrAlreadyVerified = errors.New("phone already verified")
)

// OtpSender issues and checks codes for a phone number. Implemented by the
// member-directory client; tests supply fakes.
type OtpSender interface {
	SendOTP(phone, churchID string) (expiresInSeconds int, err error)
	VerifyOTP(phone, code string) (bool, error)
}

// OtpSession owns issuance, countdown to expiration, resend cooldown and
// verification outcome for one phone number. Expiration and cooldown are two
// absolute deadlines compared against a single clock read, never two
// decrementing counters. The session is not safe for concurrent use; the
// owning check-in session serializes access.
type OtpSession struct {
	phone    string
	churchID string
	sender   OtpSender
	now      func() time.Time

	defaultExpiry time.Duration
	cooldown      time.Duration

	status            OtpStatus
	expiresAt         time.Time
	resendAvailableAt time.Time
	lastErr           string
}

// NewOtpSession creates an idle session for phone with the default expiry
// and cooldown windows. clock may be nil, in which case time.Now is used.
func NewOtpSession(phone, churchID string, sender OtpSender, clock func() time.Time) *OtpSession {
	return NewOtpSessionWindows(phone, churchID, sender, clock, 0, 0)
}

// NewOtpSessionWindows creates an idle session with explicit windows.
// defaultExpiry applies only when the server omits the validity field;
// non-positive values fall back to the package defaults.
func NewOtpSessionWindows(phone, churchID string, sender OtpSender, clock func() time.Time, defaultExpiry, cooldown time.Duration) *OtpSession {
	if clock == nil {
		clock = time.Now
	}
	if defaultExpiry <= 0 {
		defaultExpiry = DefaultExpirySeconds * time.Second
	}
	if cooldown <= 0 {
		cooldown = ResendCooldown
	}
	return &OtpSession{
		phone:         phone,
		churchID:      churchID,
		sender:        sender,
		now:           clock,
		defaultExpiry: defaultExpiry,
		cooldown:      cooldown,
		status:        OtpIdle,
	}
}

// Phone returns the number under verification.
func (s *OtpSession) Phone() string { return s.phone }

// Status returns the current lifecycle state.
func (s *OtpSession) Status() OtpStatus { return s.status }

// LastError returns the user-visible message from the most recent failure,
// empty when the last operation succeeded.
func (s *OtpSession) LastError() string { return s.lastErr }

// Send requests issuance of a fresh code. Valid from idle only; use Resend
// afterwards. On transport failure the state is left unchanged and the error
// is recoverable by retrying.
func (s *OtpSession) Send() error {
	switch s.status {
	case OtpIdle:
		return s.issue(OtpIdle)
	case OtpSending, OtpVerifying:
		return ErrOtpBusy
	case OtpVerified:
		return ErrAlreadyVerified
	default:
		return s.Resend()
	}
}

// Resend requests a fresh code once the cooldown has elapsed. A resend resets
// both the expiration window and the cooldown; expiration of the current code
// never shortens the cooldown. Resending before expiry is allowed; the
// server invalidates the prior code and the client only restarts its timers.
func (s *OtpSession) Resend() error {
	switch s.status {
	case OtpSending, OtpVerifying:
		return ErrOtpBusy
	case OtpVerified:
		return ErrAlreadyVerified
	case OtpIdle:
		return s.issue(OtpIdle)
	}
	if s.now().Before(s.resendAvailableAt) {
		return ErrResendCooldown
	}
	return s.issue(s.status)
}

func (s *OtpSession) issue(revert OtpStatus) error {
	s.status = OtpSending
	expiresIn, err := s.sender.SendOTP(s.phone, s.churchID)
	if err != nil {
		s.status = revert
		s.lastErr = "failed to send verification code"
		return err
	}
	expiry := time.Duration(expiresIn) * time.Second
	if expiresIn <= 0 {
		expiry = s.defaultExpiry
	}
	now := s.now()
	s.expiresAt = now.Add(expiry)
	s.resendAvailableAt = now.Add(s.cooldown)
	s.status = OtpAwaitingCode
	s.lastErr = ""
	return nil
}

// SubmitCode checks the user-entered code against the server. On a wrong
// code the session returns to awaiting_code with the input cleared; failed
// attempts are not counted client-side. The server's answer is authoritative:
// a code the server still accepts verifies the session even if the local
// countdown already showed expired.
func (s *OtpSession) SubmitCode(code string) error {
	switch s.status {
	case OtpAwaitingCode, OtpExpired, OtpFailed:
	case OtpSending, OtpVerifying:
		return ErrOtpBusy
	case OtpVerified:
		return ErrAlreadyVerified
	default:
		return ErrOtpNotActive
	}

	revert := s.status
	s.status = OtpVerifying
	ok, err := s.sender.VerifyOTP(s.phone, code)
	if err != nil {
		// Transport failure, recoverable by retry.
		if revert == OtpExpired {
			s.status = OtpExpired
		} else {
			s.status = OtpFailed
		}
		s.lastErr = "verification request failed"
		return err
	}
	if !ok {
		if revert == OtpExpired {
			s.status = OtpExpired
		} else {
			s.status = OtpAwaitingCode
		}
		s.lastErr = "incorrect verification code"
		return ErrCodeIncorrect
	}
	s.status = OtpVerified
	s.lastErr = ""
	return nil
}

// Tick recomputes the remaining validity window and flips the state to
// expired when it reaches zero. Intended to be driven once per second (or on
// every snapshot read); the resend cooldown is tracked independently and does
// not depend on Tick.
func (s *OtpSession) Tick() {
	switch s.status {
	case OtpAwaitingCode, OtpFailed:
		if !s.now().Before(s.expiresAt) {
			s.status = OtpExpired
		}
	}
}

// RemainingSeconds returns whole seconds until the code expires, clamped at
// zero.
func (s *OtpSession) RemainingSeconds() int {
	return secondsUntil(s.now(), s.expiresAt)
}

// ResendInSeconds returns whole seconds until resend becomes available,
// clamped at zero.
func (s *OtpSession) ResendInSeconds() int {
	return secondsUntil(s.now(), s.resendAvailableAt)
}

// CanResend reports whether the cooldown has elapsed, regardless of whether
// the current code has expired.
func (s *OtpSession) CanResend() bool {
	switch s.status {
	case OtpAwaitingCode, OtpExpired, OtpFailed:
		return !s.now().Before(s.resendAvailableAt)
	}
	return false
}

func secondsUntil(now, deadline time.Time) int {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	// Round up so a freshly issued 300s window reads as 300, not 299.
	return int((remaining + time.Second - 1) / time.Second)
}

// FormatCountdown renders remaining whole seconds as minutes:seconds with
// zero-padded seconds, matching the kiosk display: a full 300s window reads
// "4:60" and counts down through "4:59" … "0:01", "0:00".
func FormatCountdown(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	minutes := (seconds - 1) / 60
	return fmt.Sprintf("%d:%02d", minutes, seconds-minutes*60)
}
