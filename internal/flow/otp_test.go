package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeSender struct {
	expiresIn   int
	sendErr     error
	verifyOK    bool
	verifyErr   error
	sendCalls   int
	verifyCalls int
	lastCode    string
}

func (f *fakeSender) SendOTP(phone, churchID string) (int, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	return f.expiresIn, nil
}

func (f *fakeSender) VerifyOTP(phone, code string) (bool, error) {
	f.verifyCalls++
	f.lastCode = code
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	return f.verifyOK, nil
}

func newTestOtp(sender *fakeSender, clock *fakeClock) *OtpSession {
	return NewOtpSession("+6281234567890", "church-1", sender, clock.Now)
}

func TestOtpSendSetsDeadlines(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{expiresIn: 300}
	otp := newTestOtp(sender, clock)

	require.NoError(t, otp.Send())
	assert.Equal(t, OtpAwaitingCode, otp.Status())
	assert.Equal(t, 300, otp.RemainingSeconds())
	assert.Equal(t, 60, otp.ResendInSeconds())
	assert.False(t, otp.CanResend())
}

func TestOtpDefaultExpiryWhenServerOmitsField(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{expiresIn: 0}
	otp := newTestOtp(sender, clock)

	require.NoError(t, otp.Send())
	assert.Equal(t, DefaultExpirySeconds, otp.RemainingSeconds())
}

func TestOtpSendFailureLeavesStateUnchanged(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{sendErr: errors.New("boom")}
	otp := newTestOtp(sender, clock)

	assert.Error(t, otp.Send())
	assert.Equal(t, OtpIdle, otp.Status())
	assert.NotEmpty(t, otp.LastError())

	// Recoverable: a retry after the network heals succeeds.
	sender.sendErr = nil
	sender.expiresIn = 300
	require.NoError(t, otp.Send())
	assert.Equal(t, OtpAwaitingCode, otp.Status())
}

func TestOtpTickExpiresExactlyAtDeadline(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{expiresIn: 300}
	otp := newTestOtp(sender, clock)
	require.NoError(t, otp.Send())

	for i := 0; i < 299; i++ {
		clock.Advance(time.Second)
		otp.Tick()
		assert.Equal(t, OtpAwaitingCode, otp.Status(), "must not expire early at tick %d", i+1)
	}

	clock.Advance(time.Second)
	otp.Tick()
	assert.Equal(t, OtpExpired, otp.Status())
	assert.Equal(t, 0, otp.RemainingSeconds())

	// Further ticks stay expired, no double-firing into another state.
	clock.Advance(time.Second)
	otp.Tick()
	assert.Equal(t, OtpExpired, otp.Status())
}

func TestOtpResendCooldownIndependentOfExpiry(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{expiresIn: 300}
	otp := newTestOtp(sender, clock)
	require.NoError(t, otp.Send())

	// Disabled for exactly 60 seconds after the send.
	clock.Advance(59 * time.Second)
	assert.False(t, otp.CanResend())
	assert.ErrorIs(t, otp.Resend(), ErrResendCooldown)

	clock.Advance(time.Second)
	assert.True(t, otp.CanResend(), "resend opens at 60s while the code is still valid")

	// Resend before expiry resets both windows.
	require.NoError(t, otp.Resend())
	assert.Equal(t, 300, otp.RemainingSeconds())
	assert.Equal(t, 60, otp.ResendInSeconds())
	assert.Equal(t, 2, sender.sendCalls)
}

func TestOtpExpiryDoesNotResetCooldown(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{expiresIn: 30}
	otp := newTestOtp(sender, clock)
	require.NoError(t, otp.Send())

	// Code expires at 30s but the cooldown still runs until 60s.
	clock.Advance(30 * time.Second)
	otp.Tick()
	require.Equal(t, OtpExpired, otp.Status())
	assert.False(t, otp.CanResend())
	assert.Equal(t, 30, otp.ResendInSeconds())

	clock.Advance(30 * time.Second)
	assert.True(t, otp.CanResend())
	require.NoError(t, otp.Resend())
	assert.Equal(t, OtpAwaitingCode, otp.Status())
}

func TestOtpWrongCodeReturnsToAwaiting(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{expiresIn: 300, verifyOK: false}
	otp := newTestOtp(sender, clock)
	require.NoError(t, otp.Send())

	assert.ErrorIs(t, otp.SubmitCode("000000"), ErrCodeIncorrect)
	assert.Equal(t, OtpAwaitingCode, otp.Status())
	assert.NotEmpty(t, otp.LastError())

	sender.verifyOK = true
	require.NoError(t, otp.SubmitCode("123456"))
	assert.Equal(t, OtpVerified, otp.Status())
	assert.Empty(t, otp.LastError())
}

func TestOtpServerVerdictAuthoritativeAfterLocalExpiry(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{expiresIn: 300, verifyOK: true}
	otp := newTestOtp(sender, clock)
	require.NoError(t, otp.Send())

	clock.Advance(301 * time.Second)
	otp.Tick()
	require.Equal(t, OtpExpired, otp.Status())

	// The server still accepts the code; local display reconciles.
	require.NoError(t, otp.SubmitCode("123456"))
	assert.Equal(t, OtpVerified, otp.Status())
}

func TestOtpVerifiedIsTerminal(t *testing.T) {
	clock := newFakeClock()
	sender := &fakeSender{expiresIn: 300, verifyOK: true}
	otp := newTestOtp(sender, clock)
	require.NoError(t, otp.Send())
	require.NoError(t, otp.SubmitCode("123456"))

	assert.ErrorIs(t, otp.Send(), ErrAlreadyVerified)
	assert.ErrorIs(t, otp.Resend(), ErrAlreadyVerified)
	assert.ErrorIs(t, otp.SubmitCode("123456"), ErrAlreadyVerified)
}

func TestOtpSubmitBeforeSend(t *testing.T) {
	clock := newFakeClock()
	otp := newTestOtp(&fakeSender{}, clock)
	assert.ErrorIs(t, otp.SubmitCode("123456"), ErrOtpNotActive)
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{300, "4:60"},
		{299, "4:59"},
		{241, "4:01"},
		{240, "3:60"},
		{61, "1:01"},
		{60, "0:60"},
		{1, "0:01"},
		{0, "0:00"},
		{-5, "0:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCountdown(tt.seconds), "seconds=%d", tt.seconds)
	}
}
