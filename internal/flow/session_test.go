package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory is an in-memory stand-in for the member directory service.
type fakeDirectory struct {
	members   map[string]*Member
	searchHit []Member
	expiresIn int
	verifyOK  bool

	lookupCalls int
	sendCalls   int
}

func (f *fakeDirectory) LookupMemberByPhone(phone, churchID string) (*Member, error) {
	f.lookupCalls++
	return f.members[phone], nil
}

func (f *fakeDirectory) SearchMembers(query, churchID string) ([]Member, error) {
	return f.searchHit, nil
}

func (f *fakeDirectory) SendOTP(phone, churchID string) (int, error) {
	f.sendCalls++
	return f.expiresIn, nil
}

func (f *fakeDirectory) VerifyOTP(phone, code string) (bool, error) {
	return f.verifyOK, nil
}

func newTestSession(dir *fakeDirectory, clock *fakeClock) *Session {
	return NewSession("sess-1", dir, SessionConfig{
		ChurchID:    "church-1",
		CountryCode: "62",
		Debounce:    testDebounce,
		Clock:       clock.Now,
	})
}

func TestSessionNewGuestPhoneExpires(t *testing.T) {
	// A first-time visitor types a local number, the code is never entered,
	// and the countdown runs out with resend available.
	clock := newFakeClock()
	dir := &fakeDirectory{expiresIn: 300, verifyOK: true}
	sess := newTestSession(dir, clock)

	require.NoError(t, sess.SubmitPhone("081234567890"))

	snap := sess.Snapshot()
	assert.Equal(t, "+6281234567890", snap.Phone)
	assert.False(t, snap.KnownMember)
	assert.Nil(t, snap.Member)
	require.NotNil(t, snap.Otp)
	assert.Equal(t, OtpAwaitingCode, snap.Otp.Status)
	assert.Equal(t, 300, snap.Otp.RemainingSeconds)
	assert.Equal(t, "4:60", snap.Otp.Display)
	assert.False(t, snap.Otp.CanResend)

	clock.Advance(300 * time.Second)
	snap = sess.Snapshot()
	assert.Equal(t, OtpExpired, snap.Otp.Status)
	assert.Equal(t, "0:00", snap.Otp.Display)
	assert.True(t, snap.Otp.CanResend, "after 300s the 60s cooldown is long over")
}

func TestSessionKnownMemberVerifies(t *testing.T) {
	clock := newFakeClock()
	member := &Member{ID: "m-1", FullName: "Sari", Phone: "+6281234567890", MemberStatus: "active"}
	dir := &fakeDirectory{
		members:   map[string]*Member{"+6281234567890": member},
		expiresIn: 300,
		verifyOK:  true,
	}
	sess := newTestSession(dir, clock)

	require.NoError(t, sess.SubmitPhone("0812 3456 7890"))
	snap := sess.Snapshot()
	assert.True(t, snap.KnownMember)
	require.NotNil(t, snap.Member)
	assert.Equal(t, "Sari", snap.Member.FullName)

	require.NoError(t, sess.SubmitCode("123456"))
	assert.True(t, sess.Verified())

	// The resolved member becomes the self context of the selector.
	sel, err := sess.Selector()
	require.NoError(t, err)
	require.NoError(t, sel.SetMode(ModeSelf))
	assert.Equal(t, "m-1", sel.Selection().Member.ID)
}

func TestSessionPhoneTooShort(t *testing.T) {
	sess := newTestSession(&fakeDirectory{}, newFakeClock())
	assert.ErrorIs(t, sess.SubmitPhone("08123456"), ErrPhoneTooShort)
	assert.Nil(t, sess.Snapshot().Otp, "no OTP is requested for a rejected number")
}

func TestSessionSamePhoneResubmitSkipsLookup(t *testing.T) {
	clock := newFakeClock()
	dir := &fakeDirectory{expiresIn: 300}
	sess := newTestSession(dir, clock)

	require.NoError(t, sess.SubmitPhone("081234567890"))
	require.Equal(t, 1, dir.lookupCalls)

	// Same number again after the cooldown: resolution is reused.
	clock.Advance(61 * time.Second)
	require.NoError(t, sess.SubmitPhone("081234567890"))
	assert.Equal(t, 1, dir.lookupCalls)
	assert.Equal(t, 2, dir.sendCalls)
}

func TestSessionDifferentPhoneResetsVerification(t *testing.T) {
	clock := newFakeClock()
	dir := &fakeDirectory{expiresIn: 300, verifyOK: true}
	sess := newTestSession(dir, clock)

	require.NoError(t, sess.SubmitPhone("081234567890"))
	require.NoError(t, sess.SubmitCode("123456"))
	require.True(t, sess.Verified())

	require.NoError(t, sess.SubmitPhone("089876543210"))
	assert.False(t, sess.Verified(), "a new number restarts verification")
	assert.Equal(t, 2, dir.lookupCalls)
	_, err := sess.Selector()
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestSessionSelectorLockedUntilVerified(t *testing.T) {
	sess := newTestSession(&fakeDirectory{expiresIn: 300}, newFakeClock())
	_, err := sess.Selector()
	assert.ErrorIs(t, err, ErrNotVerified)

	require.NoError(t, sess.SubmitPhone("081234567890"))
	_, err = sess.Selector()
	assert.ErrorIs(t, err, ErrNotVerified, "an unverified code keeps the selector locked")
}

func TestSessionCompanionRoundTrip(t *testing.T) {
	clock := newFakeClock()
	dir := &fakeDirectory{expiresIn: 300, verifyOK: true}
	sess := newTestSession(dir, clock)
	require.NoError(t, sess.SubmitPhone("081234567890"))
	require.NoError(t, sess.SubmitCode("123456"))

	sel, err := sess.Selector()
	require.NoError(t, err)
	require.NoError(t, sel.SetMode(ModeManual))
	sel.SetManualDraft("Budi Santoso", "085511122233")

	entry, err := sess.FinalizeCompanion(nil)
	require.NoError(t, err)
	assert.Equal(t, RosterNew, entry.Type)
	require.Len(t, sess.Roster(), 1)

	// Finalize clears the selection, so a repeat submit has nothing to add.
	_, err = sess.FinalizeCompanion(nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	assert.True(t, sess.RemoveCompanion(entry.Key()))
	assert.Empty(t, sess.Roster())
	assert.False(t, sess.RemoveCompanion(entry.Key()), "second removal finds nothing")
}

func TestSessionDuplicateCompanionRejected(t *testing.T) {
	clock := newFakeClock()
	member := Member{ID: "m-2", FullName: "Andi"}
	dir := &fakeDirectory{expiresIn: 300, verifyOK: true, searchHit: []Member{member}}
	sess := newTestSession(dir, clock)
	require.NoError(t, sess.SubmitPhone("081234567890"))
	require.NoError(t, sess.SubmitCode("123456"))

	sel, err := sess.Selector()
	require.NoError(t, err)
	require.NoError(t, sel.SetMode(ModeSearch))
	require.NoError(t, sel.Pick(member))
	_, err = sess.FinalizeCompanion(nil)
	require.NoError(t, err)

	// Picking the same member again trips the duplicate guard.
	require.NoError(t, sel.SetMode(ModeSearch))
	require.NoError(t, sel.Pick(member))
	_, err = sess.FinalizeCompanion(nil)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Classification.InRoster)
	assert.Len(t, sess.Roster(), 1)
}

func TestSessionCheckInRequiresVerification(t *testing.T) {
	clock := newFakeClock()
	dir := &fakeDirectory{expiresIn: 300, verifyOK: true}
	sess := newTestSession(dir, clock)

	_, err := sess.MarkCheckedIn()
	assert.ErrorIs(t, err, ErrNotVerified)

	require.NoError(t, sess.SubmitPhone("081234567890"))
	require.NoError(t, sess.SubmitCode("123456"))
	assert.False(t, sess.CheckedIn())

	at, err := sess.MarkCheckedIn()
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), at)
	assert.True(t, sess.CheckedIn(), "callers gate side effects on this before retrying")

	_, err = sess.MarkCheckedIn()
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestSessionCloseBlocksInput(t *testing.T) {
	sess := newTestSession(&fakeDirectory{expiresIn: 300}, newFakeClock())
	require.NoError(t, sess.SubmitPhone("081234567890"))

	sess.Close()
	assert.True(t, sess.Closed())
	assert.ErrorIs(t, sess.SubmitPhone("081234567890"), ErrSessionClosed)
	assert.ErrorIs(t, sess.SubmitCode("123456"), ErrSessionClosed)
	assert.ErrorIs(t, sess.ResendOTP(), ErrSessionClosed)
}
