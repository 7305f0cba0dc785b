package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/jemaat/internal/flow"
)

type stubDirectory struct{}

func (stubDirectory) LookupMemberByPhone(phone, churchID string) (*flow.Member, error) {
	return nil, nil
}

func (stubDirectory) SearchMembers(query, churchID string) ([]flow.Member, error) {
	return nil, nil
}

func (stubDirectory) SendOTP(phone, churchID string) (int, error) { return 300, nil }

func (stubDirectory) VerifyOTP(phone, code string) (bool, error) { return true, nil }

func newTestManager(ttl time.Duration) *Manager {
	return NewManager(stubDirectory{}, ttl, zerolog.Nop())
}

func TestManagerCreateAndGet(t *testing.T) {
	m := newTestManager(0)
	s := m.Create(flow.SessionConfig{ChurchID: "church-1"})
	require.NotEmpty(t, s.ID())
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerClose(t *testing.T) {
	m := newTestManager(0)
	s := m.Create(flow.SessionConfig{ChurchID: "church-1"})

	require.NoError(t, m.Close(s.ID()))
	assert.True(t, s.Closed())
	assert.Equal(t, 0, m.Len())

	assert.ErrorIs(t, m.Close(s.ID()), ErrNotFound)
}

func TestManagerSweepDropsIdleSessions(t *testing.T) {
	m := newTestManager(30 * time.Minute)

	// A session whose clock is frozen an hour ago reads as idle past the TTL.
	past := time.Now().Add(-time.Hour)
	stale := m.Create(flow.SessionConfig{ChurchID: "church-1", Clock: func() time.Time { return past }})
	fresh := m.Create(flow.SessionConfig{ChurchID: "church-1"})

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
	assert.True(t, stale.Closed())
	assert.False(t, fresh.Closed())

	_, err := m.Get(stale.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(fresh.ID())
	assert.NoError(t, err)
}

func TestManagerSweepNothingToDo(t *testing.T) {
	m := newTestManager(30 * time.Minute)
	m.Create(flow.SessionConfig{ChurchID: "church-1"})
	assert.Equal(t, 0, m.Sweep())
	assert.Equal(t, 1, m.Len())
}
