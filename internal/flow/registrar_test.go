package flow

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePhoneChecker struct {
	members map[string]*Member
	err     error
	lookups []string
}

func (f *fakePhoneChecker) LookupMemberByPhone(phone, churchID string) (*Member, error) {
	f.lookups = append(f.lookups, phone)
	if f.err != nil {
		return nil, f.err
	}
	return f.members[phone], nil
}

func newTestRegistrar(checker *fakePhoneChecker, requireGender bool) *Registrar {
	return NewRegistrar(checker, "church-1", "62", requireGender, newFakeClock().Now)
}

func TestFinalizeExistingMember(t *testing.T) {
	reg := newTestRegistrar(&fakePhoneChecker{}, false)
	sel := SelectedPerson{
		Mode:   ModeSelected,
		Member: &Member{ID: "m-1", FullName: "Sari", Phone: "+628111000111", PhotoURL: "https://cdn/x.jpg"},
	}

	entry, err := reg.Finalize(sel, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, RosterExisting, entry.Type)
	assert.Equal(t, "m-1", entry.MemberID)
	assert.Equal(t, "m-1", entry.Key())
	assert.Equal(t, "Sari", entry.FullName)
	assert.Empty(t, entry.TempID)
}

func TestFinalizeExistingDuplicateInRoster(t *testing.T) {
	reg := newTestRegistrar(&fakePhoneChecker{}, false)
	roster := []RosterEntry{{Type: RosterExisting, MemberID: "m-1"}}
	sel := SelectedPerson{Mode: ModeSelected, Member: &Member{ID: "m-1", FullName: "Sari"}}

	_, err := reg.Finalize(sel, roster, nil)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Classification.InRoster)
	assert.False(t, dup.Classification.AlreadyRegistered)
}

func TestFinalizeExistingAlreadyRegistered(t *testing.T) {
	reg := newTestRegistrar(&fakePhoneChecker{}, false)
	sel := SelectedPerson{Mode: ModeSelected, Member: &Member{ID: "m-1", FullName: "Sari"}}

	_, err := reg.Finalize(sel, nil, []string{"m-1"})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Classification.AlreadyRegistered)
}

func TestFinalizeManualGuest(t *testing.T) {
	checker := &fakePhoneChecker{}
	reg := newTestRegistrar(checker, false)
	sel := SelectedPerson{
		Mode:        ModeManual,
		ManualName:  "Budi Santoso",
		ManualPhone: "081234567890",
		Supplement:  Supplement{Gender: "male", BirthDate: "1990-05-12"},
	}

	entry, err := reg.Finalize(sel, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, RosterNew, entry.Type)
	assert.Equal(t, "+6281234567890", entry.Phone, "phone is stored normalized")
	assert.Equal(t, "male", entry.Gender)
	assert.Equal(t, "1990-05-12", entry.DateOfBirth)
	assert.True(t, strings.HasPrefix(entry.TempID, "tmp-"))
	assert.Equal(t, entry.TempID, entry.Key())

	require.Len(t, checker.lookups, 1)
	assert.Equal(t, "+6281234567890", checker.lookups[0], "directory collision check uses the normalized phone")
}

func TestFinalizeManualValidationOrder(t *testing.T) {
	// Required-field checks run before any directory call.
	checker := &fakePhoneChecker{err: errors.New("must not be reached")}
	reg := newTestRegistrar(checker, true)

	tests := []struct {
		name  string
		sel   SelectedPerson
		field string
	}{
		{"missing name", SelectedPerson{Mode: ModeManual, ManualPhone: "081234567890"}, "name"},
		{"missing phone", SelectedPerson{Mode: ModeManual, ManualName: "Budi"}, "phone"},
		{"phone too short", SelectedPerson{Mode: ModeManual, ManualName: "Budi", ManualPhone: "0812"}, "phone"},
		{"missing gender", SelectedPerson{Mode: ModeManual, ManualName: "Budi", ManualPhone: "081234567890"}, "gender"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Finalize(tt.sel, nil, nil)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Empty(t, checker.lookups)
}

func TestFinalizeManualPhoneBelongsToMember(t *testing.T) {
	// Scenario: a guest types a number that is already in the directory. The
	// entry is rejected with a validation error, never staged as a new guest.
	checker := &fakePhoneChecker{members: map[string]*Member{
		"+6281234567890": {ID: "m-7", FullName: "Sari"},
	}}
	reg := newTestRegistrar(checker, false)
	sel := SelectedPerson{Mode: ModeManual, ManualName: "Sari", ManualPhone: "081234567890"}

	_, err := reg.Finalize(sel, nil, nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "phone", ve.Field)
}

func TestFinalizeManualDirectoryErrorPropagates(t *testing.T) {
	checker := &fakePhoneChecker{err: errors.New("directory down")}
	reg := newTestRegistrar(checker, false)
	sel := SelectedPerson{Mode: ModeManual, ManualName: "Budi", ManualPhone: "081234567890"}

	_, err := reg.Finalize(sel, nil, nil)
	require.Error(t, err)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve), "a transport failure is not a validation verdict")
}

func TestFinalizeManualPhoneAlreadyStaged(t *testing.T) {
	reg := newTestRegistrar(&fakePhoneChecker{}, false)
	roster := []RosterEntry{{Type: RosterNew, TempID: "tmp-1", Phone: "+6281234567890"}}
	sel := SelectedPerson{Mode: ModeManual, ManualName: "Budi", ManualPhone: "081234567890"}

	_, err := reg.Finalize(sel, roster, nil)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.Classification.InRoster)
}

func TestFinalizeNoSelection(t *testing.T) {
	reg := newTestRegistrar(&fakePhoneChecker{}, false)
	_, err := reg.Finalize(SelectedPerson{Mode: ModeNone}, nil, nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "mode", ve.Field)
}

func TestTempIDsUniqueWithinSession(t *testing.T) {
	reg := newTestRegistrar(&fakePhoneChecker{}, false)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := reg.newTempID()
		assert.False(t, seen[id], "temp id %q issued twice", id)
		seen[id] = true
	}
}
