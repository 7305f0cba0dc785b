package flow

// Classification is the duplicate verdict for one candidate. A candidate in
// either collection is surfaced to the user as non-actionable (badge shown,
// add control disabled), never silently rejected.
type Classification struct {
	InRoster          bool `json:"in_roster"`
	AlreadyRegistered bool `json:"already_registered"`
}

// Duplicate reports whether the candidate conflicts with either collection.
func (c Classification) Duplicate() bool {
	return c.InRoster || c.AlreadyRegistered
}

// Classify checks a candidate member ID against the roster staged for the
// current submission and the set of IDs already registered for the event.
// The check is pure and insensitive to collection ordering; callers
// re-evaluate it on every render since the roster changes as companions are
// added.
func Classify(candidateID string, roster []RosterEntry, registered []string) Classification {
	var c Classification
	if candidateID == "" {
		return c
	}
	for _, entry := range roster {
		if entry.Type == RosterExisting && entry.MemberID == candidateID {
			c.InRoster = true
			break
		}
	}
	for _, id := range registered {
		if id == candidateID {
			c.AlreadyRegistered = true
			break
		}
	}
	return c
}

// phoneInRoster reports whether a normalized phone is already staged. Used to
// keep a manually-entered guest from being added twice; existing members are
// caught by ID in Classify.
func phoneInRoster(phone string, roster []RosterEntry) bool {
	for _, entry := range roster {
		if entry.Phone != "" && entry.Phone == phone {
			return true
		}
	}
	return false
}
