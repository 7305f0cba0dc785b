package flow

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// SelectorMode is the active shape of the person-selection flow.
type SelectorMode string

const (
	ModeNone     SelectorMode = "none"
	ModeSelf     SelectorMode = "self"
	ModeSearch   SelectorMode = "search"
	ModeManual   SelectorMode = "manual"
	ModeSelected SelectorMode = "selected"
)

const (
	// MinQueryLength bounds directory request volume: shorter queries never
	// trigger a search.
	MinQueryLength = 3
	// DefaultSearchDebounce is the wait after the last keystroke before a
	// qualifying query reaches the directory.
	DefaultSearchDebounce = 350 * time.Millisecond
)

var (
	ErrNoCurrentMember = errors.New("self mode requires a current member context")
	ErrNotInSearchMode = errors.New("selector is not in search mode")
)

// Supplement carries the optional fields a user may add on top of a directory
// record (or a manual draft) during one session.
type Supplement struct {
	Gender    string `json:"gender,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// SelectedPerson is the unified output of the selector. Exactly one shape is
// active at a time, indicated by Mode; fields irrelevant to the active mode
// are zero.
type SelectedPerson struct {
	Mode        SelectorMode `json:"mode"`
	Member      *Member      `json:"member,omitempty"`
	IsBaptized  bool         `json:"is_baptized,omitempty"`
	ManualName  string       `json:"manual_name,omitempty"`
	ManualPhone string       `json:"manual_phone,omitempty"`
	Supplement  Supplement   `json:"supplement"`
}

// SearchFunc performs a directory search for the given query.
type SearchFunc func(query string) ([]Member, error)

// PersonSelector is the mode state machine producing a SelectedPerson for
// downstream registration. Users move freely between modes; switching clears
// fields irrelevant to the new mode. Search queries of MinQueryLength or more
// are debounced, any in-flight debounce timer is cancelled when the query
// changes, and responses from a superseded query are discarded.
type PersonSelector struct {
	mu sync.Mutex

	mode        SelectorMode
	current     *Member // the already-identified visitor, enables self mode
	member      *Member // chosen from search results
	isBaptized  bool
	manualName  string
	manualPhone string
	supplement  Supplement

	query     string
	results   []Member
	searching bool
	searchErr string

	search   SearchFunc
	debounce time.Duration
	timer    *time.Timer
	onChange func(SelectedPerson)
	closed   bool
}

// NewPersonSelector builds a selector. current may be nil when the visitor
// has not been resolved to a member; self mode is then unavailable. onChange
// may be nil.
func NewPersonSelector(current *Member, search SearchFunc, debounce time.Duration, onChange func(SelectedPerson)) *PersonSelector {
	if debounce <= 0 {
		debounce = DefaultSearchDebounce
	}
	return &PersonSelector{
		mode:     ModeNone,
		current:  current,
		search:   search,
		debounce: debounce,
		onChange: onChange,
	}
}

// Mode returns the active mode.
func (p *PersonSelector) Mode() SelectorMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// SetMode switches the active mode, clearing state that does not belong to
// the target mode.
func (p *PersonSelector) SetMode(mode SelectorMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch mode {
	case ModeNone:
		p.clearLocked()
	case ModeSelf:
		if p.current == nil {
			return ErrNoCurrentMember
		}
		p.cancelSearchLocked()
		p.member = nil
		p.manualName, p.manualPhone = "", ""
	case ModeSearch:
		// Entering search always starts from an empty query.
		p.cancelSearchLocked()
		p.query, p.results, p.searchErr = "", nil, ""
		p.member = nil
		p.manualName, p.manualPhone = "", ""
	case ModeManual:
		p.cancelSearchLocked()
		p.member = nil
	case ModeSelected:
		// Reached only through Pick.
		return ErrNotInSearchMode
	}
	p.mode = mode
	p.emitLocked()
	return nil
}

// Clear resets the selector to none, dropping every draft field.
func (p *PersonSelector) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
	p.mode = ModeNone
	p.emitLocked()
}

func (p *PersonSelector) clearLocked() {
	p.cancelSearchLocked()
	p.member = nil
	p.isBaptized = false
	p.manualName, p.manualPhone = "", ""
	p.supplement = Supplement{}
	p.query, p.results, p.searchErr = "", nil, ""
}

// SetQuery records the search query and schedules a debounced directory
// search when it qualifies. A new query cancels any scheduled-but-unfired
// search so only the last query within the window reaches the network.
func (p *PersonSelector) SetQuery(query string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode != ModeSearch {
		return ErrNotInSearchMode
	}
	query = strings.TrimSpace(query)
	p.cancelSearchLocked()
	p.query = query
	p.searchErr = ""

	if len([]rune(query)) < MinQueryLength {
		p.results = nil
		p.searching = false
		return nil
	}

	p.searching = true
	p.timer = time.AfterFunc(p.debounce, func() {
		p.runSearch(query)
	})
	return nil
}

// runSearch executes the debounced directory call. The originating query is
// captured at schedule time; a result is applied only if that query is still
// the one on screen when it resolves.
func (p *PersonSelector) runSearch(query string) {
	p.mu.Lock()
	if p.closed || p.mode != ModeSearch || p.query != query {
		p.mu.Unlock()
		return
	}
	search := p.search
	p.mu.Unlock()

	results, err := search(query)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.mode != ModeSearch || p.query != query {
		// Superseded while in flight; drop the stale response.
		return
	}
	p.searching = false
	if err != nil {
		p.results = nil
		p.searchErr = "member search failed"
		return
	}
	p.results = results
}

// Results returns the latest search results along with whether a search is
// still pending and any user-visible search error.
func (p *PersonSelector) Results() (results []Member, pending bool, searchErr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results, p.searching, p.searchErr
}

// Pick selects one search result, transitioning directly to selected.
// Supplementary fields already entered this session are carried over.
func (p *PersonSelector) Pick(member Member) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode != ModeSearch {
		return ErrNotInSearchMode
	}
	p.cancelSearchLocked()
	m := member
	p.member = &m
	p.mode = ModeSelected
	p.emitLocked()
	return nil
}

// SetManualDraft updates the manually-entered name and phone.
func (p *PersonSelector) SetManualDraft(name, phone string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manualName = strings.TrimSpace(name)
	p.manualPhone = strings.TrimSpace(phone)
	p.emitLocked()
}

// SetSupplement updates the optional gender/birth-date/photo fields.
func (p *PersonSelector) SetSupplement(s Supplement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.supplement = s
	p.emitLocked()
}

// SetBaptized flags the self selection as baptized.
func (p *PersonSelector) SetBaptized(baptized bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.isBaptized = baptized
	p.emitLocked()
}

// Selection returns the current canonical selection.
func (p *PersonSelector) Selection() SelectedPerson {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selectionLocked()
}

func (p *PersonSelector) selectionLocked() SelectedPerson {
	sel := SelectedPerson{Mode: p.mode, Supplement: p.supplement}
	switch p.mode {
	case ModeSelf:
		sel.Member = p.current
		sel.IsBaptized = p.isBaptized
	case ModeSelected:
		sel.Member = p.member
	case ModeManual:
		sel.ManualName = p.manualName
		sel.ManualPhone = p.manualPhone
	}
	return sel
}

func (p *PersonSelector) emitLocked() {
	if p.onChange != nil {
		p.onChange(p.selectionLocked())
	}
}

func (p *PersonSelector) cancelSearchLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.searching = false
}

// Close cancels any pending debounce timer. In-flight searches resolve but
// their results are discarded.
func (p *PersonSelector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelSearchLocked()
	p.closed = true
}
