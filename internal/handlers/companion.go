package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/jemaat/internal/flow"
	"github.com/example/jemaat/internal/models"
	"github.com/example/jemaat/internal/services"
	"github.com/example/jemaat/internal/session"
)

// CompanionHandler exposes the person-selection flow and the staged roster:
// switching selector modes, debounced member search, duplicate-classified
// results, finalizing entries and submitting the whole roster for an event.
type CompanionHandler struct {
	db        *gorm.DB
	sessions  *session.Manager
	directory *services.DirectoryService
	wagate    *services.WagateService
	log       zerolog.Logger
}

// NewCompanionHandler constructs a CompanionHandler.
func NewCompanionHandler(db *gorm.DB, sessions *session.Manager, directory *services.DirectoryService, wagate *services.WagateService, log zerolog.Logger) *CompanionHandler {
	return &CompanionHandler{
		db:        db,
		sessions:  sessions,
		directory: directory,
		wagate:    wagate,
		log:       log.With().Str("component", "companion").Logger(),
	}
}

func (h *CompanionHandler) selector(c *fiber.Ctx) (*flow.Session, *flow.PersonSelector, error) {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return nil, nil, mapFlowError(err)
	}
	sel, err := s.Selector()
	if err != nil {
		return nil, nil, mapFlowError(err)
	}
	return s, sel, nil
}

type setModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=none self search manual"`
}

// SetMode switches the selector between its modes. selected is reached only
// by picking a search result.
func (h *CompanionHandler) SetMode(c *fiber.Ctx) error {
	_, sel, err := h.selector(c)
	if err != nil {
		return err
	}

	var req setModeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := sel.SetMode(flow.SelectorMode(req.Mode)); err != nil {
		return mapFlowError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sel.Selection(),
	})
}

type setQueryRequest struct {
	Query string `json:"query"`
}

// SetQuery records the search input. Queries under three characters never
// reach the directory; longer ones fire once after the debounce window.
func (h *CompanionHandler) SetQuery(c *fiber.Ctx) error {
	_, sel, err := h.selector(c)
	if err != nil {
		return err
	}

	var req setQueryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := sel.SetQuery(req.Query); err != nil {
		return mapFlowError(err)
	}

	return c.JSON(fiber.Map{"success": true})
}

type searchResultItem struct {
	Member         flow.Member         `json:"member"`
	Classification flow.Classification `json:"classification"`
	CanAdd         bool                `json:"can_add"`
}

// Results returns the latest debounced search results, each classified
// against the staged roster and the event's registered attendees. The
// classification is recomputed on every call since the roster changes as
// companions are added.
func (h *CompanionHandler) Results(c *fiber.Ctx) error {
	s, sel, err := h.selector(c)
	if err != nil {
		return err
	}

	registered, err := h.registeredMemberIDs(c.Query("event_id"))
	if err != nil {
		return err
	}

	members, pending, searchErr := sel.Results()
	roster := s.Roster()

	items := make([]searchResultItem, 0, len(members))
	for _, member := range members {
		classification := flow.Classify(member.ID, roster, registered)
		items = append(items, searchResultItem{
			Member:         member,
			Classification: classification,
			CanAdd:         !classification.Duplicate(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"results": items,
			"pending": pending,
			"error":   searchErr,
		},
	})
}

type pickRequest struct {
	MemberID string `json:"member_id" validate:"required"`
}

// Pick selects one of the current search results, moving the selector
// straight to selected.
func (h *CompanionHandler) Pick(c *fiber.Ctx) error {
	_, sel, err := h.selector(c)
	if err != nil {
		return err
	}

	var req pickRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	members, _, _ := sel.Results()
	for _, member := range members {
		if member.ID == req.MemberID {
			if err := sel.Pick(member); err != nil {
				return mapFlowError(err)
			}
			return c.JSON(fiber.Map{
				"success": true,
				"data":    sel.Selection(),
			})
		}
	}

	return fiber.NewError(fiber.StatusNotFound, "member is not in the current results")
}

type draftRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Gender     string `json:"gender"`
	BirthDate  string `json:"birth_date"`
	PhotoURL   string `json:"photo_url"`
	IsBaptized *bool  `json:"is_baptized"`
}

// Draft updates the manual name/phone draft, the supplementary fields and
// the baptized flag in one call.
func (h *CompanionHandler) Draft(c *fiber.Ctx) error {
	_, sel, err := h.selector(c)
	if err != nil {
		return err
	}

	var req draftRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if req.Name != "" || req.Phone != "" {
		sel.SetManualDraft(req.Name, req.Phone)
	}
	if req.Gender != "" || req.BirthDate != "" || req.PhotoURL != "" {
		sel.SetSupplement(flow.Supplement{
			Gender:    req.Gender,
			BirthDate: req.BirthDate,
			PhotoURL:  req.PhotoURL,
		})
	}
	if req.IsBaptized != nil {
		sel.SetBaptized(*req.IsBaptized)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sel.Selection(),
	})
}

type finalizeRequest struct {
	EventID string `json:"event_id" validate:"omitempty,uuid4"`
}

// Finalize validates the current selection and appends it to the roster.
func (h *CompanionHandler) Finalize(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return mapFlowError(err)
	}

	var req finalizeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	registered, err := h.registeredMemberIDs(req.EventID)
	if err != nil {
		return err
	}

	entry, err := s.FinalizeCompanion(registered)
	if err != nil {
		return mapFlowError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"entry":  entry,
			"roster": s.Roster(),
		},
	})
}

// Remove drops a roster entry by its key (member ID or temp ID).
func (h *CompanionHandler) Remove(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return mapFlowError(err)
	}

	if !s.RemoveCompanion(c.Params("key")) {
		return fiber.NewError(fiber.StatusNotFound, "roster entry not found")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    s.Roster(),
	})
}

type submitRosterRequest struct {
	EventID string `json:"event_id" validate:"required,uuid4"`
}

// Submit registers the whole staged roster for an event. New guests are
// created as directory pre-visitors first; only when every creation
// succeeded are the submission and attendee rows written, in one
// transaction.
func (h *CompanionHandler) Submit(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return mapFlowError(err)
	}

	var req submitRosterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid event id")
	}

	var event models.Event
	if err := h.db.First(&event, "id = ?", eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "event not found")
		}
		return err
	}

	roster := s.Roster()
	if len(roster) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "roster is empty")
	}

	// Resolve new guests against the directory before touching the
	// database, so a failed creation leaves no partial registration.
	attendees := make([]models.EventAttendee, 0, len(roster))
	for _, entry := range roster {
		attendee := models.EventAttendee{
			EventID:     eventID,
			FullName:    entry.FullName,
			Phone:       entry.Phone,
			Gender:      entry.Gender,
			DateOfBirth: entry.DateOfBirth,
		}
		switch entry.Type {
		case flow.RosterExisting:
			attendee.MemberID = entry.MemberID
		case flow.RosterNew:
			created, err := h.directory.CreatePreVisitor(services.PreVisitorPayload{
				FullName:    entry.FullName,
				Phone:       entry.Phone,
				Gender:      entry.Gender,
				DateOfBirth: entry.DateOfBirth,
				PhotoURL:    entry.PhotoURL,
				ChurchID:    s.ChurchID(),
			})
			if err != nil {
				return mapFlowError(err)
			}
			attendee.MemberID = created.ID
			attendee.IsNewGuest = true
			attendee.TempID = entry.TempID
		}
		attendees = append(attendees, attendee)
	}

	snap := s.Snapshot()
	submission := models.RosterSubmission{
		ChurchID:       event.ChurchID,
		EventID:        eventID,
		SessionID:      s.ID(),
		SubmittedPhone: snap.Phone,
		EntryCount:     len(attendees),
	}

	if err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&submission).Error; err != nil {
			return err
		}
		for i := range attendees {
			attendees[i].SubmissionID = &submission.ID
			if err := tx.Create(&attendees[i]).Error; err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	s.ClearRoster()

	if snap.Phone != "" {
		// Confirmation message, never blocks the registration.
		go h.wagate.NotifyRegistration(snap.Phone, event.Title, len(attendees))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"submission_id": submission.ID,
			"entry_count":   submission.EntryCount,
		},
	})
}

// registeredMemberIDs loads the already-registered set for an event; an
// empty event ID yields an empty set.
func (h *CompanionHandler) registeredMemberIDs(eventID string) ([]string, error) {
	if eventID == "" {
		return nil, nil
	}
	id, err := uuid.Parse(eventID)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid event id")
	}

	var ids []string
	if err := h.db.Model(&models.EventAttendee{}).
		Where("event_id = ?", id).
		Pluck("member_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
