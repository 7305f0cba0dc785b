package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/jemaat/internal/config"
	"github.com/example/jemaat/internal/flow"
	"github.com/example/jemaat/internal/middleware"
	"github.com/example/jemaat/internal/models"
	"github.com/example/jemaat/internal/services"
	"github.com/example/jemaat/internal/session"
)

// CheckinHandler drives the kiosk identity-resolution and phone-verification
// flow: open a session, submit a phone, request/verify codes and finish with
// a check-in record.
type CheckinHandler struct {
	db        *gorm.DB
	cfg       *config.Config
	sessions  *session.Manager
	directory *services.DirectoryService
	wagate    *services.WagateService
	log       zerolog.Logger
}

// NewCheckinHandler constructs a CheckinHandler.
func NewCheckinHandler(db *gorm.DB, cfg *config.Config, sessions *session.Manager, directory *services.DirectoryService, wagate *services.WagateService, log zerolog.Logger) *CheckinHandler {
	return &CheckinHandler{
		db:        db,
		cfg:       cfg,
		sessions:  sessions,
		directory: directory,
		wagate:    wagate,
		log:       log.With().Str("component", "checkin").Logger(),
	}
}

// deviceChurch loads the authenticated kiosk and its selected church.
func (h *CheckinHandler) deviceChurch(c *fiber.Ctx) (*models.KioskDevice, *models.Church, error) {
	deviceID, ok := middleware.GetCurrentDeviceID(c)
	if !ok {
		return nil, nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var device models.KioskDevice
	if err := h.db.Preload("Church").First(&device, "id = ?", deviceID).Error; err != nil {
		return nil, nil, err
	}
	if device.Church == nil {
		return nil, nil, fiber.NewError(fiber.StatusPreconditionFailed, "select a church for this kiosk first")
	}
	return &device, device.Church, nil
}

// CreateSession opens a fresh check-in session for the kiosk's church.
func (h *CheckinHandler) CreateSession(c *fiber.Ctx) error {
	_, church, err := h.deviceChurch(c)
	if err != nil {
		return err
	}

	s := h.sessions.Create(flow.SessionConfig{
		ChurchID:       church.DirectoryID,
		CountryCode:    h.cfg.CountryCode,
		Debounce:       h.cfg.SearchDebounce,
		OtpExpiry:      h.cfg.OtpExpiry,
		ResendCooldown: h.cfg.ResendCooldown,
		RequireGender:  h.cfg.RequireCompanionGender,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    s.Snapshot(),
	})
}

// GetSession returns the session snapshot. Reading the snapshot recomputes
// the OTP countdown, so kiosks poll this once per second while a code is
// pending.
func (h *CheckinHandler) GetSession(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return mapFlowError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    s.Snapshot(),
	})
}

// CloseSession dismisses the flow, clearing pending timers.
func (h *CheckinHandler) CloseSession(c *fiber.Ctx) error {
	if err := h.sessions.Close(c.Params("id")); err != nil {
		return mapFlowError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type submitPhoneRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// SubmitPhone normalizes the entered number, resolves it against the member
// directory and sends an OTP.
func (h *CheckinHandler) SubmitPhone(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return mapFlowError(err)
	}

	var req submitPhoneRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := s.SubmitPhone(req.Phone); err != nil {
		return mapFlowError(err)
	}

	h.recordIssue(s)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    s.Snapshot(),
	})
}

// Resend requests a fresh code once the cooldown has elapsed.
func (h *CheckinHandler) Resend(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return mapFlowError(err)
	}

	if err := s.ResendOTP(); err != nil {
		return mapFlowError(err)
	}

	h.recordIssue(s)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    s.Snapshot(),
	})
}

// recordIssue logs an issuance to the OTP table. Failures only get logged;
// the issue log must never block the main flow.
func (h *CheckinHandler) recordIssue(s *flow.Session) {
	snap := s.Snapshot()
	if snap.Otp == nil {
		return
	}
	now := time.Now()
	issue := models.OtpIssue{
		Phone:       snap.Phone,
		ChurchID:    s.ChurchID(),
		ExpiresAt:   now.Add(time.Duration(snap.Otp.RemainingSeconds) * time.Second),
		ResendAfter: now.Add(time.Duration(snap.Otp.ResendInSeconds) * time.Second),
		Status:      "sent",
	}
	if err := h.db.Create(&issue).Error; err != nil {
		h.log.Warn().Err(err).Str("phone", snap.Phone).Msg("failed to record otp issue")
	}
}

type verifyCodeRequest struct {
	Code string `json:"code" validate:"required,min=4,max=8"`
}

// Verify submits the entered code. A wrong code clears the input and leaves
// the session awaiting another attempt.
func (h *CheckinHandler) Verify(c *fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return mapFlowError(err)
	}

	var req verifyCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := s.SubmitCode(req.Code); err != nil {
		return mapFlowError(err)
	}

	now := time.Now()
	if err := h.db.Model(&models.OtpIssue{}).
		Where("phone = ? AND verified_at IS NULL", s.Snapshot().Phone).
		Update("verified_at", &now).Error; err != nil {
		h.log.Warn().Err(err).Msg("failed to mark otp issue verified")
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"verified": true,
		"data":     s.Snapshot(),
	})
}

type checkInRequest struct {
	EventID   string `json:"event_id" validate:"omitempty,uuid4"`
	FullName  string `json:"full_name"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birth_date"`
}

// CheckIn completes the flow for the verified person. Known members are
// checked in directly; a new guest is first created as a pre-visitor in the
// directory using the submitted form fields.
func (h *CheckinHandler) CheckIn(c *fiber.Ctx) error {
	device, church, err := h.deviceChurch(c)
	if err != nil {
		return err
	}

	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return mapFlowError(err)
	}

	var req checkInRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if !s.Verified() {
		return mapFlowError(flow.ErrNotVerified)
	}
	// Reject repeats before any directory side effect; a double-tap must not
	// create a second pre-visitor.
	if s.CheckedIn() {
		return mapFlowError(flow.ErrAlreadyCheckedIn)
	}

	member := s.Member()
	isGuest := member == nil
	if isGuest {
		if req.FullName == "" {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "full_name is required for a new guest")
		}
		created, err := h.directory.CreatePreVisitor(services.PreVisitorPayload{
			FullName:    req.FullName,
			Phone:       s.Snapshot().Phone,
			Gender:      req.Gender,
			DateOfBirth: req.BirthDate,
			ChurchID:    church.DirectoryID,
		})
		if err != nil {
			return mapFlowError(err)
		}
		member = created
	}

	checkedInAt, err := s.MarkCheckedIn()
	if err != nil {
		return mapFlowError(err)
	}

	record := models.CheckIn{
		ChurchID: church.ID,
		DeviceID: &device.ID,
		MemberID: member.ID,
		FullName: member.FullName,
		Phone:    member.Phone,
		IsGuest:  isGuest,
	}
	if req.EventID != "" {
		eventID, err := uuid.Parse(req.EventID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid event id")
		}
		record.EventID = &eventID
	}
	if err := h.db.Create(&record).Error; err != nil {
		return err
	}

	if isGuest {
		// Courtesy message, never blocks the check-in.
		go h.wagate.NotifyWelcome(member.Phone, member.FullName, church.Name)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"check_in_id":   record.ID,
			"member_id":     record.MemberID,
			"full_name":     record.FullName,
			"is_guest":      record.IsGuest,
			"checked_in_at": checkedInAt,
		},
	})
}
