package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/jemaat/internal/middleware"
	"github.com/example/jemaat/internal/models"
	"github.com/example/jemaat/internal/utils"
)

// EventHandler manages event records and their attendee sets.
type EventHandler struct {
	db *gorm.DB
}

// NewEventHandler constructs EventHandler.
func NewEventHandler(db *gorm.DB) *EventHandler {
	return &EventHandler{db: db}
}

// ListEvents returns the kiosk church's events, newest first.
func (h *EventHandler) ListEvents(c *fiber.Ctx) error {
	deviceID, ok := middleware.GetCurrentDeviceID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var device models.KioskDevice
	if err := h.db.First(&device, "id = ?", deviceID).Error; err != nil {
		return err
	}
	if device.ChurchID == nil {
		return fiber.NewError(fiber.StatusPreconditionFailed, "select a church for this kiosk first")
	}

	pagination := utils.ParsePagination(c)

	var events []models.Event
	var total int64
	query := h.db.Model(&models.Event{}).Where("church_id = ?", *device.ChurchID)
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	if err := query.Order("starts_at desc").
		Limit(pagination.Limit).
		Offset(pagination.Offset).
		Find(&events).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    events,
		"meta": fiber.Map{
			"page":  pagination.Page,
			"limit": pagination.Limit,
			"total": total,
		},
	})
}

type createEventRequest struct {
	Title    string `json:"title" validate:"required"`
	Location string `json:"location"`
	StartsAt string `json:"starts_at" validate:"required"`
	EndsAt   string `json:"ends_at"`
}

// CreateEvent adds an event for the kiosk's church.
func (h *EventHandler) CreateEvent(c *fiber.Ctx) error {
	deviceID, ok := middleware.GetCurrentDeviceID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var device models.KioskDevice
	if err := h.db.First(&device, "id = ?", deviceID).Error; err != nil {
		return err
	}
	if device.ChurchID == nil {
		return fiber.NewError(fiber.StatusPreconditionFailed, "select a church for this kiosk first")
	}

	var req createEventRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "starts_at must be RFC3339")
	}

	event := models.Event{
		ChurchID: *device.ChurchID,
		Title:    req.Title,
		Location: req.Location,
		StartsAt: startsAt,
	}
	if req.EndsAt != "" {
		endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "ends_at must be RFC3339")
		}
		event.EndsAt = &endsAt
	}

	if err := h.db.Create(&event).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    event,
	})
}

// GetEvent returns one event.
func (h *EventHandler) GetEvent(c *fiber.Ctx) error {
	eventID, err := uuid.Parse(c.Params("id"))
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

	return c.JSON(fiber.Map{
		"success": true,
		"data":    event,
	})
}

// ListAttendees returns the registered attendees for an event. The member_id
// column is the set the duplicate check runs against.
func (h *EventHandler) ListAttendees(c *fiber.Ctx) error {
	eventID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid event id")
	}

	var attendees []models.EventAttendee
	if err := h.db.Where("event_id = ?", eventID).
		Order("created_at asc").
		Find(&attendees).Error; err != nil {
		return err
	}

	memberIDs := make([]string, 0, len(attendees))
	for _, attendee := range attendees {
		memberIDs = append(memberIDs, attendee.MemberID)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"attendees":  attendees,
			"member_ids": memberIDs,
		},
	})
}
