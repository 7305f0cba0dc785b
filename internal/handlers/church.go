package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/jemaat/internal/middleware"
	"github.com/example/jemaat/internal/models"
)

// ChurchHandler manages the church context a kiosk operates under. The
// chosen church is the only state persisted across check-in sessions.
type ChurchHandler struct {
	db *gorm.DB
}

// NewChurchHandler constructs ChurchHandler.
func NewChurchHandler(db *gorm.DB) *ChurchHandler {
	return &ChurchHandler{db: db}
}

// GetChurch returns the active church context for the authenticated kiosk.
func (h *ChurchHandler) GetChurch(c *fiber.Ctx) error {
	deviceID, ok := middleware.GetCurrentDeviceID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var device models.KioskDevice
	if err := h.db.Preload("Church").First(&device, "id = ?", deviceID).Error; err != nil {
		return err
	}

	if device.Church == nil {
		return fiber.NewError(fiber.StatusNotFound, "no church selected for this kiosk")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":           device.Church.ID,
			"name":         device.Church.Name,
			"city":         device.Church.City,
			"directory_id": device.Church.DirectoryID,
		},
	})
}

type setChurchRequest struct {
	DirectoryID string `json:"directory_id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	City        string `json:"city"`
}

// SetChurch selects the church this kiosk serves, upserting the local record
// by its directory identifier.
func (h *ChurchHandler) SetChurch(c *fiber.Ctx) error {
	deviceID, ok := middleware.GetCurrentDeviceID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req setChurchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	var church models.Church
	err := h.db.Where("directory_id = ?", req.DirectoryID).First(&church).Error
	switch err {
	case nil:
		updates := map[string]interface{}{"name": req.Name}
		if req.City != "" {
			updates["city"] = req.City
		}
		if err := h.db.Model(&church).Updates(updates).Error; err != nil {
			return err
		}
	case gorm.ErrRecordNotFound:
		church = models.Church{
			Name:        req.Name,
			City:        req.City,
			DirectoryID: req.DirectoryID,
		}
		if err := h.db.Create(&church).Error; err != nil {
			return err
		}
	default:
		return err
	}

	if err := h.db.Model(&models.KioskDevice{}).
		Where("id = ?", deviceID).
		Update("church_id", church.ID).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":           church.ID,
			"name":         church.Name,
			"city":         church.City,
			"directory_id": church.DirectoryID,
		},
	})
}
