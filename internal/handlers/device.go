package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/jemaat/internal/config"
	"github.com/example/jemaat/internal/models"
	"github.com/example/jemaat/internal/utils"
)

// DeviceHandler manages kiosk enrollment and authentication.
type DeviceHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewDeviceHandler constructs a DeviceHandler.
func NewDeviceHandler(db *gorm.DB, cfg *config.Config) *DeviceHandler {
	return &DeviceHandler{db: db, cfg: cfg}
}

type registerDeviceRequest struct {
	Name             string `json:"name" validate:"required"`
	EnrollmentSecret string `json:"enrollment_secret" validate:"required"`
}

// Register enrolls a new kiosk using the shared enrollment secret. The
// per-device secret is returned exactly once; only its hash is stored.
func (h *DeviceHandler) Register(c *fiber.Ctx) error {
	var req registerDeviceRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(req.EnrollmentSecret), []byte(h.cfg.EnrollmentSecret)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid enrollment secret")
	}

	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate device secret")
	}
	deviceSecret := hex.EncodeToString(secretBytes)

	secretHash, err := utils.HashSecret(deviceSecret)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash device secret")
	}

	device := models.KioskDevice{
		Name:       req.Name,
		SecretHash: secretHash,
	}
	if err := h.db.Create(&device).Error; err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, device.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":       true,
		"device_id":     device.ID,
		"device_secret": deviceSecret,
		"token":         token,
	})
}

type loginDeviceRequest struct {
	DeviceID     string `json:"device_id" validate:"required,uuid4"`
	DeviceSecret string `json:"device_secret" validate:"required"`
}

// Login exchanges a device ID and secret for a fresh JWT.
func (h *DeviceHandler) Login(c *fiber.Ctx) error {
	var req loginDeviceRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid device id")
	}

	var device models.KioskDevice
	if err := h.db.First(&device, "id = ?", deviceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	if !utils.CheckSecret(device.SecretHash, req.DeviceSecret) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	now := time.Now()
	h.db.Model(&device).Update("last_seen_at", &now)

	token, err := utils.GenerateToken(h.cfg.JWTSecret, device.ID, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"token":   token,
	})
}
