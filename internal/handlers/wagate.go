package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/example/jemaat/internal/models"
)

// WagateHandler receives delivery-status callbacks from the WhatsApp
// gateway and reconciles them into the OTP issue log.
type WagateHandler struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewWagateHandler constructs WagateHandler.
func NewWagateHandler(db *gorm.DB, log zerolog.Logger) *WagateHandler {
	return &WagateHandler{db: db, log: log.With().Str("component", "wagate-webhook").Logger()}
}

type deliveryCallbackRequest struct {
	MessageID string `json:"message_id"`
	Phone     string `json:"phone" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=delivered failed"`
}

// DeliveryCallback updates the matching OTP issue with the gateway's
// delivery verdict. Unknown messages are acknowledged and dropped; the
// gateway retries on non-2xx only.
func (h *WagateHandler) DeliveryCallback(c *fiber.Ctx) error {
	var req deliveryCallbackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	query := h.db.Model(&models.OtpIssue{})
	if req.MessageID != "" {
		query = query.Where("gateway_message_id = ?", req.MessageID)
	} else {
		query = query.Where("phone = ? AND delivered_at IS NULL", req.Phone)
	}

	updates := map[string]interface{}{"status": req.Status}
	if req.Status == "delivered" {
		now := time.Now()
		updates["delivered_at"] = &now
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		h.log.Debug().Str("phone", req.Phone).Msg("delivery callback matched no issue")
	}

	return c.JSON(fiber.Map{"success": true})
}
