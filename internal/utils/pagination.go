package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	// DefaultPageLimit matches one kiosk list screen.
	DefaultPageLimit = 20
	// MaxPageLimit caps what a client may request per page.
	MaxPageLimit = 100
)

// Pagination is the page window for list endpoints.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads the page and limit query params, falling back to the
// defaults and clamping the limit to MaxPageLimit.
func ParsePagination(c *fiber.Ctx) Pagination {
	page := parseInt(c.Query("page"), 1)
	limit := parseInt(c.Query("limit"), DefaultPageLimit)

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
