package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds validated paging parameters
type Params struct {
	Page  int
	Limit int
}

// Parse reads page and limit from the query string, falling back to the
// defaults for missing or malformed values and capping limit at MaxLimit.
func Parse(c *gin.Context) Params {
	return Params{
		Page:  clamp(c.Query("page"), DefaultPage, 1, 0),
		Limit: clamp(c.Query("limit"), DefaultLimit, 1, MaxLimit),
	}
}

func clamp(raw string, def, lo, hi int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo {
		return def
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
