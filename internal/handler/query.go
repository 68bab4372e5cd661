package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// queryInt reads a positive integer query parameter. Unreadable values are ignored.
func queryInt(c *gin.Context, keys ...string) int {
	for _, key := range keys {
		if raw := strings.TrimSpace(c.Query(key)); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				return v
			}
		}
	}
	return 0
}
