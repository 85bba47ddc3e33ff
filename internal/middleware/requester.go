package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyUserID holds the requesting user's id when one was supplied.
const ContextKeyUserID = "user_id"

// Requester reads the caller identity from the X-User-ID header set by the
// upstream gateway. The header is optional; a malformed value is rejected.
func Requester() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		if raw == "" {
			c.Next()
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": "INVALID_USER_ID", "message": "X-User-ID must be a UUID"},
			})
			return
		}
		c.Set(ContextKeyUserID, id)
		c.Next()
	}
}

// GetUserID returns the requester id, or nil when the request is anonymous.
func GetUserID(c *gin.Context) *uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
