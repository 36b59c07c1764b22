package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx/types"

	"github.com/campusmesh/timetable-api/internal/models"
	"github.com/campusmesh/timetable-api/internal/repository"
)

// Audit records an activity-log entry after successful requests. Services
// that log richer domain detail themselves do not use this middleware.
func Audit(repo *repository.AuditRepository, action, entity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		entry := &models.ActivityLog{
			Action:    action,
			Entity:    entity,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims, ok := CurrentClaims(c); ok {
			entry.UserID = &claims.UserID
			entry.Username = claims.Username
		}
		if id := c.Param("id"); id != "" {
			entry.EntityID = &id
		}

		detail, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})
		entry.Detail = types.JSONText(detail)

		_ = repo.Create(c.Request.Context(), entry)
	}
}
