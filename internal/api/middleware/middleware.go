package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/xplain-ai/xplain-server/internal/app"
	"github.com/xplain-ai/xplain-server/internal/startup"
)

// RequestIDMiddleware tags every request with a uuid, echoed in the
// response header and available to handlers for response payloads.
func RequestIDMiddleware(c *gin.Context) {
	id := uuid.NewString()
	c.Set("request_id", id)
	c.Header("X-Request-ID", id)
	c.Next()
}

// ReadinessMiddleware rejects predict traffic until the startup
// orchestrator has produced a captioner. Not-ready is an observable
// condition, distinct from request errors.
func ReadinessMiddleware(c *gin.Context) {
	a := c.MustGet("app").(*app.App)

	if state := a.Orchestrator().State(); state != startup.StateReady {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "service not ready",
			"state": state.String(),
		})
		return
	}

	c.Next()
}
