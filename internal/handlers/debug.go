package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/observability"
	"chat-client/internal/telemetry"
)

// StateSource exposes a snapshot of the client core for inspection.
type StateSource interface {
	DebugState() map[string]any
}

// NewDebugRouter builds the local debug server: health, metrics, and state
// inspection. It is only reachable on loopback and carries no auth.
func NewDebugRouter(serviceName string, state StateSource, emitter *telemetry.AuditEmitter, auditRoutes bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/debug/state", func(c *gin.Context) {
		if state == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session not started"})
			return
		}
		c.JSON(http.StatusOK, state.DebugState())
	})

	registerAuditRoutes(router, emitter, auditRoutes)

	return router
}

func registerAuditRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", connIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
