package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const connIDContextKey = "conn_id"

func connIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(connIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	connID := c.GetHeader("X-Conn-ID")
	if connID == "" {
		connID = uuid.NewString()
	}
	c.Set(connIDContextKey, connID)
	return connID
}
