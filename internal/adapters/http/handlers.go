package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/focusduo/focusduo/internal/app/orch"
)

func handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// handleStats serves live counts read from the coordination structures.
func handleStats(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Stats())
	}
}
