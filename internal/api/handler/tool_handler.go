package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListTools handles GET /tools. The catalog is static for the process
// lifetime, in registration order.
func (h *ToolHandler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tools": h.registry.List(),
	})
}
