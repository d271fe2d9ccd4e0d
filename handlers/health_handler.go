package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// Health - живость процесса и доступность базы. LLM проверяется только с ?deep=true.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{"database": "ok"}
	if err := h.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	}
	if c.Query("deep") == "true" && h.llm != nil {
		checks["llm"] = "ok"
		if err := h.llm.Ping(ctx); err != nil {
			checks["llm"] = err.Error()
		}
	}

	data := gin.H{
		"status":    "ok",
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"checks":    checks,
		"wsClients": h.hub.ClientCount(),
	}
	if status != http.StatusOK {
		data["status"] = "degraded"
		c.JSON(status, Response{Success: false, Data: data, Error: "database unavailable", Timestamp: timestamp()})
		return
	}
	respondOK(c, status, data, "")
}
