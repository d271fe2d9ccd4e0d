package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/egor/dealercrm/websocket"
)

type generateRequest struct {
	Hint string `json:"hint" binding:"max=500"`
}

// GenerateMessage генерирует, сохраняет и возвращает сообщение повторного контакта.
// Подсказка берется из ?hint= или из тела {"hint": "..."}.
func (h *Handler) GenerateMessage(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}

	req := generateRequest{Hint: c.Query("hint")}
	if c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		var body generateRequest
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			respondBindError(c, err)
			return
		}
		if body.Hint != "" {
			req.Hint = body.Hint
		}
	}

	log := h.reqLog(c).With().Int64("client_id", id).Logger()
	log.Info().Bool("hint", req.Hint != "").Msg("generating follow-up message")

	result, err := h.composer.GenerateForClient(c.Request.Context(), id, strings.TrimSpace(req.Hint))
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(websocket.MessageCreated(result.Message))
	respondOK(c, http.StatusOK, gin.H{
		"message":        result.Text,
		"clientId":       id,
		"savedMessage":   result.Message,
		"configFallback": result.ConfigFallback,
	}, "Mensaje generado exitosamente")
}
