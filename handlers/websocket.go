package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// checkOrigin проверяет, разрешен ли Origin для подключения
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// локальные подключения без Origin (curl, тесты)
		host := r.Host
		return strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:")
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.log.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

// ServeWs подключает дашборд к потоку событий. При включенной авторизации
// токен передается в ?token=, так как браузер не шлет заголовки при handshake.
func (h *Handler) ServeWs(c *gin.Context) {
	if h.auth.Enabled() {
		if _, err := h.auth.ValidateToken(c.Query("token")); err != nil {
			respondFail(c, http.StatusUnauthorized, "invalid token")
			return
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade сам ответил клиенту
		log := h.reqLog(c)
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	log := h.reqLog(c)
	log.Info().Str("subscriber", id).Str("ip", c.ClientIP()).Msg("dashboard subscribed")
	h.hub.ServeConn(conn, id)
}
