// Package handlers содержит HTTP-обработчики CRM
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/egor/dealercrm/assistant"
	"github.com/egor/dealercrm/composer"
	"github.com/egor/dealercrm/database"
	"github.com/egor/dealercrm/followup"
	"github.com/egor/dealercrm/metrics"
	"github.com/egor/dealercrm/middleware"
	"github.com/egor/dealercrm/websocket"
)

// Pinger проверяет доступность внешнего сервиса
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps - зависимости обработчиков
type Deps struct {
	Store          database.Store
	Assistant      *assistant.Service
	Classifier     *followup.Classifier
	Composer       *composer.Composer
	Hub            *websocket.Hub
	Auth           *middleware.Auth
	Metrics        *metrics.Metrics
	LLM            Pinger // может быть nil
	Log            zerolog.Logger
	AllowedOrigins []string
}

// Handler держит зависимости, общие для всех маршрутов
type Handler struct {
	store      database.Store
	assistant  *assistant.Service
	classifier *followup.Classifier
	composer   *composer.Composer
	hub        *websocket.Hub
	auth       *middleware.Auth
	llm        Pinger
	log        zerolog.Logger
	origins    []string
	startedAt  time.Time
}

func New(d Deps) *Handler {
	return &Handler{
		store:      d.Store,
		assistant:  d.Assistant,
		classifier: d.Classifier,
		composer:   d.Composer,
		hub:        d.Hub,
		auth:       d.Auth,
		llm:        d.LLM,
		log:        d.Log,
		origins:    d.AllowedOrigins,
		startedAt:  time.Now(),
	}
}

// clientID разбирает :id; при ошибке уже ответил 400
func clientID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondFail(c, http.StatusBadRequest, "ID de cliente inválido")
		return 0, false
	}
	return id, true
}

// reqLog - логгер с request_id текущего запроса
func (h *Handler) reqLog(c *gin.Context) zerolog.Logger {
	return h.log.With().Str("request_id", middleware.GetRequestID(c)).Logger()
}
