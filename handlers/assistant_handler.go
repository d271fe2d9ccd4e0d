package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/egor/dealercrm/models"
	"github.com/egor/dealercrm/websocket"
)

// updateConfigRequest - частичное обновление; отсутствующие поля не меняются.
// Длина сообщения принимается и объектом, и плоскими полями дашборда.
type updateConfigRequest struct {
	Name                   *string               `json:"name" binding:"omitempty,min=1,max=50"`
	Tone                   *string               `json:"tone"`
	Language               *string               `json:"language" binding:"omitempty,oneof=es en"`
	Brands                 []string              `json:"brands" binding:"omitempty,dive,min=1"`
	Models                 map[string][]string   `json:"models"`
	Branches               []string              `json:"branches" binding:"omitempty,dive,min=1"`
	MessageLength          *models.MessageLength `json:"messageLength"`
	MessageLengthMin       *int                  `json:"messageLengthMin"`
	MessageLengthMax       *int                  `json:"messageLengthMax"`
	Signature              *string               `json:"signature" binding:"omitempty,max=100"`
	UseEmojis              *bool                 `json:"useEmojis"`
	AdditionalInstructions *string               `json:"additionalInstructions" binding:"omitempty,max=1000"`
	FollowUpDays           *int                  `json:"followUpDays"`
}

// toPatch собирает патч; current вызывается только для слияния плоских полей длины
func (r updateConfigRequest) toPatch(current func() (*models.AssistantConfig, error)) (models.AssistantConfigPatch, error) {
	p := models.AssistantConfigPatch{
		Name:                   r.Name,
		Brands:                 r.Brands,
		Models:                 r.Models,
		Branches:               r.Branches,
		MessageLength:          r.MessageLength,
		Signature:              r.Signature,
		UseEmojis:              r.UseEmojis,
		AdditionalInstructions: r.AdditionalInstructions,
		FollowUpDays:           r.FollowUpDays,
	}
	if r.Tone != nil {
		tone, err := models.ParseTone(*r.Tone)
		if err != nil {
			return p, err
		}
		p.Tone = &tone
	}
	if r.Language != nil {
		lang := models.Language(*r.Language)
		p.Language = &lang
	}
	if p.MessageLength == nil && (r.MessageLengthMin != nil || r.MessageLengthMax != nil) {
		cfg, err := current()
		if err != nil {
			return p, err
		}
		l := cfg.MessageLength
		if r.MessageLengthMin != nil {
			l.Min = *r.MessageLengthMin
		}
		if r.MessageLengthMax != nil {
			l.Max = *r.MessageLengthMax
		}
		p.MessageLength = &l
	}
	return p, nil
}

// GetAssistantConfig возвращает конфигурацию, создавая значения по умолчанию при первом обращении
func (h *Handler) GetAssistantConfig(c *gin.Context) {
	cfg, err := h.assistant.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cfg, "")
}

// UpdateAssistantConfig применяет частичное обновление конфигурации
func (h *Handler) UpdateAssistantConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	var loadErr error
	patch, err := req.toPatch(func() (*models.AssistantConfig, error) {
		cfg, err := h.assistant.Get(ctx)
		loadErr = err
		return cfg, err
	})
	if loadErr != nil {
		respondError(c, loadErr)
		return
	}
	if err != nil {
		respondFail(c, http.StatusBadRequest, "Datos inválidos", err.Error())
		return
	}

	cfg, err := h.assistant.Update(ctx, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	log := h.reqLog(c)
	log.Info().Str("tone", string(cfg.Tone)).Str("language", string(cfg.Language)).Msg("assistant config updated")
	h.hub.Publish(websocket.ConfigUpdated(cfg))
	respondOK(c, http.StatusOK, cfg, "Configuración actualizada")
}
