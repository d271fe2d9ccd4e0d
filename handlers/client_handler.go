package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/egor/dealercrm/models"
	"github.com/egor/dealercrm/websocket"
)

type messageRequest struct {
	Text   string     `json:"text" binding:"required,max=2000"`
	Role   string     `json:"role" binding:"required,oneof=client agent"`
	SentAt *time.Time `json:"sentAt"`
}

func (r messageRequest) toModel(clientID int64) models.NewMessage {
	m := models.NewMessage{ClientID: clientID, Text: r.Text, Role: models.Role(r.Role)}
	if r.SentAt != nil {
		m.SentAt = r.SentAt.UTC()
	}
	return m
}

type debtRequest struct {
	Institution string `json:"institution" binding:"required,max=100"`
	Amount      int64  `json:"amount" binding:"required,gt=0,lte=999999999"`
	DueDate     string `json:"dueDate" binding:"required"`
}

type createClientRequest struct {
	Name     string           `json:"name" binding:"required,max=100"`
	Rut      string           `json:"rut" binding:"required,max=20"`
	Email    string           `json:"email" binding:"omitempty,email"`
	Phone    string           `json:"phone" binding:"omitempty,max=30"`
	Messages []messageRequest `json:"messages" binding:"omitempty,dive"`
	Debts    []debtRequest    `json:"debts" binding:"omitempty,dive"`
}

// parseDueDate принимает RFC 3339 или просто дату
func parseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("dueDate %q must be YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func (r createClientRequest) toModel() (models.NewClient, error) {
	in := models.NewClient{
		Name:       strings.TrimSpace(r.Name),
		NationalID: strings.TrimSpace(r.Rut),
	}
	if r.Email != "" {
		in.Email = &r.Email
	}
	if r.Phone != "" {
		in.Phone = &r.Phone
	}
	for _, m := range r.Messages {
		in.Messages = append(in.Messages, m.toModel(0))
	}
	for _, d := range r.Debts {
		due, err := parseDueDate(d.DueDate)
		if err != nil {
			return models.NewClient{}, err
		}
		in.Debts = append(in.Debts, models.NewDebt{Institution: d.Institution, Amount: d.Amount, DueDate: due})
	}
	return in, nil
}

// ListClients возвращает список клиентов (id, name, rut)
func (h *Handler) ListClients(c *gin.Context) {
	clients, err := h.store.ListClients(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, clients, "")
}

// GetClient возвращает клиента с сообщениями и долгами
func (h *Handler) GetClient(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	client, err := h.store.GetClient(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, client, "")
}

// CreateClient создает клиента вместе с начальными сообщениями и долгами
func (h *Handler) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	in, err := req.toModel()
	if err != nil {
		respondFail(c, http.StatusBadRequest, "Datos inválidos", err.Error())
		return
	}

	client, err := h.store.CreateClient(c.Request.Context(), in)
	if err != nil {
		log := h.reqLog(c)
		log.Warn().Err(err).Str("rut", in.NationalID).Msg("client not created")
		respondError(c, err)
		return
	}

	log := h.reqLog(c)
	log.Info().Int64("client_id", client.ID).Int("messages", len(client.Messages)).Int("debts", len(client.Debts)).Msg("client created")
	h.hub.Publish(websocket.ClientCreated(client))
	respondOK(c, http.StatusCreated, client, "Cliente creado exitosamente")
}

// DeleteClient удаляет клиента вместе с сообщениями и долгами
func (h *Handler) DeleteClient(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteClient(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	log := h.reqLog(c)
	log.Info().Int64("client_id", id).Msg("client deleted")
	h.hub.Publish(websocket.ClientDeleted(id))
	respondOK(c, http.StatusOK, gin.H{"id": id}, "Cliente eliminado exitosamente")
}

// CreateMessage добавляет сообщение в историю клиента
func (h *Handler) CreateMessage(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	msg, err := h.store.AppendMessage(c.Request.Context(), req.toModel(id))
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Publish(websocket.MessageCreated(msg))
	respondOK(c, http.StatusCreated, msg, "Mensaje creado exitosamente")
}

// GetClientDebts возвращает долги клиента и признак их наличия
func (h *Handler) GetClientDebts(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	exists, err := h.store.ClientExists(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !exists {
		respondFail(c, http.StatusNotFound, "Cliente no encontrado")
		return
	}
	debts, err := h.store.ListDebts(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"debts":    debts,
		"hasDebts": len(debts) > 0,
	}, "")
}

// FollowUpCandidates возвращает клиентов, которым пора написать
func (h *Handler) FollowUpCandidates(c *gin.Context) {
	clients, err := h.classifier.Candidates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, clients, "")
}

// ClientStats возвращает сводку для дашборда
func (h *Handler) ClientStats(c *gin.Context) {
	stats, err := h.classifier.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats, "")
}
