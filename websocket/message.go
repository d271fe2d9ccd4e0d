package websocket

import (
	"encoding/json"

	"github.com/egor/dealercrm/models"
)

// Типы событий для дашборда
const (
	EventClientCreated  = "client_created"
	EventClientDeleted  = "client_deleted"
	EventMessageCreated = "message_created"
	EventConfigUpdated  = "config_updated"
	EventError          = "error"
)

// Event представляет сообщение для WebSocket
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent создает сообщение с указанным типом и данными
func NewEvent(eventType string, payload interface{}) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: eventType, Payload: payloadJSON})
}

// ClientCreated - новый клиент в CRM
func ClientCreated(c *models.Client) ([]byte, error) {
	return NewEvent(EventClientCreated, c.Basic())
}

// ClientDeleted - клиент удалён вместе с историей
func ClientDeleted(id int64) ([]byte, error) {
	return NewEvent(EventClientDeleted, struct {
		ID int64 `json:"id"`
	}{ID: id})
}

// MessageCreated - новое сообщение в истории клиента (в том числе сгенерированное)
func MessageCreated(m *models.Message) ([]byte, error) {
	return NewEvent(EventMessageCreated, m)
}

// ConfigUpdated - изменилась конфигурация ассистента
func ConfigUpdated(cfg *models.AssistantConfig) ([]byte, error) {
	return NewEvent(EventConfigUpdated, cfg)
}

// ErrorEvent создает сообщение об ошибке
func ErrorEvent(errorText string) ([]byte, error) {
	payload := struct {
		Error string `json:"error"`
	}{
		Error: errorText,
	}
	return NewEvent(EventError, payload)
}
