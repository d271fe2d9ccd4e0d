package models

import (
	"fmt"
	"time"
)

// Role - автор сообщения
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
)

// Valid проверяет, что роль - одна из допустимых
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAgent
}

// Message представляет собой сообщение в истории клиента. После создания не изменяется.
type Message struct {
	ID       int64     `json:"id"`
	ClientID int64     `json:"clientId"`
	Text     string    `json:"text"`
	Role     Role      `json:"role"`
	SentAt   time.Time `json:"sentAt"`
}

// NewMessage - данные для добавления сообщения
type NewMessage struct {
	ClientID int64
	Text     string
	Role     Role
	SentAt   time.Time
}

// Validate проверяет текст и роль
func (m NewMessage) Validate() error {
	if m.Text == "" {
		return fmt.Errorf("message text is required")
	}
	if len([]rune(m.Text)) > MaxMessageLength {
		return fmt.Errorf("message text exceeds %d characters", MaxMessageLength)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("role must be %q or %q", RoleClient, RoleAgent)
	}
	return nil
}
