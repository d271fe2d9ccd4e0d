package models

import (
	"time"
)

// Client - клиент автомотора (проспект), владелец истории сообщений и долгов
type Client struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	NationalID string    `json:"rut"` // RUT или другой национальный идентификатор
	Email      *string   `json:"email,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Messages   []Message `json:"messages"` // новые сверху
	Debts      []Debt    `json:"debts"`    // по дате погашения
}

// Basic возвращает публичные поля клиента
func (c *Client) Basic() BasicClient {
	return BasicClient{ID: c.ID, Name: c.Name, NationalID: c.NationalID}
}

// BasicClient - облегчённое представление для списков
type BasicClient struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	NationalID string `json:"rut"`
}

// ClientActivity - клиент и время его последнего сообщения (nil, если сообщений нет)
type ClientActivity struct {
	BasicClient
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// Debt - долг клиента перед финансовой организацией
type Debt struct {
	ID          int64     `json:"id"`
	ClientID    int64     `json:"clientId"`
	Institution string    `json:"institution"`
	Amount      int64     `json:"amount"` // в песо, целое
	DueDate     time.Time `json:"dueDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewClient - данные для создания клиента вместе с начальными сообщениями и долгами
type NewClient struct {
	Name       string
	NationalID string
	Email      *string
	Phone      *string
	Messages   []NewMessage // ClientID игнорируется
	Debts      []NewDebt
}

// NewDebt - данные для создания долга
type NewDebt struct {
	Institution string
	Amount      int64
	DueDate     time.Time
}

// ClientStats - сводка для дашборда
type ClientStats struct {
	Total        int `json:"total"`
	NeedFollowUp int `json:"needFollowUp"`
	WithDebts    int `json:"withDebts"`
	WithoutDebts int `json:"withoutDebts"`
}

// Ограничения на входные данные
const (
	MaxMessageLength     = 2000
	MaxClientNameLength  = 100
	MaxInstitutionLength = 100
	MaxDebtAmount        = 999999999
)
