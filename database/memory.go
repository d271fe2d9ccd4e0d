package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/egor/dealercrm/models"
)

// MemoryStore - хранилище в памяти с той же семантикой, что и PostgresStore.
// Используется в тестах и при STORAGE_DRIVER=memory.
type MemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	clients     map[int64]*models.Client
	messages    map[int64][]models.Message // clientID -> в порядке вставки
	debts       map[int64][]models.Debt
	nationalIDs map[string]int64
	config      *models.AssistantConfig
	seq         int64

	// FailConfig, если задан, возвращается из операций с конфигурацией
	FailConfig error
	// FailAppend, если задан, возвращается из AppendMessage
	FailAppend error
}

// NewMemoryStore создаёт пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         func() time.Time { return time.Now().UTC() },
		clients:     make(map[int64]*models.Client),
		messages:    make(map[int64][]models.Message),
		debts:       make(map[int64][]models.Debt),
		nationalIDs: make(map[string]int64),
	}
}

// SetClock подменяет источник времени
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) ListClients(_ context.Context) ([]models.BasicClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.BasicClient, 0, len(s.clients))
	for _, c := range s.clients {
		list = append(list, c.Basic())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (s *MemoryStore) GetClient(_ context.Context, id int64) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getClient(id)
}

func (s *MemoryStore) getClient(id int64) (*models.Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return nil, notFound("GetClient")
	}
	out := *c
	out.Messages = s.messagesNewestFirst(id)
	out.Debts = s.debtsByDueDate(id)
	return &out, nil
}

func (s *MemoryStore) CreateClient(_ context.Context, in models.NewClient) (*models.Client, error) {
	if err := validateNewClient(in); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.nationalIDs[in.NationalID]; taken {
		return nil, &Error{Kind: KindConflict, Op: "CreateClient", Err: fmt.Errorf("rut %s already registered", in.NationalID)}
	}

	now := s.now()
	c := &models.Client{
		ID:         s.nextID(),
		Name:       in.Name,
		NationalID: in.NationalID,
		Email:      emptyToNil(in.Email),
		Phone:      emptyToNil(in.Phone),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.clients[c.ID] = c
	s.nationalIDs[c.NationalID] = c.ID

	for _, m := range in.Messages {
		sentAt := m.SentAt
		if sentAt.IsZero() {
			sentAt = now
		}
		s.messages[c.ID] = append(s.messages[c.ID], models.Message{
			ID: s.nextID(), ClientID: c.ID, Text: m.Text, Role: m.Role, SentAt: sentAt,
		})
	}
	for _, d := range in.Debts {
		s.debts[c.ID] = append(s.debts[c.ID], models.Debt{
			ID: s.nextID(), ClientID: c.ID, Institution: d.Institution, Amount: d.Amount,
			DueDate: d.DueDate, CreatedAt: now, UpdatedAt: now,
		})
	}
	return s.getClient(c.ID)
}

// DeleteClient удаляет клиента каскадно вместе с сообщениями и долгами
func (s *MemoryStore) DeleteClient(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return notFound("DeleteClient")
	}
	delete(s.nationalIDs, c.NationalID)
	delete(s.clients, id)
	delete(s.messages, id)
	delete(s.debts, id)
	return nil
}

func (s *MemoryStore) ClientExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[id]
	return ok, nil
}

func (s *MemoryStore) CountClients(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients), nil
}

func (s *MemoryStore) CountClientsWithDebts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id := range s.clients {
		if len(s.debts[id]) > 0 {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListClientActivity(ctx context.Context) ([]models.ClientActivity, error) {
	basics, _ := s.ListClients(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.ClientActivity, 0, len(basics))
	for _, b := range basics {
		a := models.ClientActivity{BasicClient: b}
		for _, m := range s.messages[b.ID] {
			if a.LastMessageAt == nil || m.SentAt.After(*a.LastMessageAt) {
				t := m.SentAt
				a.LastMessageAt = &t
			}
		}
		list = append(list, a)
	}
	return list, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, clientID int64) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[clientID]; !ok {
		return nil, notFound("ListMessages")
	}
	return s.messagesNewestFirst(clientID), nil
}

func (s *MemoryStore) messagesNewestFirst(clientID int64) []models.Message {
	list := append([]models.Message{}, s.messages[clientID]...)
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].SentAt.Equal(list[j].SentAt) {
			return list[i].SentAt.After(list[j].SentAt)
		}
		return list[i].ID > list[j].ID
	})
	return list
}

func (s *MemoryStore) AppendMessage(_ context.Context, in models.NewMessage) (*models.Message, error) {
	if err := in.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalid, Op: "AppendMessage", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppend != nil {
		return nil, wrapErr("AppendMessage", s.FailAppend)
	}
	c, ok := s.clients[in.ClientID]
	if !ok {
		return nil, notFound("AppendMessage")
	}
	sentAt := in.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	m := models.Message{ID: s.nextID(), ClientID: in.ClientID, Text: in.Text, Role: in.Role, SentAt: sentAt}
	s.messages[in.ClientID] = append(s.messages[in.ClientID], m)
	c.UpdatedAt = sentAt
	return &m, nil
}

func (s *MemoryStore) ListDebts(_ context.Context, clientID int64) ([]models.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clients[clientID]; !ok {
		return nil, notFound("ListDebts")
	}
	return s.debtsByDueDate(clientID), nil
}

func (s *MemoryStore) debtsByDueDate(clientID int64) []models.Debt {
	list := append([]models.Debt{}, s.debts[clientID]...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].DueDate.Before(list[j].DueDate) })
	return list
}

func (s *MemoryStore) CountDebts(_ context.Context, clientID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.debts[clientID]), nil
}

// ─────────────────────────── assistant config

func (s *MemoryStore) GetAssistantConfig(_ context.Context) (*models.AssistantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailConfig != nil {
		return nil, wrapErr("GetAssistantConfig", s.FailConfig)
	}
	if s.config == nil {
		return nil, notFound("GetAssistantConfig")
	}
	cfg := s.config.Clone()
	return &cfg, nil
}

func (s *MemoryStore) CreateAssistantConfig(_ context.Context, cfg models.AssistantConfig) (*models.AssistantConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailConfig != nil {
		return nil, wrapErr("CreateAssistantConfig", s.FailConfig)
	}
	if s.config != nil {
		return nil, &Error{Kind: KindConflict, Op: "CreateAssistantConfig"}
	}
	now := s.now()
	stored := cfg.Clone()
	stored.ID = configID
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.config = &stored
	out := stored.Clone()
	return &out, nil
}

func (s *MemoryStore) UpdateAssistantConfig(_ context.Context, patch models.AssistantConfigPatch) (*models.AssistantConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailConfig != nil {
		return nil, wrapErr("UpdateAssistantConfig", s.FailConfig)
	}
	if s.config == nil {
		return nil, notFound("UpdateAssistantConfig")
	}
	updated := patch.Apply(s.config.Clone())
	if !patch.Empty() {
		updated.UpdatedAt = s.now()
	}
	s.config = &updated
	out := updated.Clone()
	return &out, nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
