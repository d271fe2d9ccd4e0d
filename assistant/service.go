// Package assistant управляет единственной конфигурацией ассистента:
// ленивое создание значений по умолчанию и частичное обновление.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/egor/dealercrm/database"
	"github.com/egor/dealercrm/models"
)

// ErrInvalidConfig - патч не прошёл проверку
var ErrInvalidConfig = errors.New("invalid assistant config")

// Store - операции хранилища, нужные сервису
type Store interface {
	GetAssistantConfig(ctx context.Context) (*models.AssistantConfig, error)
	CreateAssistantConfig(ctx context.Context, cfg models.AssistantConfig) (*models.AssistantConfig, error)
	UpdateAssistantConfig(ctx context.Context, patch models.AssistantConfigPatch) (*models.AssistantConfig, error)
}

type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

// Get возвращает текущую конфигурацию. Если строки нет, создаёт конфигурацию по умолчанию.
func (s *Service) Get(ctx context.Context) (*models.AssistantConfig, error) {
	cfg, err := s.store.GetAssistantConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load assistant config: %w", err)
	}

	created, err := s.store.CreateAssistantConfig(ctx, models.DefaultAssistantConfig())
	switch {
	case err == nil:
		s.log.Info().Str("name", created.Name).Msg("default assistant config created")
		return created, nil
	case errors.Is(err, database.ErrConflict):
		// строку успел создать параллельный запрос
		cfg, err = s.store.GetAssistantConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("reload assistant config: %w", err)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("create default assistant config: %w", err)
	}
}

// Update применяет частичное обновление; незаданные поля сохраняют прежние значения
func (s *Service) Update(ctx context.Context, patch models.AssistantConfigPatch) (*models.AssistantConfig, error) {
	if err := patch.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}

	updated, err := s.store.UpdateAssistantConfig(ctx, patch)
	if err != nil {
		return nil, fmt.Errorf("update assistant config: %w", err)
	}
	s.log.Info().Int64("config_id", updated.ID).Msg("assistant config updated")
	return updated, nil
}
