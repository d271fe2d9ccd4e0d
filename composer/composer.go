// Package composer строит инструкции для языковой модели и сохраняет
// сгенерированное follow-up сообщение в историю клиента.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/egor/dealercrm/database"
	"github.com/egor/dealercrm/llm"
	"github.com/egor/dealercrm/metrics"
	"github.com/egor/dealercrm/models"
)

var (
	// ErrGeneration - генератор не вернул пригодный текст; в историю ничего не записано
	ErrGeneration = errors.New("message generation failed")
	// ErrPersistence - текст получен, но сохранить его не удалось
	ErrPersistence = errors.New("generated message could not be saved")
	// ErrInvalidRequest - в запросе не хватает данных клиента
	ErrInvalidRequest = errors.New("invalid generation request")
)

// Generator - внешний генератор текста
type Generator interface {
	Complete(ctx context.Context, p llm.Prompt, params llm.Params) (string, error)
}

// ConfigSource отдаёт конфигурацию ассистента
type ConfigSource interface {
	Get(ctx context.Context) (*models.AssistantConfig, error)
}

// Store - операции хранилища, нужные композитору
type Store interface {
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	ClientExists(ctx context.Context, id int64) (bool, error)
	CountDebts(ctx context.Context, clientID int64) (int, error)
	ListMessages(ctx context.Context, clientID int64) ([]models.Message, error)
	AppendMessage(ctx context.Context, in models.NewMessage) (*models.Message, error)
}

// Result - результат генерации
type Result struct {
	Text           string
	Message        *models.Message
	ConfigFallback bool
}

type Composer struct {
	store   Store
	configs ConfigSource
	gen     Generator
	params  llm.Params
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func New(store Store, configs ConfigSource, gen Generator, params llm.Params, log zerolog.Logger, m *metrics.Metrics) *Composer {
	return &Composer{
		store:   store,
		configs: configs,
		gen:     gen,
		params:  params,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
		metrics: m,
	}
}

// WithClock подменяет источник времени
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

// GenerateForClient загружает клиента, историю и наличие долгов, затем генерирует сообщение
func (c *Composer) GenerateForClient(ctx context.Context, clientID int64, hint string) (*Result, error) {
	client, err := c.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load client %d: %w", clientID, err)
	}
	debts, err := c.store.CountDebts(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("count debts of client %d: %w", clientID, err)
	}

	// любая запись о долге, даже с будущим сроком
	hasDebts := debts > 0

	return c.generate(ctx, Request{
		ClientID:   client.ID,
		Name:       client.Name,
		NationalID: client.NationalID,
		HasDebts:   hasDebts,
		Hint:       hint,
		History:    historyFromMessages(client.Messages),
	})
}

// Generate генерирует сообщение по уже собранным данным клиента
func (c *Composer) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	ok, err := c.store.ClientExists(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("check client %d: %w", req.ClientID, err)
	}
	if !ok {
		return nil, fmt.Errorf("client %d: %w", req.ClientID, database.ErrNotFound)
	}
	return c.generate(ctx, req)
}

func validateRequest(req Request) error {
	switch {
	case req.ClientID <= 0:
		return fmt.Errorf("%w: client id must be positive", ErrInvalidRequest)
	case strings.TrimSpace(req.Name) == "":
		return fmt.Errorf("%w: client name is required", ErrInvalidRequest)
	case strings.TrimSpace(req.NationalID) == "":
		return fmt.Errorf("%w: client rut is required", ErrInvalidRequest)
	}
	return nil
}

func (c *Composer) generate(ctx context.Context, req Request) (*Result, error) {
	log := c.log.With().Int64("client_id", req.ClientID).Logger()

	cfg, fallback := c.loadConfig(ctx, log)
	prompt := BuildPrompt(cfg, req)

	start := time.Now()
	text, err := c.gen.Complete(ctx, prompt, c.params)
	if err == nil {
		text, err = llm.Sanitize(text)
	}
	elapsed := time.Since(start)
	if err != nil {
		outcome := metrics.OutcomeFailure
		if llm.IsTimeout(err) {
			outcome = metrics.OutcomeTimeout
		}
		c.metrics.RecordGeneration(outcome, elapsed)
		log.Warn().Err(err).Str("outcome", outcome).Msg("follow-up generation failed")
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	sentAt, err := c.sentAt(ctx, req)
	var msg *models.Message
	if err == nil {
		msg, err = c.store.AppendMessage(ctx, models.NewMessage{
			ClientID: req.ClientID,
			Text:     text,
			Role:     models.RoleAgent,
			SentAt:   sentAt,
		})
	}
	if err != nil {
		c.metrics.RecordGeneration(metrics.OutcomePersistence, elapsed)
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("client %d: %w", req.ClientID, err)
		}
		log.Error().Err(err).Msg("generated message could not be saved")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	c.metrics.RecordGeneration(metrics.OutcomeSuccess, elapsed)
	log.Info().Int64("message_id", msg.ID).Dur("latency", elapsed).Bool("config_fallback", fallback).Msg("follow-up message generated")
	return &Result{Text: text, Message: msg, ConfigFallback: fallback}, nil
}

func (c *Composer) loadConfig(ctx context.Context, log zerolog.Logger) (models.AssistantConfig, bool) {
	cfg, err := c.configs.Get(ctx)
	if err != nil {
		c.metrics.RecordConfigFallback()
		log.Warn().Err(err).Msg("assistant config unavailable, using fallback persona")
		return FallbackConfig(), true
	}
	return *cfg, false
}

// sentAt не даёт новому сообщению оказаться раньше последнего сохранённого
// или переданного в истории: история в запросе может быть неполной
func (c *Composer) sentAt(ctx context.Context, req Request) (time.Time, error) {
	now := c.now()
	for _, h := range req.History {
		if h.SentAt.After(now) {
			now = h.SentAt
		}
	}
	stored, err := c.store.ListMessages(ctx, req.ClientID)
	if err != nil {
		return time.Time{}, err
	}
	// ListMessages отдаёт новые первыми
	if len(stored) > 0 && stored[0].SentAt.After(now) {
		now = stored[0].SentAt
	}
	return now, nil
}
