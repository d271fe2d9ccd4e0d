// Package followup определяет, каким клиентам нужно написать повторно
package followup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/egor/dealercrm/metrics"
	"github.com/egor/dealercrm/models"
)

const day = 24 * time.Hour

// Store - чтение активности клиентов
type Store interface {
	ListClientActivity(ctx context.Context) ([]models.ClientActivity, error)
	CountClients(ctx context.Context) (int, error)
	CountClientsWithDebts(ctx context.Context) (int, error)
}

// ConfigSource отдаёт текущую конфигурацию ассистента (порог в днях)
type ConfigSource interface {
	Get(ctx context.Context) (*models.AssistantConfig, error)
}

type Classifier struct {
	store   Store
	configs ConfigSource
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewClassifier(store Store, configs ConfigSource, log zerolog.Logger, m *metrics.Metrics) *Classifier {
	return &Classifier{
		store:   store,
		configs: configs,
		now:     time.Now,
		log:     log,
		metrics: m,
	}
}

// WithClock подменяет источник времени
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// NeedsFollowUp: сообщений нет, или последнее отправлено не позже now − threshold.
// Сообщение ровно на границе считается старым.
func NeedsFollowUp(lastMessageAt *time.Time, now time.Time, threshold time.Duration) bool {
	if lastMessageAt == nil {
		return true
	}
	return !lastMessageAt.After(now.Add(-threshold))
}

// Classify - чистая функция: кандидаты без дублей, по имени, затем по ID
func Classify(activity []models.ClientActivity, now time.Time, threshold time.Duration) []models.BasicClient {
	seen := make(map[int64]struct{}, len(activity))
	out := make([]models.BasicClient, 0)
	for _, a := range activity {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		if NeedsFollowUp(a.LastMessageAt, now, threshold) {
			out = append(out, a.BasicClient)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Threshold берёт порог из конфигурации; при ошибке - значение по умолчанию
func (c *Classifier) Threshold(ctx context.Context) time.Duration {
	cfg, err := c.configs.Get(ctx)
	if err != nil {
		c.log.Warn().Err(err).Int("days", models.DefaultFollowUpDays).Msg("assistant config unavailable, using default follow-up threshold")
		return models.DefaultFollowUpDays * day
	}
	if cfg.FollowUpDays <= 0 {
		return models.DefaultFollowUpDays * day
	}
	return time.Duration(cfg.FollowUpDays) * day
}

// Candidates возвращает клиентов, которым нужен повторный контакт
func (c *Classifier) Candidates(ctx context.Context) ([]models.BasicClient, error) {
	threshold := c.Threshold(ctx)
	activity, err := c.store.ListClientActivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("list client activity: %w", err)
	}
	list := Classify(activity, c.now(), threshold)
	c.metrics.SetFollowUpCandidates(len(list))
	c.log.Debug().Int("candidates", len(list)).Dur("threshold", threshold).Msg("follow-up classification done")
	return list, nil
}

// Stats - сводка для дашборда
func (c *Classifier) Stats(ctx context.Context) (models.ClientStats, error) {
	var stats models.ClientStats

	total, err := c.store.CountClients(ctx)
	if err != nil {
		return stats, fmt.Errorf("count clients: %w", err)
	}
	withDebts, err := c.store.CountClientsWithDebts(ctx)
	if err != nil {
		return stats, fmt.Errorf("count clients with debts: %w", err)
	}
	candidates, err := c.Candidates(ctx)
	if err != nil {
		return stats, err
	}

	stats.Total = total
	stats.NeedFollowUp = len(candidates)
	stats.WithDebts = withDebts
	stats.WithoutDebts = total - withDebts
	return stats, nil
}
