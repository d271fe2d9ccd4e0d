package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/egor/dealercrm/models"
)

const configID = 1

var configColumns = []string{
	"id", "name", "tone", "language", "brands", "models", "branches",
	"message_length_min", "message_length_max", "signature", "use_emojis",
	"additional_instructions", "follow_up_days", "created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*models.AssistantConfig, error) {
	var (
		cfg                       models.AssistantConfig
		brands, modelsRaw, branch []byte
	)
	if err := row.Scan(
		&cfg.ID, &cfg.Name, &cfg.Tone, &cfg.Language, &brands, &modelsRaw, &branch,
		&cfg.MessageLength.Min, &cfg.MessageLength.Max, &cfg.Signature, &cfg.UseEmojis,
		&cfg.AdditionalInstructions, &cfg.FollowUpDays, &cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(brands, &cfg.Brands); err != nil {
		return nil, fmt.Errorf("decode brands: %w", err)
	}
	if err := json.Unmarshal(modelsRaw, &cfg.Models); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	if err := json.Unmarshal(branch, &cfg.Branches); err != nil {
		return nil, fmt.Errorf("decode branches: %w", err)
	}
	return &cfg, nil
}

func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetAssistantConfig читает единственную строку конфигурации; ErrNotFound, если её нет
func (s *PostgresStore) GetAssistantConfig(ctx context.Context) (*models.AssistantConfig, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, args, err := s.psql.Select(configColumns...).
		From("assistant_config").
		Where(sq.Eq{"id": configID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("GetAssistantConfig: build: %w", err)
	}
	cfg, err := scanConfig(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return nil, wrapErr("GetAssistantConfig", err)
	}
	return cfg, nil
}

// CreateAssistantConfig вставляет строку конфигурации; ErrConflict, если она уже есть
func (s *PostgresStore) CreateAssistantConfig(ctx context.Context, cfg models.AssistantConfig) (*models.AssistantConfig, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	brands, err := jsonArg(cfg.Brands)
	if err != nil {
		return nil, fmt.Errorf("CreateAssistantConfig: %w", err)
	}
	modelsJSON, err := jsonArg(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("CreateAssistantConfig: %w", err)
	}
	branches, err := jsonArg(cfg.Branches)
	if err != nil {
		return nil, fmt.Errorf("CreateAssistantConfig: %w", err)
	}

	q, args, err := s.psql.Insert("assistant_config").
		Columns("id", "name", "tone", "language", "brands", "models", "branches",
			"message_length_min", "message_length_max", "signature", "use_emojis",
			"additional_instructions", "follow_up_days").
		Values(configID, cfg.Name, string(cfg.Tone), string(cfg.Language),
			sq.Expr("?::jsonb", brands), sq.Expr("?::jsonb", modelsJSON), sq.Expr("?::jsonb", branches),
			cfg.MessageLength.Min, cfg.MessageLength.Max, cfg.Signature, cfg.UseEmojis,
			cfg.AdditionalInstructions, cfg.FollowUpDays).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("CreateAssistantConfig: build: %w", err)
	}
	created, err := scanConfig(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return nil, wrapErr("CreateAssistantConfig", err)
	}
	return created, nil
}

// UpdateAssistantConfig обновляет только заданные в патче колонки
func (s *PostgresStore) UpdateAssistantConfig(ctx context.Context, patch models.AssistantConfigPatch) (*models.AssistantConfig, error) {
	if patch.Empty() {
		return s.GetAssistantConfig(ctx)
	}
	q, args, err := s.buildConfigUpdate(patch)
	if err != nil {
		return nil, fmt.Errorf("UpdateAssistantConfig: build: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cfg, err := scanConfig(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return nil, wrapErr("UpdateAssistantConfig", err)
	}
	return cfg, nil
}

func (s *PostgresStore) buildConfigUpdate(p models.AssistantConfigPatch) (string, []any, error) {
	upd := s.psql.Update("assistant_config").Where(sq.Eq{"id": configID})

	if p.Name != nil {
		upd = upd.Set("name", *p.Name)
	}
	if p.Tone != nil {
		upd = upd.Set("tone", string(*p.Tone))
	}
	if p.Language != nil {
		upd = upd.Set("language", string(*p.Language))
	}
	if p.Brands != nil {
		v, err := jsonArg(p.Brands)
		if err != nil {
			return "", nil, err
		}
		upd = upd.Set("brands", sq.Expr("?::jsonb", v))
	}
	if p.Models != nil {
		v, err := jsonArg(p.Models)
		if err != nil {
			return "", nil, err
		}
		upd = upd.Set("models", sq.Expr("?::jsonb", v))
	}
	if p.Branches != nil {
		v, err := jsonArg(p.Branches)
		if err != nil {
			return "", nil, err
		}
		upd = upd.Set("branches", sq.Expr("?::jsonb", v))
	}
	if p.MessageLength != nil {
		upd = upd.Set("message_length_min", p.MessageLength.Min).
			Set("message_length_max", p.MessageLength.Max)
	}
	if p.Signature != nil {
		upd = upd.Set("signature", *p.Signature)
	}
	if p.UseEmojis != nil {
		upd = upd.Set("use_emojis", *p.UseEmojis)
	}
	if p.AdditionalInstructions != nil {
		upd = upd.Set("additional_instructions", *p.AdditionalInstructions)
	}
	if p.FollowUpDays != nil {
		upd = upd.Set("follow_up_days", *p.FollowUpDays)
	}

	return upd.Set("updated_at", sq.Expr("now()")).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
}

func joinColumns() string {
	return strings.Join(configColumns, ", ")
}
