package database

import (
	"context"
	"fmt"
	"time"

	"github.com/egor/dealercrm/models"
)

const (
	DefaultQueryTimeout = 5 * time.Second
)

// Store - всё, что ядру нужно от хранилища клиентов, сообщений, долгов и конфигурации
type Store interface {
	ListClients(ctx context.Context) ([]models.BasicClient, error)
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	CreateClient(ctx context.Context, in models.NewClient) (*models.Client, error)
	DeleteClient(ctx context.Context, id int64) error
	ClientExists(ctx context.Context, id int64) (bool, error)
	CountClients(ctx context.Context) (int, error)
	CountClientsWithDebts(ctx context.Context) (int, error)
	ListClientActivity(ctx context.Context) ([]models.ClientActivity, error)

	ListMessages(ctx context.Context, clientID int64) ([]models.Message, error)
	AppendMessage(ctx context.Context, in models.NewMessage) (*models.Message, error)

	ListDebts(ctx context.Context, clientID int64) ([]models.Debt, error)
	CountDebts(ctx context.Context, clientID int64) (int, error)

	GetAssistantConfig(ctx context.Context) (*models.AssistantConfig, error)
	CreateAssistantConfig(ctx context.Context, cfg models.AssistantConfig) (*models.AssistantConfig, error)
	UpdateAssistantConfig(ctx context.Context, patch models.AssistantConfigPatch) (*models.AssistantConfig, error)

	Ping(ctx context.Context) error
	Close() error
}

// Драйверы хранилища
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options - параметры подключения
type Options struct {
	Driver       string
	DSN          string
	QueryTimeout time.Duration
	Migrate      bool
}

// Open создаёт хранилище указанного драйвера
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres, "":
		db, err := Connect(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := Migrate(db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return NewPostgresStore(db, opts.QueryTimeout), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

func validateNewClient(in models.NewClient) error {
	switch {
	case in.Name == "":
		return &Error{Kind: KindInvalid, Op: "CreateClient", Err: fmt.Errorf("name is required")}
	case len([]rune(in.Name)) > models.MaxClientNameLength:
		return &Error{Kind: KindInvalid, Op: "CreateClient", Err: fmt.Errorf("name too long")}
	case in.NationalID == "":
		return &Error{Kind: KindInvalid, Op: "CreateClient", Err: fmt.Errorf("rut is required")}
	}
	for _, m := range in.Messages {
		if err := m.Validate(); err != nil {
			return &Error{Kind: KindInvalid, Op: "CreateClient", Err: err}
		}
	}
	for _, d := range in.Debts {
		if d.Institution == "" || len([]rune(d.Institution)) > models.MaxInstitutionLength {
			return &Error{Kind: KindInvalid, Op: "CreateClient", Err: fmt.Errorf("institution must be 1-%d characters", models.MaxInstitutionLength)}
		}
		if d.Amount <= 0 || d.Amount > models.MaxDebtAmount {
			return &Error{Kind: KindInvalid, Op: "CreateClient", Err: fmt.Errorf("debt amount must be between 1 and %d", models.MaxDebtAmount)}
		}
	}
	return nil
}
