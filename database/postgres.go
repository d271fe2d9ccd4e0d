package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/egor/dealercrm/models"
)

// queryer - общее подмножество *sql.DB и *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore - хранилище поверх PostgreSQL (pgx в режиме database/sql)
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
	psql    sq.StatementBuilderType
}

// NewPostgresStore оборачивает открытый пул
func NewPostgresStore(db *sql.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &PostgresStore{
		db:      db,
		timeout: timeout,
		psql:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Ping проверяет соединение
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return wrapErr("Ping", s.db.PingContext(ctx))
}

// Close закрывает пул
func (s *PostgresStore) Close() error { return s.db.Close() }

// ─────────────────────────── clients

// ListClients возвращает базовые поля всех клиентов по имени
func (s *PostgresStore) ListClients(ctx context.Context) ([]models.BasicClient, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, args, err := s.psql.Select("id", "name", "rut").
		From("clients").
		OrderBy("name ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ListClients: build: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("ListClients", err)
	}
	defer rows.Close()

	list := make([]models.BasicClient, 0)
	for rows.Next() {
		var c models.BasicClient
		if err := rows.Scan(&c.ID, &c.Name, &c.NationalID); err != nil {
			return nil, wrapErr("ListClients", err)
		}
		list = append(list, c)
	}
	return list, wrapErr("ListClients", rows.Err())
}

// GetClient возвращает клиента с сообщениями (новые сверху) и долгами (по сроку)
func (s *PostgresStore) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.getClient(ctx, s.db, id)
}

func (s *PostgresStore) getClient(ctx context.Context, q queryer, id int64) (*models.Client, error) {
	var (
		c     models.Client
		email sql.NullString
		phone sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, rut, email, phone, created_at, updated_at
		FROM clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.NationalID, &email, &phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, wrapErr("GetClient", err)
	}
	c.Email = nullStringToPointer(email)
	c.Phone = nullStringToPointer(phone)

	if c.Messages, err = s.listMessages(ctx, q, id); err != nil {
		return nil, err
	}
	if c.Debts, err = s.listDebts(ctx, q, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClient создаёт клиента вместе с начальными сообщениями и долгами в одной транзакции
func (s *PostgresStore) CreateClient(ctx context.Context, in models.NewClient) (*models.Client, error) {
	if err := validateNewClient(in); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("CreateClient: begin", err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO clients (name, rut, email, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		in.Name, in.NationalID, pointerToNullString(in.Email), pointerToNullString(in.Phone),
	).Scan(&id); err != nil {
		return nil, wrapErr("CreateClient", err)
	}

	if len(in.Messages) > 0 {
		now := time.Now().UTC()
		ins := s.psql.Insert("messages").Columns("client_id", "text", "role", "sent_at")
		for _, m := range in.Messages {
			sentAt := m.SentAt
			if sentAt.IsZero() {
				sentAt = now
			}
			ins = ins.Values(id, m.Text, string(m.Role), sentAt)
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return nil, fmt.Errorf("CreateClient: build messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return nil, wrapErr("CreateClient: messages", err)
		}
	}

	if len(in.Debts) > 0 {
		ins := s.psql.Insert("debts").Columns("client_id", "institution", "amount", "due_date")
		for _, d := range in.Debts {
			ins = ins.Values(id, d.Institution, d.Amount, d.DueDate)
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return nil, fmt.Errorf("CreateClient: build debts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return nil, wrapErr("CreateClient: debts", err)
		}
	}

	client, err := s.getClient(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapErr("CreateClient: commit", err)
	}
	return client, nil
}

// DeleteClient удаляет клиента; сообщения и долги уходят по ON DELETE CASCADE
func (s *PostgresStore) DeleteClient(ctx context.Context, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = $1", id)
	if err != nil {
		return wrapErr("DeleteClient", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("DeleteClient", err)
	}
	if n == 0 {
		return notFound("DeleteClient")
	}
	return nil
}

// ClientExists - быстрая проверка существования
func (s *PostgresStore) ClientExists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.clientExists(ctx, s.db, id)
}

func (s *PostgresStore) clientExists(ctx context.Context, q queryer, id int64) (bool, error) {
	var ok bool
	if err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM clients WHERE id = $1)", id,
	).Scan(&ok); err != nil {
		return false, wrapErr("ClientExists", err)
	}
	return ok, nil
}

// CountClients - общее число клиентов
func (s *PostgresStore) CountClients(ctx context.Context) (int, error) {
	return s.count(ctx, "CountClients", "SELECT COUNT(*) FROM clients")
}

// CountClientsWithDebts - число клиентов, у которых есть хотя бы один долг
func (s *PostgresStore) CountClientsWithDebts(ctx context.Context) (int, error) {
	return s.count(ctx, "CountClientsWithDebts", "SELECT COUNT(DISTINCT client_id) FROM debts")
}

func (s *PostgresStore) count(ctx context.Context, op, q string, args ...any) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, wrapErr(op, err)
	}
	return n, nil
}

// activityQuery - последний момент переписки по каждому клиенту
func (s *PostgresStore) activityQuery() (string, []any, error) {
	return s.psql.Select("c.id", "c.name", "c.rut", "MAX(m.sent_at)").
		From("clients c").
		LeftJoin("messages m ON m.client_id = c.id").
		GroupBy("c.id", "c.name", "c.rut").
		OrderBy("c.name ASC", "c.id ASC").
		ToSql()
}

// ListClientActivity возвращает всех клиентов со временем последнего сообщения
func (s *PostgresStore) ListClientActivity(ctx context.Context) ([]models.ClientActivity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q, args, err := s.activityQuery()
	if err != nil {
		return nil, fmt.Errorf("ListClientActivity: build: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("ListClientActivity", err)
	}
	defer rows.Close()

	list := make([]models.ClientActivity, 0)
	for rows.Next() {
		var (
			a    models.ClientActivity
			last sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.NationalID, &last); err != nil {
			return nil, wrapErr("ListClientActivity", err)
		}
		if last.Valid {
			t := last.Time
			a.LastMessageAt = &t
		}
		list = append(list, a)
	}
	return list, wrapErr("ListClientActivity", rows.Err())
}

// ─────────────────────────── messages

// ListMessages возвращает историю клиента, новые сверху
func (s *PostgresStore) ListMessages(ctx context.Context, clientID int64) ([]models.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.clientExists(ctx, s.db, clientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("ListMessages")
	}
	return s.listMessages(ctx, s.db, clientID)
}

func (s *PostgresStore) listMessages(ctx context.Context, q queryer, clientID int64) ([]models.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, client_id, text, role, sent_at
		FROM messages
		WHERE client_id = $1
		ORDER BY sent_at DESC, id DESC`, clientID)
	if err != nil {
		return nil, wrapErr("ListMessages", err)
	}
	defer rows.Close()

	list := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ClientID, &m.Text, &m.Role, &m.SentAt); err != nil {
			return nil, wrapErr("ListMessages", err)
		}
		list = append(list, m)
	}
	return list, wrapErr("ListMessages", rows.Err())
}

// appendMessageSQL вставляет сообщение и сдвигает updated_at клиента одним
// выражением: частичной записи без обновления клиента не бывает
const appendMessageSQL = `
	WITH ins AS (
		INSERT INTO messages (client_id, text, role, sent_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, client_id, sent_at
	), touch AS (
		UPDATE clients SET updated_at = ins.sent_at
		FROM ins
		WHERE clients.id = ins.client_id
	)
	SELECT id, sent_at FROM ins`

// AppendMessage добавляет сообщение в историю клиента
func (s *PostgresStore) AppendMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	if err := in.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalid, Op: "AppendMessage", Err: err}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sentAt := in.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	m := models.Message{ClientID: in.ClientID, Text: in.Text, Role: in.Role}
	err := s.db.QueryRowContext(ctx, appendMessageSQL,
		in.ClientID, in.Text, string(in.Role), sentAt,
	).Scan(&m.ID, &m.SentAt)
	if err != nil {
		return nil, wrapErr("AppendMessage", err)
	}
	return &m, nil
}

// ─────────────────────────── debts

// ListDebts возвращает долги клиента по сроку погашения
func (s *PostgresStore) ListDebts(ctx context.Context, clientID int64) ([]models.Debt, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.clientExists(ctx, s.db, clientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("ListDebts")
	}
	return s.listDebts(ctx, s.db, clientID)
}

func (s *PostgresStore) listDebts(ctx context.Context, q queryer, clientID int64) ([]models.Debt, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, client_id, institution, amount, due_date, created_at, updated_at
		FROM debts
		WHERE client_id = $1
		ORDER BY due_date ASC, id ASC`, clientID)
	if err != nil {
		return nil, wrapErr("ListDebts", err)
	}
	defer rows.Close()

	list := make([]models.Debt, 0)
	for rows.Next() {
		var d models.Debt
		if err := rows.Scan(&d.ID, &d.ClientID, &d.Institution, &d.Amount, &d.DueDate, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, wrapErr("ListDebts", err)
		}
		list = append(list, d)
	}
	return list, wrapErr("ListDebts", rows.Err())
}

// CountDebts - число записей о долгах клиента, без учёта срока
func (s *PostgresStore) CountDebts(ctx context.Context, clientID int64) (int, error) {
	return s.count(ctx, "CountDebts", "SELECT COUNT(*) FROM debts WHERE client_id = $1", clientID)
}

// ─────────────────────────── helpers

func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		s := ns.String
		return &s
	}
	return nil
}

func pointerToNullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
