package composer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egor/dealercrm/assistant"
	"github.com/egor/dealercrm/database"
	"github.com/egor/dealercrm/llm"
	"github.com/egor/dealercrm/logger"
	"github.com/egor/dealercrm/metrics"
	"github.com/egor/dealercrm/models"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeGenerator запоминает промпт и возвращает заранее заданный ответ
type fakeGenerator struct {
	text   string
	err    error
	calls  int
	prompt llm.Prompt
	params llm.Params
}

func (f *fakeGenerator) Complete(_ context.Context, p llm.Prompt, params llm.Params) (string, error) {
	f.calls++
	f.prompt = p
	f.params = params
	return f.text, f.err
}

type fixture struct {
	store    *database.MemoryStore
	gen      *fakeGenerator
	metrics  *metrics.Metrics
	composer *Composer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemoryStore()
	store.SetClock(func() time.Time { return now })
	gen := &fakeGenerator{text: "Hola Juan, te esperamos en Providencia.\n\nCarla — Automotora"}
	m := metrics.New()
	c := New(store, assistant.NewService(store, logger.Nop()), gen,
		llm.Params{MaxTokens: 300, Temperature: 0.7}, logger.Nop(), m).
		WithClock(func() time.Time { return now })
	return &fixture{store: store, gen: gen, metrics: m, composer: c}
}

func (f *fixture) client(t *testing.T, in models.NewClient) *models.Client {
	t.Helper()
	c, err := f.store.CreateClient(context.Background(), in)
	require.NoError(t, err)
	return c
}

func juan() models.NewClient {
	return models.NewClient{
		Name: "Juan Pérez", NationalID: "12345678-9",
		Messages: []models.NewMessage{
			{Text: "Hola, busco un SUV", Role: models.RoleClient, SentAt: now.AddDate(0, 0, -10)},
		},
		Debts: []models.NewDebt{
			{Institution: "Banco Estado", Amount: 1500000, DueDate: now.AddDate(0, 1, 0)},
			{Institution: "Caja Los Andes", Amount: 800000, DueDate: now.AddDate(1, 0, 0)},
		},
	}
}

func TestGenerateForClient_DebtBearingClient(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, juan())

	res, err := f.composer.GenerateForClient(context.Background(), c.ID, "")
	require.NoError(t, err)

	assert.Equal(t, 1, f.gen.calls)
	assert.Equal(t, llm.Params{MaxTokens: 300, Temperature: 0.7}, f.gen.params)
	assert.Contains(t, f.gen.prompt.System, "Do NOT offer financing")
	assert.NotContains(t, f.gen.prompt.System, "MAY offer financing")
	assert.Contains(t, f.gen.prompt.Task, "Has debts registered: true")
	assert.Contains(t, f.gen.prompt.Task, "Client: Hola, busco un SUV")
	assert.False(t, res.ConfigFallback)
	assert.Equal(t, f.gen.text, res.Text)
}

func TestGenerateForClient_ClientWithoutDebts(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, models.NewClient{
		Name: "María González", NationalID: "11111111-1",
		Messages: []models.NewMessage{{Text: "¿Tienen Tucson?", Role: models.RoleClient, SentAt: now.AddDate(0, 0, -2)}},
	})

	_, err := f.composer.GenerateForClient(context.Background(), c.ID, "Tucson")
	require.NoError(t, err)
	assert.Contains(t, f.gen.prompt.System, "MAY offer financing")
	assert.Contains(t, f.gen.prompt.Task, "Has debts registered: false")
	assert.Contains(t, f.gen.prompt.Task, "Optional hints: Tucson")
}

func TestGenerateForClient_FirstContact(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, models.NewClient{Name: "Andrea Silva", NationalID: "22222222-2"})

	_, err := f.composer.GenerateForClient(context.Background(), c.ID, "")
	require.NoError(t, err)
	assert.Contains(t, f.gen.prompt.Task, "first contact")
}

func TestGenerate_AppendsAgentMessageAtHead(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, juan())

	res, err := f.composer.Generate(context.Background(), Request{
		ClientID: c.ID, Name: c.Name, NationalID: c.NationalID, HasDebts: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Message)

	msgs, err := f.store.ListMessages(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleAgent, msgs[0].Role)
	assert.Equal(t, res.Text, msgs[0].Text)
	assert.Equal(t, now, msgs[0].SentAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GenerationsTotal.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestGenerate_SentAtNotBeforeHistory(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, models.NewClient{Name: "Juan", NationalID: "1"})
	future := now.Add(time.Minute)

	res, err := f.composer.Generate(context.Background(), Request{
		ClientID: c.ID, Name: "Juan", NationalID: "1",
		History: []HistoryEntry{{Text: "hola", Role: models.RoleClient, SentAt: future}},
	})
	require.NoError(t, err)
	assert.Equal(t, future, res.Message.SentAt)
}

func TestGenerate_SentAtNotBeforeStoredMessages(t *testing.T) {
	f := newFixture(t)
	later := now.Add(time.Minute)
	c := f.client(t, models.NewClient{
		Name: "Juan", NationalID: "1",
		Messages: []models.NewMessage{{Text: "¿siguen disponibles?", Role: models.RoleClient, SentAt: later}},
	})

	// история в запросе не передана, опора только на сохранённые сообщения
	res, err := f.composer.Generate(context.Background(), Request{ClientID: c.ID, Name: "Juan", NationalID: "1"})
	require.NoError(t, err)
	assert.Equal(t, later, res.Message.SentAt)

	msgs, err := f.store.ListMessages(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleAgent, msgs[0].Role)
	assert.Equal(t, res.Message.ID, msgs[0].ID)
}

func TestGenerate_TimeoutPersistsNothing(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, juan())
	f.gen.err = &llm.Error{Kind: llm.KindTimeout, Err: context.DeadlineExceeded}

	_, err := f.composer.GenerateForClient(context.Background(), c.ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.True(t, llm.IsTimeout(err))

	msgs, err := f.store.ListMessages(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GenerationsTotal.WithLabelValues(metrics.OutcomeTimeout)))
}

func TestGenerate_EmptyOrLeakingTextIsFailure(t *testing.T) {
	for name, text := range map[string]string{
		"empty": "   ",
		"leak":  "Como hasDebts es true, no ofrezco crédito.",
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			c := f.client(t, juan())
			f.gen.text = text

			_, err := f.composer.GenerateForClient(context.Background(), c.ID, "")
			assert.ErrorIs(t, err, ErrGeneration)

			msgs, err := f.store.ListMessages(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Len(t, msgs, 1)
		})
	}
}

func TestGenerate_ConfigFallback(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, juan())
	f.store.FailConfig = database.ErrUnavailable

	res, err := f.composer.GenerateForClient(context.Background(), c.ID, "")
	require.NoError(t, err)
	assert.True(t, res.ConfigFallback)
	assert.Contains(t, f.gen.prompt.System, `You are "Carla"`)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConfigFallbacks))
}

func TestGenerate_UsesCurrentConfig(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, juan())
	name := "Sofía"
	tone := models.ToneWarm
	_, err := assistant.NewService(f.store, logger.Nop()).Update(context.Background(),
		models.AssistantConfigPatch{Name: &name, Tone: &tone})
	require.NoError(t, err)

	_, err = f.composer.GenerateForClient(context.Background(), c.ID, "")
	require.NoError(t, err)
	assert.Contains(t, f.gen.prompt.System, `You are "Sofía"`)
	assert.Contains(t, f.gen.prompt.System, toneStyles[models.ToneWarm])
}

func TestGenerate_PersistenceFailure(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, juan())
	f.store.FailAppend = errors.New("disk full")

	_, err := f.composer.GenerateForClient(context.Background(), c.ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, ErrGeneration)
}

func TestGenerate_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.composer.GenerateForClient(context.Background(), 404, "")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = f.composer.Generate(context.Background(), Request{ClientID: 404, Name: "X", NationalID: "1"})
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Zero(t, f.gen.calls)
}

func TestGenerate_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	for _, req := range []Request{
		{ClientID: 0, Name: "Juan", NationalID: "1"},
		{ClientID: 1, Name: " ", NationalID: "1"},
		{ClientID: 1, Name: "Juan"},
	} {
		_, err := f.composer.Generate(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Zero(t, f.gen.calls)
}
