package followup

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
	"github.com/egor/dealercrm/logger"
	"github.com/egor/dealercrm/metrics"
	"github.com/egor/dealercrm/models"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return now.Add(-time.Duration(n) * day) }

func ptr(t time.Time) *time.Time { return &t }

func activity(id int64, name string, last *time.Time) models.ClientActivity {
	return models.ClientActivity{
		BasicClient:   models.BasicClient{ID: id, Name: name, NationalID: name},
		LastMessageAt: last,
	}
}

func names(list []models.BasicClient) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.Name
	}
	return out
}

func TestNeedsFollowUp(t *testing.T) {
	threshold := 7 * day

	assert.True(t, NeedsFollowUp(nil, now, threshold), "no messages")
	assert.True(t, NeedsFollowUp(ptr(daysAgo(10)), now, threshold))
	assert.False(t, NeedsFollowUp(ptr(daysAgo(2)), now, threshold))
}

func TestNeedsFollowUp_Boundary(t *testing.T) {
	threshold := 7 * day
	boundary := now.Add(-threshold)

	assert.True(t, NeedsFollowUp(ptr(boundary), now, threshold), "exactly at the boundary is old")
	assert.True(t, NeedsFollowUp(ptr(boundary.Add(-time.Nanosecond)), now, threshold))
	assert.False(t, NeedsFollowUp(ptr(boundary.Add(time.Second)), now, threshold), "one second inside the window is active")
}

func TestClassify_SortsAndDeduplicates(t *testing.T) {
	list := Classify([]models.ClientActivity{
		activity(3, "Pedro Soto", ptr(daysAgo(1))),
		activity(1, "Juan Pérez", ptr(daysAgo(8))),
		activity(4, "Andrea Silva", nil),
		activity(1, "Juan Pérez", ptr(daysAgo(8))),
		activity(6, "Andrea Silva", ptr(daysAgo(30))),
		activity(5, "María González", ptr(daysAgo(2))),
	}, now, 7*day)

	require.Len(t, list, 3)
	assert.Equal(t, []string{"Andrea Silva", "Andrea Silva", "Juan Pérez"}, names(list))
	assert.Equal(t, int64(4), list[0].ID)
	assert.Equal(t, int64(6), list[1].ID)
}

func TestClassify_Empty(t *testing.T) {
	list := Classify(nil, now, 7*day)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

type fixture struct {
	store      *database.MemoryStore
	classifier *Classifier
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := database.NewMemoryStore()
	store.SetClock(func() time.Time { return now })
	m := metrics.New()
	configs := assistant.NewService(store, logger.Nop())
	c := NewClassifier(store, configs, logger.Nop(), m).WithClock(func() time.Time { return now })
	return fixture{store: store, classifier: c, metrics: m}
}

func (f fixture) seedScenarios(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	seed := []models.NewClient{
		{
			Name: "Juan Pérez", NationalID: "12345678-9",
			Messages: []models.NewMessage{
				{Text: "Hola, me interesa el RAV4", Role: models.RoleClient, SentAt: daysAgo(10)},
				{Text: "Hola Juan, con gusto", Role: models.RoleAgent, SentAt: daysAgo(10).Add(time.Hour)},
			},
			Debts: []models.NewDebt{
				{Institution: "Banco Estado", Amount: 1500000, DueDate: daysAgo(-30)},
				{Institution: "Caja Los Andes", Amount: 800000, DueDate: daysAgo(-60)},
			},
		},
		{
			Name: "María González", NationalID: "11111111-1",
			Messages: []models.NewMessage{
				{Text: "¿Tienen el Tucson en rojo?", Role: models.RoleClient, SentAt: daysAgo(2)},
			},
		},
		{Name: "Andrea Silva", NationalID: "22222222-2"},
	}
	for _, in := range seed {
		_, err := f.store.CreateClient(ctx, in)
		require.NoError(t, err)
	}
}

func TestCandidates_Scenarios(t *testing.T) {
	f := newFixture(t)
	f.seedScenarios(t)

	list, err := f.classifier.Candidates(context.Background())
	require.NoError(t, err)

	// Juan - 10 дней тишины, Андреа - сообщений нет, Мария - активна
	assert.Equal(t, []string{"Andrea Silva", "Juan Pérez"}, names(list))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.FollowUpCandidates))
}

func TestCandidates_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.seedScenarios(t)
	ctx := context.Background()

	first, err := f.classifier.Candidates(ctx)
	require.NoError(t, err)
	second, err := f.classifier.Candidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCandidates_ThresholdFromConfig(t *testing.T) {
	f := newFixture(t)
	f.seedScenarios(t)
	ctx := context.Background()

	days := 1
	_, err := assistant.NewService(f.store, logger.Nop()).Update(ctx, models.AssistantConfigPatch{FollowUpDays: &days})
	require.NoError(t, err)

	list, err := f.classifier.Candidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Andrea Silva", "Juan Pérez", "María González"}, names(list))
}

func TestCandidates_DefaultThresholdWhenConfigUnavailable(t *testing.T) {
	f := newFixture(t)
	f.seedScenarios(t)
	f.store.FailConfig = database.ErrUnavailable

	assert.Equal(t, 7*day, f.classifier.Threshold(context.Background()))

	list, err := f.classifier.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Andrea Silva", "Juan Pérez"}, names(list))
}

func TestCandidates_AgentReplyResetsWindow(t *testing.T) {
	f := newFixture(t)
	f.seedScenarios(t)
	ctx := context.Background()

	list, err := f.classifier.Candidates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = f.store.AppendMessage(ctx, models.NewMessage{ClientID: list[1].ID, Text: "Hola Juan", Role: models.RoleAgent})
	require.NoError(t, err)

	list, err = f.classifier.Candidates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Andrea Silva"}, names(list))
}

type failingStore struct{ Store }

func (failingStore) ListClientActivity(context.Context) ([]models.ClientActivity, error) {
	return nil, database.ErrUnavailable
}

func TestCandidates_StorageFailure(t *testing.T) {
	f := newFixture(t)
	c := NewClassifier(failingStore{f.store}, assistant.NewService(f.store, logger.Nop()), logger.Nop(), nil)

	_, err := c.Candidates(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrUnavailable))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.seedScenarios(t)

	stats, err := f.classifier.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ClientStats{Total: 3, NeedFollowUp: 2, WithDebts: 1, WithoutDebts: 2}, stats)
}
