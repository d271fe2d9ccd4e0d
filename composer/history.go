package composer

import (
	"sort"
	"strings"
	"time"

	"github.com/egor/dealercrm/models"
)

// HistoryEntry - одна реплика переписки
type HistoryEntry struct {
	Text   string
	Role   models.Role
	SentAt time.Time
}

var dateLayouts = map[models.Language]string{
	models.LanguageES: "02/01/2006 15:04",
	models.LanguageEN: "Jan 2, 2006 3:04 PM",
}

// FormatHistory превращает переписку в блок "[дата] Client: текст", по одной реплике на строку.
// Реплики упорядочиваются по времени; формат даты зависит от языка.
func FormatHistory(entries []HistoryEntry, locale models.Language) string {
	layout, ok := dateLayouts[locale]
	if !ok {
		layout = dateLayouts[models.LanguageES]
	}

	sorted := append([]HistoryEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SentAt.Before(sorted[j].SentAt) })

	var b strings.Builder
	for _, e := range sorted {
		b.WriteByte('[')
		b.WriteString(e.SentAt.Format(layout))
		b.WriteString("] ")
		b.WriteString(roleLabel(e.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(e.Text))
		b.WriteByte('\n')
	}
	return b.String()
}

func roleLabel(r models.Role) string {
	if r == models.RoleAgent {
		return "Agent"
	}
	return "Client"
}

// historyFromMessages разворачивает историю "новые сверху" в хронологический порядок
func historyFromMessages(msgs []models.Message) []HistoryEntry {
	out := make([]HistoryEntry, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = HistoryEntry{Text: m.Text, Role: m.Role, SentAt: m.SentAt}
	}
	return out
}
