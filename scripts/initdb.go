// Команда initdb применяет миграции и заполняет базу демонстрационными клиентами.
//
//	go run ./scripts
//
// Если задан ADMIN_PASSWORD, печатает bcrypt-хеш для ADMIN_PASSWORD_HASH.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/egor/dealercrm/assistant"
	"github.com/egor/dealercrm/config"
	"github.com/egor/dealercrm/database"
	"github.com/egor/dealercrm/logger"
	"github.com/egor/dealercrm/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "конфигурация: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Pretty: true})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := database.Open(ctx, database.Options{
		Driver:       cfg.StorageDriver,
		DSN:          cfg.DatabaseURL,
		QueryTimeout: cfg.QueryTimeout,
		Migrate:      true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("ошибка подключения к базе данных")
	}
	defer store.Close()
	log.Info().Msg("миграции применены")

	// Конфигурация ассистента по умолчанию
	if _, err := assistant.NewService(store, log.Logger).Get(ctx); err != nil {
		log.Fatal().Err(err).Msg("ошибка создания конфигурации ассистента")
	}

	now := time.Now().UTC()
	for _, in := range demoClients(now) {
		client, err := store.CreateClient(ctx, in)
		if errors.Is(err, database.ErrConflict) {
			log.Info().Str("rut", in.NationalID).Msg("клиент уже существует, пропускаем")
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Str("rut", in.NationalID).Msg("ошибка создания клиента")
		}
		log.Info().Int64("id", client.ID).Str("name", client.Name).
			Int("messages", len(client.Messages)).Int("debts", len(client.Debts)).
			Msg("клиент создан")
	}

	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Msg("ошибка хеширования пароля")
		}
		fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
	}
}

// demoClients: Juan с долгами и старыми сообщениями, Pedro с недавней перепиской,
// Andrea без сообщений, María со старым ответом агента.
func demoClients(now time.Time) []models.NewClient {
	days := func(n int) time.Time { return now.AddDate(0, 0, -n) }
	email := func(s string) *string { return &s }

	return []models.NewClient{
		{
			Name: "Juan Pérez", NationalID: "12345678-9",
			Email: email("juan.perez@email.com"), Phone: email("+56912345678"),
			Messages: []models.NewMessage{
				{Text: "Hola, me interesa el Toyota Corolla. ¿Podrían enviarme información?", Role: models.RoleClient, SentAt: days(10)},
				{Text: "Hola Juan, gracias por tu interés. Te envío información del Corolla por email.", Role: models.RoleAgent, SentAt: days(8)},
			},
			Debts: []models.NewDebt{
				{Institution: "Banco Estado", Amount: 1500000, DueDate: now.AddDate(0, 2, 0)},
				{Institution: "Caja Los Andes", Amount: 800000, DueDate: now.AddDate(0, 5, 0)},
			},
		},
		{
			Name: "Pedro Soto", NationalID: "87654321-0",
			Email: email("pedro.soto@email.com"), Phone: email("+56987654321"),
			Messages: []models.NewMessage{
				{Text: "¿Tienen el Hyundai Tucson en color blanco disponible?", Role: models.RoleClient, SentAt: days(2)},
				{Text: "Sí Pedro, tenemos el Tucson en blanco disponible. ¿Te gustaría agendar una visita?", Role: models.RoleAgent, SentAt: days(1)},
			},
		},
		{
			Name: "Andrea Silva", NationalID: "11223344-5",
			Email: email("andrea.silva@email.com"), Phone: email("+56911223344"),
		},
		{
			Name: "María González", NationalID: "98765432-1",
			Messages: []models.NewMessage{
				{Text: "¿El Mazda CX-5 tiene versión automática?", Role: models.RoleClient, SentAt: days(15)},
				{Text: "Sí María, la versión 2.5 es automática. ¿Quieres agendar un test drive en Maipú?", Role: models.RoleAgent, SentAt: days(14)},
			},
		},
	}
}
