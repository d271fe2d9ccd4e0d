package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/egor/dealercrm/assistant"
	"github.com/egor/dealercrm/composer"
	"github.com/egor/dealercrm/config"
	"github.com/egor/dealercrm/database"
	"github.com/egor/dealercrm/followup"
	"github.com/egor/dealercrm/handlers"
	"github.com/egor/dealercrm/llm"
	"github.com/egor/dealercrm/logger"
	"github.com/egor/dealercrm/metrics"
	"github.com/egor/dealercrm/middleware"
	"github.com/egor/dealercrm/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("сервер остановлен с ошибкой")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	root := logger.Init(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	m := metrics.New()

	// Инициализация хранилища
	store, err := database.Open(ctx, database.Options{
		Driver:       cfg.StorageDriver,
		DSN:          cfg.DatabaseURL,
		QueryTimeout: cfg.QueryTimeout,
		Migrate:      true,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	root.Info().Str("driver", cfg.StorageDriver).Msg("хранилище готово")

	// Сервисы
	configs := assistant.NewService(store, logger.Component(root, "assistant"))
	classifier := followup.NewClassifier(store, configs, logger.Component(root, "followup"), m)
	llmClient := llm.NewClient(llm.Options{
		APIURL:  cfg.LLMAPIURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	}, logger.Component(root, "llm"))
	if cfg.LLMAPIKey == "" {
		root.Warn().Msg("LLM_API_KEY не задан: генерация сообщений будет падать с ошибкой авторизации")
	}
	comp := composer.New(store, configs, llmClient,
		llm.Params{MaxTokens: cfg.LLMMaxTokens, Temperature: cfg.LLMTemperature},
		logger.Component(root, "composer"), m)

	// Инициализация WebSocket хаба
	hub := websocket.NewHub(logger.Component(root, "websocket"), m)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	// В разработке разрешаем любые origins
	origins := cfg.AllowedOrigins
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		origins = append(origins, "*")
	}
	router := handlers.NewRouter(handlers.Deps{
		Store:          store,
		Assistant:      configs,
		Classifier:     classifier,
		Composer:       comp,
		Hub:            hub,
		Auth:           middleware.NewAuth(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPasswordHash),
		Metrics:        m,
		LLM:            llmClient,
		Log:            logger.Component(root, "http"),
		AllowedOrigins: origins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		root.Info().Str("port", cfg.Port).Bool("auth", cfg.AuthEnabled()).Msg("сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	root.Info().Msg("получен сигнал остановки, завершаем работу")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-hubDone
	return nil
}
