// Package logger настраивает структурированное логирование на zerolog
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config - параметры логгера
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // человекочитаемый вывод для разработки
	Output io.Writer
}

// New создаёт корневой логгер сервиса
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "dealercrm").
		Logger()
}

// Init создаёт логгер и делает его глобальным для пакета zerolog/log
func Init(cfg Config) zerolog.Logger {
	l := New(cfg)
	log.Logger = l
	return l
}

// Component возвращает дочерний логгер с полем component
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Nop - логгер, который ничего не пишет (для тестов)
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
