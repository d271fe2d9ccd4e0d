package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/egor/dealercrm/assistant"
	"github.com/egor/dealercrm/composer"
	"github.com/egor/dealercrm/database"
	"github.com/egor/dealercrm/llm"
)

// Response - единый конверт ответа API
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Details   []string    `json:"details,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func respondOK(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Response{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: timestamp(),
	})
}

func respondFail(c *gin.Context, status int, msg string, details ...string) {
	c.JSON(status, Response{
		Success:   false,
		Error:     msg,
		Details:   details,
		Timestamp: timestamp(),
	})
}

// respondBindError отвечает 400 на ошибку разбора или валидации тела запроса
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldMessage(fe))
		}
		respondFail(c, http.StatusBadRequest, "Datos inválidos", details...)
		return
	}
	respondFail(c, http.StatusBadRequest, "Datos inválidos", err.Error())
}

func init() {
	// в сообщениях об ошибках - имена полей из json-тегов
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "email":
		return field + " must be a valid email"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// respondError переводит ошибку сервиса в HTTP-статус
func respondError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	respondFail(c, status, msg)
}

func classify(err error) (int, string) {
	var llmErr *llm.Error
	switch {
	case errors.Is(err, assistant.ErrInvalidConfig),
		errors.Is(err, composer.ErrInvalidRequest),
		errors.Is(err, database.ErrInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "Cliente no encontrado"
	case errors.Is(err, database.ErrConflict):
		return http.StatusConflict, "Ya existe un cliente con ese RUT"
	case errors.Is(err, composer.ErrGeneration):
		msg := "Error generando mensaje de seguimiento"
		if errors.As(err, &llmErr) {
			msg = llmErr.UserMessage()
		}
		if llm.IsTimeout(err) {
			return http.StatusGatewayTimeout, msg
		}
		return http.StatusBadGateway, msg
	case errors.Is(err, composer.ErrPersistence):
		return http.StatusInternalServerError, "No se pudo guardar el mensaje generado"
	case errors.Is(err, database.ErrUnavailable):
		return http.StatusServiceUnavailable, "Base de datos no disponible"
	default:
		return http.StatusInternalServerError, "Error interno del servidor"
	}
}
