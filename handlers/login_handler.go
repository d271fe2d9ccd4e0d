package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/egor/dealercrm/middleware"
)

// Login обрабатывает авторизацию оператора дашборда
func (h *Handler) Login(c *gin.Context) {
	var credentials struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&credentials); err != nil {
		respondBindError(c, err)
		return
	}

	if !h.auth.Enabled() {
		respondFail(c, http.StatusNotFound, "Autenticación deshabilitada")
		return
	}

	log := h.reqLog(c)
	token, err := h.auth.Authenticate(credentials.Email, credentials.Password)
	if err != nil {
		log.Warn().Str("email", credentials.Email).Msg("login failed")
		if errors.Is(err, middleware.ErrInvalidCredentials) {
			respondFail(c, http.StatusUnauthorized, "Credenciales inválidas")
			return
		}
		respondError(c, err)
		return
	}

	log.Info().Str("email", credentials.Email).Msg("operator logged in")
	respondOK(c, http.StatusOK, gin.H{"token": token, "email": credentials.Email}, "")
}
