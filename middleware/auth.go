package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials - неверный email или пароль
var ErrInvalidCredentials = errors.New("неверные учетные данные")

const tokenTTL = 24 * time.Hour

// JWTClaims определяет структуру данных токена
type JWTClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Auth - выдача и проверка токенов для единственного оператора дашборда
type Auth struct {
	key          []byte
	adminEmail   string
	passwordHash []byte
	now          func() time.Time
}

// NewAuth создаёт проверку токенов. Пустой secret отключает авторизацию.
func NewAuth(secret, adminEmail, passwordHash string) *Auth {
	return &Auth{
		key:          []byte(secret),
		adminEmail:   strings.ToLower(strings.TrimSpace(adminEmail)),
		passwordHash: []byte(passwordHash),
		now:          time.Now,
	}
}

// Enabled сообщает, включена ли авторизация
func (a *Auth) Enabled() bool { return a != nil && len(a.key) > 0 }

// Middleware проверяет JWT токен и авторизует запрос
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("authorization required"))
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("invalid or expired token"))
			return
		}

		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// GenerateToken генерирует JWT токен на 24 часа
func (a *Auth) GenerateToken(email string) (string, error) {
	now := a.now()
	claims := &JWTClaims{
		Email: email,
		Role:  "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "dealercrm",
			Subject:   email,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.key)
}

// ValidateToken проверяет и парсит JWT токен
func (a *Auth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("недействительный токен")
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, errors.New("неверный формат токена")
	}
	return claims, nil
}

// Authenticate проверяет email и bcrypt-хеш пароля и выдаёт токен
func (a *Auth) Authenticate(email, password string) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(email), a.adminEmail) || a.adminEmail == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.GenerateToken(a.adminEmail)
}

func errorBody(msg string) gin.H {
	return gin.H{
		"success":   false,
		"error":     msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}
