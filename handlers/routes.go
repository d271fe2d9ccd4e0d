package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/egor/dealercrm/middleware"
)

// NewRouter собирает gin.Engine со всеми маршрутами API
func NewRouter(d Deps) *gin.Engine {
	h := New(d)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Metrics(d.Metrics))

	// CORS для дашборда
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	switch {
	case containsWildcard(d.AllowedOrigins):
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	case len(d.AllowedOrigins) == 0:
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	default:
		corsConfig.AllowOrigins = d.AllowedOrigins
	}
	r.Use(cors.New(corsConfig))

	// Публичные эндпоинты
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	r.POST("/auth/login", h.Login)
	r.GET("/ws", h.ServeWs)

	// Защищенные маршруты
	authorized := r.Group("/")
	authorized.Use(d.Auth.Middleware())
	{
		authorized.GET("/clients", h.ListClients)
		authorized.GET("/clients/stats", h.ClientStats)
		authorized.GET("/clients-to-do-follow-up", h.FollowUpCandidates)
		authorized.POST("/client", h.CreateClient)

		clients := authorized.Group("/clients/:id")
		{
			clients.GET("", h.GetClient)
			clients.DELETE("", h.DeleteClient)
			clients.POST("/messages", h.CreateMessage)
			clients.GET("/debts", h.GetClientDebts)
			clients.GET("/generateMessage", h.GenerateMessage)
			clients.POST("/generateMessage", h.GenerateMessage)
		}

		authorized.GET("/assistant/config", h.GetAssistantConfig)
		authorized.PUT("/assistant/config", h.UpdateAssistantConfig)
	}

	return r
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
