package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries the boundary settings of SetupRouter
type RouterConfig struct {
	Cookies      Cookies
	ExposeReason bool                // include the rejection reason in error bodies
	Gatherer     prometheus.Gatherer // nil disables /metrics
	Logger       *slog.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(guard SessionAuthenticator, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Logger != nil {
		router.Use(RequestLogger(cfg.Logger))
	}

	handlers := NewSessionHandlers(guard, cfg.Cookies, cfg.ExposeReason)

	router.GET("/healthz", Healthz)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := router.Group("/auth")
	{
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(SessionMiddleware(guard, cfg.Cookies, cfg.ExposeReason))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	return router
}
