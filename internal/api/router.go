package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/api/handlers"
	"github.com/orrn/labelspool/internal/api/middleware"
	"github.com/orrn/labelspool/internal/config"
	"github.com/orrn/labelspool/internal/core"
)

type Deps struct {
	Config    *config.Config
	Session   *core.SessionManager
	Collector *core.BatchCollector
	Auth      *middleware.AuthMiddleware
	Status    handlers.StatusReporter
	Webhooks  handlers.WebhookTester
	Logger    *zap.Logger
}

// NewRouter builds the HTTP API. Everything under /api except /api/auth
// requires authentication.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(logger))
	engine.Use(middleware.RequestLogger(logger.Named("http")))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "bridge": d.Session.State()})
	})

	auth := engine.Group("/api/auth")
	auth.POST("/setup", d.Auth.SetupHandler)
	auth.POST("/login", d.Auth.LoginHandler)
	auth.POST("/logout", d.Auth.LogoutHandler)
	auth.GET("/status", d.Auth.StatusHandler)
	auth.POST("/password", d.Auth.RequireAuth(), d.Auth.ChangePasswordHandler)

	api := engine.Group("/api", d.Auth.RequireAuth())
	handlers.RegisterLabelRoutes(api, handlers.NewLabelHandler(d.Session))
	handlers.RegisterDialogRoutes(api, handlers.NewDialogHandler(d.Session, d.Collector, d.Config.Print.MaxQuantity, logger))
	handlers.RegisterPrinterRoutes(api, handlers.NewPrinterHandler(d.Session, d.Status))
	handlers.RegisterJobRoutes(api, handlers.NewJobHandler())
	handlers.RegisterWebhookRoutes(api, handlers.NewWebhookHandler(d.Webhooks))
	handlers.RegisterSettingsRoutes(api, handlers.NewSettingsHandler(d.Config))

	return engine
}
