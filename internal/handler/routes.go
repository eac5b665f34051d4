package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/LazarusTes/auth-portal-express/internal/metrics"
	"github.com/LazarusTes/auth-portal-express/internal/middleware"
	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error

type RouterConfig struct {
	Logger           *slog.Logger
	Metrics          *metrics.Collector
	Verifier         middleware.IdentityVerifier
	SignUps          SignUpCommander
	Commands         AccountCommander
	Queries          AccountQuerier
	Auth             AuthQuerier
	DocumentsDir     string
	DocumentsURL     string
	MaxDocumentBytes int64
	Health           map[string]HealthChecker
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.MaxMultipartMemory = cfg.MaxDocumentBytes + 1<<20

	r.GET("/health", healthHandler(cfg.Health))
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	if cfg.DocumentsDir != "" && cfg.DocumentsURL != "" {
		r.Static(cfg.DocumentsURL, cfg.DocumentsDir)
	}

	authH := NewAuthHandler(cfg.SignUps, cfg.Auth, cfg.MaxDocumentBytes)
	accountH := NewAccountHandler(cfg.Commands, cfg.Queries, cfg.MaxDocumentBytes)
	adminH := NewAdminHandler(cfg.Commands, cfg.Queries, cfg.MaxDocumentBytes)
	requireAuth := middleware.AuthMiddleware(cfg.Verifier)

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/signup", authH.SignUp)
		auth.POST("/login", authH.Login)
		auth.POST("/logout", requireAuth, authH.Logout)

		me := v1.Group("/me", requireAuth)
		me.GET("", accountH.GetProfile)
		me.PATCH("", accountH.UpdateProfile)
		me.POST("/transfers", accountH.Transfer)
		me.PUT("/document", accountH.UploadDocument)
		me.GET("/ledger", accountH.ListLedgerEntries)
		me.GET("/limits", accountH.GetLimitUsage)

		admin := v1.Group("/admin", requireAuth)
		admin.POST("/users", adminH.CreateUser)
		admin.GET("/profiles", adminH.ListProfiles)
		admin.GET("/profiles/:id", accountH.GetProfile)
		admin.PATCH("/profiles/:id", accountH.UpdateProfile)
		admin.POST("/profiles/:id/decision", adminH.Decide)
		admin.POST("/profiles/:id/balance", adminH.AdjustBalance)
		admin.PUT("/profiles/:id/limits", adminH.SetLimits)
		admin.GET("/profiles/:id/limits", accountH.GetLimitUsage)
		admin.PUT("/profiles/:id/role", adminH.AssignRole)
		admin.GET("/profiles/:id/ledger", accountH.ListLedgerEntries)
		admin.PUT("/profiles/:id/document", accountH.UploadDocument)
	}

	return r
}

func healthHandler(checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		failed := gin.H{}
		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
