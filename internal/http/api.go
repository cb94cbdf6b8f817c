package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-advisor/internal/metrics"
	"portfolio-advisor/internal/service"
)

// Config carries the services and settings the handler needs.
type Config struct {
	Sessions   service.SessionService
	Users      service.UserService
	Portfolios service.PortfolioService
	Chat       service.ChatService
	Logger     logrus.FieldLogger

	CORSOrigin string
	// Production switches auth cookies to Secure with SameSite=None.
	Production bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// AuthRateLimit is requests per second per client IP on the credential endpoints; 0 disables it.
	AuthRateLimit float64
	AuthRateBurst int
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	sessions   service.SessionService
	users      service.UserService
	portfolios service.PortfolioService
	chat       service.ChatService
	logger     logrus.FieldLogger

	corsOrigin string
	production bool
	accessTTL  time.Duration
	refreshTTL time.Duration
	limiter    *ipRateLimiter
}

func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{
		sessions:   cfg.Sessions,
		users:      cfg.Users,
		portfolios: cfg.Portfolios,
		chat:       cfg.Chat,
		logger:     logger,
		corsOrigin: cfg.CORSOrigin,
		production: cfg.Production,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
	if cfg.AuthRateLimit > 0 {
		h.limiter = newIPRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	}
	return h
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestIDMiddleware(), accessLogMiddleware(h.logger), metrics.Middleware(), corsMiddleware(h.corsOrigin))
	router.NoRoute(func(c *gin.Context) {
		h.fail(c, service.NotFoundError("Route not found"))
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	limited := h.rateLimitMiddleware()
	authed := h.requireAuth()

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		user := api.Group("/user")
		user.POST("/register", limited, h.register)
		user.POST("/login", limited, h.login)
		user.POST("/refreshToken", limited, h.refreshToken)
		user.POST("/logout", authed, h.logout)
		user.POST("/change-password", authed, h.changePassword)
		user.GET("/get-user", authed, h.getUser)
		user.PATCH("/update-user-details", authed, h.updateUserDetails)
		// unauthenticated, kept for the onboarding flow of the frontend
		user.GET("/get-investment-prefs-by-email", h.preferencesByEmail)

		portfolio := api.Group("/portfolio", authed)
		portfolio.POST("", h.createPortfolio)
		portfolio.GET("/:userId", h.latestPortfolio)
		portfolio.GET("/:userId/history", h.portfolioHistory)
		portfolio.GET("/:userId/archives", h.portfolioArchives)
		portfolio.PUT("/:userId", h.updatePortfolio)
		portfolio.DELETE("/:userId", h.deletePortfolio)

		api.POST("/agent/chat", authed, h.chatAgent)
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
