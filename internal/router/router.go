package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"intentrouter/internal/config"
	"intentrouter/internal/handlers"
	"intentrouter/internal/metrics"
	"intentrouter/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// corsMiddleware CORS middleware
// Priority: Environment Variable > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var allowedOrigins []string
		allowCredentials := true
		maxAge := 3600

		if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		} else {
			allowedOrigins = []string{"*"}
		}

		origin := c.GetHeader("Origin")
		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if strings.TrimSpace(allowed) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// metricsMiddleware records per-request counters and latency.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}

// Options bundles the handlers the router serves.
type Options struct {
	Deposits  *handlers.DepositHandler
	Admin     *handlers.AdminHandler
	AdminAuth *handlers.AdminAuthHandler
	WebSocket *handlers.WebSocketHandler
}

// New assembles the gin engine with all routes and middleware.
func New(opts Options) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware(), metricsMiddleware())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/deposits", opts.Deposits.SubmitHandler)
		v1.GET("/deposits", opts.Deposits.ListDepositsHandler)
		v1.GET("/deposits/:intentId", opts.Deposits.GetDepositHandler)
		v1.POST("/deposits/:intentId/claim", opts.Deposits.ClaimHandler)
	}

	admin := engine.Group("/api/admin")
	admin.POST("/login", opts.AdminAuth.AdminLoginHandler)

	authed := admin.Group("")
	authed.Use(middleware.NewAdminAuthMiddleware(opts.AdminAuth).RequireAdminAuth())
	{
		authed.GET("/fees", opts.Admin.GetFeesHandler)
		authed.PUT("/fees", opts.Admin.SetFeesEnabledHandler)
		authed.PUT("/treasury", opts.Admin.SetTreasuryHandler)
	}

	if opts.WebSocket != nil {
		engine.GET("/ws/deposits", opts.WebSocket.HandleWebSocket)
	}

	return engine
}
