package api

import (
	"net/http"
	"sync"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

var promOnce sync.Once

// RouterOptions - настройки HTTP-роутера.
type RouterOptions struct {
	AppEnv     string
	OutputsDir string
	// Лимит запросов генерации на клиента в минуту, 0 отключает лимитер
	GenerateLimitPerMinute uint
}

// NewRouter собирает gin-роутер со всеми маршрутами и middleware.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) *gin.Engine {
	if opts.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	// Метрики регистрируются в глобальном реестре prometheus, поэтому
	// вешаем их только на первый созданный роутер
	promOnce.Do(func() {
		prom := ginprometheus.NewPrometheus("manga_http")
		prom.Use(router)
	})

	router.GET("/", h.Health)
	router.Static("/outputs", opts.OutputsDir)

	apiGroup := router.Group("/api")
	{
		generate := apiGroup.Group("")
		if opts.GenerateLimitPerMinute > 0 {
			generate.Use(generateRateLimiter(opts.GenerateLimitPerMinute))
		}
		generate.POST("/story/generate", h.GenerateStory)
		generate.POST("/generate/panel", h.GeneratePanels)
		generate.POST("/manga/generate", h.GenerateManga)

		exportGroup := apiGroup.Group("/export")
		exportGroup.POST("/pdf", h.ExportPDF)
		exportGroup.POST("/cbz", h.ExportCBZ)
		exportGroup.GET("/download/:format/:filename", h.Download)
	}

	return router
}

// generateRateLimiter ограничивает частоту запросов генерации по IP клиента.
// Генерация дорогая, поэтому лимит жесткий и отдельный от общего трафика.
func generateRateLimiter(perMinute uint) gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: perMinute,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many generation requests",
				"retry_after": time.Until(info.ResetTime).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}

// requestLogger логирует каждый HTTP-запрос через zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(startTime)),
		)
	}
}
