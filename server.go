package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"bitbucket.org/mmdatafocus/billing_backend/workflow"
)

const defaultPort = "8080"

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if operator := strings.TrimSpace(c.GetHeader("x-operator")); operator != "" {
			ctx = utils.SetOperatorInContext(ctx, operator)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if origins := config.CorsAllowedOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "X-Correlation-Id", "X-Operator", "Idempotency-Key")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Correlation-Id")
	return cors.New(corsConfig)
}

// rateLimitMiddleware returns nil when RATE_LIMIT is unset. Counters live in Redis when it
// is connected so every instance shares the budget, otherwise in process memory.
func rateLimitMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	formatted := config.RateLimit()
	if formatted == "" {
		return nil
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		config.LogError(logger, "server.go", "rateLimitMiddleware", "invalid RATE_LIMIT; rate limiting disabled", formatted, err)
		return nil
	}

	var store limiter.Store
	if rdb := config.GetRedisDB(); rdb != nil {
		store, err = sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
			Prefix:   "billing_rate_limit",
			MaxRetry: 3,
		})
		if err != nil {
			config.LogError(logger, "server.go", "rateLimitMiddleware", "redis limiter store; using memory", nil, err)
			store = nil
		}
	}
	if store == nil {
		store = memory.NewStore()
	}
	return mgin.NewMiddleware(limiter.New(store, rate))
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, ginErr := range c.Errors {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"field":          "http",
				"path":           c.FullPath(),
				"method":         c.Request.Method,
				"status":         c.Writer.Status(),
				"correlation_id": cid,
			}).Error(ginErr.Error())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// newRouter wires every bill and purchase endpoint onto engine.
func newRouter(engine *workflow.BillEngine, logger *logrus.Logger, limit gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(correlationMiddleware())
	r.Use(corsMiddleware())
	if limit != nil {
		r.Use(limit)
	}
	r.Use(customErrorLogger(logger))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	h := &billHandlers{engine: engine, logger: logger}
	api := r.Group("/api")
	api.POST("/bills", h.createBill)
	api.GET("/bills", h.listBills)
	api.GET("/bills/export", h.exportActiveBills)
	api.POST("/bills/cancel", h.cancelBills)
	api.GET("/bills/:id", h.getBill)
	api.POST("/bills/:id/preview", h.previewUpdate)
	api.PUT("/bills/:id", h.commitUpdate)
	api.DELETE("/bills/:id", h.deleteBill)
	api.POST("/purchases", h.recordPurchase)

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate takes DDL locks; production runs cmd/migrate as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	engine := workflow.NewBillEngine(models.NewGormStore(db), workflow.WithLogger(logger))
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(engine, logger, rateLimitMiddleware(logger)),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("billing service listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
