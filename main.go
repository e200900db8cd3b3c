package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storesphere/checkout-service/controllers"
	"github.com/storesphere/checkout-service/database"
	"github.com/storesphere/checkout-service/kafka"
	"github.com/storesphere/checkout-service/models"
	awspkg "github.com/storesphere/checkout-service/pkg/aws"
	ddbpkg "github.com/storesphere/checkout-service/pkg/dynamodb"
	"github.com/storesphere/checkout-service/repository"
	"github.com/storesphere/checkout-service/routes"
	"github.com/storesphere/checkout-service/sender"
	"github.com/storesphere/checkout-service/services"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal("Config load failed", zap.Error(err))
	}

	// --- AWS clients ---
	awsCfg, err := awspkg.LoadAWSConfig(context.Background())
	if err != nil {
		logger.Fatal("Failed to load AWS config", zap.Error(err))
	}

	ddbClient := ddbpkg.NewClientFromConfig(awsCfg)
	snsClient := awspkg.NewSNSClient(awsCfg)

	metricsClient, err := awspkg.NewMetricsClient(context.Background())
	if err != nil {
		logger.Warn("CloudWatch metrics client init failed (non-fatal)", zap.Error(err))
	}

	// --- Receipt channel ---
	var emailSender sender.EmailSender
	if cfg.EmailDriver == "smtp" {
		emailSender, err = sender.NewSMTPSender()
	} else {
		emailSender, err = sender.NewSESSender(awsCfg, cfg.SenderEmail)
	}
	if err != nil {
		logger.Fatal("Email sender init failed", zap.String("driver", cfg.EmailDriver), zap.Error(err))
	}

	// --- Ledger database ---
	db, err := database.ConnectPostgres(logger, &models.LedgerEntry{})
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer database.Close(db)

	// --- Repositories ---
	cartRepo := repository.NewDynamoCartRepository(ddbClient, cfg.DDBCartTable)
	productRepo := repository.NewDynamoProductRepository(ddbClient, cfg.DDBProductTable)
	ledgerRepo := repository.NewGormLedgerRepo(db)

	// --- Orchestrator ---
	alerter := services.NewSNSAlerter(snsClient, cfg.SNSTopicARN)

	opts := []services.CheckoutOption{}
	if metricsClient != nil {
		opts = append(opts, services.WithMetrics(metricsClient))
	}
	if cfg.RedisURL != "" {
		redisClient := database.NewRedisClient(cfg.RedisURL)
		opts = append(opts, services.WithIdempotencyStore(repository.NewRedisIdempotencyStore(redisClient)))
	}
	if cfg.KafkaBrokers != "" {
		producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		defer producer.Close()
		opts = append(opts, services.WithSettledEvents(producer))
	}

	checkoutService := services.NewCheckoutService(
		cartRepo, productRepo, ledgerRepo, alerter, emailSender, logger, opts...,
	)
	productService := services.NewProductService(productRepo)

	checkoutController := controllers.NewCheckoutController(checkoutService)
	productController := controllers.NewProductController(productService)

	// --- HTTP router ---
	r := gin.New()
	r.Use(gin.Recovery())

	if metricsClient != nil && metricsClient.IsEnabled() {
		r.Use(func(c *gin.Context) {
			start := time.Now()
			c.Next()
			go func(path, method string, status int, dur time.Duration) {
				mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				dims := map[string]string{"Service": "checkout-service", "Method": method, "Path": path}
				_ = metricsClient.RecordCount(mctx, awspkg.MetricHTTPRequests, dims)
				_ = metricsClient.RecordLatency(mctx, awspkg.MetricHTTPLatency, dur, dims)
				if status >= 400 {
					_ = metricsClient.RecordCount(mctx, awspkg.MetricHTTPErrors, dims)
				}
			}(c.Request.URL.Path, c.Request.Method, c.Writer.Status(), time.Since(start))
		})
	}

	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	})

	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.RegisterRoutes(r, checkoutController, productController)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		logger.Info("Checkout Service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Checkout Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Checkout Service stopped gracefully")
}
