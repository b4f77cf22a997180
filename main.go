package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"consult-service/internal/auth"
	"consult-service/internal/config"
	"consult-service/internal/db"
	"consult-service/internal/handlers"
	"consult-service/internal/middleware"
	"consult-service/internal/observability"
	"consult-service/internal/payments"
	"consult-service/internal/repositories"
	"consult-service/internal/telemetry"
	"consult-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "consult-service", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, payment cache disabled", zap.Error(err))
		redisClient = nil
	}

	var publisher observability.Publisher
	if amqpPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		logger.Warn("amqp unavailable, event publishing disabled", zap.Error(err))
	} else {
		publisher = amqpPublisher
		observability.SetPublisher(publisher)
		defer publisher.Close()
	}

	apptRepo := repositories.NewAppointmentRepo(database)
	payRepo := repositories.NewPaymentRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	msgRepo := repositories.NewMessageRepo(database)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	hub := ws.NewHub(logger)

	var invoiceClient payments.InvoiceClient
	if cfg.InvoiceBaseURL != "" {
		invoiceClient = payments.NewHTTPInvoiceClient(cfg.InvoiceBaseURL, cfg.InvoiceAPIKey)
	}
	paymentProvider := payments.NewProvider(
		payRepo, roomRepo, invoiceClient, redisClient,
		cfg.PaymentCacheTTL, cfg.PaymentPoll, hub, logger,
	)
	go paymentProvider.Run(ctx)

	audit := telemetry.NewAuditEmitter(publisher, "audit_log.consultations", "consult-service", cfg.Env, logger)

	consultationHandler := handlers.NewConsultationHandler(apptRepo, roomRepo, msgRepo, paymentProvider, hub, audit)
	paymentHandler := handlers.NewPaymentHandler(apptRepo, paymentProvider, audit)
	wsHandler := ws.NewConsultationWSHandler(hub, roomRepo, apptRepo, msgRepo, paymentProvider, verifier, logger)

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("consult-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/appointments/:appointment_id/consultation", authMiddleware, consultationHandler.GetConsultation)
	router.GET("/rooms/:room_id/messages", authMiddleware, consultationHandler.GetRoomMessages)
	router.POST("/appointments/:appointment_id/complete", authMiddleware, middleware.RequireRole(auth.RoleOptometrist), consultationHandler.CompleteAppointment)

	router.GET("/appointments/:appointment_id/payment", authMiddleware, paymentHandler.GetPayment)
	router.POST("/appointments/:appointment_id/payment/invoice", authMiddleware, paymentHandler.CreateInvoice)
	router.POST("/appointments/:appointment_id/payment/proof", authMiddleware, paymentHandler.SubmitProof)
	router.POST("/admin/payments/:payment_id/verify", authMiddleware, middleware.RequireRole(auth.RoleAdmin), paymentHandler.VerifyPayment)
	router.POST("/admin/payments/:payment_id/reject", authMiddleware, middleware.RequireRole(auth.RoleAdmin), paymentHandler.RejectPayment)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	logger.Info("consultation service listening", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
