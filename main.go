package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pharmacy-backend/controllers"
	"pharmacy-backend/database"
	"pharmacy-backend/kafka"
	"pharmacy-backend/logger"
	"pharmacy-backend/models"
	"pharmacy-backend/repository"
	"pharmacy-backend/routes"
	"pharmacy-backend/services"
	"pharmacy-backend/storage"
)

func main() {
	// Load .env file (optional, falls back to system env)
	_ = godotenv.Load()

	cfg := LoadConfig()

	log := logger.Initialize(cfg.Environment)
	defer log.Sync()

	// --- 1. Infrastructure ---

	if err := database.Connect(cfg.MongoURL, cfg.DBName); err != nil {
		zap.L().Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer database.Close()

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 15*time.Second)
	if err := database.EnsureIndexes(indexCtx); err != nil {
		zap.L().Warn("Failed to ensure indexes", zap.Error(err))
	}
	cancelIndexes()

	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	var publisher services.EventPublisher
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, log)
		defer producer.Close()
		publisher = producer
	} else {
		zap.L().Warn("KAFKA_BROKERS not set, order events disabled")
	}

	var objectStore *storage.Client
	var deleter services.ObjectDeleter
	var signer services.UploadURLSigner
	if cfg.Storage.Bucket != "" {
		objectStore, err = storage.New(context.Background(), cfg.Storage)
		if err != nil {
			zap.L().Fatal("Failed to initialize object storage", zap.Error(err))
		}
		deleter = objectStore
		signer = objectStore
	} else {
		zap.L().Warn("S3_BUCKET not set, file uploads disabled")
	}

	// --- 2. Dependency Injection ---

	userRepo := repository.NewMongoUserRepository(database.DB)
	medicineRepo := repository.NewMongoMedicineRepository(database.DB)
	orderRepo := repository.NewMongoOrderRepository(database.DB)
	prescriptionRepo := repository.NewMongoPrescriptionRepository(database.DB)
	deliveryBoyRepo := repository.NewMongoDeliveryBoyRepository(database.DB)

	tokens := services.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	mailer := services.NewSMTPSender(cfg.SMTP)
	otpStore := services.NewRedisOTPStore(redisClient, "otp")

	authService := services.NewAuthService(userRepo, tokens, otpStore, mailer, log)
	medicineService := services.NewMedicineService(medicineRepo, deleter, log)
	prescriptionService := services.NewPrescriptionService(prescriptionRepo, medicineRepo, signer, log)
	orderService := services.NewOrderService(orderRepo, medicineRepo, prescriptionRepo, userRepo, deliveryBoyRepo, publisher, cfg.OrderTopic, log)
	deliveryBoyService := services.NewDeliveryBoyService(deliveryBoyRepo, userRepo, tokens, mailer, log)

	cookieMaxAge := int(tokens.TTL().Seconds())
	authController := controllers.NewAuthController(authService, cookieMaxAge)
	medicineController := controllers.NewMedicineController(medicineService, prescriptionService)
	orderController := controllers.NewOrderController(orderService)
	prescriptionController := controllers.NewPrescriptionController(prescriptionService)
	deliveryBoyController := controllers.NewDeliveryBoyController(deliveryBoyService, cookieMaxAge)

	// --- 3. HTTP Server & Middleware ---

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger(log))
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.Register(r, tokens, authController, medicineController, orderController, prescriptionController, deliveryBoyController)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// --- 4. Graceful Shutdown ---

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		zap.L().Info("Pharmacy backend starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down pharmacy backend...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Fatal("Server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Pharmacy backend stopped gracefully")
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("medicine_category", func(fl validator.FieldLevel) bool {
			return models.MedicineCategory(fl.Field().String()).Valid()
		})
	}
}
