// Package main runs the reservation API server with WebSocket fan-out and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/tablehost/backend/config"
	"github.com/tablehost/backend/internal/archival"
	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/internal/availability"
	"github.com/tablehost/backend/internal/middleware"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/internal/organizations"
	"github.com/tablehost/backend/internal/realtime"
	"github.com/tablehost/backend/internal/reservations"
	"github.com/tablehost/backend/internal/validation"
	"github.com/tablehost/backend/pkg/database"
	"github.com/tablehost/backend/pkg/queue"
	"github.com/tablehost/backend/pkg/redis"
	"github.com/tablehost/backend/pkg/response"
	"github.com/tablehost/backend/pkg/storage"
	"github.com/tablehost/backend/pkg/utils"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.JWT.NeverExpire {
		logger.Warn("session tokens are issued without expiry (JWT_EXPIRATION=never)")
	}
	if err := validation.Register(); err != nil {
		logger.Fatal("validation", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Tenants
	orgRepo := organizations.NewRepository(pool)
	directory := organizations.NewDirectory(orgRepo, logger)
	orgHandler := organizations.NewHandler(directory)

	// Identity
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.NeverExpire, cfg.JWT.ChannelTokenTTL)
	authRepo := auth.NewRepository(pool, orgRepo)
	authService := auth.NewService(authRepo, directory, jwtService, utils.Bcrypt{}, jobQueue, logger)
	authHandler := auth.NewHandler(authService, directory, auth.CookieConfig{
		Name:   cfg.JWT.CookieName,
		Secure: cfg.Server.CookieSecure,
	}, logger)

	// Realtime
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Availability and reservations
	availabilityRepo := availability.NewRepository(pool)
	ledger := availability.NewLedger(availabilityRepo, logger)
	availabilityHandler := availability.NewHandler(ledger)

	reservationRepo := reservations.NewRepository(pool)
	engine := reservations.NewEngine(reservationRepo, directory, hub, authRepo, jobQueue, logger)
	reservationHandler := reservations.NewHandler(engine)

	session := middleware.Session(jwtService, cfg.JWT.CookieName)
	admin := middleware.RequireRole(models.RoleAdmin)
	apiKey := middleware.APIKey(directory)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Error: "redis unavailable"})
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/verify", authHandler.Verify)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", session, authHandler.Me)
	}

	// Organization (admin)
	orgGroup := router.Group("/organization", session, admin, middleware.RequireOrganization())
	{
		orgGroup.GET("", orgHandler.Get)
		orgGroup.PUT("/hours", orgHandler.UpdateHours)
		orgGroup.POST("/api-key", orgHandler.RotateAPIKey)
	}

	// Availability
	availabilityHandler.RegisterRoutes(router, session, apiKey)

	// Reservations. Role checks for staff operations live in the engine.
	router.POST("/reservation/reservations/public", reservationHandler.CreatePublic)
	reservationGroup := router.Group("/reservation", session)
	{
		reservationGroup.GET("/reservations", reservationHandler.ListActive)
		reservationGroup.GET("/archived", reservationHandler.ListArchived)
		reservationGroup.GET("/reservations/user", reservationHandler.ListForUser)
		reservationGroup.POST("/reservations", reservationHandler.Create)
		reservationGroup.PUT("/reservations/:id", reservationHandler.UpdateStatus)
		reservationGroup.PUT("/reservations/:id/archive", reservationHandler.Archive)
	}

	// Realtime channel tokens and the WebSocket itself (token in query)
	router.GET("/realtime/token", session, middleware.RequireOrganization(), authHandler.ChannelToken)
	router.POST("/realtime/token/public", authHandler.PublicChannelToken)
	router.GET("/ws", realtime.ServeWs(hub, jwtService, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Archival.InProcess {
		scheduler := archival.NewScheduler(reservationRepo, hub, newExporter(ctx, cfg, logger), archival.Config{
			Interval:   cfg.Archival.Interval,
			Age:        cfg.Archival.Age,
			RunOnStart: cfg.Archival.RunOnStart,
		}, logger)
		g.Go(func() error { return scheduler.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newExporter returns an S3 exporter when an archive bucket is configured, nil otherwise.
func newExporter(ctx context.Context, cfg *config.Config, logger *zap.Logger) archival.Exporter {
	if cfg.AWS.ArchiveBucket == "" {
		return nil
	}
	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		ArchiveBucket:   cfg.AWS.ArchiveBucket,
	}, logger)
	if err != nil {
		logger.Warn("archive export disabled", zap.Error(err))
		return nil
	}
	return archival.NewS3Exporter(s3Client, logger)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
