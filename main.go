package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tournament-registration/auth"
	"tournament-registration/cache"
	"tournament-registration/config"
	"tournament-registration/handlers"
	"tournament-registration/middleware"
	"tournament-registration/mq"
	"tournament-registration/obs"
	"tournament-registration/repository"
	"tournament-registration/services"
	"tournament-registration/utils"
	"tournament-registration/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := obs.InitTracer("tournament-registration", cfg.OTLPEndpoint, cfg.Env)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}
	store := repository.NewStore(db)

	var blobs services.BlobStore
	switch cfg.BlobDriver {
	case "r2":
		blobs, err = utils.NewR2BlobStore(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessSecret, cfg.R2Bucket, cfg.CDNBaseURL)
	default:
		blobs, err = utils.NewLocalBlobStore(cfg.UploadDir, cfg.PublicBaseURL)
	}
	if err != nil {
		log.Fatal("failed to initialize evidence storage:", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.UploadCachePath), 0o755); err != nil {
		log.Fatal("failed to ensure upload cache dir:", err)
	}
	uploads, err := cache.NewUploadCache(cfg.UploadCachePath)
	if err != nil {
		log.Fatal("failed to open upload cache:", err)
	}
	defer uploads.Close()

	var publisher services.EventPublisher = services.LogPublisher{}
	if cfg.RabbitURL != "" {
		p, err := mq.NewPublisher(cfg.RabbitURL, cfg.EventsExchange)
		if err != nil {
			log.Fatal("failed to connect to RabbitMQ:", err)
		}
		defer p.Close()
		publisher = p
	} else {
		log.Println("⚠️  RABBIT_URL not set, events are only logged")
	}

	thresholds, err := cfg.Thresholds()
	if err != nil {
		log.Fatal("invalid proof thresholds:", err)
	}

	coordinator := services.NewSubmissionCoordinator(store, publisher)
	sessions := services.NewSessionManager(store, coordinator, cfg.SessionTTL)
	if err := sessions.StartSweeper(time.Minute); err != nil {
		log.Fatal("failed to start session sweeper:", err)
	}
	defer sessions.Stop()

	pipeline := services.NewPaymentProofPipeline(store, blobs, uploads, publisher, thresholds)
	review := services.NewDepositReviewService(store)

	// --- Workers ---
	if cfg.ProfileSyncURL != "" {
		syncWorker := workers.NewProfileSyncWorker(store, cfg.ProfileSyncURL, cfg.ProfileSyncPath, cfg.GatewayServiceToken, cfg.ProfileSyncInterval)
		go syncWorker.Start(ctx)
		log.Println("✅ Profile sync worker running")
	} else {
		log.Println("⚠️  PROFILE_SYNC_URL not set, KYC statuses will not be mirrored")
	}
	go workers.NewDepositStatusWorker(store, publisher, cfg.DepositPollInterval).Run(ctx)
	go pruneUploadCache(ctx, uploads)

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 32 * 1024 * 1024, // three 10MB evidence files plus form fields
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayServiceToken))
	app.Use(middleware.UserContextMiddleware(verifier))

	handlers.SetupTournamentRoutes(app, store, time.Now)
	handlers.SetupRegistrationRoutes(app, sessions)
	handlers.SetupDepositRoutes(app, pipeline, review, middleware.SSEAuthMiddleware(verifier), 3*time.Second)

	if cfg.BlobDriver == "local" {
		app.Static("/uploads", cfg.UploadDir)
	}

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on %s", cfg.ListenAddr)
	log.Printf("✅ CORS configured for origins: %s", cfg.Origins())

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("Tracer shutdown: %v", err)
	}
}

// pruneUploadCache drops cached partial uploads nobody came back for.
func pruneUploadCache(ctx context.Context, uploads *cache.UploadCache) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := uploads.Prune(24 * time.Hour); err != nil {
				log.Printf("[UPLOAD_CACHE] prune failed: %v", err)
			} else if n > 0 {
				log.Printf("[UPLOAD_CACHE] 🧹 pruned %d stale entries", n)
			}
		}
	}
}
