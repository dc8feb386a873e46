package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mnfit/studio-api/internal/api"
	"mnfit/studio-api/internal/config"
	"mnfit/studio-api/internal/jobs"
	"mnfit/studio-api/internal/repository"
	"mnfit/studio-api/internal/repository/memory"
	"mnfit/studio-api/internal/repository/mongo"
	"mnfit/studio-api/internal/service"
	"mnfit/studio-api/internal/storage"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// repositories is the storage backend selected by database.driver.
type repositories struct {
	users    repository.UserRepository
	terms    repository.TermRepository
	bookings repository.BookingRepository
	health   func(ctx context.Context) error
	close    func()
}

func openRepositories(cfg config.DatabaseConfig) (*repositories, error) {
	if cfg.Driver == config.DriverMemory {
		log.Println("WARN: Using the in-memory store; data is lost on restart.")
		store := memory.NewStore()
		return &repositories{
			users:    store.Users(),
			terms:    store.Terms(),
			bookings: store.Bookings(),
			close:    func() {},
		}, nil
	}

	dbClient, err := mongo.ConnectDB(cfg.URI)
	if err != nil {
		return nil, err
	}
	appDB := dbClient.Database(cfg.Name)
	log.Println("Database connection established.")

	// The booking indexes back the one-booking-per-member rule, so startup waits for them.
	log.Println("Ensuring database indexes...")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := mongo.EnsureIndexes(ctx, appDB); err != nil {
		_ = mongo.DisconnectDB(dbClient)
		return nil, err
	}

	return &repositories{
		users:    mongo.NewMongoUserRepository(appDB),
		terms:    mongo.NewMongoTermRepository(appDB),
		bookings: mongo.NewMongoBookingRepository(appDB),
		health: func(ctx context.Context) error {
			return dbClient.Ping(ctx, readpref.Primary())
		},
		close: func() {
			log.Println("Disconnecting MongoDB...")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
			}
		},
	}, nil
}

// @title MNFit Studio API
// @version 1.0
// @description Term scheduling and booking for a fitness studio.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	log.Println("Starting MNFit Studio Server...")

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	loc, err := cfg.Booking.Location()
	if err != nil {
		log.Fatalf("FATAL: Invalid studio time zone: %v", err)
	}
	log.Printf("Configuration loaded (driver=%s, tz=%s).", cfg.Database.Driver, loc)

	// --- Database ---
	repos, err := openRepositories(cfg.Database)
	if err != nil {
		log.Fatalf("FATAL: Could not open %s store: %v", cfg.Database.Driver, err)
	}
	defer repos.close()

	// --- Initialize Storage ---
	archiver, err := storage.NewS3Archiver(context.Background(), cfg.S3)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize S3 archive: %v", err)
	}
	if archiver == nil {
		log.Println("INFO: Retention archive disabled (no s3.bucket_name).")
	}

	// --- Initialize Services ---
	log.Println("Initializing services...")
	clock := service.SystemClock{}
	locks := service.NewKeyedLocker()
	policy := service.Policy{
		WeeklyLimit: cfg.Booking.WeeklyLimit,
		Retention:   cfg.Booking.Retention,
		Location:    loc,
	}

	authService := service.NewAuthService(repos.users, cfg.JWT.Secret, cfg.JWT.Expiration, clock)
	lifecycleService := service.NewLifecycleService(repos.terms, repos.bookings, archiver, clock, policy)
	termService := service.NewTermService(repos.terms, repos.bookings, repos.users, lifecycleService, locks, clock, policy)
	reservationService := service.NewReservationService(repos.terms, repos.bookings, repos.users, lifecycleService, locks, clock, policy)
	adminService := service.NewAdminService(repos.users)

	// --- Background Jobs ---
	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler, err = jobs.NewScheduler(cfg.Jobs, lifecycleService, loc)
		if err != nil {
			log.Fatalf("FATAL: Could not schedule jobs: %v", err)
		}
		// Catch up on terms that started while the server was down.
		scheduler.RunMaterialize(context.Background())
		scheduler.Start()
	} else {
		log.Println("INFO: Background jobs disabled.")
	}

	// --- Initialize Gin Engine ---
	gin.SetMode(cfg.Server.GinMode)
	router := gin.Default() // Includes Logger and Recovery middleware

	log.Println("Setting up API routes...")
	api.SetupRoutes(router, api.Services{
		Auth:         authService,
		Terms:        termService,
		Reservations: reservationService,
		Admin:        adminService,
		HealthCheck:  repos.health,
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Printf("ERROR: Server forced to shutdown: %v", err)
	}
	if scheduler != nil {
		scheduler.Stop(ctxShutdown)
	}

	log.Println("Server exiting.")
}
