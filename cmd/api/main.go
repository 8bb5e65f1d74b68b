package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/potholewatch/server/internal/auth"
	"github.com/potholewatch/server/internal/config"
	"github.com/potholewatch/server/internal/db"
	"github.com/potholewatch/server/internal/geocode"
	httphandler "github.com/potholewatch/server/internal/http"
	"github.com/potholewatch/server/internal/http/handlers"
	"github.com/potholewatch/server/internal/metrics"
	"github.com/potholewatch/server/internal/middleware"
	"github.com/potholewatch/server/internal/pipeline"
	"github.com/potholewatch/server/internal/repo"
)

// codeSweepInterval is how often the in-memory code store drops expired codes
const codeSweepInterval = time.Minute

// stores is the pair of repositories selected by STORE_DRIVER
type stores struct {
	codes   repo.CodeRepo
	reports repo.ReportRepo
	close   func()
}

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create context for startup operations
	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer st.close()

	// Initialize auth services
	codeIssuer := auth.NewCodeIssuer(st.codes, auth.LogNotifier{}, auth.CodeIssuerOptions{
		Salt:    cfg.OTPSalt,
		TTL:     cfg.OTPTTL,
		DevMode: cfg.OTPDevMode,
	})
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewAuthService(codeIssuer, tokens)

	var geocoder geocode.Geocoder = geocode.Nop{}
	if cfg.GeocodingAPIKey != "" {
		geocoder = geocode.NewClient(cfg.GeocodingURL, cfg.GeocodingAPIKey, nil)
	} else {
		log.Println("GEOCODING_API_KEY not set; reports will be stored with unknown locations")
	}

	gate := pipeline.NewGate(tokens)
	reportPipeline := pipeline.New(gate, st.reports, geocoder)
	m := metrics.New()

	if cfg.OTPDevMode {
		log.Println("OTP_DEV_MODE is on; codes are returned in send-otp responses")
	}

	// Create router
	router := httphandler.NewRouter(httphandler.Deps{
		Auth:       handlers.NewAuthHandler(authService, m),
		Reports:    handlers.NewReportHandler(reportPipeline, m),
		Health:     handlers.NewHealthHandler(reportPipeline),
		Gate:       gate,
		Metrics:    m,
		CodeRate:   middleware.NewRateLimiter(cfg.OTPRateLimit),
		TrustProxy: cfg.TrustProxyHeaders,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s (store: %s)", cfg.Port, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// openStores opens the backend named by cfg.StoreDriver and runs its migrations
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		codes := repo.NewMemoryCodeRepo(codeSweepInterval)
		return &stores{
			codes:   codes,
			reports: repo.NewMemoryReportRepo(),
			close:   func() { _ = codes.Close() },
		}, nil

	case config.DriverSQLite, config.DriverPostgres:
		database, dialect, err := openSQL(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(database, dialect); err != nil {
			_ = database.Close()
			return nil, err
		}
		codes := repo.NewSQLCodeRepo(database, dialect)
		stop := sweepPeriodically(codes, codeSweepInterval)
		return &stores{
			codes:   codes,
			reports: repo.NewSQLReportRepo(database, dialect),
			close: func() {
				stop()
				_ = database.Close()
			},
		}, nil

	case config.DriverMongo:
		database, err := db.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureIndexes(ctx, database); err != nil {
			_ = database.Client().Disconnect(context.Background())
			return nil, err
		}
		// Pending codes are short-lived and stay in process memory.
		codes := repo.NewMemoryCodeRepo(codeSweepInterval)
		return &stores{
			codes:   codes,
			reports: repo.NewMongoReportRepo(database),
			close: func() {
				_ = codes.Close()
				_ = database.Client().Disconnect(context.Background())
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openSQL(ctx context.Context, cfg *config.Config) (*sql.DB, db.Dialect, error) {
	if cfg.StoreDriver == config.DriverPostgres {
		database, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		return database, db.Postgres, err
	}
	database, err := db.OpenSQLite(ctx, cfg.SQLitePath)
	return database, db.SQLite, err
}

// sweepPeriodically drops expired pending codes until the returned stop func is called
func sweepPeriodically(codes repo.CodeRepo, every time.Duration) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				n, err := codes.Sweep(context.Background(), now)
				if err != nil {
					log.Printf("Failed to sweep expired codes: %v", err)
				} else if n > 0 {
					log.Printf("Swept %d expired codes", n)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
		_ = codes.Close()
	}
}
