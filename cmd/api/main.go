package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tyomaat-portal/internal/auth"
	"tyomaat-portal/internal/cache"
	"tyomaat-portal/internal/cleanup"
	"tyomaat-portal/internal/config"
	"tyomaat-portal/internal/database"
	"tyomaat-portal/internal/digest"
	"tyomaat-portal/internal/geocode"
	"tyomaat-portal/internal/handlers"
	"tyomaat-portal/internal/logging"
	"tyomaat-portal/internal/mail"
	"tyomaat-portal/internal/ratelimit"
	"tyomaat-portal/internal/scheduler"
	"tyomaat-portal/internal/search"

	fbauth "firebase.google.com/go/v4/auth"
)

// catalogDB is what both database backends offer to the public catalog and the digest job
type catalogDB interface {
	handlers.CatalogStore
	digest.Store
	auth.EmailLookup
	Ping(ctx context.Context) error
	Close() error
}

type app struct {
	cfg        *config.Config
	db         catalogDB
	gormDB     *database.GormDB // nil in legacy Postgres mode
	cache      cache.Cache
	search     *search.SearchClient
	firebase   *fbauth.Client
	authn      *auth.FirebaseAuthenticator
	hub        *auth.SessionHub
	limiter    *ratelimit.RateLimiter
	digestJob  *digest.Job
	scheduler  *scheduler.Scheduler
	worker     *scheduler.QueueWorker
	cleanupSvc *cleanup.Service
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: %v", err)
	}

	configPath := getEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		cfg = config.DefaultConfig()
	}
	cfg.ApplyEnv()

	logger := logging.Setup(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Printf("Loaded configuration from %s", configPath)

	a := &app{cfg: cfg, hub: auth.NewSessionHub()}
	if err := a.setupDatabase(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer a.db.Close()

	ctx := context.Background()
	a.setupCache(ctx)
	a.setupSearch()
	a.setupAuth(ctx)
	a.setupDigest()

	a.limiter = ratelimit.NewRateLimiter(
		cfg.RateLimit.RequestsPerMinute,
		cfg.RateLimit.RequestsPerHour,
		cfg.RateLimit.RequestsPerDay,
		cfg.RateLimit.Enabled,
	)
	log.Printf("Rate limiter initialized: %d req/min, %d req/hour, %d req/day (enabled: %v)",
		cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour, cfg.RateLimit.RequestsPerDay, cfg.RateLimit.Enabled)

	var admin *handlers.AdminHandler
	geocoder := geocode.NewClient(geocode.Config{
		BaseURL:           cfg.Geocoder.URL,
		UserAgent:         cfg.Geocoder.UserAgent,
		RequestsPerSecond: cfg.Geocoder.RequestsPerSecond,
		Timeout:           cfg.Geocoder.GetTimeout(),
		CacheTTL:          cfg.Geocoder.GetCacheTTL(),
		FailureThreshold:  cfg.Geocoder.FailureThreshold,
		Cooldown:          cfg.Geocoder.GetCooldown(),
	}, a.cache)

	if a.gormDB != nil {
		var idx cleanup.SearchIndex
		if a.search != nil {
			idx = a.search
		}
		a.cleanupSvc = cleanup.NewService(a.gormDB.DB(), idx)

		var digestRunner scheduler.DigestRunner
		if a.digestJob != nil {
			digestRunner = a.digestJob
		}
		a.scheduler = scheduler.NewScheduler(cfg, digestRunner, a.cleanupSvc)
		if err := a.scheduler.Start(); err != nil {
			log.Printf("Warning: Failed to start scheduler: %v", err)
		}
		defer a.scheduler.Stop()

		if cfg.Geocoder.WorkerEnabled {
			a.worker = scheduler.NewQueueWorker(a.gormDB, geocoder,
				cfg.Geocoder.GetPollInterval(), cfg.Geocoder.WorkerBatchSize,
				func(projectID string) { admin.OnGeocodeResolved(projectID) })
		}

		deps := handlers.AdminDeps{
			Geocoder:  geocoder,
			Cache:     a.cache,
			Cleanup:   a.cleanupSvc,
			Scheduler: a.scheduler,
			Worker:    a.worker,
			CleanupDefaults: cleanup.CleanupConfig{
				RetentionDays:    cfg.Cleanup.RetentionDays,
				MaxDeletionCount: cfg.Cleanup.MaxDeletionCount,
			},
		}
		if a.search != nil {
			deps.Search = a.search
		}
		if digestRunner != nil {
			deps.Digest = digestRunner
		}
		admin = handlers.NewAdminHandler(a.gormDB, deps)

		if a.worker != nil {
			a.worker.Start()
			defer a.worker.Stop()
		}
	} else {
		log.Println("Legacy Postgres mode: dashboard, watchlist and background jobs are disabled")
	}

	r := a.setupRouter(logger, admin)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

func (a *app) setupDatabase() error {
	switch a.cfg.Database.Type {
	case "postgres":
		log.Println("Using PostgreSQL (legacy)")
		pg := a.cfg.Database.Postgres
		db, err := database.NewDB(
			orDefault(pg.Host, "db"),
			portOrDefault(pg.Port, "5432"),
			pg.User, pg.Password,
			orDefault(pg.Database, "tyomaat"),
			pg.SSLMode,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := db.InitSchema(); err != nil {
			db.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		a.db = db
	default:
		log.Println("Using MySQL with GORM")
		my := a.cfg.Database.MySQL
		gdb, err := database.NewGormDB(
			orDefault(my.Host, "mysql"),
			portOrDefault(my.Port, "3306"),
			my.User, my.Password,
			orDefault(my.Database, "tyomaat"),
		)
		if err != nil {
			return fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		if err := gdb.InitSchema(); err != nil {
			gdb.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		a.db = gdb
		a.gormDB = gdb
	}
	return nil
}

func (a *app) setupCache(ctx context.Context) {
	a.cache = cache.Nop{}
	if a.cfg.Redis.Addr == "" {
		log.Println("Warning: REDIS_ADDR not set, caching disabled")
		return
	}
	rc, err := cache.NewRedisCache(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		log.Printf("Warning: %v, caching disabled", err)
		return
	}
	a.cache = rc
	log.Printf("Redis cache connected at %s", a.cfg.Redis.Addr)
}

func (a *app) setupSearch() {
	ms := a.cfg.Search.Meilisearch
	if ms.Host == "" {
		log.Println("Warning: MEILISEARCH_HOST not set, search disabled")
		return
	}
	a.search = search.NewSearchClient(ms.Host, ms.APIKey)
	if err := a.search.InitIndex(); err != nil {
		log.Printf("Warning: Failed to initialize search index: %v", err)
	}
}

func (a *app) setupAuth(ctx context.Context) {
	client, err := auth.NewFirebaseClient(ctx, a.cfg.Firebase.CredentialsPath)
	if err != nil {
		log.Printf("Warning: %v. Every protected route will redirect to login.", err)
		return
	}
	a.firebase = client
	a.authn = auth.NewFirebaseAuthenticator(client, auth.CookieConfig{
		SessionName:  a.cfg.Auth.SessionCookie,
		IDTokenName:  a.cfg.Auth.IDTokenCookie,
		TTL:          a.cfg.Auth.SessionTTL(),
		RefreshAfter: a.cfg.Auth.RefreshAfter(),
		Secure:       a.cfg.Auth.SecureCookies,
	})
	log.Println("Firebase authentication initialized")
}

func (a *app) setupDigest() {
	missing := a.cfg.MissingDigestSettings()
	if len(missing) > 0 {
		log.Printf("Warning: digest disabled, missing %v", missing)
		return
	}
	sender, err := mail.NewResendSender(a.cfg.Mail.ResendAPIKey, a.cfg.Digest.FromEmail)
	if err != nil {
		log.Printf("Warning: digest disabled: %v", err)
		return
	}

	var dir *auth.Directory
	if a.firebase != nil {
		dir = auth.NewDirectory(a.firebase, a.db)
	} else {
		dir = auth.NewDirectory(nil, a.db)
	}

	a.digestJob = digest.NewJob(a.db, dir, sender, digest.Config{
		AppBaseURL: a.cfg.Digest.AppBaseURL,
		MaxItems:   a.cfg.Digest.MaxItems,
	})
	log.Println("Digest job initialized")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func portOrDefault(port int, def string) string {
	if port > 0 {
		return fmt.Sprintf("%d", port)
	}
	return def
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
