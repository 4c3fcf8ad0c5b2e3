package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/StorefrontProvenance/internal/api"
	"github.com/jmerrifield20/StorefrontProvenance/internal/api/handler"
	"github.com/jmerrifield20/StorefrontProvenance/internal/audit"
	"github.com/jmerrifield20/StorefrontProvenance/internal/identity"
	"github.com/jmerrifield20/StorefrontProvenance/internal/paylink"
	"github.com/jmerrifield20/StorefrontProvenance/internal/provenance"
	"github.com/jmerrifield20/StorefrontProvenance/internal/ratings"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("storefront exited with error", zap.Error(err))
	}
}

// provenanceStore is what the server needs from a provenance backend.
type provenanceStore interface {
	provenance.Store
	Products(ctx context.Context) ([]string, error)
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded .env")
	}

	viper.SetConfigName("storefront")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.base_url", "http://localhost:8080")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("identity.enabled", true)
	viper.SetDefault("identity.key_file", "data/signing.key")
	viper.SetDefault("identity.token_ttl", "24h")
	viper.SetDefault("provenance.verify_genesis", false)
	viper.SetDefault("audit.interval", "15m")
	viper.SetDefault("audit.schedule", "")
	viper.SetDefault("paylinks.base_url", "http://localhost:3000")
	viper.SetDefault("paylinks.max_age", "0s")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Stores ───────────────────────────────────────────────────────────────
	var (
		store      provenanceStore
		ratingRepo ratings.Repository
	)
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		db, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		pg := provenance.NewPostgresStore(db, logger)
		n, err := pg.CountProducts(ctx)
		if err != nil {
			return fmt.Errorf("provenance self-check: %w", err)
		}
		logger.Info("connected to postgres", zap.Int("products_with_history", n))
		store = pg
		ratingRepo = ratings.NewPostgresRepository(db)
	} else {
		logger.Warn("database.url not set, using in-memory stores; history is lost on restart")
		store = provenance.NewMemoryStore()
		ratingRepo = ratings.NewMemoryRepository()
	}

	// ── Provenance ───────────────────────────────────────────────────────────
	tracker := provenance.NewTracker(store, store, nil, provenance.Config{
		VerifyGenesis: viper.GetBool("provenance.verify_genesis"),
	}, logger)
	tracker.SetMetricsRecorder(provenance.MetricsRecorder{
		OnRecord: func(s provenance.Status) { handler.RecordProvenanceEvent(string(s)) },
		OnVerify: handler.RecordVerification,
	})

	auditCfg := audit.Config{
		Interval: viper.GetDuration("audit.interval"),
		Schedule: viper.GetString("audit.schedule"),
	}
	if auditCfg.Schedule != "" {
		if err := audit.ValidSchedule(auditCfg.Schedule); err != nil {
			return fmt.Errorf("invalid audit.schedule %q: %w", auditCfg.Schedule, err)
		}
	}
	if auditCfg.Interval > 0 || auditCfg.Schedule != "" {
		auditor := audit.New(store, tracker, auditCfg, logger)
		auditor.SetMetricsRecord(handler.RecordAudit)
		go auditor.Start(ctx)
	}

	// ── Identity ─────────────────────────────────────────────────────────────
	var tokens *identity.ActorTokenIssuer
	public := map[string]gin.HandlerFunc{}
	if viper.GetBool("identity.enabled") {
		key, err := identity.LoadOrCreateKey(viper.GetString("identity.key_file"))
		if err != nil {
			return fmt.Errorf("load signing key: %w", err)
		}
		tokens = identity.NewActorTokenIssuer(key, viper.GetString("server.base_url"), viper.GetDuration("identity.token_ttl"))
		public["/.well-known/jwks.json"] = identity.JWKSHandler(tokens)
		logger.Info("actor tokens enabled", zap.String("key_file", viper.GetString("identity.key_file")))
	} else {
		logger.Warn("identity disabled, event recording is unauthenticated")
	}

	// ── HTTP ─────────────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(ctx, api.Config{
		CORSOrigins:  viper.GetStringSlice("server.cors_origins"),
		RateLimitRPS: viper.GetInt("server.rate_limit_rps"),
	}, logger, public,
		handler.NewProvenanceHandler(tracker, tokens, logger),
		handler.NewPayLinkHandler(paylink.NewGenerator(viper.GetString("paylinks.base_url")), viper.GetDuration("paylinks.max_age"), logger),
		handler.NewRatingsHandler(ratings.NewService(ratingRepo, logger), tokens, logger),
	)

	port := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront HTTP listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down storefront...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("storefront stopped")
	return nil
}
