package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medicore/hospital-api/internal/account"
	"github.com/medicore/hospital-api/internal/audit"
	"github.com/medicore/hospital-api/internal/auth"
	"github.com/medicore/hospital-api/internal/config"
	"github.com/medicore/hospital-api/internal/httpapi"
	"github.com/medicore/hospital-api/internal/password"
	"github.com/medicore/hospital-api/internal/rate"
	"github.com/medicore/hospital-api/internal/session"
	"github.com/medicore/hospital-api/internal/token"
)

const (
	startupTimeout   = 10 * time.Second
	shutdownTimeout  = 15 * time.Second
	sessionSweepTick = time.Hour
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "hospital-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration load failed")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration rejected")
	}
	if !cfg.IsProduction() {
		log = log.Level(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pool, err := newPool(startupCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()

	if err := migrate(startupCtx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	// Redis is a soft dependency: without it sessions run durable-only
	// and the limiters fail open. The service starts either way.
	cache := newRedis(startupCtx, cfg, log)

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Issuer:        cfg.TokenIssuer,
		Audience:      cfg.TokenAudience,
		Leeway:        30 * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("token manager init failed")
	}

	hasher, err := password.NewHasher(cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("password hasher init failed")
	}

	accounts := account.NewPGStoreFromPool(pool)
	durableSessions := session.NewPGStoreFromPool(pool)
	sessions := session.NewStore(cache, durableSessions, log)
	recorder := audit.NewRecorder(log)

	strict := rate.New(cache, "rl:s:", rate.Config{
		Limit:       cfg.StrictRateLimit,
		Window:      cfg.StrictRateWindow,
		BlockFactor: 2,
		Progressive: cfg.ProgressiveBlock,
	}, log)
	global := rate.New(cache, "rl:g:", rate.Config{
		Limit:       cfg.GlobalRateLimit,
		Window:      cfg.GlobalRateWindow,
		BlockFactor: 1,
	}, log)

	svc, err := auth.NewService(auth.Config{
		Accounts:   accounts,
		Sessions:   sessions,
		Tokens:     tokens,
		Hasher:     hasher,
		Strict:     strict,
		Audit:      recorder,
		Log:        log,
		SessionTTL: cfg.RefreshTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("auth service init failed")
	}

	server := httpapi.NewServer(httpapi.Config{
		Auth:     svc,
		Tokens:   tokens,
		Sessions: sessions,
		Global:   global,
		Strict:   strict,
		Audit:    recorder,
		Log:      log,
	})

	go sweepSessions(ctx, durableSessions, log)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := server.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Echo().Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if cache != nil {
		_ = cache.Close()
	}
	log.Info().Msg("server stopped")
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{account.MigrationAccounts, session.MigrationSessions} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// newRedis returns a nil interface (not a typed nil) on failure so the
// downstream nil checks in the session store and limiters hold.
func newRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) redis.UniversalClient {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid REDIS_URL, starting in degraded mode")
		return nil
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, starting in degraded mode")
		_ = client.Close()
		return nil
	}
	return client
}

// sweepSessions removes expired durable session rows. Redis entries
// expire on their own TTL; the Postgres copy needs an explicit reaper.
func sweepSessions(ctx context.Context, store *session.PGStore, log zerolog.Logger) {
	ticker := time.NewTicker(sessionSweepTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("session sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("expired sessions swept")
			}
		}
	}
}
