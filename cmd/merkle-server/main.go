package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/config"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/logger"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence/badger"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence/redis"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "merkle-server",
		Usage: "Merkle allowlist tree server",
		Description: `An HTTP server that builds merkle trees over address allowlists.

Trees are built from an ordered list of Ethereum addresses and stored as
sessions. Proofs can then be requested per address or per leaf index and
verified against any root.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvMerklePort},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Aliases: []string{"persistence"},
				Value:   config.PersistenceTypeMemory.String(),
				Usage:   fmt.Sprintf("Tree session storage: %s", config.GetSupportedPersistenceTypesString()),
				EnvVars: []string{config.EnvMerklePersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Value:   config.DefaultDataPath,
				Usage:   "Badger data directory",
				EnvVars: []string{config.EnvMerkleDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Value:   config.DefaultRedisAddress,
				Usage:   "Redis server address (host:port)",
				EnvVars: []string{config.EnvMerkleRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvMerkleRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number (0-15)",
				EnvVars: []string{config.EnvMerkleRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every Redis key",
				EnvVars: []string{config.EnvMerkleRedisKeyPrefix},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Value:   config.DefaultRateLimit,
				Usage:   "Requests per second per client, 0 disables rate limiting",
				EnvVars: []string{config.EnvMerkleRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Value:   config.DefaultRateBurst,
				Usage:   "Request burst per client",
				EnvVars: []string{config.EnvMerkleRateBurst},
			},
			&cli.DurationFlag{
				Name:    "session-ttl",
				Value:   config.DefaultSessionTTL,
				Usage:   "How long tree sessions are kept, 0 keeps them forever",
				EnvVars: []string{config.EnvMerkleSessionTTL},
			},
			&cli.IntFlag{
				Name:    "max-identifiers",
				Value:   config.DefaultMaxIdentifiers,
				Usage:   "Maximum number of addresses per tree",
				EnvVars: []string{config.EnvMerkleMaxIdentifiers},
			},
			&cli.IntFlag{
				Name:    "build-workers",
				Value:   config.DefaultBuildWorkers,
				Usage:   "Workers used to build a tree, 1 builds sequentially",
				EnvVars: []string{config.EnvMerkleBuildWorkers},
			},
			&cli.IntFlag{
				Name:    "tree-cache-size",
				Value:   config.DefaultTreeCacheSize,
				Usage:   "Number of rebuilt trees kept in memory, 0 disables the cache",
				EnvVars: []string{config.EnvMerkleTreeCacheSize},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvMerkleDebug},
			},
		},
		Action: runMerkleServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runMerkleServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseServerConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := newPersistence(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to create persistence: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	}()

	svc, err := service.NewTreeService(&service.Config{
		MaxIdentifiers: cfg.MaxIdentifiers,
		BuildWorkers:   cfg.BuildWorkers,
		SessionTTL:     cfg.SessionTTL,
		TreeCacheSize:  cfg.TreeCacheSize,
	}, store, l)
	if err != nil {
		return fmt.Errorf("failed to create tree service: %w", err)
	}

	srv := service.NewServer(svc, &service.ServerConfig{
		Port:      cfg.Port,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, l)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("verbose") {
		l.Sugar().Infow("Merkle Server Configuration",
			"port", cfg.Port,
			"persistence", cfg.PersistenceType,
			"rate_limit", cfg.RateLimit,
			"rate_burst", cfg.RateBurst,
			"session_ttl", cfg.SessionTTL,
			"max_identifiers", cfg.MaxIdentifiers,
			"build_workers", cfg.BuildWorkers,
			"tree_cache_size", cfg.TreeCacheSize)
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	waitPruner := startPruner(ctx, svc, service.PruneInterval(cfg.SessionTTL))

	l.Sugar().Infow("Merkle Server running", "address", srv.Addr(), "persistence", cfg.PersistenceType)
	l.Sugar().Info("Press Ctrl+C to stop")

	<-ctx.Done()
	l.Sugar().Info("Shutting down Merkle Server")

	// the store is closed on return, so no prune may still be running
	waitPruner()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

// startPruner runs the session pruner until ctx is done. The returned
// function blocks until the pruner has exited.
func startPruner(ctx context.Context, svc *service.TreeService, interval time.Duration) func() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.RunPruner(ctx, interval)
	}()
	return wg.Wait
}

func parseServerConfig(c *cli.Context) *config.ServerConfig {
	return &config.ServerConfig{
		Port:            c.Int("port"),
		PersistenceType: config.PersistenceType(c.String("persistence-type")),
		DataPath:        c.String("data-path"),
		RedisAddress:    c.String("redis-address"),
		RedisPassword:   c.String("redis-password"),
		RedisDB:         c.Int("redis-db"),
		RedisKeyPrefix:  c.String("redis-key-prefix"),
		RateLimit:       c.Float64("rate-limit"),
		RateBurst:       c.Int("rate-burst"),
		SessionTTL:      c.Duration("session-ttl"),
		MaxIdentifiers:  c.Int("max-identifiers"),
		BuildWorkers:    c.Int("build-workers"),
		TreeCacheSize:   c.Int("tree-cache-size"),
		Debug:           c.Bool("verbose"),
	}
}

func newPersistence(cfg *config.ServerConfig, l *zap.Logger) (persistence.ITreePersistence, error) {
	switch cfg.PersistenceType {
	case config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(l), nil
	case config.PersistenceTypeBadger:
		return badger.NewBadgerPersistence(cfg.DataPath, l)
	case config.PersistenceTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.PersistenceType)
	}
}
