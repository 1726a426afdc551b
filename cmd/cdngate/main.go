package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/cdngate/internal/config"
	"github.com/dmitrymomot/cdngate/internal/migrations"
	"github.com/dmitrymomot/cdngate/internal/server"
	"github.com/dmitrymomot/cdngate/internal/server/middleware"
	"github.com/dmitrymomot/cdngate/pkg/admission"
	"github.com/dmitrymomot/cdngate/pkg/apikey"
	"github.com/dmitrymomot/cdngate/pkg/blob"
	"github.com/dmitrymomot/cdngate/pkg/db"
	"github.com/dmitrymomot/cdngate/pkg/filerecord"
	"github.com/dmitrymomot/cdngate/pkg/logger"
	"github.com/dmitrymomot/cdngate/pkg/profile"
	"github.com/dmitrymomot/cdngate/pkg/ratelimit"
	"github.com/dmitrymomot/cdngate/pkg/redis"
	"github.com/dmitrymomot/cdngate/pkg/signedurl"
	"github.com/dmitrymomot/cdngate/pkg/sweeper"
	"github.com/dmitrymomot/cdngate/pkg/uploader"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.NewWithSentry(cfg.Log, middleware.RequestIDExtractor)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := profile.NewRegistry(cfg.Profiles)
	if err != nil {
		return err
	}

	codec, err := signedurl.New(cfg.Signing.Secret)
	if err != nil {
		return err
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return err
	}

	var serverOpts []server.Option

	var pool *pgxpool.Pool
	if cfg.Database.Driver == config.BackendPostgres {
		pool, err = db.Connect(ctx, db.Config{DSN: cfg.Database.DSN})
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool, migrations.FS, log); err != nil {
			return err
		}
		serverOpts = append(serverOpts, server.WithReadyCheck("postgres", pool.Ping))
	}

	var redisClient *goredis.Client
	if cfg.RateLimit.Backend == config.BackendRedis {
		redisClient, err = redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer redisClient.Close()
		serverOpts = append(serverOpts, server.WithReadyCheck("redis", redis.Healthcheck(redisClient)))
	}

	var keys apikey.Store
	var records filerecord.Store
	if pool != nil {
		keys = apikey.NewPostgresStore(pool)
		records = filerecord.NewPostgresStore(pool)
	} else {
		keys = apikey.NewMemoryStore()
		records = filerecord.NewMemoryStore()
	}
	manager := filerecord.NewManager(records)

	limiter, cleaner := newLimiter(cfg, pool, redisClient)

	var authOpts []apikey.Option
	if cfg.RateLimit.DefaultLimit > 0 {
		authOpts = append(authOpts, apikey.WithDefaultLimit(cfg.RateLimit.DefaultLimit))
	}
	auth := apikey.NewAuthenticator(keys, limiter, authOpts...)

	ctrl := admission.New(registry, admission.Config{
		AllowCustomFolder: cfg.Upload.AllowCustomFolder,
		FetchTimeout:      cfg.Upload.FetchTimeout.Std(),
	})

	upOpts := []uploader.Option{uploader.WithLogger(log)}
	if cfg.Signing.TTL.Std() > 0 {
		upOpts = append(upOpts, uploader.WithSignTTL(cfg.Signing.TTL.Std()))
	}
	uploads := uploader.New(ctrl, blobs, manager, codec, cfg.BaseURL, upOpts...)

	sweepOpts := []sweeper.Option{
		sweeper.WithLogger(log),
		sweeper.WithExpirySchedule(cfg.Sweep.ExpirySchedule),
		sweeper.WithWindowSchedule(cfg.Sweep.WindowSchedule),
		sweeper.WithBatchSize(cfg.Sweep.BatchSize),
	}
	if cleaner != nil {
		sweepOpts = append(sweepOpts, sweeper.WithWindowCleaner(cleaner))
	}
	sweep := sweeper.New(manager, blobs, sweepOpts...)

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxBodySize:     cfg.Server.MaxBodySize,
	}, uploads, manager, blobs, codec, auth, log, serverOpts...)

	if err := sweep.Start(); err != nil {
		return err
	}
	defer sweep.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	return g.Wait()
}

func newBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageS3:
		return blob.NewS3(cfg.Storage.S3)
	default:
		return blob.NewDisk(cfg.Storage.Path)
	}
}

// newLimiter builds the rate-limit backend. The Postgres backend doubles as
// the sweeper's window cleaner; memory sweeps itself and Redis relies on
// key expiry.
func newLimiter(cfg *config.Config, pool *pgxpool.Pool, redisClient *goredis.Client) (ratelimit.Limiter, sweeper.WindowCleaner) {
	window := cfg.RateLimit.Window.Std()

	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		var opts []ratelimit.RedisOption
		if window > 0 {
			opts = append(opts, ratelimit.WithRedisWindow(window))
		}
		return ratelimit.NewRedis(redisClient, opts...), nil

	case config.BackendPostgres:
		var opts []ratelimit.PostgresOption
		if window > 0 {
			opts = append(opts, ratelimit.WithPostgresWindow(window))
		}
		limiter := ratelimit.NewPostgres(pool, opts...)
		return limiter, limiter

	default:
		var opts []ratelimit.MemoryOption
		if window > 0 {
			opts = append(opts, ratelimit.WithWindow(window))
		}
		return ratelimit.NewMemory(opts...), nil
	}
}
