package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duet-chat/config"
	"duet-chat/internal/handler"
	"duet-chat/internal/redis"
	"duet-chat/internal/repository"
	"duet-chat/internal/server"
	"duet-chat/internal/services"
	"duet-chat/internal/storage"
	"duet-chat/internal/websocket"
	"duet-chat/pkg/database"
	"duet-chat/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

type stores struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	health   func(ctx context.Context) error
	close    func()
}

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		l.Errorf("Failed to open %s store: %s", cfg.StoreDriver, err)
		os.Exit(1)
	}
	defer st.close()

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redis.Ping(ctx, redisClient, 2*time.Second); err != nil {
		// limiter fails open and the cache is bypassed while redis is away
		l.Warnf("Redis unavailable at startup: %s", err)
	}

	limitCfg := redis.DefaultRateLimitConfig()
	if cfg.MessageRateLimit > 0 {
		limitCfg.MessageLimit = cfg.MessageRateLimit
	}
	limiter := redis.NewRateLimiter(redisClient, limitCfg)

	cacheCfg := redis.DefaultCacheConfig()
	if cfg.UserCacheTTL > 0 {
		cacheCfg.UserTTL = cfg.UserCacheTTL
	}
	cache := redis.NewCacheStore(redisClient, cacheCfg)

	var uploads services.ObjectPutter
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
		})
		if err != nil {
			l.Errorf("Failed to configure S3: %s", err)
			os.Exit(1)
		}
		uploads = s3Client
	} else {
		l.Warnf("S3_BUCKET not set, image uploads are disabled")
	}

	auth := services.NewJWTAuthenticator(cfg.JWTSecret)
	gateway := websocket.NewGateway(auth, websocket.Config{
		CookieName:     cfg.AuthCookie,
		AllowedOrigins: []string{cfg.ClientOrigin},
	}, l.Named("ws"))

	store := services.NewMessageStore(st.messages)
	dispatcher := services.NewDispatcher(store, gateway, l.Named("dispatcher"))
	directory := services.NewUserDirectory(st.users, cache, l.Named("users"))
	images := services.NewImageService(uploads, int64(cfg.MaxImageBytes))

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Messages: handler.NewMessageHandler(dispatcher, store, directory, images, l),
		Gateway:  gateway,
	}, server.Dependencies{
		Auth:    auth,
		Limiter: limiter,
		Health:  st.health,
	})

	if err := srv.Start(ctx); err != nil {
		l.Errorf("Server exited: %s", err)
		os.Exit(1)
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &stores{
			messages: repository.NewMessageRepository(db),
			users:    repository.NewUserRepository(db),
			health:   func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
			close:    func() { _ = db.Close() },
		}, nil

	case config.StoreDriverBadger:
		db, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		messages, err := repository.NewBadgerMessageRepository(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &stores{
			messages: messages,
			users:    repository.NewBadgerUserRepository(db),
			health: func(context.Context) error {
				if db.IsClosed() {
					return fmt.Errorf("badger store is closed")
				}
				return nil
			},
			close: func() {
				_ = messages.Close()
				_ = db.Close()
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
