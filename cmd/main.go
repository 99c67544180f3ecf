package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-feed/internal/cache"
	"github.com/weiawesome/wes-io-feed/internal/config"
	"github.com/weiawesome/wes-io-feed/internal/consumer"
	"github.com/weiawesome/wes-io-feed/internal/digest"
	"github.com/weiawesome/wes-io-feed/internal/domain"
	"github.com/weiawesome/wes-io-feed/internal/handler"
	"github.com/weiawesome/wes-io-feed/internal/notifier"
	"github.com/weiawesome/wes-io-feed/internal/reconciler"
	"github.com/weiawesome/wes-io-feed/internal/repository"
	"github.com/weiawesome/wes-io-feed/internal/service"
	"github.com/weiawesome/wes-io-feed/internal/store"
	"github.com/weiawesome/wes-io-feed/internal/token"
	pkgconfig "github.com/weiawesome/wes-io-feed/pkg/config"
	"github.com/weiawesome/wes-io-feed/pkg/database"
	"github.com/weiawesome/wes-io-feed/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-feed/pkg/log"
	"github.com/weiawesome/wes-io-feed/pkg/middleware"
	"github.com/weiawesome/wes-io-feed/pkg/pubsub"
	"github.com/weiawesome/wes-io-feed/pkg/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadFrom(pkgconfig.GetEnv("CONFIG_PATH", "./config"))
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Initialize structured logger
	logCfg := cfg.Log
	logCfg.Pretty = logCfg.Pretty || logCfg.Level == "debug"
	pkglog.Init(logCfg)
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Init DB and migrate
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db, &domain.AccountModel{}, &domain.RelationshipModel{}, &domain.PostModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Delete events must carry the whole before-row for the CDC consumer.
	if cfg.Kafka.Enabled && cfg.Database.Driver == "postgres" {
		if err := db.Exec(`ALTER TABLE relationships REPLICA IDENTITY FULL`).Error; err != nil {
			logger.Fatal().Err(err).Msg("failed to set REPLICA IDENTITY FULL on relationships table")
		}
	}

	// 4. Init Redis client (optional)
	var (
		redisClient  *redis.Client
		accountCache cache.AccountCache
		followStore  store.FollowStore
	)
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Redis.Address).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		accountCache = cache.NewRedisAccountCache(redisClient, cfg.Cache.Prefix)
		followStore = store.NewRedisFollowStore(redisClient, cfg.Graph.StorePrefix)
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	} else {
		logger.Warn().Msg("redis not configured; profile cache and follow counters disabled")
	}

	// 5. Notification publisher
	var publisher pubsub.Publisher
	if cfg.PubSub.Driver == "redis" && redisClient != nil && cfg.PubSub.Redis.Address == cfg.Redis.Address {
		publisher = pubsub.NewRedisPublisherWithClient(redisClient)
	} else {
		publisher, err = pubsub.NewPublisher(cfg.PubSub)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create publisher")
		}
	}
	var notify notifier.Notifier = notifier.NewLogNotifier()
	if publisher != nil {
		notify = notifier.NewPubSubNotifier(publisher, cfg.App.PublicURL)
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("notification publisher ready")
	}

	// 6. Picture storage
	pictures, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to init storage")
	}

	// 7. Repositories and services
	accountRepo := repository.NewGormAccountRepository(db)
	relationRepo := repository.NewGormRelationshipRepository(db)
	postRepo := repository.NewGormPostRepository(db)

	creds := domain.Credentials{
		Hasher:   digest.New(cfg.UseMinDigestCost()),
		NewToken: token.New,
	}

	accountSvc := service.NewAccountService(service.AccountDeps{
		Accounts:  accountRepo,
		Relations: relationRepo,
		Cache:     accountCache,
		CacheTTL:  cfg.Cache.TTL,
		Counters:  followStore,
		Pictures:  pictures,
		Creds:     creds,
		Notifier:  notify,
	})
	graphSvc := service.NewGraphService(accountRepo, relationRepo, followStore, service.GraphOptions{
		AllowSelfFollow: cfg.Graph.AllowSelfFollow,
		CountersViaCDC:  cfg.Graph.CountersViaCDC,
	})
	feedSvc := service.NewFeedService(postRepo, pictures, cfg.Feed.PageSize)

	// 8. Kafka CDC consumer (optional)
	var kafkaConsumer *consumer.ConfluentConsumer
	if cfg.Kafka.Enabled && followStore != nil {
		kc, err := consumer.NewConfluentConsumer(cfg.Kafka.Config, graphSvc)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka consumer, CDC updates disabled")
		} else if err := kc.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to start kafka consumer")
		} else {
			kafkaConsumer = kc
		}
	}
	if cfg.Graph.CountersViaCDC && kafkaConsumer == nil {
		logger.Warn().Msg("graph.counters_via_cdc is set but no CDC consumer runs; cached counts rely on the reconciler")
	}

	// 9. Reconciler
	var rec *reconciler.Reconciler
	if followStore != nil {
		rec = reconciler.New(followStore, relationRepo, cfg.Reconciler)
		rec.Start(ctx)
		logger.Info().Dur("interval", cfg.Reconciler.Interval).Int("top_n", cfg.Reconciler.TopN).Msg("reconciler started")
	}

	// 10. Access tokens
	jwtManager, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create jwt manager")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("auth.jwt_secret not set; using a random key, tokens will not survive a restart")
	}
	cleanupEvery := cfg.Auth.TokenTTL
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	go func() {
		ticker := time.NewTicker(cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				jwtManager.CleanupExpiredRevocations()
			}
		}
	}()

	// 11. Setup Gin router + HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	r.MaxMultipartMemory = domain.PictureMaxBytes

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	if local, ok := pictures.(*storage.LocalStorage); ok && cfg.Storage.Local.PublicURL != "" {
		r.Static(cfg.Storage.Local.PublicURL, local.BasePath())
	}

	handler.NewHandler(accountSvc, graphSvc, feedSvc, jwtManager, middleware.NewAuthMiddleware(jwtManager), handler.Options{
		RememberCookieTTL: cfg.Auth.RememberCookieTTL,
		SecureCookies:     cfg.App.Env == "production",
	}).RegisterRoutes(r)

	addr := cfg.Server.Address()
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info().Str("addr", addr).Msg("feed service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// 12. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		cancel()

		if kafkaConsumer != nil {
			if err := kafkaConsumer.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing kafka consumer")
			}
		}

		if rec != nil {
			rec.Stop()
			<-rec.Done()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
		}

		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing publisher")
			}
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("feed service stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}
