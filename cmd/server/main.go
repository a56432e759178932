package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/canteen-voting/internal/config"
	"github.com/iliyamo/canteen-voting/internal/database"
	"github.com/iliyamo/canteen-voting/internal/handler"
	"github.com/iliyamo/canteen-voting/internal/logging"
	"github.com/iliyamo/canteen-voting/internal/middleware"
	"github.com/iliyamo/canteen-voting/internal/queue"
	"github.com/iliyamo/canteen-voting/internal/repository"
	"github.com/iliyamo/canteen-voting/internal/router"
	"github.com/iliyamo/canteen-voting/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger().WithError(err).Fatal("load config")
	}
	log, err := logging.Setup(cfg.Env, cfg.LogLevel)
	if err != nil {
		logging.Logger().WithError(err).Fatal("setup logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.DBDriver).Fatal("open database")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.WithError(err).Warn("redis unavailable; caching and rate limiting disabled")
		rdb = nil
	}
	if rdb != nil {
		defer func(c *redis.Client) { _ = c.Close() }(rdb)
	}
	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	votes := service.NewVoteService(db, users, repository.NewVoteRepo(db), cfg.VotingTZ, logging.Component("vote"))
	if cacheCfg.Enabled {
		votes.Cache = service.NewResultsCache(rdb, cacheCfg.Prefix, cacheCfg.ResultsTTL)
	}
	votes.Publisher = service.NewPublisher(cfg.AMQPURL)

	if cfg.AuditConsumer && cfg.AMQPURL != "" {
		consumer := queue.NewAuditConsumer(cfg.AMQPURL, cfg.AuditLogDir, logging.Component("audit"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("audit consumer stopped")
			}
		}()
	}

	httpLog := logging.Component("http")
	limiter := middleware.NewTokenBucket(rlCfg, rdb, logging.Component("ratelimit"))
	respCache := middleware.NewRedisCache(cacheCfg, rdb, logging.Component("cache"))

	e := router.New(cfg, httpLog)
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, httpLog), cfg.JWTSecret, limiter)
	router.RegisterUsers(e, handler.NewUserHandler(users, cfg.RequestTimeout, httpLog), cfg.JWTSecret, respCache)
	router.RegisterVote(e, handler.NewVoteHandler(votes, cfg.RequestTimeout, httpLog), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logging.Fields{"addr": addr, "db": cfg.DBDriver, "tz": cfg.VotingTZ.String()}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}
