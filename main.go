package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"studyboard/api"
	"studyboard/board"
	"studyboard/config"
	"studyboard/storage"
	"studyboard/subscription"
)

type redisPinger struct{ rc *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rc.Ping(ctx).Err() }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())))
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("shutdown tracer provider")
		}
	}()

	var (
		backend storage.Backend
		health  []api.Pinger
	)
	switch cfg.Backend {
	case config.BackendTables:
		backend, err = storage.NewTables(cfg.ConnectionString, cfg.TasksTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
	case config.BackendPostgres:
		pg, err := storage.NewPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		defer pg.Close()
		backend = pg
		health = append(health, pg)
	default:
		log.Warn("using in-memory storage; tasks are lost on restart")
		backend = storage.NewMemory()
	}

	broker := subscription.NewBroker()
	var pubs subscription.Multi
	if cfg.RedisConnection != "" {
		opts, err := config.RedisOptions(cfg.RedisConnection)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(opts)
		defer rc.Close()
		backend = storage.NewCache(backend, rc, cfg.BoardCacheTTL)
		// Every replica listens on the channel, including the one that published.
		pubs = append(pubs, subscription.NewRedisPublisher(rc, cfg.UpdatesChannel))
		go subscription.SubscribeUpdates(ctx, logger.WithField("component", "updates"), rc, cfg.UpdatesChannel, broker.Notify)
		health = append(health, redisPinger{rc: rc})
	} else {
		pubs = append(pubs, broker)
	}
	if cfg.EventsQueue != "" {
		q, err := storage.NewEventQueue(cfg.ConnectionString, cfg.EventsQueue)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		pubs = append(pubs, q)
	}

	svc := board.NewService(backend, pubs, board.WithMaxAttempts(cfg.MaxMoveAttempts))

	var auth *api.Auth
	if cfg.AuthTestMode {
		log.Warn("auth test mode: accepting HS256 tokens signed with TEST_JWT_SECRET")
		auth = api.NewTestAuth([]byte(cfg.TestJWTSecret), cfg.Auth0Audience, cfg.Issuer())
	} else {
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				log.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(jwks, cfg.Auth0Audience, cfg.Issuer(), 0)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(echoprometheus.NewMiddleware("studyboard"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, svc, auth, broker, api.Options{
		Logger:    logger,
		Heartbeat: cfg.StreamHeartbeat,
		Health:    health,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()
	log.WithFields(log.Fields{"port": cfg.Port, "backend": cfg.Backend}).Info("board api listening")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
}
