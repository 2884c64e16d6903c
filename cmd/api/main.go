package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"keystile.org/internal/auth"
	"keystile.org/internal/config"
	"keystile.org/internal/fieldcrypt"
	"keystile.org/internal/httpapi"
	"keystile.org/internal/obs"
	"keystile.org/internal/session"
	"keystile.org/internal/store/pg"
	"keystile.org/internal/throttle"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// логгера ещё нет
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := obs.NewLogger(!cfg.Production())
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)

	// Инициализация observability (регистрация метрик)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	cipher, err := fieldcrypt.New(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenCodec(cfg.TokenSecret)
	if err != nil {
		return err
	}
	cookies, err := session.NewCookieCodec(cfg.SessionSecret, cfg.Production())
	if err != nil {
		return err
	}

	probe := httpapi.ReadyProbe{}

	// Пользователи: Postgres, если задан DSN, иначе память
	var users auth.UserStore
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		users = store
		probe.DB = store.DB()
		logger.Info("user store", zap.String("backend", "postgres"))
	} else {
		users = auth.NewMemoryUserStore()
		logger.Warn("user store", zap.String("backend", "memory"))
	}

	// Сессии и лимитер входа: Redis, если задан адрес, иначе память
	var (
		sessions auth.SessionStore
		limiter  throttle.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb)
		limiter = throttle.NewRedis(rdb, throttle.LoginPolicy, time.Now)
		probe.Redis = rdb
		logger.Info("session store", zap.String("backend", "redis"), zap.String("addr", cfg.RedisAddr))
	} else {
		mem := session.NewMemoryStore()
		memLimiter := throttle.NewMemory(throttle.LoginPolicy, time.Now)
		sessions = mem
		limiter = memLimiter
		go sweep(ctx, time.Minute, func() {
			mem.Sweep()
			memLimiter.Prune()
		})
		logger.Warn("session store", zap.String("backend", "memory"))
	}

	svc, err := auth.NewService(users, sessions, tokens, cipher)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Deps{
		Service:    svc,
		Gate:       auth.NewGate(sessions, tokens, cipher),
		Sessions:   sessions,
		Cookies:    cookies,
		Throttle:   limiter,
		Ready:      probe,
		Version:    version,
		TrustProxy: cfg.TrustProxy,
		RateBurst:  cfg.RateLimitBurst,
		RatePerSec: cfg.RateLimitRPS,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv = grpc.NewServer()
		health := httpapi.NewHealthServer(probe)
		health.Register(grpcSrv)
		go health.Run(ctx, 10*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errc <- err
			}
		}()
	}

	logger.Info("starting keystile-api",
		zap.String("version", version),
		zap.String("addr", cfg.Addr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("env", cfg.Env),
		zap.Bool("secure_cookies", cfg.Production()),
	)

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func sweep(ctx context.Context, every time.Duration, fn func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
