// Command cb-server starts the campus board gRPC API and the admin HTTP server.
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

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/campus-board/internal/config"
	"github.com/and161185/campus-board/internal/limiter"
	"github.com/and161185/campus-board/internal/metrics"
	"github.com/and161185/campus-board/internal/migrate"
	"github.com/and161185/campus-board/internal/ranking"
	"github.com/and161185/campus-board/internal/repository"
	"github.com/and161185/campus-board/internal/repository/postgres"
	"github.com/and161185/campus-board/internal/repository/sqlite"
	grpcserver "github.com/and161185/campus-board/internal/server/grpc"
	httpserver "github.com/and161185/campus-board/internal/server/http"
	"github.com/and161185/campus-board/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// Login lockout policy for moderators.
const (
	loginWindow   = 15 * time.Minute
	loginMaxFails = 5
	loginBlockFor = 15 * time.Minute
)

// storage bundles the repositories and login limiter of one backend.
type storage struct {
	content repository.ContentRepository
	mods    repository.ModeratorRepository
	lim     limiter.Limiter
	sweeper interface{ Sweep() int } // nil when the limiter needs no sweeping
	close   func()
}

// openStorage picks the backend from the DSN scheme: Postgres (migrated with
// goose) or a local SQLite file.
func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	switch cfg.Backend() {
	case config.BackendSQLite:
		st, err := sqlite.Open(cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		mem := limiter.NewMemory(loginWindow, loginMaxFails, loginBlockFor)
		return &storage{
			content: st.Content(),
			mods:    st.Moderators(),
			lim:     mem,
			sweeper: mem,
			close:   func() { _ = st.Close() },
		}, nil
	default:
		if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
			return nil, err
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &storage{
			content: postgres.NewContentRepo(db),
			mods:    postgres.NewModeratorRepo(db),
			lim:     limiter.NewPGWithQuerier(db.Pool, loginWindow, loginMaxFails, loginBlockFor),
			close:   db.Close,
		}, nil
	}
}

// main parses configuration, opens storage, and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("backend", cfg.Backend()),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer st.close()

	m := metrics.New()

	throttle := limiter.NewPostThrottle(cfg.PostRate, cfg.PostBurst, logger)
	var sweepers []interface{ Sweep() int }
	if st.sweeper != nil {
		sweepers = append(sweepers, st.sweeper)
	}
	if err := throttle.Start(cfg.SweepSpec, sweepers...); err != nil {
		logger.Fatal("schedule limiter sweeps", zap.Error(err))
	}
	defer throttle.Stop()

	// Services
	contentSvc := service.NewContentService(st.content, ranking.New(cfg.Gravity), throttle, logger)
	modSvc := service.NewModerationService(st.mods, st.content, []byte(cfg.JWTKey), cfg.ModTTL, st.lim, logger)
	if user, pass, ok := cfg.Bootstrap(); ok {
		if err := modSvc.Bootstrap(ctx, user, pass); err != nil {
			logger.Fatal("bootstrap moderator", zap.Error(err))
		}
	}

	// gRPC server with interceptors and health
	var opts []grpc.ServerOption
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("gRPC without TLS; posting tokens travel in plaintext")
	}
	app := grpcserver.New(contentSvc, m, logger).WithFeedLimit(cfg.FeedLimit)
	gs := grpcserver.NewGRPC(app, opts...)
	if cfg.Dev {
		reflection.Register(gs)
	}

	// Admin HTTP
	hs := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpserver.New(modSvc, m, logger, httpserver.Config{CORSOrigin: cfg.CORSOrigin, Dev: cfg.Dev}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLSCert != ""))
		errCh <- gs.Serve(lis)
	}()
	go func() {
		logger.Info("admin http listening", zap.String("addr", cfg.HTTPAddr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exit = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin http shutdown", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		gs.Stop()
	}

	logger.Info("shutdown complete")
	if exit != 0 {
		throttle.Stop()
		st.close()
		os.Exit(exit)
	}
}
