package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"voxelgate.ai/internal/observability"
	"voxelgate.ai/internal/sim/tuning"
	"voxelgate.ai/internal/sim/voxel"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to teleport.yaml (default: <configs>/teleport.yaml)")
		worldPath  = flag.String("world", "", "path to world.yaml (default: <configs>/world.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "keep markers and region forces in memory only")
		logLevel   = flag.String("log_level", "info", "log level")
		logFormat  = flag.String("log_format", "console", "console or json")
	)
	flag.Parse()

	logger := observability.InitLogger("voxelgate", *logLevel, *logFormat)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "teleport.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal().Err(err).Str("path", tp).Msg("load tuning")
		}
		logger.Warn().Str("path", tp).Msg("tuning not found; using defaults")
		tune = tuning.Default()
	}

	wp := strings.TrimSpace(*worldPath)
	if wp == "" {
		wp = filepath.Join(*configDir, "world.yaml")
	}
	layout, err := voxel.LoadLayout(wp)
	if err != nil {
		logger.Fatal().Err(err).Str("path", wp).Msg("load world layout")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp(ctx, appConfig{
		DataDir:   *dataDir,
		DisableDB: *disableDB,
		Tuning:    tune,
		Layout:    layout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build runtime")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.manager.Run(gctx) })
	g.Go(func() error {
		logger.Info().Str("addr", *addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped")
		return
	}
	logger.Info().Uint64("tick", a.manager.GlobalTicks()).Msg("server stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
