// Package main is the entry point of the application
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tecu23/chessroom/internal/auth"
	"github.com/tecu23/chessroom/pkg/archive"
	"github.com/tecu23/chessroom/pkg/config"
	"github.com/tecu23/chessroom/pkg/events"
	"github.com/tecu23/chessroom/pkg/manager"
	"github.com/tecu23/chessroom/pkg/repository"
	"github.com/tecu23/chessroom/pkg/rules"
	"github.com/tecu23/chessroom/pkg/server"
	"github.com/tecu23/chessroom/pkg/stats"
)

// App encapsulates global dependencies
type application struct {
	Auth      *auth.APIKeyAuth
	Tokens    *auth.TokenVerifier
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Manager   *manager.Manager
	Hub       *server.Hub

	Stats   stats.Reader
	Archive *archive.RedisArchive // nil when no Redis is configured

	closers []func()

	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "", "server port (overrides config)")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// A missing .env is normal outside development
	envErr := godotenv.Load()

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	if *debug {
		cfg.Debug = true
	}
	if *port != "" {
		cfg.Port = *port
	}

	// Initialize logger
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("loading env error", zap.Error(envErr))
	}

	// Initialize event publisher
	publisher := events.NewPublisher()

	// Initialize repository
	repository := repository.NewInMemoryRepository(logger)

	// Initialize room manager
	rm := manager.NewManager(repository, rules.NewChessOracle(), publisher, cfg.Room, logger)

	hub := server.NewHub(rm, logger)
	rm.AttachBroadcaster(hub)

	app := &application{
		Auth:      auth.NewAPIKeyAuth(cfg.APIKeys),
		Tokens:    auth.NewTokenVerifier(cfg.JWTSecret),
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Manager:   rm,
		Hub:       hub,
		StartTime: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.initStats(ctx); err != nil {
		logger.Fatal("initialize stats error", zap.Error(err))
	}
	if err := app.initArchive(ctx); err != nil {
		logger.Fatal("initialize archive error", zap.Error(err))
	}

	go app.Hub.Run()

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

// initStats wires the rating store, falling back to a no-op sink
func (app *application) initStats(ctx context.Context) error {
	var sink stats.Sink = stats.NopSink{}
	app.Stats = stats.NopSink{}

	if app.Config.DatabaseURL != "" {
		pg, err := stats.NewPostgresSink(ctx, app.Config.DatabaseURL)
		if err != nil {
			return err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return err
		}
		sink, app.Stats = pg, pg
		app.closers = append(app.closers, pg.Close)
		app.Logger.Info("player stats stored in postgres")
	}

	stats.NewRecorder(sink, app.Logger, 5*time.Second).Subscribe(app.Publisher)
	return nil
}

func (app *application) initArchive(ctx context.Context) error {
	if app.Config.RedisURL == "" {
		return nil
	}

	a, err := archive.NewRedisArchive(ctx, app.Config.RedisURL, app.Config.Archive, app.Logger)
	if err != nil {
		return err
	}
	a.Subscribe(app.Publisher)
	app.Archive = a
	app.closers = append(app.closers, func() {
		if err := a.Close(); err != nil {
			app.Logger.Warn("closing archive", zap.Error(err))
		}
	})
	app.Logger.Info("finished games archived in redis")
	return nil
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	// Stop accepting client traffic first, then stop the rooms
	if app.Hub != nil {
		app.Hub.Shutdown()
	}
	if app.Manager != nil {
		app.Manager.Shutdown()
	}

	// Let pending stats and archive writes land before closing their stores
	app.Publisher.Wait()
	for _, closeFn := range app.closers {
		closeFn()
	}

	app.Logger.Info("All components shut down successfully")
}
