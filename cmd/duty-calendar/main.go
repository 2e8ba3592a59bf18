package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/klabast/wb-services/duty-calendar/internal/app"
	"github.com/klabast/wb-services/duty-calendar/internal/assignment"
	"github.com/klabast/wb-services/duty-calendar/internal/commands"
	"github.com/klabast/wb-services/duty-calendar/internal/logging"
	"github.com/klabast/wb-services/duty-calendar/internal/roster"
	"github.com/klabast/wb-services/duty-calendar/internal/storage"
)

func main() {
	// Check for subcommands
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		commands.HashPassword(os.Args[2:])
		return
	}

	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	edit := flag.Bool("edit", false, "Enable edit mode (default is serve mode)")
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml or ./config/config.yaml)")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "edit":
			cfg.Server.EditMode = *edit
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	blobs, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer blobs.Close()

	ctx := context.Background()
	students, err := roster.Load(ctx, blobs, logger)
	if err != nil {
		logger.Fatal("failed to load roster", zap.Error(err))
	}
	assignments, err := assignment.Load(ctx, blobs, logger)
	if err != nil {
		logger.Fatal("failed to load assignments", zap.Error(err))
	}

	auth := &app.Auth{}
	if cfg.Server.EditMode {
		path, err := app.ResolveAuthFile(cfg.Auth.File)
		if err != nil {
			logger.Fatal("failed to resolve auth file", zap.Error(err))
		}
		if auth, err = app.LoadAuth(path, logger); err != nil {
			logger.Fatal("failed to load auth credentials", zap.Error(err))
		}
	}

	server := app.NewServer(cfg, students, assignments, auth, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting duty calendar",
			zap.String("mode", cfg.Mode()),
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("path", cfg.Storage.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
