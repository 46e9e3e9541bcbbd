package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmsas95/medtracker/internal/app"
	"github.com/gmsas95/medtracker/internal/cli"
	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/store"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() { cli.PrintHelp(os.Stderr) }
	flag.Parse()

	args := flag.Args()
	command := "help"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "help", "--help", "-h":
		cli.PrintHelp(os.Stdout)
		return 0
	case "version", "--version", "-v":
		fmt.Printf("MedTracker version %s\n", version)
		return 0
	}
	cli.Version = version

	serve := command == "serve" || command == "server"
	application := initApp(serve)
	defer application.Store.Close()
	defer application.Logger.Sync()

	if serve {
		application.RunServer()
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cli.NewPrinter(os.Stdout, cli.IsTerminal(os.Stdout))
	if err := cli.New(application.Service, application.Config, out, os.Stderr).Run(ctx, command, args); err != nil {
		if !errors.Is(err, cli.ErrUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func initApp(serve bool) *app.App {
	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg, serve)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if serve {
		logger.Info("Starting MedTracker",
			zap.String("version", version),
			zap.String("data_dir", cfg.Storage.DataDir),
		)
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	application, err := app.New(cfg, st, logger, version)
	if err != nil {
		st.Close()
		logger.Fatal("Failed to initialize app", zap.Error(err))
	}
	return application
}

// newLogger builds the zap preset selected by log.production. One-shot
// commands only log warnings unless log.level says otherwise.
func newLogger(cfg *config.Config, serve bool) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Log.Production {
		zcfg = zap.NewProductionConfig()
	}

	level := cfg.Log.Level
	if level == "" {
		level = "info"
		if !serve {
			level = "warn"
		}
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}
