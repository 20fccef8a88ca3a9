package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"

	"github.com/scwf/prod-scout/internal/app"
	"github.com/scwf/prod-scout/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.ini", "path to the INI configuration file")
	once := flag.Bool("once", false, "run a single batch and exit instead of scheduling")
	flag.Parse()

	log := logger.New(logger.Opts{})

	var exitCode *app.ExitCode
	fxApp := fx.New(
		fx.Logger(log),
		fx.Supply(app.ConfigPath(*configPath), app.Once(*once)),
		app.Module,
		fx.Populate(&exitCode),
	)

	if err := fxApp.Start(context.Background()); err != nil {
		log.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}

	if *once {
		if err := fxApp.Stop(context.Background()); err != nil {
			log.Error("failed to stop pipeline", "error", err)
			os.Exit(1)
		}
		os.Exit(exitCode.Get())
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	// fxApp.Stop runs every OnStop hook, including the one that cancels
	// app.RootContext, so an in-flight scheduler run observes cancellation.
	if err := fxApp.Stop(context.Background()); err != nil {
		log.Error("failed to stop pipeline", "error", err)
		os.Exit(1)
	}
}
