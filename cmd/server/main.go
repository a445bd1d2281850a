package main // Entry point package

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-booking-core/internal/app"
	"github.com/iliyamo/cinema-booking-core/internal/config"
	"github.com/iliyamo/cinema-booking-core/internal/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file, using process environment")
	}

	cfg, err := config.Load() // Load environment config
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	logrus.WithFields(logrus.Fields{
		"env":     cfg.Env,
		"backend": cfg.StoreBackend,
		"catalog": cfg.CatalogSource,
	}).Info("booking core starting")

	if err := a.Run(ctx); err != nil {
		logrus.WithError(err).Error("server stopped with error")
		return
	}
	logrus.Info("server stopped")
}
