package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eventtix/ticket-service/internal/catalog"
	"github.com/eventtix/ticket-service/internal/config"
	"github.com/eventtix/ticket-service/internal/database"
	"github.com/eventtix/ticket-service/internal/handler"
	"github.com/eventtix/ticket-service/internal/inventory"
	"github.com/eventtix/ticket-service/internal/queue"
	"github.com/eventtix/ticket-service/internal/repository"
	"github.com/eventtix/ticket-service/internal/router"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.WithError(err).Fatal("open database")
	}
	defer db.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logger.WithError(err).Fatal("apply schema")
	}

	// Redis is optional: without it rate limiting and catalog caching are
	// disabled but every endpoint keeps working.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and catalog cache disabled")
	}

	publisher := queue.NewClient(cfg.AMQPURL, cfg.PublishRetries, cfg.PublishBackoff, logger)
	if err := publisher.Connect(); err != nil {
		// Publishes redial on demand, so startup continues.
		logger.WithError(err).Warn("broker unavailable at startup")
	}
	defer publisher.Close()

	inventories := repository.NewInventoryRepo(db, logger)
	tickets := repository.NewTicketRepo(db, logger)
	transactions := repository.NewTransactionRepo(db, logger)
	cat := catalog.New(cfg.CatalogBaseURL, cfg.CatalogTimeout, rdb, cfg.CatalogCacheTTL, logger)

	manager := inventory.NewManager(inventories, tickets, transactions, publisher, logger)
	consumer := queue.NewConsumer(cfg.AMQPURL, manager, logger)
	go consumer.Run(ctx)

	t := handler.NewTicketHandler(inventories, tickets, transactions, cat, publisher, logger,
		cfg.ReservationTTL, cfg.ListDefaultLimit)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	router.Register(e, t, db, rdb, cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		logger.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil {
			logger.WithError(err).Info("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
}
