package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/home-express/finance-core/internal/app"
	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/handlers"
	"github.com/home-express/finance-core/internal/services"
	xhttp "github.com/home-express/finance-core/pkg/http"
	"github.com/home-express/finance-core/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(app.EnvPathFromArgs(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.SetLevel(cfg.LogLevel)
	logger.Info("starting finance api", "version", version, "commit", commit, "date", date)

	// transport (tcp for now)
	opt := xhttp.DefaultServerOption.Tuned(xhttp.Tuning{
		ReadTimeout:     cfg.HttpServerReadTimeout,
		WriteTimeout:    cfg.HttpServerWriteTimeout,
		ReadBufferSize:  cfg.HttpServerReadBufferSize,
		WriteBufferSize: cfg.HttpServerWriteBufferSize,
	})
	opt.Name = cfg.AppName
	s := xhttp.NewServer(opt)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))

	db, err := app.ConnectPostgres(cfg)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := app.ConnectRedis(cfg, "default")
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	notifier, stopNotifier, err := app.NewNotifier(redisAdap, cfg)
	if err != nil {
		logger.Error("failed creating event publisher", "error", err)
		return
	}
	defer stopNotifier()

	bank, err := app.NewBankClient(cfg)
	if err != nil {
		// payouts can still be batched and settled by callback
		logger.Warn("bank client disabled, payouts will not be dispatched", "error", err)
	}
	var dispatcher services.Dispatcher
	if bank != nil {
		defer bank.Close()
		dispatcher = bank
	}
	svc := app.Build(db, notifier, dispatcher, cfg)

	app.StartMetrics(cfg)

	g := s.Router.Group("/api/v1")
	handlers.RegisterBookingRoutes(g, handlers.NewBookingHandler(svc.Bookings))
	handlers.RegisterPaymentRoutes(g, handlers.NewPaymentHandler(svc.Payments))
	handlers.RegisterSettlementRoutes(g, handlers.NewSettlementHandler(svc.Settlements))
	handlers.RegisterPayoutRoutes(g, handlers.NewPayoutHandler(svc.Payouts))
	handlers.RegisterWalletRoutes(g, handlers.NewWalletHandler(svc.Wallets))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(app.Health(db, redisAdap)))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	logger.Info("shutting down finance api")
	s.Shutdown()
}
