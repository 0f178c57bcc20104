package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/home-express/finance-core/internal/app"
	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/scheduler"
	"github.com/home-express/finance-core/internal/services"
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
	logger.Info("starting finance scheduler", "version", version, "commit", commit, "date", date)

	db, err := app.ConnectPostgres(cfg)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := app.ConnectRedis(cfg, "scheduler")
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

	// sweeps only create PENDING batches, dispatch stays with the api
	var dispatcher services.Dispatcher
	svc := app.Build(db, notifier, dispatcher, cfg)

	var lock scheduler.Lock
	if redisAdap != nil {
		lock = scheduler.NewRedisLock(redisAdap)
	} else {
		logger.Warn("redis not configured, scheduler locks are process local")
	}
	s := scheduler.New(lock, cfg.SchedulerLockTTL)
	for _, job := range []scheduler.Job{
		scheduler.AutoSettleJob(svc.Settlements, cfg.AutoSettleInterval),
		scheduler.AutoSweepJob(svc.Payouts, cfg.AutoSweepInterval, cfg.AutoSweepMinBalanceVND),
		scheduler.ReconcileJob(svc.Wallets, cfg.ReconcileInterval),
	} {
		if err := s.Register(job); err != nil {
			logger.Error("failed to register job", "job", job.Name, "error", err)
			return
		}
	}

	// --run-once=<job> runs a single job and exits, for cron or manual backfills
	if name := runOnceArg(); name != "" {
		if err := s.RunOnce(context.Background(), name); err != nil {
			logger.Error("job failed", "job", name, "error", err)
			os.Exit(1)
		}
		return
	}

	app.StartMetrics(cfg)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	s.Start()
	logger.Info("scheduler running", "jobs", s.Jobs())

	<-c
	s.Stop()
}

func runOnceArg() string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, "--run-once=") {
			return strings.TrimPrefix(v, "--run-once=")
		}
	}
	return ""
}
