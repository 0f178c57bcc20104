package app

import (
	"context"
	"os"
	"strings"

	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/events"
	gateway "github.com/home-express/finance-core/internal/gateways"
	"github.com/home-express/finance-core/internal/repository"
	"github.com/home-express/finance-core/internal/services"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/home-express/finance-core/pkg/pg"
	"github.com/home-express/finance-core/pkg/prom"
	"github.com/home-express/finance-core/pkg/redis"
)

// Services is the wired finance core shared by the api and scheduler binaries.
type Services struct {
	Commission  *services.CommissionService
	Wallets     *services.WalletService
	Settlements *services.SettlementService
	Bookings    *services.BookingService
	Payments    *services.PaymentService
	Payouts     *services.PayoutService
}

// Build wires repositories and services over one database handle.
func Build(db *pg.DB, notifier services.Notifier, dispatcher services.Dispatcher, cfg *config.Config) *Services {
	bookingRepo := repository.NewBookingRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	transportRepo := repository.NewTransportRepository(db)

	s := &Services{}
	s.Commission = services.NewCommissionService(transportRepo, cfg)
	s.Wallets = services.NewWalletService(db, walletRepo, services.NewLedgerSources(settlementRepo, payoutRepo))
	s.Settlements = services.NewSettlementService(db, bookingRepo, paymentRepo, settlementRepo, s.Commission, s.Wallets, notifier, cfg)
	s.Bookings = services.NewBookingService(db, bookingRepo, paymentRepo, s.Settlements, notifier, cfg)
	s.Payments = services.NewPaymentService(db, paymentRepo, s.Bookings, s.Settlements, s.Commission, notifier)
	s.Payouts = services.NewPayoutService(db, payoutRepo, settlementRepo, transportRepo, s.Wallets, dispatcher, notifier, cfg)
	return s
}

func ConnectPostgres(cfg *config.Config) (*pg.DB, error) {
	readConf := pg.Config{
		User:     cfg.PostgresReadUser,
		Host:     cfg.PostgresReadHost,
		Port:     cfg.PostgresReadPort,
		Password: cfg.PostgresReadPassword,
		Database: cfg.PostgresReadDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	}
	return pg.CreateReadWrite(readConf, WriteConfig(cfg), cfg.AppEnv == "dev")
}

func WriteConfig(cfg *config.Config) pg.Config {
	return pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
		SSLMode:  cfg.PostgresSSLMode,
	}
}

// ConnectRedis returns a nil adapter when no address is configured.
func ConnectRedis(cfg *config.Config, name string) (redis.RedisAdapter, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	return redis.NewRedisAdapter(name, cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: name,
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
}

// NewNotifier publishes to the event stream when redis is available and logs
// events otherwise. The returned stop func drains the publisher.
func NewNotifier(adapter redis.RedisAdapter, cfg *config.Config) (services.Notifier, func(), error) {
	if adapter == nil {
		logger.Warn("redis not configured, finance events are only logged")
		return events.Logger{}, func() {}, nil
	}
	p, err := events.NewStreamPublisher(adapter, events.StreamConfig{
		Stream:  cfg.EventStream,
		MaxLen:  cfg.EventStreamMaxLen,
		Workers: cfg.EventWorkers,
		Buffer:  cfg.EventBuffer,
	})
	if err != nil {
		return nil, nil, err
	}
	p.Start()
	return p, p.Stop, nil
}

// NewBankClient builds the payout dispatcher over the configured bank endpoints.
func NewBankClient(cfg *config.Config) (*gateway.Client, error) {
	return gateway.NewClient(&gateway.Config{
		Providers: []gateway.ProviderConfig{
			{Name: "primary", URL: cfg.BankPrimaryUrl, Priority: 1},
			{Name: "secondary", URL: cfg.BankSecondaryUrl, Priority: 2},
		},
		Timeout:                 cfg.BankTimeout,
		MaxRetries:              cfg.BankMaxRetries,
		MaxConns:                64,
		HealthCheckInterval:     cfg.BankTimeout * 3,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   cfg.BankTimeout * 6,
	})
}

// Health reports on postgres and, when configured, redis.
func Health(db *pg.DB, adapter redis.RedisAdapter) *services.HealthService {
	deps := map[string]services.Pinger{"postgres": db}
	if adapter != nil {
		deps["redis"] = services.PingFunc(func(context.Context) error { return adapter.Ping() })
	}
	return services.NewHealthService(deps)
}

// StartMetrics enables prometheus collectors and serves them on the debug address.
func StartMetrics(cfg *config.Config) {
	if cfg.AppDebugMetricsAddr == "" {
		return
	}
	host, _ := os.Hostname()
	if err := prom.Create(host, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed creating metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.AppDebugMetricsAddr, cfg.AppDebugMetricsURI)
}

// EnvPathFromArgs returns the value of a --env= flag, or "" when absent or unreadable.
func EnvPathFromArgs(args []string) string {
	for _, v := range args {
		if strings.HasPrefix(v, "--env=") {
			path := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(path); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return path
		}
	}
	return ""
}
