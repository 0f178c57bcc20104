package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/home-express/finance-core/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every env driven setting of the finance core. Nothing else
// should read the environment directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=finance_core"`
	AppDebug            bool   `env:"APP_DEBUG,default=true"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`

	HttpListenAddr            string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpServerReadTimeout     time.Duration `env:"HTTP_SERVER_READ_TIMEOUT,default=5s"`
	HttpServerWriteTimeout    time.Duration `env:"HTTP_SERVER_WRITE_TIMEOUT,default=5s"`
	HttpRequestTimeout        time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=15s"`
	HttpServerReadBufferSize  int           `env:"HTTP_SERVER_READ_BUFFER_SIZE,default=16384"`
	HttpServerWriteBufferSize int           `env:"HTTP_SERVER_WRITE_BUFFER_SIZE,default=16384"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	PostgresSSLMode       string `env:"POSTGRES_SSL_MODE,default=disable"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=finance:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=finance"`

	LogLevel string `env:"LOG_LEVEL,default=info"`

	// Business rules. Rates are basis points (1/100 of a percent).
	DepositPercentBps        int64  `env:"DEPOSIT_PERCENT_BPS,default=3000"`
	DefaultCommissionRateBps int64  `env:"DEFAULT_COMMISSION_RATE_BPS,default=1000"`
	GatewayFeeRateBps        int64  `env:"GATEWAY_FEE_RATE_BPS,default=0"`
	GatewayFeeFixedVND       int64  `env:"GATEWAY_FEE_FIXED_VND,default=0"`
	PayoutMaxRetries         int    `env:"PAYOUT_MAX_RETRIES,default=3"`
	PayoutDefaultFailure     string `env:"PAYOUT_DEFAULT_FAILURE_REASON,default=Payout failed"`

	AutoSettleInterval     time.Duration `env:"AUTO_SETTLE_INTERVAL,default=1h"`
	AutoSettleAfter        time.Duration `env:"AUTO_SETTLE_AFTER,default=48h"`
	AutoSweepInterval      time.Duration `env:"AUTO_SWEEP_INTERVAL,default=168h"`
	AutoSweepMinBalanceVND int64         `env:"AUTO_SWEEP_MIN_BALANCE_VND,default=500000"`
	ReconcileInterval      time.Duration `env:"RECONCILE_INTERVAL,default=24h"`
	SchedulerLockTTL       time.Duration `env:"SCHEDULER_LOCK_TTL,default=10m"`
	SchedulerBatchLimit    int           `env:"SCHEDULER_BATCH_LIMIT,default=500"`

	EventStream       string `env:"EVENT_STREAM,default=finance-events"`
	EventStreamMaxLen int64  `env:"EVENT_STREAM_MAX_LEN,default=100000"`
	EventWorkers      int    `env:"EVENT_WORKERS,default=2"`
	EventBuffer       int    `env:"EVENT_BUFFER,default=1024"`

	BankPrimaryUrl   string        `env:"BANK_PRIMARY_URL"`
	BankSecondaryUrl string        `env:"BANK_SECONDARY_URL"`
	BankTimeout      time.Duration `env:"BANK_TIMEOUT,default=10s"`
	BankMaxRetries   int           `env:"BANK_MAX_RETRIES,default=2"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the global configuration. Tests use it instead of Load.
func Set(c *Config) {
	config = c
}

// Default returns the configuration with every default applied and no env read.
func Default() *Config {
	c := &Config{}
	_ = env.Unmarshal(env.EnvSet{}, c)
	return c
}
