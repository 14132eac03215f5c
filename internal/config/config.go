package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

type Config struct {
	DatabaseURL string        `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret   string        `env:"JWT_SECRET,required,notEmpty"`
	JWTExpiry   time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	Port        int           `env:"PORT" envDefault:"8080"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string        `env:"APP_ENV" envDefault:"production"`

	PlatformAccountID uuid.UUID `env:"PLATFORM_ACCOUNT_ID" envDefault:"00000000-0000-0000-0000-000000000001"`

	// LedgerURL selects the remote ledger. Empty means balances are adjusted
	// in Postgres directly.
	LedgerURL               string        `env:"LEDGER_URL"`
	LedgerTimeout           time.Duration `env:"LEDGER_TIMEOUT" envDefault:"5s"`
	LedgerBreakerFailures   uint32        `env:"LEDGER_BREAKER_FAILURES" envDefault:"5"`
	LedgerBreakerOpenPeriod time.Duration `env:"LEDGER_BREAKER_OPEN_PERIOD" envDefault:"30s"`

	RedisURL                string `env:"REDIS_URL"`
	RedeemAttemptsPerMinute int    `env:"REDEEM_ATTEMPTS_PER_MINUTE" envDefault:"5"`

	RabbitMQURL    string `env:"RABBITMQ_URL"`
	EventsExchange string `env:"EVENTS_EXCHANGE" envDefault:"mobile_money.transactions"`

	WithdrawalCodeTTL time.Duration `env:"WITHDRAWAL_CODE_TTL" envDefault:"5m"`
	BatchMaxItems     int           `env:"BATCH_MAX_ITEMS" envDefault:"500"`

	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 1m"`
	StuckOperationAge time.Duration `env:"STUCK_OPERATION_AGE" envDefault:"10m"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.PlatformAccountID == uuid.Nil {
		return nil, fmt.Errorf("config.Load: PLATFORM_ACCOUNT_ID must not be the nil uuid")
	}
	return &cfg, nil
}
