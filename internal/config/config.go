package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// DatabaseConfig selects the store backend. Driver is "postgres" or "memory".
type DatabaseConfig struct {
	Driver  string
	Migrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Disabled bool
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketExports string
	UseSSL        bool
	Region        string
	PresignTTL    time.Duration
}

type SecurityConfig struct {
	JWTAccessSecret string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	MaxSessions     int
}

type IdentityConfig struct {
	EmailDomain string
	AdminPhones []string
}

type AccessConfig struct {
	MaxBatch        int
	CodeAttempts    int
	IdempotencyTTL  time.Duration
	SweepSchedule   string
	CountdownPeriod time.Duration
	RedeemRate      float64
	RedeemBurst     int
	PortalURL       string
}

type QueueConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	MinIdle       time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	TLS              TLSConfig
	Postgres         PostgresConfig
	Database         DatabaseConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Identity         IdentityConfig
	Access           AccessConfig
	Queue            QueueConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("config: postgres.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.Access.MaxBatch <= 0 {
		return errors.New("config: access.maxbatch must be positive")
	}
	if c.Access.CodeAttempts <= 0 {
		return errors.New("config: access.codeattempts must be positive")
	}
	if c.Environment == "production" && c.Security.JWTAccessSecret == "" {
		return errors.New("config: security.jwtaccesssecret is required in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	// countdown streams hold the connection open, so no write deadline by default
	v.SetDefault("http.writetimeout", "0s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.disabled", false)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketexports", "portal-exports")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presignttl", "1h")

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "720h") // 30 days
	v.SetDefault("security.maxsessions", 10)

	v.SetDefault("identity.emaildomain", "wifi.tz")
	v.SetDefault("identity.adminphones", []string{})

	v.SetDefault("access.maxbatch", 100)
	v.SetDefault("access.codeattempts", 5)
	v.SetDefault("access.idempotencyttl", "24h")
	v.SetDefault("access.sweepschedule", "0 * * * * *")
	v.SetDefault("access.countdownperiod", "60s")
	v.SetDefault("access.redeemrate", 1.0)
	v.SetDefault("access.redeemburst", 5)
	v.SetDefault("access.portalurl", "")

	v.SetDefault("queue.stream", "portal:tasks")
	v.SetDefault("queue.group", "portal-workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.claiminterval", "10s")
	v.SetDefault("queue.minidle", "2m")

	v.SetDefault("logging.level", "")

	v.SetDefault("allowcorsorigins", []string{"*"})
}
