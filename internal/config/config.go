package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Site     SiteConfig
	Render   RenderConfig
	Indexer  IndexerConfig
	Snapshot SnapshotConfig
	Admin    AdminConfig
	Log      LogConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout        time.Duration
	PoolMaxConns          int32 `validate:"gte=0"`
	PoolMinConns          int32 `validate:"gte=0"`
	PoolMaxConnLifetime   time.Duration
	PoolMaxConnIdleTime   time.Duration
	PoolHealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	TTL      time.Duration `validate:"gt=0"`
}

type SiteConfig struct {
	BaseURL      string        `validate:"required,url"`
	Timeout      time.Duration `validate:"gt=0"`
	RetryTimeout time.Duration `validate:"gt=0"`
}

type RenderConfig struct {
	Enabled     bool
	ExecPath    string
	NavTimeout  time.Duration `validate:"gt=0"`
	WaitTimeout time.Duration `validate:"gt=0"`
	Settle      time.Duration `validate:"gte=0"`
}

type IndexerConfig struct {
	GuildFilter    string        `validate:"required"`
	PostRecheck    time.Duration `validate:"gt=0"`
	ProfileRecheck time.Duration `validate:"gt=0"`
	ItemDelay      time.Duration `validate:"gte=0"`
	RefreshDelay   time.Duration `validate:"gte=0"`
}

type SnapshotConfig struct {
	Pages         int           `validate:"gte=1,lte=50"`
	Top           int           `validate:"gte=1,lte=1000"`
	Budget        time.Duration `validate:"gt=0"`
	FallbackPages int           `validate:"gte=0"`
	Concurrency   int           `validate:"gte=1,lte=32"`
	CacheTTL      time.Duration `validate:"gt=0"`
}

type AdminConfig struct {
	JWTSecret string
	TokenTTL  time.Duration `validate:"gt=0"`
}

type LogConfig struct {
	Level string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Dir   string
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

var validate = validator.New()

func Load() (Config, error) {
	loadDotEnv()

	cfg := Config{}

	var missing []string
	var invalid []string
	req := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	opt := func(key string) string {
		return strings.TrimSpace(os.Getenv(key))
	}
	optDefault := func(key, def string) string {
		if v := opt(key); v != "" {
			return v
		}
		return def
	}
	dur := func(key string, def time.Duration) time.Duration {
		raw := opt(key)
		if raw == "" {
			return def
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return d
	}
	minutes := func(key string, def int) time.Duration {
		raw := opt(key)
		if raw == "" {
			return time.Duration(def) * time.Minute
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			invalid = append(invalid, key)
			return time.Duration(def) * time.Minute
		}
		return time.Duration(n) * time.Minute
	}
	num := func(key string, def int) int {
		raw := opt(key)
		if raw == "" {
			return def
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return n
	}
	flag := func(key string, def bool) bool {
		raw := opt(key)
		if raw == "" {
			return def
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return b
	}

	cfg.App = AppConfig{
		AppName:     req("APP_NAME"),
		Environment: req("APP_ENV"),
		HTTPPort:    req("HTTP_PORT"),
	}

	cfg.Database = DatabaseConfig{
		DBHost:                opt("DB_HOST"),
		DBPort:                opt("DB_PORT"),
		DBName:                opt("DB_NAME"),
		DBUser:                opt("DB_USER"),
		DBPassword:            opt("DB_PASSWORD"),
		DBSSLMode:             optDefault("DB_SSL_MODE", "disable"),
		ConnectTimeout:        dur("DB_CONNECT_TIMEOUT", 5*time.Second),
		PoolMaxConns:          int32(num("DB_POOL_MAX_CONNS", 10)),
		PoolMinConns:          int32(num("DB_POOL_MIN_CONNS", 0)),
		PoolMaxConnLifetime:   dur("DB_POOL_MAX_CONN_LIFETIME", 0),
		PoolMaxConnIdleTime:   dur("DB_POOL_MAX_CONN_IDLE_TIME", 0),
		PoolHealthCheckPeriod: dur("DB_POOL_HEALTH_CHECK_PERIOD", 0),
	}

	cfg.Redis = RedisConfig{
		Host:     optDefault("REDIS_HOST", "localhost"),
		Port:     optDefault("REDIS_PORT", "6379"),
		Password: opt("REDIS_PASSWORD"),
		TTL:      time.Duration(num("REDIS_TTL", 600)) * time.Second,
	}

	cfg.Site = SiteConfig{
		BaseURL:      strings.TrimRight(optDefault("SITE_BASE_URL", "https://dnfm.nexon.com"), "/"),
		Timeout:      dur("FETCH_TIMEOUT", 20*time.Second),
		RetryTimeout: dur("FETCH_RETRY_TIMEOUT", 15*time.Second),
	}

	cfg.Render = RenderConfig{
		Enabled:     flag("RENDER_ENABLED", true),
		ExecPath:    opt("RENDER_EXEC_PATH"),
		NavTimeout:  dur("RENDER_NAV_TIMEOUT", 20*time.Second),
		WaitTimeout: dur("RENDER_WAIT_TIMEOUT", 8*time.Second),
		Settle:      dur("RENDER_SETTLE", 800*time.Millisecond),
	}

	cfg.Indexer = IndexerConfig{
		GuildFilter:    optDefault("GUILD_FILTER", "항마압축파"),
		PostRecheck:    minutes("POST_RECHECK_MINUTES", 1440),
		ProfileRecheck: minutes("PROFILE_RECHECK_MINUTES", 1440),
		ItemDelay:      dur("ITEM_DELAY", 2*time.Second),
		RefreshDelay:   dur("REFRESH_DELAY", 5*time.Second),
	}

	cfg.Snapshot = SnapshotConfig{
		Pages:         num("SNAPSHOT_PAGES", 5),
		Top:           num("SNAPSHOT_TOP", 100),
		Budget:        dur("SNAPSHOT_BUDGET", 8*time.Second),
		FallbackPages: num("SNAPSHOT_FALLBACK_PAGES", 2),
		Concurrency:   num("SNAPSHOT_CONCURRENCY", 6),
		CacheTTL:      dur("SNAPSHOT_CACHE_TTL", 10*time.Minute),
	}

	cfg.Admin = AdminConfig{
		JWTSecret: opt("ADMIN_JWT_SECRET"),
		TokenTTL:  dur("ADMIN_TOKEN_TTL", 24*time.Hour),
	}

	cfg.Log = LogConfig{
		Level: strings.ToLower(optDefault("LOG_LEVEL", "info")),
		Dir:   opt("LOG_DIR"),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks value ranges that env parsing alone cannot enforce.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+"("+fe.Tag()+")")
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

// loadDotEnv loads .env.local then .env; existing variables always win.
func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		_ = godotenv.Load(name)
	}
}
