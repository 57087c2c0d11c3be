package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/roombooking/internal/logging"
)

const envPrefix = "ROOMBOOKING_"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures the settings of the room booking service. It is built once
// at startup and passed by value.
type Config struct {
	Environment        string
	HTTPPort           int
	DBDriver           string
	SQLitePath         string
	PostgresDSN        string
	SessionSecret      string
	SessionTTL         time.Duration
	PrincipalCacheTTL  time.Duration
	DefaultTimezone    *time.Location
	CORSAllowedOrigins []string
	LoginRatePerSec    float64
	LoginRateBurst     int
	Seed               bool
	SeedAdminUsername  string
	SeedAdminPassword  string
	LogLevel           slog.Level
}

// Production reports whether the service runs in the production environment.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// fileConfig mirrors the optional YAML configuration file. Every key may be
// overridden by the matching ROOMBOOKING_* environment variable.
type fileConfig struct {
	Environment        string   `yaml:"environment"`
	HTTPPort           string   `yaml:"http_port"`
	DBDriver           string   `yaml:"db_driver"`
	SQLitePath         string   `yaml:"sqlite_path"`
	PostgresDSN        string   `yaml:"postgres_dsn"`
	SessionSecret      string   `yaml:"session_secret"`
	SessionTTL         string   `yaml:"session_ttl"`
	PrincipalCacheTTL  string   `yaml:"principal_cache_ttl"`
	DefaultTimezone    string   `yaml:"default_timezone"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	LoginRatePerSec    string   `yaml:"login_rate_per_sec"`
	LoginRateBurst     string   `yaml:"login_rate_burst"`
	Seed               string   `yaml:"seed"`
	SeedAdminUsername  string   `yaml:"seed_admin_username"`
	SeedAdminPassword  string   `yaml:"seed_admin_password"`
	LogLevel           string   `yaml:"log_level"`
}

func (f fileConfig) values() map[string]string {
	return map[string]string{
		"ENVIRONMENT":          f.Environment,
		"HTTP_PORT":            f.HTTPPort,
		"DB_DRIVER":            f.DBDriver,
		"SQLITE_PATH":          f.SQLitePath,
		"POSTGRES_DSN":         f.PostgresDSN,
		"SESSION_SECRET":       f.SessionSecret,
		"SESSION_TTL":          f.SessionTTL,
		"PRINCIPAL_CACHE_TTL":  f.PrincipalCacheTTL,
		"DEFAULT_TIMEZONE":     f.DefaultTimezone,
		"CORS_ALLOWED_ORIGINS": strings.Join(f.CORSAllowedOrigins, ","),
		"LOGIN_RATE_PER_SEC":   f.LoginRatePerSec,
		"LOGIN_RATE_BURST":     f.LoginRateBurst,
		"SEED":                 f.Seed,
		"SEED_ADMIN_USERNAME":  f.SeedAdminUsername,
		"SEED_ADMIN_PASSWORD":  f.SeedAdminPassword,
		"LOG_LEVEL":            f.LogLevel,
	}
}

// Load builds the configuration. Outside production a .env file in the
// working directory is loaded first. When path is empty,
// ROOMBOOKING_CONFIG_FILE names the optional YAML file. Environment variables
// take precedence over the file.
func Load(path string) (Config, error) {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv(envPrefix+"ENVIRONMENT")), "production") {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	if path == "" {
		path = strings.TrimSpace(os.Getenv(envPrefix + "CONFIG_FILE"))
	}

	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	values := file.values()
	for key := range values {
		if value, ok := os.LookupEnv(envPrefix + key); ok {
			values[key] = value
		}
	}
	return parse(values)
}

func parse(values map[string]string) (Config, error) {
	cfg := Config{
		Environment:       "development",
		HTTPPort:          8080,
		DBDriver:          DriverSQLite,
		SQLitePath:        "roombooking.db",
		SessionTTL:        time.Hour,
		PrincipalCacheTTL: 30 * time.Second,
		DefaultTimezone:   time.UTC,
		LoginRatePerSec:   1,
		LoginRateBurst:    5,
		SeedAdminUsername: "admin",
		LogLevel:          slog.LevelInfo,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)
	get := func(key string) string { return strings.TrimSpace(values[key]) }

	if env := get("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}

	if portValue := get("HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, envPrefix+"HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if driver := strings.ToLower(get("DB_DRIVER")); driver != "" {
		switch driver {
		case DriverSQLite, DriverPostgres:
			cfg.DBDriver = driver
		default:
			invalid = append(invalid, envPrefix+"DB_DRIVER")
		}
	}

	if sqlitePath := get("SQLITE_PATH"); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}

	cfg.PostgresDSN = get("POSTGRES_DSN")
	if cfg.DBDriver == DriverPostgres && cfg.PostgresDSN == "" {
		missing = append(missing, envPrefix+"POSTGRES_DSN")
	}

	if secret := get("SESSION_SECRET"); secret == "" {
		missing = append(missing, envPrefix+"SESSION_SECRET")
	} else {
		cfg.SessionSecret = secret
	}

	if ttlValue := get("SESSION_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, envPrefix+"SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if ttlValue := get("PRINCIPAL_CACHE_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl < 0 {
			invalid = append(invalid, envPrefix+"PRINCIPAL_CACHE_TTL")
		} else {
			cfg.PrincipalCacheTTL = ttl
		}
	}

	if tz := get("DEFAULT_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, envPrefix+"DEFAULT_TIMEZONE")
		} else {
			cfg.DefaultTimezone = loc
		}
	}

	for _, origin := range strings.Split(get("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if rateValue := get("LOGIN_RATE_PER_SEC"); rateValue != "" {
		rate, err := strconv.ParseFloat(rateValue, 64)
		if err != nil || rate <= 0 {
			invalid = append(invalid, envPrefix+"LOGIN_RATE_PER_SEC")
		} else {
			cfg.LoginRatePerSec = rate
		}
	}

	if burstValue := get("LOGIN_RATE_BURST"); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil || burst <= 0 {
			invalid = append(invalid, envPrefix+"LOGIN_RATE_BURST")
		} else {
			cfg.LoginRateBurst = burst
		}
	}

	if seedValue := get("SEED"); seedValue != "" {
		seed, err := strconv.ParseBool(seedValue)
		if err != nil {
			invalid = append(invalid, envPrefix+"SEED")
		} else {
			cfg.Seed = seed
		}
	}

	if username := get("SEED_ADMIN_USERNAME"); username != "" {
		cfg.SeedAdminUsername = username
	}
	cfg.SeedAdminPassword = values["SEED_ADMIN_PASSWORD"]

	if levelValue := get("LOG_LEVEL"); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, envPrefix+"LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
