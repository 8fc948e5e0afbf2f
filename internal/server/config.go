package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/guidedesk/guidedesk/internal/server/store"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

// BokunConfig configures the booking import.
type BokunConfig struct {
	BaseURL        string
	AccessKey      string
	SecretKey      string
	Timezone       string
	LookbackDays   int
	LookaheadDays  int
	DefaultGuideID int64
}

// Configured reports whether API keys are present.
func (c BokunConfig) Configured() bool {
	return c.AccessKey != "" && c.SecretKey != ""
}

// Config is the API server configuration, read from the environment.
type Config struct {
	Addr          string
	CORSOrigin    string
	JWTSecret     string
	TokenTTL      time.Duration
	AdminUser     string
	AdminPassword string
	SeedFile      string
	Driver        string
	MySQL         store.MySQLConfig
	Bokun         BokunConfig
	// GeneratedSecret is set when JWT_SECRET was empty and a random one is
	// in use; tokens then do not survive a restart.
	GeneratedSecret bool
}

// LoadConfig loads the given .env files, when they exist, into the process
// environment and reads the configuration. Variables already set win.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if file == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := Config{
		Addr:          ":" + getenv("PORT", "8080"),
		CORSOrigin:    os.Getenv("CORS_ORIGIN"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		TokenTTL:      time.Duration(getenvInt("JWT_TTL_HOURS", 24, 1, 24*30)) * time.Hour,
		AdminUser:     getenv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		SeedFile:      os.Getenv("SEED_FILE"),
		Driver:        strings.ToLower(getenv("DB_DRIVER", "")),
		MySQL: store.MySQLConfig{
			Host:     getenv("DB_HOST", "127.0.0.1"),
			Port:     getenv("DB_PORT", "3306"),
			User:     getenv("DB_USER", "guidedesk"),
			Password: getenv("DB_PASSWORD", "guidedesk"),
			DBName:   getenv("DB_NAME", "guidedesk"),
		},
		Bokun: BokunConfig{
			BaseURL:        os.Getenv("BOKUN_BASE_URL"),
			AccessKey:      strings.TrimSpace(os.Getenv("BOKUN_ACCESS_KEY")),
			SecretKey:      strings.TrimSpace(os.Getenv("BOKUN_SECRET_KEY")),
			Timezone:       getenv("BOKUN_TIMEZONE", "UTC"),
			LookbackDays:   getenvInt("BOKUN_LOOKBACK_DAYS", 1, 0, 30),
			LookaheadDays:  getenvInt("BOKUN_LOOKAHEAD_DAYS", 60, 1, 365),
			DefaultGuideID: int64(getenvInt("BOKUN_DEFAULT_GUIDE_ID", 0, 0, 0)),
		},
	}

	if cfg.Driver == "" {
		cfg.Driver = DriverMemory
		if os.Getenv("DB_HOST") != "" {
			cfg.Driver = DriverMySQL
		}
	}
	if cfg.Driver != DriverMemory && cfg.Driver != DriverMySQL {
		return Config{}, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverMemory, DriverMySQL, cfg.Driver)
	}
	if _, err := time.LoadLocation(cfg.Bokun.Timezone); err != nil {
		return Config{}, fmt.Errorf("BOKUN_TIMEZONE: %w", err)
	}
	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return Config{}, err
		}
		cfg.JWTSecret = secret
		cfg.GeneratedSecret = true
	}
	return cfg, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

// getenvInt parses key, falling back when it is unset, malformed or outside
// [min, max]. A zero bound is not enforced.
func getenvInt(key string, fallback, min, max int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if min > 0 && v < min {
		return fallback
	}
	if max > 0 && v > max {
		return fallback
	}
	return v
}
