package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Addr        string
	DBPath      string
	RedisAddr   string
	Environment string
	Debug       bool

	JWTSecret    string
	MagicLinkURL string

	HighThreshold   int
	MediumThreshold int

	DenylistPrefixes  []string
	AllowlistPrefixes []string
	CarrierASNs       []string

	PromotionThreshold int
	DecayDays          int
}

// Load parses environment variables and command line flags to populate
// Config. Flags take precedence over environment variables. A .env file in
// the working directory is honoured when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Addr = getEnv("GUARDIAN_ADDR", ":8080")
	cfg.DBPath = getEnv("GUARDIAN_DB", getDefaultDBPath())
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Environment = getEnv("ENVIRONMENT", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.MagicLinkURL = getEnv("MAGIC_LINK_BASE_URL", "http://localhost:8080/api/auth/magic-link/verify")
	cfg.HighThreshold = getEnvInt("HIGH_THRESHOLD", 60)
	cfg.MediumThreshold = getEnvInt("MEDIUM_THRESHOLD", 40)
	cfg.DenylistPrefixes = splitList(getEnv("DENYLIST_IP_PREFIXES", ""))
	cfg.AllowlistPrefixes = splitList(getEnv("ALLOWLIST_IP_PREFIXES", ""))
	cfg.CarrierASNs = splitList(getEnv("CARRIER_ASN_LIST", "AS55836,AS45609,AS55410,AS55824"))
	cfg.PromotionThreshold = getEnvInt("KNOWN_NETWORK_PROMOTION_THRESHOLD", 3)
	cfg.DecayDays = getEnvInt("KNOWN_NETWORK_DECAY_DAYS", 90)

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for session state")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")

	flag.Parse()

	if cfg.JWTSecret == "" {
		log.Println("[WARNING] JWT_SECRET not set; using development fallback. Set it for production.")
		cfg.JWTSecret = "fallback-secret-key-for-development-only"
	}
	if len(cfg.JWTSecret) < 32 {
		log.Println("[WARNING] JWT_SECRET should be at least 32 characters long")
	}

	return cfg
}

// Production reports whether the service runs with production policies
// (cookie Secure/SameSite, strict CSRF).
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// getDefaultDBPath returns the default database path in the user's home
// directory, creating the directory if needed.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "guardian.db"
	}

	dir := filepath.Join(home, ".guardian")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .guardian directory, using current dir: %v", err)
		return "guardian.db"
	}

	return filepath.Join(dir, "guardian.db")
}
