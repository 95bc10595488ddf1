package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Stream struct {
	Retry   Retry
	Breaker Breaker
}

type Retry struct {
	Attempts     int
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Config struct {
	// BaseURL is the single API origin; orders-api and payments-api hang
	// off it as path prefixes.
	BaseURL string

	// StateFile holds the persisted identity record.
	StateFile string

	CacheCap    int
	HTTPTimeout time.Duration

	Stream Stream
}

// Load keeps the original API and fatals on error for simplicity in main().
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func load() (Config, error) {
	_ = godotenv.Load("env/.env")

	cfg := Config{
		BaseURL:     strings.TrimRight(envDefault("API_URL", "http://localhost:80"), "/"),
		StateFile:   envDefault("STATE_FILE", defaultStateFile()),
		CacheCap:    envInt("CACHE_CAP", 1000),
		HTTPTimeout: envDurationMS("HTTP_TIMEOUT", 10*time.Second),

		Stream: Stream{
			Retry: Retry{
				Attempts:     envInt("STREAM_RETRY_ATTEMPTS", 0), // 0 = retry forever
				Base:         envDurationMS("STREAM_RETRY_BASE", 500*time.Millisecond),
				Max:          envDurationMS("STREAM_RETRY_MAX", 30*time.Second),
				JitterFactor: envFloat64("STREAM_RETRY_JITTERFACTOR", 0.3),
			},
			Breaker: Breaker{
				Threshold:   envUint32("STREAM_BREAKER_THRESHOLD", 10),
				OpenTimeout: envDurationMS("STREAM_BREAKER_OPENTIMEOUT", time.Minute),
				MaxHalfOpen: envUint32("STREAM_BREAKER_MAXHALFOPEN", 1),
			},
		},
	}

	if cfg.CacheCap <= 0 {
		log.Printf("CACHE_CAP is %d, adjusting to 1", cfg.CacheCap)
		cfg.CacheCap = 1
	}
	if cfg.Stream.Retry.Base <= 0 {
		log.Printf("STREAM_RETRY_BASE is %v, adjusting to 500ms", cfg.Stream.Retry.Base)
		cfg.Stream.Retry.Base = 500 * time.Millisecond
	}
	if cfg.Stream.Retry.Max < cfg.Stream.Retry.Base {
		log.Printf("STREAM_RETRY_MAX (%v) < STREAM_RETRY_BASE (%v), adjusting max to base",
			cfg.Stream.Retry.Max, cfg.Stream.Retry.Base)
		cfg.Stream.Retry.Max = cfg.Stream.Retry.Base
	}
	return cfg, nil
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".appmarket/user.json"
	}
	return filepath.Join(home, ".appmarket", "user.json")
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

func envFloat64(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using default %.3f: %v", k, v, def, err)
		return def
	}
	return f
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
