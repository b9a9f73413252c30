package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"qms/smartqueue-service/internal/models"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Port         string
	StoreDriver  string
	DatabaseURL  string
	RedisURL     string
	CountersFile string
	LogJSON      bool

	SeatCapacity   int
	NoShowTimeout  time.Duration
	NoShowInterval time.Duration

	DefaultServiceMinutes int
	HistoryWindow         int
	PeakStartHour         int
	PeakEndHour           int
	PeakMultiplier        float64

	RateLimitPerMinute int
	RateLimitBurst     int

	NotificationLogSize int
	SMSProvider         string
	WhatsAppProvider    string
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	driver := strings.ToLower(os.Getenv("STORE_DRIVER"))
	if driver == "" {
		driver = DriverMemory
	}

	return Config{
		Port:                  port,
		StoreDriver:           driver,
		DatabaseURL:           os.Getenv("DB_DSN"),
		RedisURL:              os.Getenv("REDIS_URL"),
		CountersFile:          os.Getenv("COUNTERS_FILE"),
		LogJSON:               readBool("LOG_JSON", true),
		SeatCapacity:          readInt("SEAT_CAPACITY", 20),
		NoShowTimeout:         readDurationSeconds("NO_SHOW_TIMEOUT_SECONDS", 1800),
		NoShowInterval:        readDurationSeconds("NO_SHOW_SCAN_INTERVAL_SECONDS", 60),
		DefaultServiceMinutes: readInt("DEFAULT_SERVICE_MINUTES", 8),
		HistoryWindow:         readInt("HISTORY_WINDOW", 10),
		PeakStartHour:         readInt("PEAK_START_HOUR", 11),
		PeakEndHour:           readInt("PEAK_END_HOUR", 14),
		PeakMultiplier:        readFloat("PEAK_MULTIPLIER", 1.25),
		RateLimitPerMinute:    readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:        readInt("RATE_LIMIT_BURST", 30),
		NotificationLogSize:   readInt("NOTIFICATION_LOG_SIZE", 200),
		SMSProvider:           readString("SMS_PROVIDER", "log"),
		WhatsAppProvider:      readString("WHATSAPP_PROVIDER", "log"),
	}
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DB_DSN is required for the postgres store driver")
		}
	default:
		return errors.Newf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.PeakStartHour < 0 || c.PeakEndHour > 24 || c.PeakStartHour > c.PeakEndHour {
		return errors.Newf("invalid peak window [%d,%d)", c.PeakStartHour, c.PeakEndHour)
	}
	return nil
}

type countersFile struct {
	Locations map[string][]models.Counter `yaml:"locations"`
}

// LoadCounters reads a counter layout file keyed by location id. A missing
// path yields nil, which selects the built-in layouts.
func LoadCounters(path string) (map[string][]models.Counter, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read counters file %s", path)
	}
	var file countersFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrapf(err, "parse counters file %s", path)
	}
	for location, counters := range file.Locations {
		if len(counters) == 0 {
			return nil, errors.Newf("location %q has no counters", location)
		}
		for _, counter := range counters {
			if counter.CounterID == "" {
				return nil, errors.Newf("location %q has a counter without id", location)
			}
		}
	}
	return file.Locations, nil
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readString(key, fallback string) string {
	if raw := os.Getenv(key); raw != "" {
		return raw
	}
	return fallback
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
