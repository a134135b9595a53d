package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the API process.
// Values load from environment variables with defaults sane enough to run
// locally without setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	GeoRadiusKm   float64

	KafkaBrokers      []string
	LocationTopic     string
	EventTopic        string
	KafkaWriteTimeout time.Duration

	PGDSN string

	DistanceMatrixURL string
	DistanceMatrixKey string

	RankTopK      int
	RankScanLimit int

	StuckAfter         time.Duration
	EscalationInterval time.Duration

	PushEndpoint string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RedisGeoKey:        "providers_geo",
		GeoRadiusKm:        25,
		LocationTopic:      "provider-locations",
		EventTopic:         "dispatch-events",
		KafkaWriteTimeout:  2 * time.Second,
		RankTopK:           3,
		RankScanLimit:      50,
		StuckAfter:         15 * time.Minute,
		EscalationInterval: 5 * time.Minute,
		LogLevel:           "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setFloatFromEnv(&cfg.GeoRadiusKm, "GEO_RADIUS_KM", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.LocationTopic, "KAFKA_LOCATION_TOPIC")
	setStringFromEnv(&cfg.EventTopic, "KAFKA_EVENT_TOPIC")
	setDurationFromEnv(&cfg.KafkaWriteTimeout, "KAFKA_WRITE_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.DistanceMatrixURL = strings.TrimSpace(os.Getenv("DISTANCE_MATRIX_URL"))
	cfg.DistanceMatrixKey = os.Getenv("DISTANCE_MATRIX_KEY")

	setIntFromEnv(&cfg.RankTopK, "RANK_TOP_K", &errs)
	setIntFromEnv(&cfg.RankScanLimit, "RANK_SCAN_LIMIT", &errs)

	setDurationFromEnv(&cfg.StuckAfter, "DISPATCH_STUCK_AFTER", &errs)
	setDurationFromEnv(&cfg.EscalationInterval, "ESCALATION_INTERVAL", &errs)

	setStringFromEnv(&cfg.PushEndpoint, "PROVIDER_PUSH_ENDPOINT")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.RankTopK <= 0 {
		errs = append(errs, fmt.Errorf("RANK_TOP_K must be > 0"))
	}
	if cfg.RankScanLimit < cfg.RankTopK {
		errs = append(errs, fmt.Errorf("RANK_SCAN_LIMIT must be >= RANK_TOP_K"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
