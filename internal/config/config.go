package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// defaultAllowedEvents are the feed event types treated as actionable when
// ALERT_EVENTS is unset: damaging products worth operator attention.
var defaultAllowedEvents = []string{
	"Tornado Warning",
	"Severe Thunderstorm Warning",
	"Flash Flood Warning",
	"High Wind Warning",
	"Hurricane Warning",
	"Tropical Storm Warning",
	"Storm Surge Warning",
	"Blizzard Warning",
	"Ice Storm Warning",
	"Winter Storm Warning",
	"Hard Freeze Warning",
	"Freeze Warning",
	"Extreme Cold Warning",
	"Wind Chill Warning",
	"Excessive Heat Warning",
	"Winter Weather Advisory",
	"Wind Chill Advisory",
	"Frost Advisory",
	"Coastal Flood Warning",
	"Lakeshore Flood Warning",
	"Dense Fog Advisory",
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Feed client.
	FeedBaseURL   string
	FeedUserAgent string
	FeedRegions   []string
	FeedChunkSize int
	FeedTimeout   time.Duration
	PollInterval  time.Duration

	// Activation.
	AllowedEvents []string
	IncludeWatch  bool

	// Geography resolution.
	InferZip        bool
	ZoneFetchDelay  time.Duration
	GeocodeEnabled  bool
	MapboxToken     string
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Storm-report engine.
	ReportLookbackHours    int
	ReportFetchConcurrency int
	TimeBufferHours        int
	MatchDistanceMeters    float64
	RecheckInterval        time.Duration
	HoldExpiry             time.Duration

	// Scoring thresholds.
	InterestingHailInches float64
	InterestingWindMPH    float64
	FreezeRareRegions     []string

	// Operator surface.
	BulkMax int

	// Delivery worker.
	KafkaBrokers       []string
	DeliveryTopic      string
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	geocodeEnabled := envBool("INFER_ZIP_GEOCODE", false)
	if geocodeEnabled && mapboxToken == "" {
		return nil, errors.New("INFER_ZIP_GEOCODE is true but MAPBOX_TOKEN is not set")
	}
	mapboxTimeout, err := envDuration("MAPBOX_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FeedBaseURL:   strings.TrimSuffix(sharedcfg.EnvOrDefault("FEED_BASE_URL", "https://api.weather.gov"), "/"),
		FeedUserAgent: sharedcfg.EnvOrDefault("FEED_USER_AGENT", "storm-alert-triage (ops@couchcryptid.dev)"),
		FeedRegions:   envList("FEED_REGIONS", []string{"TX"}),
		FeedChunkSize: envIntMin("FEED_CHUNK_SIZE", 5, 1),

		AllowedEvents: envList("ALERT_EVENTS", defaultAllowedEvents),
		IncludeWatch:  envBool("INCLUDE_WATCH", false),

		InferZip:        envBool("INFER_ZIP", true),
		GeocodeEnabled:  geocodeEnabled,
		MapboxToken:     mapboxToken,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: envIntMin("MAPBOX_CACHE_SIZE", 1000, 1),

		ReportLookbackHours:    envIntMin("LSR_LOOKBACK_HOURS", 48, 1),
		ReportFetchConcurrency: envIntMin("LSR_FETCH_CONCURRENCY", 8, 1),
		TimeBufferHours:        envIntMin("ALERT_LSR_TIME_BUFFER_HOURS", 2, 0),
		MatchDistanceMeters:    envFloatMin("ALERT_LSR_DISTANCE_METERS", 30000, 100),

		InterestingHailInches: envFloatMin("INTERESTING_HAIL_INCHES", 1.25, 0),
		InterestingWindMPH:    envFloatMin("INTERESTING_WIND_MPH", 70, 0),
		FreezeRareRegions:     envList("FREEZE_RARE_STATES", nil),

		BulkMax: envIntMin("BULK_MAX", 100, 1),

		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		DeliveryTopic:   sharedcfg.EnvOrDefault("KAFKA_DELIVERY_TOPIC", "alert-deliveries"),
		WorkerBatchSize: envIntMin("WORKER_BATCH_SIZE", 5, 1),
	}

	if cfg.FeedTimeout, err = envDuration("FEED_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PollInterval < time.Minute {
		cfg.PollInterval = time.Minute
	}
	if cfg.ZoneFetchDelay, err = envDuration("INFER_ZIP_DELAY", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RecheckInterval, err = envDuration("LSR_RECHECK_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	// Hold expiry was never pinned down upstream; 12h covers the longest
	// warning lifetime plus observed report publication lag.
	if cfg.HoldExpiry, err = envDuration("LSR_HOLD_EXPIRY", 12*time.Hour); err != nil {
		return nil, err
	}
	if cfg.WorkerPollInterval, err = envDuration("WORKER_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if len(cfg.FeedRegions) == 0 {
		return nil, errors.New("FEED_REGIONS is required")
	}

	for i, r := range cfg.FeedRegions {
		cfg.FeedRegions[i] = strings.ToUpper(r)
	}
	for i, r := range cfg.FreezeRareRegions {
		cfg.FreezeRareRegions[i] = strings.ToUpper(r)
	}

	return cfg, nil
}

func envBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return fallback
	}
}

func envList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envIntMin(key string, fallback, minimum int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			if n < minimum {
				return minimum
			}
			return n
		}
	}
	return fallback
}

func envFloatMin(key string, fallback, minimum float64) float64 {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			if v < minimum {
				return minimum
			}
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}
