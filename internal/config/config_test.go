package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/triage")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "https://api.weather.gov", cfg.FeedBaseURL)
	assert.Equal(t, []string{"TX"}, cfg.FeedRegions)
	assert.Equal(t, 5, cfg.FeedChunkSize)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Contains(t, cfg.AllowedEvents, "Tornado Warning")
	assert.False(t, cfg.IncludeWatch)
	assert.True(t, cfg.InferZip)
	assert.False(t, cfg.GeocodeEnabled)
	assert.Equal(t, 48, cfg.ReportLookbackHours)
	assert.Equal(t, 2, cfg.TimeBufferHours)
	assert.Equal(t, 30000.0, cfg.MatchDistanceMeters)
	assert.Equal(t, 10*time.Minute, cfg.RecheckInterval)
	assert.Equal(t, 12*time.Hour, cfg.HoldExpiry)
	assert.Equal(t, 1.25, cfg.InterestingHailInches)
	assert.Equal(t, 70.0, cfg.InterestingWindMPH)
	assert.Equal(t, 100, cfg.BulkMax)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alert-deliveries", cfg.DeliveryTopic)
	assert.Equal(t, 5*time.Second, cfg.WorkerPollInterval)
	assert.Equal(t, 5, cfg.WorkerBatchSize)
}

func TestLoadRequiredSettings(t *testing.T) {
	t.Run("database url is required", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("geocode flag requires a token", func(t *testing.T) {
		setRequired(t)
		t.Setenv("INFER_ZIP_GEOCODE", "true")
		t.Setenv("MAPBOX_TOKEN", "")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("geocode flag with token loads", func(t *testing.T) {
		setRequired(t)
		t.Setenv("INFER_ZIP_GEOCODE", "true")
		t.Setenv("MAPBOX_TOKEN", "pk.test")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.GeocodeEnabled)
		assert.Equal(t, "pk.test", cfg.MapboxToken)
	})
}

func TestLoadOverrides(t *testing.T) {
	t.Run("region lists are trimmed and uppercased", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FEED_REGIONS", " tx, ok ,ks ")
		t.Setenv("FREEZE_RARE_STATES", "fl,la")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"TX", "OK", "KS"}, cfg.FeedRegions)
		assert.Equal(t, []string{"FL", "LA"}, cfg.FreezeRareRegions)
	})

	t.Run("base url trailing slash is stripped", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FEED_BASE_URL", "https://feed.example/")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://feed.example", cfg.FeedBaseURL)
	})

	t.Run("poll interval has a one minute floor", func(t *testing.T) {
		setRequired(t)
		t.Setenv("POLL_INTERVAL", "10s")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, time.Minute, cfg.PollInterval)
	})

	t.Run("numeric settings clamp at their minimum", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FEED_CHUNK_SIZE", "0")
		t.Setenv("ALERT_LSR_DISTANCE_METERS", "5")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.FeedChunkSize)
		assert.Equal(t, 100.0, cfg.MatchDistanceMeters)
	})

	t.Run("invalid duration is an error", func(t *testing.T) {
		setRequired(t)
		t.Setenv("LSR_RECHECK_INTERVAL", "soon")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative duration is an error", func(t *testing.T) {
		setRequired(t)
		t.Setenv("FEED_TIMEOUT", "-1s")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("watch opt-in", func(t *testing.T) {
		setRequired(t)
		t.Setenv("INCLUDE_WATCH", "true")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.IncludeWatch)
	})
}
