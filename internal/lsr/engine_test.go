package lsr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/feed"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		TimeBufferHours:     2,
		MatchDistanceMeters: 30000,
		RecheckInterval:     10 * time.Minute,
		HoldExpiry:          12 * time.Hour,
	}
}

type mockBulletinSource struct {
	bulletins []feed.Bulletin
	skipped   int
	err       error
	calls     int
}

func (m *mockBulletinSource) FetchRecentReports(_ context.Context) ([]feed.Bulletin, int, error) {
	m.calls++
	return m.bulletins, m.skipped, m.err
}

type mockReportStore struct {
	upserted      []domain.StormReportObservation
	upsertErr     error
	matchCalls    int
	matchAlertIDs [][]string
	matchResult   int64
	matchErr      error
	matched       []domain.StormReportObservation
	matchedErr    error
}

func (m *mockReportStore) UpsertObservations(_ context.Context, observations []domain.StormReportObservation) error {
	m.upserted = append(m.upserted, observations...)
	return m.upsertErr
}

func (m *mockReportStore) InsertMatches(_ context.Context, alertIDs []string, _ time.Duration, _ float64) (int64, error) {
	m.matchCalls++
	m.matchAlertIDs = append(m.matchAlertIDs, alertIDs)
	return m.matchResult, m.matchErr
}

func (m *mockReportStore) MatchedObservations(_ context.Context, _ string) ([]domain.StormReportObservation, error) {
	return m.matched, m.matchedErr
}

func floatPtr(v float64) *float64 { return &v }

func TestEngineRun(t *testing.T) {
	issued := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	t.Run("parses bulletins, upserts, and matches", func(t *testing.T) {
		source := &mockBulletinSource{
			bulletins: []feed.Bulletin{{
				ID:       "LSR-FWD-1",
				IssuedAt: &issued,
				Text:     "2:00 PM   HAIL 1 1/2   SMITHVILLE   TX\n2:15 PM   TSTM WND GST 70 MPH   JONES   TX\n",
			}},
			skipped: 1,
		}
		store := &mockReportStore{matchResult: 2}
		engine := NewEngine(testConfig(), source, store, discardLogger(), observability.NewMetricsForTesting())

		stats, err := engine.Run(context.Background(), []string{"alert-1", "alert-2"})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.BulletinsFetched)
		assert.Equal(t, 2, stats.ObservationsFound)
		assert.Equal(t, int64(2), stats.NewMatches)
		require.Len(t, store.upserted, 2)
		assert.Equal(t, domain.EventHail, store.upserted[0].EventType)
		require.Len(t, store.matchAlertIDs, 1)
		assert.Equal(t, []string{"alert-1", "alert-2"}, store.matchAlertIDs[0])
	})

	t.Run("no alerts skips matching", func(t *testing.T) {
		source := &mockBulletinSource{}
		store := &mockReportStore{}
		engine := NewEngine(testConfig(), source, store, discardLogger(), observability.NewMetricsForTesting())

		stats, err := engine.Run(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.NewMatches)
		assert.Zero(t, store.matchCalls)
	})

	t.Run("source failure is fatal", func(t *testing.T) {
		source := &mockBulletinSource{err: errors.New("feed down")}
		store := &mockReportStore{}
		engine := NewEngine(testConfig(), source, store, discardLogger(), observability.NewMetricsForTesting())

		_, err := engine.Run(context.Background(), []string{"alert-1"})
		require.Error(t, err)
		assert.Empty(t, store.upserted)
	})

	t.Run("upsert failure is fatal", func(t *testing.T) {
		source := &mockBulletinSource{
			bulletins: []feed.Bulletin{{ID: "LSR-FWD-2", IssuedAt: &issued, Text: "HAIL 2 IN"}},
		}
		store := &mockReportStore{upsertErr: errors.New("db down")}
		engine := NewEngine(testConfig(), source, store, discardLogger(), observability.NewMetricsForTesting())

		_, err := engine.Run(context.Background(), []string{"alert-1"})
		require.Error(t, err)
		assert.Zero(t, store.matchCalls)
	})
}

func TestBuildSummary(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		summary := BuildSummary(nil)
		assert.Zero(t, summary.MatchCount)
		assert.Nil(t, summary.HailMaxInches)
		assert.Nil(t, summary.WindMaxMPH)
		assert.Empty(t, summary.TopSnippets)
	})

	t.Run("aggregates maxima and counts", func(t *testing.T) {
		observations := []domain.StormReportObservation{
			{EventType: domain.EventHail, HailInches: floatPtr(1.0), RawLine: "HAIL 1.00 IN"},
			{EventType: domain.EventHail, HailInches: floatPtr(1.75), RawLine: "HAIL 1.75 IN"},
			{EventType: domain.EventWindGust, WindMPH: floatPtr(70), RawLine: "TSTM WND GST 70 MPH"},
			{EventType: domain.EventTornado, RawLine: "TORNADO   TREES DOWN"},
			{EventType: domain.EventFlashFlood, RawLine: "FLASH FLOOD"},
		}

		summary := BuildSummary(observations)
		assert.Equal(t, 5, summary.MatchCount)
		require.NotNil(t, summary.HailMaxInches)
		assert.InDelta(t, 1.75, *summary.HailMaxInches, 0.001)
		require.NotNil(t, summary.WindMaxMPH)
		assert.InDelta(t, 70.0, *summary.WindMaxMPH, 0.001)
		assert.Equal(t, 1, summary.TornadoCount)
		assert.Equal(t, 1, summary.FloodCount)
		// "trees down" plus the flood keyword on the flash-flood line.
		assert.Equal(t, 2, summary.DamageKeywordHits)
	})

	t.Run("snippets are the most recent lines, newest first", func(t *testing.T) {
		at := func(hour int) *time.Time {
			v := time.Date(2026, 3, 14, hour, 0, 0, 0, time.UTC)
			return &v
		}
		observations := []domain.StormReportObservation{
			{EventType: domain.EventWindGust, OccurredAt: at(14), RawLine: "gust at two"},
			{EventType: domain.EventHail, OccurredAt: at(17), RawLine: "hail at five"},
			{EventType: domain.EventTornado, RawLine: "tornado untimed"},
			{EventType: domain.EventHail, OccurredAt: at(16), RawLine: "hail at four"},
		}

		summary := BuildSummary(observations)
		require.Len(t, summary.TopSnippets, 3)
		assert.Equal(t, "hail at five", summary.TopSnippets[0])
		assert.Equal(t, "hail at four", summary.TopSnippets[1])
		assert.Equal(t, "gust at two", summary.TopSnippets[2])
	})

	t.Run("long raw lines are truncated", func(t *testing.T) {
		long := strings.Repeat("HAIL 2.00 IN SMITHVILLE ", 10)
		summary := BuildSummary([]domain.StormReportObservation{
			{EventType: domain.EventHail, RawLine: long},
		})
		require.Len(t, summary.TopSnippets, 1)
		assert.Len(t, summary.TopSnippets[0], 160)
		assert.Equal(t, long[:160], summary.TopSnippets[0])
	})
}

func TestEngineSummarize(t *testing.T) {
	store := &mockReportStore{
		matched: []domain.StormReportObservation{
			{EventType: domain.EventHail, HailInches: floatPtr(1.5), RawLine: "HAIL 1 1/2"},
		},
	}
	engine := NewEngine(testConfig(), &mockBulletinSource{}, store, discardLogger(), observability.NewMetricsForTesting())

	summary, err := engine.Summarize(context.Background(), "alert-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MatchCount)
	require.NotNil(t, summary.HailMaxInches)
	assert.InDelta(t, 1.5, *summary.HailMaxInches, 0.001)

	store.matchedErr = errors.New("db down")
	_, err = engine.Summarize(context.Background(), "alert-1")
	assert.Error(t, err)
}
