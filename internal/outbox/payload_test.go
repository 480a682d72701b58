package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/triage"
)

func floatPtr(v float64) *float64 { return &v }

func testThresholds() triage.Thresholds {
	return triage.Thresholds{
		HailInches:        1.25,
		WindMPH:           70,
		FreezeRareRegions: []string{"FL", "LA", "TX"},
	}
}

func TestEventKey(t *testing.T) {
	t.Run("zip order does not change the key", func(t *testing.T) {
		a := EventKey("alert-1", 1, []string{"76063", "75001", "76010"})
		b := EventKey("alert-1", 1, []string{"75001", "76010", "76063"})
		assert.Equal(t, a, b)
	})

	t.Run("alert, version, and zip set each change the key", func(t *testing.T) {
		base := EventKey("alert-1", 1, []string{"75001"})
		assert.NotEqual(t, base, EventKey("alert-2", 1, []string{"75001"}))
		assert.NotEqual(t, base, EventKey("alert-1", 2, []string{"75001"}))
		assert.NotEqual(t, base, EventKey("alert-1", 1, []string{"75001", "75002"}))
	})

	t.Run("key is hex sha256", func(t *testing.T) {
		key := EventKey("alert-1", 1, nil)
		assert.Len(t, key, 64)
	})

	t.Run("input slice is not mutated", func(t *testing.T) {
		zips := []string{"76063", "75001"}
		EventKey("alert-1", 1, zips)
		assert.Equal(t, []string{"76063", "75001"}, zips)
	})
}

func TestBuildPayload(t *testing.T) {
	sent := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	expires := sent.Add(4 * time.Hour)

	alert := &domain.EnrichedAlert{
		AlertID:  "urn:oid:2.49.0.1.840.0.1234",
		Event:    "Severe Thunderstorm Warning",
		Severity: "Severe",
		Sent:     &sent,
		Expires:  &expires,
		Zips:     domain.StringList{"76063", "75001"},
		ZipCount: 2,
		Regions:  domain.StringList{"TX"},
		ReportSummary: domain.ReportSummary{
			MatchCount:    2,
			HailMaxInches: floatPtr(1.75),
			TornadoCount:  1,
		},
		InterestingFlags: domain.InterestingFlags{Hail: true, Any: true},
		DamageScore:      100,
	}

	p := BuildPayload(alert, testThresholds())
	assert.Equal(t, alert.AlertID, p.AlertID)
	assert.Equal(t, "Severe Thunderstorm Warning", p.Event)
	assert.Equal(t, []string{"TX"}, p.ImpactedStates)
	assert.Equal(t, []string{"76063", "75001"}, p.ImpactedZips)
	assert.Equal(t, 2, p.ZipCount)
	require.NotNil(t, p.ReportSummary.HailMaxInches)
	assert.InDelta(t, 1.75, *p.ReportSummary.HailMaxInches, 0.001)
	assert.Equal(t, 1, p.ReportSummary.TornadoCount)
	assert.Equal(t, 1.25, p.ThresholdsUsed.HailInches)
	assert.True(t, p.Flags.Hail)
	assert.True(t, p.Flags.Any)
	assert.False(t, p.Flags.Wind)
	assert.Equal(t, 100, p.DamageScore)
	assert.Equal(t, EventKey(alert.AlertID, PayloadVersion, []string{"75001", "76063"}), p.EventKey)
}

func TestBuildPayloadEmptySlices(t *testing.T) {
	alert := &domain.EnrichedAlert{AlertID: "alert-1"}
	th := testThresholds()
	th.FreezeRareRegions = nil

	p := BuildPayload(alert, th)
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	// Nil slices serialize as [] so consumers never see null arrays.
	assert.Contains(t, string(raw), `"impacted_zips":[]`)
	assert.Contains(t, string(raw), `"impacted_states":[]`)
	assert.Contains(t, string(raw), `"freeze_rare_states":[]`)
}
