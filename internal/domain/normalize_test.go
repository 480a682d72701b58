package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	got := ParseTimestamp("2026-04-12T18:30:00-05:00")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 4, 12, 23, 30, 0, 0, time.UTC), got.UTC())

	assert.Nil(t, ParseTimestamp(""))
	assert.Nil(t, ParseTimestamp("  "))
	assert.Nil(t, ParseTimestamp("not a timestamp"))
}

func TestNormalizeFeature(t *testing.T) {
	f := Feature{
		ID:       "outer-id",
		Geometry: json.RawMessage(`{"type":"Polygon","coordinates":[]}`),
		Properties: FeatureProperties{
			ID:       "urn:oid:2.49.0.1.840.0.abc",
			Event:    "Tornado Warning",
			Status:   "Actual",
			Severity: "Extreme",
			Sent:     "2026-04-12T18:30:00-05:00",
			Expires:  "garbage",
		},
	}
	f.Properties.Geocode.UGC = []string{"TXZ123"}
	f.Properties.Geocode.SAME = []string{"048113"}

	a := NormalizeFeature(f)
	require.NotNil(t, a)
	assert.Equal(t, "urn:oid:2.49.0.1.840.0.abc", a.ID)
	assert.Equal(t, "Tornado Warning", a.Event)
	assert.NotNil(t, a.Sent)
	assert.Nil(t, a.Expires)
	assert.True(t, a.GeomPresent())
	assert.Equal(t, []string{"TX"}, a.Regions)
}

func TestNormalizeFeature_IDFallback(t *testing.T) {
	a := NormalizeFeature(Feature{ID: "outer-id"})
	require.NotNil(t, a)
	assert.Equal(t, "outer-id", a.ID)

	a = NormalizeFeature(Feature{Properties: FeatureProperties{AtID: "at-id"}})
	require.NotNil(t, a)
	assert.Equal(t, "at-id", a.ID)

	assert.Nil(t, NormalizeFeature(Feature{}))
}

func TestNormalizeFeature_NullGeometry(t *testing.T) {
	a := NormalizeFeature(Feature{
		ID:       "x",
		Geometry: json.RawMessage(`null`),
	})
	require.NotNil(t, a)
	assert.False(t, a.GeomPresent())
	assert.Nil(t, a.Geometry)
}

func TestClassifyActivation(t *testing.T) {
	cfg := ActivationConfig{
		AllowedEvents: []string{"Tornado Warning", "Severe Thunderstorm Warning"},
	}

	t.Run("allowed event", func(t *testing.T) {
		act := ClassifyActivation(&Alert{Status: "Actual", Event: "Tornado Warning"}, cfg)
		assert.True(t, act.Actionable)
	})

	t.Run("test status excluded", func(t *testing.T) {
		act := ClassifyActivation(&Alert{Status: "Test", Event: "Tornado Warning"}, cfg)
		assert.False(t, act.Actionable)
	})

	t.Run("cancel excluded", func(t *testing.T) {
		act := ClassifyActivation(&Alert{Status: "Actual", MessageType: "Cancel", Event: "Tornado Warning"}, cfg)
		assert.False(t, act.Actionable)
	})

	t.Run("event not allowlisted", func(t *testing.T) {
		act := ClassifyActivation(&Alert{Status: "Actual", Event: "Dust Advisory"}, cfg)
		assert.False(t, act.Actionable)
	})

	t.Run("watch excluded unless opted in", func(t *testing.T) {
		alert := &Alert{Status: "Actual", Event: "Tornado Watch"}
		assert.False(t, ClassifyActivation(alert, cfg).Actionable)

		withWatch := cfg
		withWatch.IncludeWatch = true
		assert.True(t, ClassifyActivation(alert, withWatch).Actionable)
	})

	t.Run("nil alert", func(t *testing.T) {
		assert.False(t, ClassifyActivation(nil, cfg).Actionable)
	})
}
