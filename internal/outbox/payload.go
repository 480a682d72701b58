// Package outbox implements idempotent delivery: versioned payload snapshots
// keyed by content, a queued/sending/sent/failed row lifecycle, and the
// worker that drains queued rows to the delivery transport.
package outbox

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/triage"
)

// PayloadVersion is the current delivery payload schema version. Bumping it
// changes every event key, so re-deliveries after a bump are intentional.
const PayloadVersion = 1

// ReportSummaryPayload is the storm-report block of a delivery payload.
type ReportSummaryPayload struct {
	HailMaxInches     *float64 `json:"hail_max_inches"`
	WindMaxMPH        *float64 `json:"wind_max_mph"`
	TornadoCount      int      `json:"tornado_count"`
	FloodCount        int      `json:"flood_count"`
	DamageKeywordHits int      `json:"damage_keyword_hits"`
}

// ThresholdsPayload records the comparison levels in force when the payload
// was built, so consumers can interpret the flags.
type ThresholdsPayload struct {
	HailInches        float64  `json:"hail_inches"`
	WindMPH           float64  `json:"wind_mph"`
	FreezeRareRegions []string `json:"freeze_rare_states"`
}

// FlagsPayload is the interesting-flag block of a delivery payload.
type FlagsPayload struct {
	Hail       bool `json:"hail"`
	Wind       bool `json:"wind"`
	RareFreeze bool `json:"rare_freeze"`
	Any        bool `json:"any"`
}

// Payload is the versioned delivery snapshot for one alert. It is built once
// at enqueue time and never recomputed, so what was sent is exactly what was
// approved.
type Payload struct {
	AlertID        string               `json:"alert_id"`
	Event          string               `json:"event"`
	Severity       string               `json:"severity"`
	Sent           *time.Time           `json:"sent"`
	Effective      *time.Time           `json:"effective"`
	Expires        *time.Time           `json:"expires"`
	ImpactedStates []string             `json:"impacted_states"`
	ImpactedZips   []string             `json:"impacted_zips"`
	ZipCount       int                  `json:"zip_count"`
	ReportSummary  ReportSummaryPayload `json:"lsr_summary"`
	ThresholdsUsed ThresholdsPayload    `json:"thresholds_used"`
	Flags          FlagsPayload         `json:"interesting_flags"`
	DamageScore    int                  `json:"damage_score"`
	EventKey       string               `json:"event_key"`
}

// BuildPayload snapshots an enriched alert into a delivery payload.
func BuildPayload(alert *domain.EnrichedAlert, thresholds triage.Thresholds) Payload {
	zips := []string(alert.Zips)
	if zips == nil {
		zips = []string{}
	}
	states := []string(alert.Regions)
	if states == nil {
		states = []string{}
	}
	rare := thresholds.FreezeRareRegions
	if rare == nil {
		rare = []string{}
	}

	return Payload{
		AlertID:        alert.AlertID,
		Event:          alert.Event,
		Severity:       alert.Severity,
		Sent:           alert.Sent,
		Effective:      alert.Effective,
		Expires:        alert.Expires,
		ImpactedStates: states,
		ImpactedZips:   zips,
		ZipCount:       alert.ZipCount,
		ReportSummary: ReportSummaryPayload{
			HailMaxInches:     alert.HailMaxInches,
			WindMaxMPH:        alert.WindMaxMPH,
			TornadoCount:      alert.TornadoCount,
			FloodCount:        alert.FloodCount,
			DamageKeywordHits: alert.DamageKeywordHits,
		},
		ThresholdsUsed: ThresholdsPayload{
			HailInches:        thresholds.HailInches,
			WindMPH:           thresholds.WindMPH,
			FreezeRareRegions: rare,
		},
		Flags: FlagsPayload{
			Hail:       alert.InterestingFlags.Hail,
			Wind:       alert.InterestingFlags.Wind,
			RareFreeze: alert.InterestingFlags.RareFreeze,
			Any:        alert.InterestingFlags.Any,
		},
		DamageScore: alert.DamageScore,
		EventKey:    EventKey(alert.AlertID, PayloadVersion, zips),
	}
}

// EventKey derives the content-addressed idempotency key for a delivery:
// the same alert, payload version, and ZIP set always hash to the same key,
// regardless of ZIP ordering.
func EventKey(alertID string, version int, zips []string) string {
	sorted := make([]string, len(zips))
	copy(sorted, zips)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(alertID))
	h.Write([]byte("|v"))
	h.Write([]byte(strconv.Itoa(version)))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
