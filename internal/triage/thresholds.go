// Package triage holds the deterministic scoring and workflow-status rules.
// Everything here is a pure function of alert state so both ingestion and the
// operator reset path compute identical results.
package triage

import (
	"strings"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

// FreezeEventNames are the products where a freeze in an unusual region is
// itself noteworthy.
var FreezeEventNames = []string{
	"Freeze Warning",
	"Hard Freeze Warning",
	"Freeze Watch",
	"Frost Advisory",
}

// Thresholds are the tunable comparison levels for the interesting flags.
type Thresholds struct {
	HailInches        float64
	WindMPH           float64
	FreezeRareRegions []string
}

// Score holds the threshold flags and damage score for one alert.
type Score struct {
	Flags       domain.InterestingFlags
	DamageScore int
}

// Compute evaluates the interesting flags and damage score for one alert.
// The score is additive over the product class base and each tripped flag,
// clamped to [0, 100]. While an alert has no storm-report matches, magnitudes
// extracted from its own text stand in for the report maxima, so a warning
// describing golf-ball hail can trip thresholds before a report confirms it.
func Compute(event string, regions []string, summary domain.ReportSummary, signals domain.TextSignals, t Thresholds) Score {
	var s Score

	hailMax := summary.HailMaxInches
	windMax := summary.WindMaxMPH
	if summary.MatchCount == 0 {
		if hailMax == nil {
			hailMax = signals.HailInches
		}
		if windMax == nil {
			windMax = signals.WindMPH
		}
	}

	s.Flags.Hail = hailMax != nil && *hailMax >= t.HailInches
	s.Flags.Wind = windMax != nil && *windMax >= t.WindMPH
	s.Flags.RareFreeze = isFreezeEvent(event) && hasRareRegion(regions, t.FreezeRareRegions)
	s.Flags.Any = s.Flags.Hail || s.Flags.Wind || s.Flags.RareFreeze

	score := 0
	if strings.HasSuffix(event, " Warning") {
		score = 50
	} else if strings.HasSuffix(event, " Watch") {
		score = 10
	}
	if s.Flags.Hail {
		score += 40
	}
	if s.Flags.Wind {
		score += 30
	}
	if s.Flags.RareFreeze {
		score += 35
	}
	if summary.TornadoCount > 0 {
		score += 40
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	s.DamageScore = score
	return s
}

func isFreezeEvent(event string) bool {
	for _, name := range FreezeEventNames {
		if event == name {
			return true
		}
	}
	return false
}

func hasRareRegion(regions, rare []string) bool {
	if len(rare) == 0 {
		return false
	}
	for _, r := range regions {
		upper := strings.ToUpper(r)
		for _, candidate := range rare {
			if upper == candidate {
				return true
			}
		}
	}
	return false
}
