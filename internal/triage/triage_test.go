package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

func TestComputeTriageStatus(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want domain.TriageStatus
	}{
		{"warning with flag is actionable", Input{AlertClass: domain.ClassWarning, Flags: domain.InterestingFlags{Hail: true, Any: true}}, domain.TriageActionable},
		{"warning without flags is monitoring", Input{AlertClass: domain.ClassWarning}, domain.TriageMonitoring},
		{"watch is monitoring", Input{AlertClass: domain.ClassWatch}, domain.TriageMonitoring},
		{"advisory is monitoring", Input{AlertClass: domain.ClassAdvisory}, domain.TriageMonitoring},
		{"statement is monitoring", Input{AlertClass: domain.ClassStatement}, domain.TriageMonitoring},
		{"other is monitoring", Input{AlertClass: domain.ClassOther}, domain.TriageMonitoring},
		{"unclassified stays new", Input{}, domain.TriageNew},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeTriage(tc.in).Status)
		})
	}
}

func TestComputeTriageReasons(t *testing.T) {
	t.Run("actionable warning lists every trigger", func(t *testing.T) {
		res := ComputeTriage(Input{
			AlertClass:  domain.ClassWarning,
			GeomPresent: true,
			MatchCount:  3,
			Flags:       domain.InterestingFlags{Hail: true, Wind: true, Any: true},
			HailMax:     floatPtr(1.5),
			WindMax:     floatPtr(75),
		})
		assert.Equal(t, []string{
			"Warning product",
			"Hail >= 1.25 in (1.5)",
			"Wind >= 70 mph (75)",
			"LSR matches: 3",
			"Geometry present",
		}, res.Reasons)
	})

	t.Run("monitoring warning with geometry awaits confirmation", func(t *testing.T) {
		res := ComputeTriage(Input{AlertClass: domain.ClassWarning, GeomPresent: true})
		assert.Equal(t, []string{
			"Warning product",
			"Geometry present",
			"Awaiting LSR confirmation",
		}, res.Reasons)
	})

	t.Run("zone based warning without matches does not await", func(t *testing.T) {
		res := ComputeTriage(Input{AlertClass: domain.ClassWarning})
		assert.Equal(t, []string{
			"Warning product",
			"Geometry missing (zone-based)",
		}, res.Reasons)
	})

	t.Run("watch reasons", func(t *testing.T) {
		res := ComputeTriage(Input{AlertClass: domain.ClassWatch, MatchCount: 1})
		assert.Equal(t, []string{
			"Watch product",
			"Geometry missing (zone-based)",
			"LSR matches: 1",
		}, res.Reasons)
	})

	t.Run("advisory and statement reasons", func(t *testing.T) {
		res := ComputeTriage(Input{AlertClass: domain.ClassAdvisory, GeomPresent: true})
		assert.Equal(t, []string{"Advisory", "Geometry present"}, res.Reasons)

		res = ComputeTriage(Input{AlertClass: domain.ClassStatement, MatchCount: 2})
		assert.Equal(t, []string{"Statement", "LSR matches: 2"}, res.Reasons)

		res = ComputeTriage(Input{AlertClass: domain.ClassOther})
		assert.Equal(t, []string{"Other"}, res.Reasons)
	})
}

func TestComputeTriageConfidence(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want domain.Confidence
	}{
		{"geometry match and flag is high", Input{GeomPresent: true, MatchCount: 1, Flags: domain.InterestingFlags{Any: true}}, domain.ConfidenceHigh},
		{"geometry and flag is medium", Input{GeomPresent: true, Flags: domain.InterestingFlags{Any: true}}, domain.ConfidenceMedium},
		{"match alone is medium", Input{MatchCount: 2}, domain.ConfidenceMedium},
		{"geometry alone is low", Input{GeomPresent: true}, domain.ConfidenceLow},
		{"nothing is low", Input{}, domain.ConfidenceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeTriage(tc.in).Confidence)
		})
	}
}

func TestActionToStatus(t *testing.T) {
	status, ok := ActionToStatus(domain.ActionSetActionable)
	assert.True(t, ok)
	assert.Equal(t, domain.TriageActionable, status)

	status, ok = ActionToStatus(domain.ActionSetSuppressed)
	assert.True(t, ok)
	assert.Equal(t, domain.TriageSuppressed, status)

	status, ok = ActionToStatus(domain.ActionSetSentManual)
	assert.True(t, ok)
	assert.Equal(t, domain.TriageSentManual, status)

	_, ok = ActionToStatus(domain.ActionResetToSystem)
	assert.False(t, ok)

	_, ok = ActionToStatus(domain.TriageAction("bogus"))
	assert.False(t, ok)
}
