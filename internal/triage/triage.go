package triage

import (
	"strconv"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

// Input is the alert state the status rules read. It is a snapshot, not a
// live row, which keeps ComputeTriage pure.
type Input struct {
	AlertClass  domain.AlertClass
	GeomPresent bool
	MatchCount  int
	Flags       domain.InterestingFlags
	HailMax     *float64
	WindMax     *float64
}

// Result is a computed triage decision with operator-facing explanations.
type Result struct {
	Status     domain.TriageStatus
	Reasons    []string
	Confidence domain.Confidence
}

// displayed threshold levels in reason strings; kept in sync with the config
// defaults so the text matches what actually tripped the flag.
const (
	hailThresholdDisplay = "1.25"
	windThresholdDisplay = "70"
)

// ComputeTriage derives the workflow status, reasons, and confidence for a
// system-owned alert. Operator-owned rows are never passed through here
// except on an explicit reset.
//
// Status rules: a warning with any interesting flag is actionable; every
// other classified product is monitoring.
func ComputeTriage(in Input) Result {
	status := domain.TriageNew
	switch in.AlertClass {
	case domain.ClassWarning:
		if in.Flags.Any {
			status = domain.TriageActionable
		} else {
			status = domain.TriageMonitoring
		}
	case domain.ClassWatch, domain.ClassAdvisory, domain.ClassStatement, domain.ClassOther:
		status = domain.TriageMonitoring
	}

	return Result{
		Status:     status,
		Reasons:    buildReasons(in, status),
		Confidence: computeConfidence(in),
	}
}

// buildReasons produces the short explainability strings shown next to the
// status. Wording is part of the operator contract; change with care.
func buildReasons(in Input, status domain.TriageStatus) []string {
	var reasons []string

	switch in.AlertClass {
	case domain.ClassWarning:
		reasons = append(reasons, "Warning product")
		if in.Flags.Hail && in.HailMax != nil {
			reasons = append(reasons, "Hail >= "+hailThresholdDisplay+" in ("+formatMagnitude(*in.HailMax)+")")
		}
		if in.Flags.Wind && in.WindMax != nil {
			reasons = append(reasons, "Wind >= "+windThresholdDisplay+" mph ("+formatMagnitude(*in.WindMax)+")")
		}
		if in.MatchCount > 0 {
			reasons = append(reasons, "LSR matches: "+strconv.Itoa(in.MatchCount))
		}
		if in.GeomPresent {
			reasons = append(reasons, "Geometry present")
		} else {
			reasons = append(reasons, "Geometry missing (zone-based)")
		}
		if status == domain.TriageMonitoring && (in.GeomPresent || in.MatchCount > 0) && !in.Flags.Any {
			reasons = append(reasons, "Awaiting LSR confirmation")
		}
	case domain.ClassWatch:
		reasons = append(reasons, "Watch product")
		if in.GeomPresent {
			reasons = append(reasons, "Geometry present")
		} else {
			reasons = append(reasons, "Geometry missing (zone-based)")
		}
		if in.MatchCount > 0 {
			reasons = append(reasons, "LSR matches: "+strconv.Itoa(in.MatchCount))
		}
	default:
		switch in.AlertClass {
		case domain.ClassAdvisory:
			reasons = append(reasons, "Advisory")
		case domain.ClassStatement:
			reasons = append(reasons, "Statement")
		default:
			reasons = append(reasons, "Other")
		}
		if in.GeomPresent {
			reasons = append(reasons, "Geometry present")
		} else if in.MatchCount > 0 {
			reasons = append(reasons, "LSR matches: "+strconv.Itoa(in.MatchCount))
		}
	}

	return reasons
}

// computeConfidence rates corroboration: high needs geometry, a report match,
// and a tripped threshold together; a report match alone earns medium.
func computeConfidence(in Input) domain.Confidence {
	switch {
	case in.GeomPresent && in.MatchCount > 0 && in.Flags.Any:
		return domain.ConfidenceHigh
	case (in.GeomPresent && (in.Flags.Any || in.MatchCount > 0)) || in.MatchCount > 0:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func formatMagnitude(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ActionToStatus maps an operator action to the status it sets. The reset
// action returns ok=false: the caller recomputes from system rules instead.
func ActionToStatus(action domain.TriageAction) (domain.TriageStatus, bool) {
	switch action {
	case domain.ActionSetActionable:
		return domain.TriageActionable, true
	case domain.ActionSetMonitoring:
		return domain.TriageMonitoring, true
	case domain.ActionSetSuppressed:
		return domain.TriageSuppressed, true
	case domain.ActionSetSentManual:
		return domain.TriageSentManual, true
	default:
		return "", false
	}
}
