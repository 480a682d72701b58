// Package lsr is the storm-report engine: bulletin parsing, spatio-temporal
// matching against warning geometries, summary aggregation, and the recheck
// hold state machine. Parsing is regex based by design; bulletins follow a
// fixed line grammar and no inference is attempted.
package lsr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

var (
	// hailRe captures whole inches, an optional "N/D" fraction, and an
	// optional decimal part: "HAIL 1 1/2 IN" and "HAIL 1.75 IN" both parse.
	hailRe = regexp.MustCompile(`(?i)HAIL\s+(\d+)(?:\s+(\d+)/(\d+))?(?:\.(\d+))?\s*(?:IN\.?)?`)
	// windGustRe matches "TSTM WND GST 70 MPH" and "WND GST 58 MPH".
	windGustRe = regexp.MustCompile(`(?i)(?:TSTM\s+)?WND\s+GST\s+(\d+)\s*MPH`)
	windDmgRe  = regexp.MustCompile(`(?i)TSTM\s+WND\s+DMG`)
	windAnyRe  = regexp.MustCompile(`(?i)(?:TSTM\s+)?WND\s+GST\b`)
	rainRe     = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*IN\.?(?:\s|$)`)
	tempRe     = regexp.MustCompile(`(?i)(\d+)\s*F\b`)
	// timeRe is the best-effort in-line time token: "0153 PM CDT", "1:53 PM", "15:53 UTC".
	timeRe = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(AM|PM|UTC|CDT|CST|EDT|EST|MDT|MST|PDT|PST)\b`)

	latLonCommaRe = regexp.MustCompile(`(-?\d{1,3}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)`)
	latLonSpaceRe = regexp.MustCompile(`(-?\d{1,3}\.\d+)\s+(-?\d{1,3}\.\d+)`)

	regionCodeRe = regexp.MustCompile(`(?i)\b(AL|AK|AZ|AR|CA|CO|CT|DE|FL|GA|HI|ID|IL|IN|IA|KS|KY|LA|ME|MD|MA|MI|MN|MS|MO|MT|NE|NV|NH|NJ|NM|NY|NC|ND|OH|OK|OR|PA|RI|SC|SD|TN|TX|UT|VT|VA|WA|WV|WI|WY|DC)\b`)

	separatorLineRe = regexp.MustCompile(`^[.*\-\s]+$`)

	tornadoRe      = regexp.MustCompile(`(?i)\bTORNADO\b`)
	flashFloodRe   = regexp.MustCompile(`(?i)\bFLASH\s*FLOOD\b`)
	heavyRainRe    = regexp.MustCompile(`(?i)\bHEAVY\s*RAIN\b`)
	funnelRe       = regexp.MustCompile(`(?i)\bFUNNEL\b`)
	iceStormRe     = regexp.MustCompile(`(?i)\bICE\s*STORM\b`)
	freezingRainRe = regexp.MustCompile(`(?i)\bFREEZING\s*RAIN\b`)
	hailWordRe     = regexp.MustCompile(`(?i)\bHAIL\b`)
)

// EventTypeFromLine classifies a bulletin line by keyword precedence. Tornado
// outranks everything; wind damage outranks a bare gust.
func EventTypeFromLine(line string) domain.ReportEventType {
	switch {
	case tornadoRe.MatchString(line):
		return domain.EventTornado
	case flashFloodRe.MatchString(line):
		return domain.EventFlashFlood
	case heavyRainRe.MatchString(line):
		return domain.EventHeavyRain
	case funnelRe.MatchString(line):
		return domain.EventFunnelCloud
	case iceStormRe.MatchString(line):
		return domain.EventIceStorm
	case freezingRainRe.MatchString(line):
		return domain.EventFreezingRain
	case hailWordRe.MatchString(line):
		return domain.EventHail
	case windDmgRe.MatchString(line):
		return domain.EventWindDamage
	case windAnyRe.MatchString(line):
		return domain.EventWindGust
	default:
		return domain.EventUnknown
	}
}

// ParseHailInches extracts a hail size from a line, handling fractional
// notation: "HAIL 1 1/2 IN" parses to 1.5, "HAIL 1.75 IN" to 1.75.
func ParseHailInches(line string) *float64 {
	m := hailRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	if m[2] != "" && m[3] != "" {
		num, errN := strconv.ParseFloat(m[2], 64)
		den, errD := strconv.ParseFloat(m[3], 64)
		if errN == nil && errD == nil && den != 0 {
			n += num / den
		}
	}
	if m[4] != "" {
		if v, err := strconv.ParseFloat(m[1]+"."+m[4], 64); err == nil {
			n = v
		}
	}
	return &n
}

// ParseWindMPH extracts a wind gust speed from a line.
func ParseWindMPH(line string) *float64 {
	m := windGustRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseRainInches extracts a rainfall amount from a line.
func ParseRainInches(line string) *float64 {
	m := rainRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseTempF extracts a temperature from a line.
func ParseTempF(line string) *float64 {
	m := tempRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseTimeFromLine extracts a best-effort occurred time from an in-line time
// token, anchored to the bulletin issuance date. Lines without a token fall
// back to the issuance time itself. Daylight-zone tokens without AM/PM are
// read as afternoon times, matching how offices write them.
func ParseTimeFromLine(line string, issuedAt *time.Time) *time.Time {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		if issuedAt == nil {
			return nil
		}
		t := *issuedAt
		return &t
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	zone := strings.ToUpper(m[3])

	switch zone {
	case "PM":
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "CDT", "EDT", "MDT", "PDT":
		if hour < 12 {
			hour += 12
		}
	}
	if hour > 23 {
		hour %= 24
	}

	base := domain.Now()
	if issuedAt != nil {
		base = *issuedAt
	}
	t := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, time.UTC)
	return &t
}

// ParseLatLon extracts a coordinate pair from a line: either comma separated
// "(32.12, -97.45)" or space separated "32.12 -97.45", range validated.
func ParseLatLon(line string) (lat, lon *float64) {
	for _, re := range []*regexp.Regexp{latLonCommaRe, latLonSpaceRe} {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		la, errA := strconv.ParseFloat(m[1], 64)
		lo, errO := strconv.ParseFloat(m[2], 64)
		if errA != nil || errO != nil {
			continue
		}
		if la < -90 || la > 90 || lo < -180 || lo > 180 {
			continue
		}
		return &la, &lo
	}
	return nil, nil
}

// parseRegionPlace extracts a coarse region code and a place-text snippet.
func parseRegionPlace(line string) (region, place string) {
	if m := regionCodeRe.FindString(line); m != "" {
		region = strings.ToUpper(m)
	}
	place = strings.TrimSpace(line)
	if len(place) > 100 {
		place = strings.TrimSpace(place[:100])
	}
	return region, place
}

// ParseBulletin splits a bulletin body into physical lines and parses each
// into an observation. Lines with neither a recognized event type nor any
// magnitude are discarded. Observation ids are deterministic (bulletin id +
// line index + occurred timestamp) so re-parsing the same bulletin yields
// identical ids.
func ParseBulletin(text, bulletinID string, issuedAt *time.Time) []domain.StormReportObservation {
	var observations []domain.StormReportObservation

	lineIndex := -1
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || separatorLineRe.MatchString(line) {
			continue
		}
		lineIndex++

		eventType := EventTypeFromLine(line)
		hail := ParseHailInches(line)
		wind := ParseWindMPH(line)
		if eventType == domain.EventUnknown && hail == nil && wind == nil {
			continue
		}

		occurred := ParseTimeFromLine(line, issuedAt)
		conf := domain.TimeConfidenceNone
		if timeRe.MatchString(line) {
			conf = domain.TimeConfidenceHigh
		} else if issuedAt != nil {
			conf = domain.TimeConfidenceLow
		}

		lat, lon := ParseLatLon(line)
		region, place := parseRegionPlace(line)

		ts := int64(lineIndex)
		if occurred != nil {
			ts = occurred.UnixMilli()
		}

		observations = append(observations, domain.StormReportObservation{
			ObservationID: fmt.Sprintf("%s_%d_%d", bulletinID, lineIndex, ts),
			BulletinID:    bulletinID,
			IssuedAt:      issuedAt,
			EventType:     eventType,
			OccurredAt:    occurred,
			OccurredConf:  conf,
			Region:        region,
			Place:         place,
			HailInches:    hail,
			WindMPH:       wind,
			RainInches:    ParseRainInches(line),
			TempF:         ParseTempF(line),
			Lat:           lat,
			Lon:           lon,
			RawLine:       line,
		})
	}
	return observations
}
