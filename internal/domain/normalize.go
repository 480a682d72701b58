package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// FeatureCollection is the GeoJSON envelope returned by the alert feed.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON feature from the active-alerts endpoint.
type Feature struct {
	ID         string            `json:"id"`
	Geometry   json.RawMessage   `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// FeatureProperties is the subset of feed properties the pipeline consumes.
type FeatureProperties struct {
	ID          string `json:"id"`
	AtID        string `json:"@id"`
	Event       string `json:"event"`
	Status      string `json:"status"`
	MessageType string `json:"messageType"`
	Severity    string `json:"severity"`
	Certainty   string `json:"certainty"`
	Urgency     string `json:"urgency"`
	Headline    string `json:"headline"`
	AreaDesc    string `json:"areaDesc"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
	Sent        string `json:"sent"`
	Effective   string `json:"effective"`
	Onset       string `json:"onset"`
	Expires     string `json:"expires"`
	Ends        string `json:"ends"`
	Geocode     struct {
		UGC  []string `json:"UGC"`
		SAME []string `json:"SAME"`
	} `json:"geocode"`
}

// ParseTimestamp parses a feed timestamp leniently: empty or unparsable input
// yields nil rather than an error.
func ParseTimestamp(value string) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// NormalizeFeature maps a raw feed feature to a canonical Alert. Returns nil
// when the record lacks a usable id. Timestamps parse leniently to nil.
func NormalizeFeature(f Feature) *Alert {
	id := f.Properties.ID
	if id == "" {
		id = f.Properties.AtID
	}
	if id == "" {
		id = f.ID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	geom := f.Geometry
	if len(geom) > 0 && string(geom) == "null" {
		geom = nil
	}

	a := &Alert{
		ID:          id,
		Event:       f.Properties.Event,
		Status:      f.Properties.Status,
		MessageType: f.Properties.MessageType,
		Severity:    f.Properties.Severity,
		Certainty:   f.Properties.Certainty,
		Urgency:     f.Properties.Urgency,
		Headline:    f.Properties.Headline,
		AreaDesc:    f.Properties.AreaDesc,
		Description: f.Properties.Description,
		Instruction: f.Properties.Instruction,
		Sent:        ParseTimestamp(f.Properties.Sent),
		Effective:   ParseTimestamp(f.Properties.Effective),
		Onset:       ParseTimestamp(f.Properties.Onset),
		Expires:     ParseTimestamp(f.Properties.Expires),
		Ends:        ParseTimestamp(f.Properties.Ends),
		Geometry:    geom,
		ZoneCodes:   f.Properties.Geocode.UGC,
		CountyFIPS:  f.Properties.Geocode.SAME,
	}
	a.Regions = RegionsFromGeocode(a.ZoneCodes, a.CountyFIPS)
	return a
}

// ActivationConfig controls which normalized alerts enter the pipeline.
type ActivationConfig struct {
	// AllowedEvents is the exact-match event allowlist; empty allows none.
	AllowedEvents []string
	// IncludeWatch additionally admits any event ending in "Watch".
	IncludeWatch bool
}

// Activation is the classification result for one alert.
type Activation struct {
	Actionable bool
	Kind       AlertClass
	Reason     string
}

// ClassifyActivation decides whether an alert is actionable: status must be
// actual, messageType must not be cancel, and the event must be allowlisted
// (or be a watch when IncludeWatch is set).
func ClassifyActivation(a *Alert, cfg ActivationConfig) Activation {
	if a == nil {
		return Activation{Kind: ClassOther, Reason: "missing alert"}
	}
	if !strings.EqualFold(strings.TrimSpace(a.Status), "actual") {
		return Activation{Kind: ClassOther, Reason: "status is not Actual"}
	}
	if strings.EqualFold(strings.TrimSpace(a.MessageType), "cancel") {
		return Activation{Kind: ClassOther, Reason: "messageType is Cancel"}
	}
	event := strings.TrimSpace(a.Event)
	for _, allowed := range cfg.AllowedEvents {
		if event == strings.TrimSpace(allowed) {
			return Activation{Actionable: true, Kind: ClassWarning, Reason: "in allowed events"}
		}
	}
	if cfg.IncludeWatch && strings.HasSuffix(event, "Watch") {
		return Activation{Actionable: true, Kind: ClassWatch, Reason: "watch included"}
	}
	return Activation{Kind: ClassOther, Reason: "not in allowed events"}
}
