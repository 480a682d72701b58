package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AlertClass is the coarse product class derived from the event name.
type AlertClass string

const (
	ClassWarning   AlertClass = "warning"
	ClassWatch     AlertClass = "watch"
	ClassAdvisory  AlertClass = "advisory"
	ClassStatement AlertClass = "statement"
	ClassOther     AlertClass = "other"
)

// GeoMethod describes the shape of the geographic input on an alert,
// independent of whether ZIP resolution through that input succeeded.
type GeoMethod string

const (
	GeoMethodPolygon GeoMethod = "polygon"
	GeoMethodZone    GeoMethod = "zone"
	GeoMethodCounty  GeoMethod = "county"
	GeoMethodUnknown GeoMethod = "unknown"
)

// ZipInferenceMethod records how the impacted ZIP list was produced.
type ZipInferenceMethod string

const (
	ZipInferencePolygon ZipInferenceMethod = "polygon_intersect"
	ZipInferenceNone    ZipInferenceMethod = "none"
)

// TriageStatus is the operator-facing workflow state.
type TriageStatus string

const (
	TriageNew        TriageStatus = "new"
	TriageMonitoring TriageStatus = "monitoring"
	TriageActionable TriageStatus = "actionable"
	TriageSuppressed TriageStatus = "suppressed"
	TriageSentManual TriageStatus = "sent_manual"
)

// TriageSource records who owns the current triage status. System-owned rows
// are recomputed every cycle; operator-owned rows are sticky until reset.
type TriageSource string

const (
	SourceSystem   TriageSource = "system"
	SourceOperator TriageSource = "operator"
)

// TriageAction is an operator mutation on triage state.
type TriageAction string

const (
	ActionSetActionable TriageAction = "set_actionable"
	ActionSetMonitoring TriageAction = "set_monitoring"
	ActionSetSuppressed TriageAction = "set_suppressed"
	ActionSetSentManual TriageAction = "set_sent_manual"
	ActionResetToSystem TriageAction = "reset_to_system"
)

// Confidence rates how well-corroborated an alert's severity assessment is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// HoldStatus tracks the storm-report confirmation hold for an alert.
type HoldStatus string

const (
	HoldNone     HoldStatus = "none"
	HoldAwaiting HoldStatus = "awaiting"
	HoldMatched  HoldStatus = "matched"
	HoldExpired  HoldStatus = "expired"
)

// StringList is a JSONB-backed string slice for PostgreSQL columns.
type StringList []string

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported column type for StringList")
	}
}

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// Alert is one normalized severe-weather notification from the feed,
// ephemeral within an ingestion cycle. ID is the feed-assigned natural key.
type Alert struct {
	ID          string
	Event       string
	Status      string
	MessageType string
	Severity    string
	Certainty   string
	Urgency     string
	Headline    string
	AreaDesc    string
	Description string
	Instruction string

	Sent      *time.Time
	Effective *time.Time
	Onset     *time.Time
	Expires   *time.Time
	Ends      *time.Time

	// Geometry is the raw GeoJSON geometry, nil when the alert carries none.
	Geometry json.RawMessage

	// ZoneCodes are UGC codes (e.g. TXZ123, TXC439) from the feed's geocode block.
	ZoneCodes []string
	// CountyFIPS are SAME codes (6-digit, leading zero + county FIPS).
	CountyFIPS []string
	// Regions are the state-level codes derived from ZoneCodes and CountyFIPS.
	Regions []string
}

// GeomPresent reports whether the alert carries usable polygon geometry.
func (a *Alert) GeomPresent() bool {
	return len(a.Geometry) > 0 && string(a.Geometry) != "null"
}

// ReportSummary aggregates the storm-report matches for one alert.
type ReportSummary struct {
	MatchCount        int        `gorm:"column:lsr_match_count;default:0" json:"lsr_match_count"`
	HailMaxInches     *float64   `gorm:"column:hail_max_inches" json:"hail_max_inches"`
	WindMaxMPH        *float64   `gorm:"column:wind_max_mph" json:"wind_max_mph"`
	TornadoCount      int        `gorm:"column:tornado_count;default:0" json:"tornado_count"`
	FloodCount        int        `gorm:"column:flood_count;default:0" json:"flood_count"`
	DamageKeywordHits int        `gorm:"column:damage_keyword_hits;default:0" json:"damage_keyword_hits"`
	TopSnippets       StringList `gorm:"column:lsr_snippets;type:jsonb" json:"lsr_snippets"`
}

// InterestingFlags are the threshold comparison results for one alert.
type InterestingFlags struct {
	Hail       bool `gorm:"column:interesting_hail" json:"interesting_hail"`
	Wind       bool `gorm:"column:interesting_wind" json:"interesting_wind"`
	RareFreeze bool `gorm:"column:interesting_rare_freeze" json:"interesting_rare_freeze"`
	Any        bool `gorm:"column:interesting_any" json:"interesting_any"`
}

// EnrichedAlert is the persistent per-alert aggregate, upserted by alert ID on
// every cycle that observes the alert. There is no deletion path.
type EnrichedAlert struct {
	AlertID     string `gorm:"column:alert_id;primaryKey" json:"alert_id"`
	Event       string `gorm:"column:event" json:"event"`
	Status      string `gorm:"column:status" json:"status"`
	MessageType string `gorm:"column:message_type" json:"message_type"`
	Severity    string `gorm:"column:severity" json:"severity"`
	Certainty   string `gorm:"column:certainty" json:"certainty"`
	Urgency     string `gorm:"column:urgency" json:"urgency"`
	Headline    string `gorm:"column:headline" json:"headline"`
	AreaDesc    string `gorm:"column:area_desc" json:"area_desc"`

	Sent      *time.Time `gorm:"column:sent" json:"sent"`
	Effective *time.Time `gorm:"column:effective" json:"effective"`
	Onset     *time.Time `gorm:"column:onset" json:"onset"`
	Expires   *time.Time `gorm:"column:expires" json:"expires"`
	Ends      *time.Time `gorm:"column:ends" json:"ends"`

	GeometryJSON []byte `gorm:"column:geometry_json;type:jsonb" json:"-"`
	GeomPresent  bool   `gorm:"column:geom_present" json:"geom_present"`

	Zips         StringList         `gorm:"column:zips;type:jsonb" json:"zips"`
	ZipCount     int                `gorm:"column:zip_count;default:0" json:"zip_count"`
	Regions      StringList         `gorm:"column:impacted_states;type:jsonb" json:"impacted_states"`
	AreaSqMiles  *float64           `gorm:"column:area_sq_miles" json:"area_sq_miles"`
	ZipDensity   *float64           `gorm:"column:zip_density" json:"zip_density"`
	GeoMethod    GeoMethod          `gorm:"column:geo_method;size:16" json:"geo_method"`
	ZipInference ZipInferenceMethod `gorm:"column:zip_inference_method;size:32" json:"zip_inference_method"`
	AlertClass   AlertClass         `gorm:"column:alert_class;size:16" json:"alert_class"`

	ReportSummary `json:"lsr_summary"`

	InterestingFlags `json:"interesting_flags"`
	DamageScore      int `gorm:"column:damage_score;default:0" json:"damage_score"`

	TriageStatus  TriageStatus `gorm:"column:triage_status;size:16;default:new" json:"triage_status"`
	TriageSource  TriageSource `gorm:"column:triage_status_source;size:16;default:system" json:"triage_status_source"`
	TriageReasons StringList   `gorm:"column:triage_reasons;type:jsonb" json:"triage_reasons"`
	Confidence    Confidence   `gorm:"column:confidence_level;size:8;default:low" json:"confidence_level"`

	HoldStatus      HoldStatus `gorm:"column:lsr_status;size:16;default:none" json:"lsr_status"`
	LastCheckedAt   *time.Time `gorm:"column:lsr_last_checked_at" json:"lsr_last_checked_at"`
	RecheckAttempts int        `gorm:"column:lsr_recheck_attempts;default:0" json:"lsr_recheck_attempts"`

	FirstSeenAt time.Time `gorm:"column:first_seen_at" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at" json:"last_seen_at"`
}

// TableName overrides the gorm default.
func (EnrichedAlert) TableName() string { return "enriched_alerts" }

// TriageAuditEntry is one append-only record of a triage status change.
type TriageAuditEntry struct {
	ID         string       `gorm:"column:id;primaryKey;size:36" json:"id"`
	AlertID    string       `gorm:"column:alert_id;index" json:"alert_id"`
	Actor      string       `gorm:"column:actor" json:"actor"`
	Action     TriageAction `gorm:"column:action;size:32" json:"action"`
	PrevStatus TriageStatus `gorm:"column:prev_status;size:16" json:"prev_status"`
	NewStatus  TriageStatus `gorm:"column:new_status;size:16" json:"new_status"`
	Note       string       `gorm:"column:note" json:"note,omitempty"`
	CreatedAt  time.Time    `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the gorm default.
func (TriageAuditEntry) TableName() string { return "triage_audit" }
