package domain

import "time"

// ReportEventType classifies one parsed storm-report line.
type ReportEventType string

const (
	EventHail         ReportEventType = "HAIL"
	EventWindGust     ReportEventType = "TSTM_WND_GST"
	EventWindDamage   ReportEventType = "TSTM_WND_DMG"
	EventTornado      ReportEventType = "TORNADO"
	EventFlashFlood   ReportEventType = "FLASH_FLOOD"
	EventHeavyRain    ReportEventType = "HEAVY_RAIN"
	EventFunnelCloud  ReportEventType = "FUNNEL_CLOUD"
	EventIceStorm     ReportEventType = "ICE_STORM"
	EventFreezingRain ReportEventType = "FREEZING_RAIN"
	EventUnknown      ReportEventType = "UNKNOWN"
)

// TimeConfidence rates the occurred-time extraction: high when the line
// carried its own time token, low when the bulletin issuance time was used.
type TimeConfidence string

const (
	TimeConfidenceHigh TimeConfidence = "high"
	TimeConfidenceLow  TimeConfidence = "low"
	TimeConfidenceNone TimeConfidence = ""
)

// StormReportObservation is one parsed line from a report bulletin. The ID is
// deterministic (bulletin id + line index + occurred timestamp) so re-parsing
// the same bulletin is an idempotent upsert.
type StormReportObservation struct {
	ObservationID string          `gorm:"column:observation_id;primaryKey" json:"observation_id"`
	BulletinID    string          `gorm:"column:bulletin_id;index" json:"bulletin_id"`
	IssuedAt      *time.Time      `gorm:"column:issued_at" json:"issued_at"`
	EventType     ReportEventType `gorm:"column:event_type;size:16" json:"event_type"`
	OccurredAt    *time.Time      `gorm:"column:occurred_at" json:"occurred_at"`
	OccurredConf  TimeConfidence  `gorm:"column:occurred_time_confidence;size:8" json:"occurred_time_confidence"`

	Region string `gorm:"column:region;size:2" json:"region"`
	Place  string `gorm:"column:place" json:"place"`

	HailInches *float64 `gorm:"column:hail_inches" json:"hail_inches"`
	WindMPH    *float64 `gorm:"column:wind_mph" json:"wind_mph"`
	RainInches *float64 `gorm:"column:rain_inches" json:"rain_inches"`
	TempF      *float64 `gorm:"column:temp_f" json:"temp_f"`

	Lat *float64 `gorm:"column:lat" json:"lat"`
	Lon *float64 `gorm:"column:lon" json:"lon"`

	RawLine string `gorm:"column:raw_line_text" json:"raw_line_text"`
}

// TableName overrides the gorm default.
func (StormReportObservation) TableName() string { return "storm_report_observations" }

// HasCoordinates reports whether the observation carries a usable point.
func (o *StormReportObservation) HasCoordinates() bool {
	return o.Lat != nil && o.Lon != nil
}

// MatchMethod records how an observation matched an alert geometry.
type MatchMethod string

const (
	MatchContains MatchMethod = "contains"
	MatchDWithin  MatchMethod = "dwithin"
)

// StormReportMatch is a confirmed spatio-temporal association between an alert
// and an observation, unique on the pair.
type StormReportMatch struct {
	AlertID        string      `gorm:"column:alert_id;primaryKey" json:"alert_id"`
	ObservationID  string      `gorm:"column:observation_id;primaryKey" json:"observation_id"`
	Method         MatchMethod `gorm:"column:method;size:16" json:"method"`
	DistanceMeters *float64    `gorm:"column:distance_meters" json:"distance_meters"`
	Confidence     Confidence  `gorm:"column:confidence;size:8" json:"confidence"`
	CreatedAt      time.Time   `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the gorm default.
func (StormReportMatch) TableName() string { return "storm_report_matches" }
