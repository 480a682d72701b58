package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// zipsIntersectSQL resolves ZIPs (ZCTA codes) intersecting a GeoJSON
// geometry. The shape table geom is SRID 4269 (NAD83); the feed geometry is
// WGS84, so the input is transformed to match the GIST-indexed side.
const zipsIntersectSQL = `
SELECT DISTINCT zcta5ce20
FROM public.zcta5_raw
WHERE ST_Intersects(
  geom,
  ST_Transform(ST_SetSRID(ST_GeomFromGeoJSON(?::text), 4326), 4269)
)`

// ZipsIntersectingGeometry resolves the ZIP codes whose shapes intersect the
// given GeoJSON geometry.
func (s *Store) ZipsIntersectingGeometry(ctx context.Context, geometry json.RawMessage) ([]string, error) {
	if len(geometry) == 0 {
		return nil, nil
	}
	var zips []string
	err := s.db.WithContext(ctx).Raw(zipsIntersectSQL, string(geometry)).Scan(&zips).Error
	if err != nil {
		return nil, fmt.Errorf("zip intersection: %w", err)
	}
	return zips, nil
}

const zipsContainingPointSQL = `
SELECT DISTINCT zcta5ce20
FROM public.zcta5_raw
WHERE ST_Contains(
  geom,
  ST_Transform(ST_SetSRID(ST_MakePoint(?, ?), 4326), 4269)
)`

// ZipsContainingPoint resolves the ZIP codes whose shapes contain a point.
func (s *Store) ZipsContainingPoint(ctx context.Context, lat, lon float64) ([]string, error) {
	var zips []string
	err := s.db.WithContext(ctx).Raw(zipsContainingPointSQL, lon, lat).Scan(&zips).Error
	if err != nil {
		return nil, fmt.Errorf("zip point lookup: %w", err)
	}
	return zips, nil
}

// geometryAreaSQL measures geodesic area; the geography cast gives square
// meters regardless of latitude.
const geometryAreaSQL = `
SELECT ST_Area(ST_SetSRID(ST_GeomFromGeoJSON(?::text), 4326)::geography) / 2589988.110336 AS sq_miles`

// GeometryAreaSqMiles computes the area of a GeoJSON geometry in square
// miles, nil for empty or zero-area geometry.
func (s *Store) GeometryAreaSqMiles(ctx context.Context, geometry json.RawMessage) (*float64, error) {
	if len(geometry) == 0 {
		return nil, nil
	}
	var sqMiles float64
	err := s.db.WithContext(ctx).Raw(geometryAreaSQL, string(geometry)).Scan(&sqMiles).Error
	if err != nil {
		return nil, fmt.Errorf("geometry area: %w", err)
	}
	if sqMiles <= 0 {
		return nil, nil
	}
	return &sqMiles, nil
}

// insertMatchesSQL is the set-based matching join over warning alerts with
// geometry and timed observations with coordinates: the observation must fall
// inside the alert's buffered validity window, its region code must overlap
// the alert's region set (or the alert must carry none), and its point must
// be contained in the polygon (confidence high) or within the distance
// buffer of it (confidence medium). The conflict target is the
// (alert, observation) pair, so re-running is idempotent and only new pairs
// are inserted.
const insertMatchesSQL = `
INSERT INTO storm_report_matches (alert_id, observation_id, method, distance_meters, confidence, created_at)
SELECT
  a.alert_id,
  o.observation_id,
  CASE
    WHEN ST_Contains(ST_SetSRID(ST_GeomFromGeoJSON(a.geometry_json::text), 4326), ST_SetSRID(ST_MakePoint(o.lon, o.lat), 4326))
    THEN 'contains' ELSE 'dwithin'
  END,
  ST_Distance(
    ST_SetSRID(ST_GeomFromGeoJSON(a.geometry_json::text), 4326)::geography,
    ST_SetSRID(ST_MakePoint(o.lon, o.lat), 4326)::geography
  ),
  CASE
    WHEN ST_Contains(ST_SetSRID(ST_GeomFromGeoJSON(a.geometry_json::text), 4326), ST_SetSRID(ST_MakePoint(o.lon, o.lat), 4326))
    THEN 'high' ELSE 'medium'
  END,
  NOW()
FROM enriched_alerts a
JOIN storm_report_observations o
  ON o.lat IS NOT NULL AND o.lon IS NOT NULL AND o.occurred_at IS NOT NULL
WHERE a.alert_id IN ?
  AND a.alert_class = 'warning'
  AND a.geom_present = TRUE
  AND ST_DWithin(
    ST_SetSRID(ST_GeomFromGeoJSON(a.geometry_json::text), 4326)::geography,
    ST_SetSRID(ST_MakePoint(o.lon, o.lat), 4326)::geography,
    ?
  )
  AND (a.effective IS NULL OR o.occurred_at >= a.effective - ?::interval)
  AND (COALESCE(a.ends, a.expires) IS NULL OR o.occurred_at <= COALESCE(a.ends, a.expires) + ?::interval)
  AND (
    jsonb_array_length(COALESCE(a.impacted_states, '[]'::jsonb)) = 0
    OR (o.region <> '' AND a.impacted_states @> to_jsonb(o.region))
  )
ON CONFLICT (alert_id, observation_id) DO NOTHING`

// InsertMatches runs set-based report matching for the given alerts and
// returns the number of newly inserted match rows.
func (s *Store) InsertMatches(ctx context.Context, alertIDs []string, timeBuffer time.Duration, maxDistanceMeters float64) (int64, error) {
	if len(alertIDs) == 0 {
		return 0, nil
	}
	buffer := fmt.Sprintf("%d seconds", int(timeBuffer.Seconds()))
	result := s.db.WithContext(ctx).Exec(insertMatchesSQL, alertIDs, maxDistanceMeters, buffer, buffer)
	if result.Error != nil {
		return 0, fmt.Errorf("insert matches: %w", result.Error)
	}
	return result.RowsAffected, nil
}
