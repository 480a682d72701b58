// Package domain models severe-weather alerts and the ground-truth storm
// reports used to corroborate them.
//
// # Data Sources
//
// Alerts come from the weather feed's active-alerts endpoint as a GeoJSON
// FeatureCollection. Each feature carries CAP-style properties (event, status,
// severity, timing) plus a geocode block with UGC zone codes and SAME county
// FIPS codes. Geometry is optional: warnings usually carry a polygon, zone
// based products do not.
//
// Storm reports arrive as free-text bulletins, one discrete observation per
// line, e.g.:
//
//	0153 PM     HAIL             2 N GRANBURY            32.46 -97.79
//	            1 1/2 IN         HOOD               TX   SPOTTER REPORT
//
// Parsing is regex based by design. See the lsr package for the line grammar.
//
// # Conventions
//
// UGC codes: 2-letter region, a type character (Z = forecast zone, C =
// county), 3 digits, e.g. TXZ123 / TXC439. Region codes derive from the UGC
// prefix and the FIPS prefix of SAME codes.
//
// Hail magnitudes are inches, possibly in "N M/D" fraction notation
// ("HAIL 1 1/2 IN" = 1.5). Wind is mph, rain inches, temperature °F.
//
// # Identity
//
// Alert IDs are feed-assigned and stable: re-fetching the same id updates the
// persisted row rather than duplicating it. Observation IDs are deterministic
// (bulletin id + line index + occurred timestamp) so re-parsing a bulletin is
// an idempotent upsert. Outbox event keys are SHA-256 hashes of
// (alert id, payload version, sorted ZIP list) for the same reason.
package domain
