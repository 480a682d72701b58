package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves place names to points for the place-name ZIP fallback.
type Geocoder interface {
	// ForwardGeocode converts a place name and region code to coordinates.
	ForwardGeocode(ctx context.Context, name, region string) (GeocodingResult, error)
}
