// Package geo resolves an alert's geographic input to the list of impacted
// ZIP codes. Strategies are tried in order of precision: polygon intersect,
// zone geometry lookup, then an optional place-name geocode fallback.
package geo

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
)

// SpatialStore is the PostGIS query surface the resolver needs.
type SpatialStore interface {
	ZipsIntersectingGeometry(ctx context.Context, geometry json.RawMessage) ([]string, error)
	ZipsContainingPoint(ctx context.Context, lat, lon float64) ([]string, error)
	GeometryAreaSqMiles(ctx context.Context, geometry json.RawMessage) (*float64, error)
}

// ZoneCache is the persistent zone-to-ZIPs cache, shared across restarts.
type ZoneCache interface {
	GetZoneZips(ctx context.Context, code string) ([]string, bool, error)
	PutZoneZips(ctx context.Context, code string, zips []string) error
}

// ZoneFetcher retrieves zone geometry from the upstream feed.
type ZoneFetcher interface {
	FetchZoneGeometry(ctx context.Context, code string) (json.RawMessage, error)
}

// Resolution is the outcome of ZIP resolution for one alert.
type Resolution struct {
	Zips        []string
	AreaSqMiles *float64
	// Strategy names the first strategy that produced ZIPs, empty when none did.
	Strategy string
}

const (
	strategyPolygon = "polygon"
	strategyZone    = "zone"
	strategyGeocode = "geocode"
)

// Resolver runs the strategy chain. A nil geocoder disables the place-name
// fallback; everything else degrades gracefully on per-strategy failure.
type Resolver struct {
	store     SpatialStore
	zoneCache ZoneCache
	zones     ZoneFetcher
	geocoder  domain.Geocoder

	lru       *zoneLRU
	flight    singleflight.Group
	zoneDelay time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResolver wires the resolver from its dependencies. geocoder may be nil.
func NewResolver(cfg *config.Config, store SpatialStore, zoneCache ZoneCache, zones ZoneFetcher, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:     store,
		zoneCache: zoneCache,
		zones:     zones,
		geocoder:  geocoder,
		lru:       newZoneLRU(512),
		zoneDelay: cfg.ZoneFetchDelay,
		logger:    logger,
		metrics:   metrics,
	}
}

// Resolve runs the strategy chain for one alert. Strategy failures are logged
// and skipped; an alert that exhausts the chain resolves to an empty list.
func (r *Resolver) Resolve(ctx context.Context, alert *domain.Alert) (Resolution, error) {
	res := Resolution{}

	if alert.GeomPresent() {
		area, err := r.store.GeometryAreaSqMiles(ctx, alert.Geometry)
		if err != nil {
			r.logger.Warn("area computation failed", "alert_id", alert.ID, "error", err)
		} else {
			res.AreaSqMiles = area
		}

		zips, err := r.store.ZipsIntersectingGeometry(ctx, alert.Geometry)
		if err != nil {
			r.logger.Warn("polygon intersect failed", "alert_id", alert.ID, "error", err)
		} else if len(zips) > 0 {
			res.Zips = dedupSorted(zips)
			res.Strategy = strategyPolygon
			r.metrics.ZipsResolved.Add(float64(len(res.Zips)))
			return res, nil
		}
	}

	zips, err := r.resolveViaZones(ctx, alert)
	if err != nil {
		return res, err
	}
	if len(zips) > 0 {
		res.Zips = zips
		res.Strategy = strategyZone
		r.metrics.ZipsResolved.Add(float64(len(res.Zips)))
		return res, nil
	}

	if r.geocoder != nil {
		zips = r.resolveViaGeocode(ctx, alert)
		if len(zips) > 0 {
			res.Zips = zips
			res.Strategy = strategyGeocode
			r.metrics.ZipsResolved.Add(float64(len(res.Zips)))
			return res, nil
		}
	}

	return res, nil
}

// resolveViaZones unions the ZIP sets of every UGC code on the alert.
// Lookup order per code: process LRU, persistent cache, then a remote
// geometry fetch intersected against the ZIP table, with write-back to both
// caches. Remote fetches are spaced by the configured delay.
func (r *Resolver) resolveViaZones(ctx context.Context, alert *domain.Alert) ([]string, error) {
	seen := make(map[string]struct{})

	for _, code := range alert.ZoneCodes {
		if zips, ok := r.lru.get(code); ok {
			r.metrics.ZoneCacheLookup.WithLabelValues("hit").Inc()
			for _, z := range zips {
				seen[z] = struct{}{}
			}
			continue
		}

		if zips, ok, err := r.zoneCache.GetZoneZips(ctx, code); err != nil {
			r.logger.Warn("zone cache read failed", "zone", code, "error", err)
		} else if ok {
			r.metrics.ZoneCacheLookup.WithLabelValues("hit").Inc()
			r.lru.put(code, zips)
			for _, z := range zips {
				seen[z] = struct{}{}
			}
			continue
		}
		r.metrics.ZoneCacheLookup.WithLabelValues("miss").Inc()

		// Coalesce concurrent resolutions of the same uncached zone into a
		// single upstream fetch.
		v, err, _ := r.flight.Do(code, func() (any, error) {
			return r.fetchZoneZips(ctx, code)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("zone resolution failed", "zone", code, "error", err)
			continue
		}
		zips := v.([]string)
		r.lru.put(code, zips)
		if err := r.zoneCache.PutZoneZips(ctx, code, zips); err != nil {
			r.logger.Warn("zone cache write failed", "zone", code, "error", err)
		}
		for _, z := range zips {
			seen[z] = struct{}{}
		}
	}

	return setToSorted(seen), nil
}

func (r *Resolver) fetchZoneZips(ctx context.Context, code string) ([]string, error) {
	r.metrics.ZoneFetches.Inc()
	geom, err := r.zones.FetchZoneGeometry(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.zoneDelay > 0 {
		if err := sleepWithContext(ctx, r.zoneDelay); err != nil {
			return nil, err
		}
	}
	if geom == nil {
		// Unknown zone: cache the empty result so we stop asking.
		return []string{}, nil
	}
	zips, err := r.store.ZipsIntersectingGeometry(ctx, geom)
	if err != nil {
		return nil, err
	}
	return zips, nil
}

// resolveViaGeocode forward-geocodes place names pulled from the area
// description and collects the ZIPs containing each resulting point. This is
// a coarse last resort and is feature flagged off by default.
func (r *Resolver) resolveViaGeocode(ctx context.Context, alert *domain.Alert) []string {
	region := ""
	if len(alert.Regions) > 0 {
		region = alert.Regions[0]
	}

	seen := make(map[string]struct{})
	for _, place := range placeNames(alert.AreaDesc) {
		result, err := r.geocoder.ForwardGeocode(ctx, place, region)
		if err != nil {
			r.logger.Warn("geocode failed", "place", place, "error", err)
			continue
		}
		if result.FormattedAddress == "" {
			continue
		}
		zips, err := r.store.ZipsContainingPoint(ctx, result.Lat, result.Lon)
		if err != nil {
			r.logger.Warn("point lookup failed", "place", place, "error", err)
			continue
		}
		for _, z := range zips {
			seen[z] = struct{}{}
		}
	}
	return setToSorted(seen)
}

// maxGeocodePlaces bounds provider calls for alerts with sprawling area text.
const maxGeocodePlaces = 3

// placeNames splits an area description like "Dallas; Tarrant; Collin" into
// candidate place names.
func placeNames(areaDesc string) []string {
	var names []string
	for _, part := range strings.Split(areaDesc, ";") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		names = append(names, name)
		if len(names) == maxGeocodePlaces {
			break
		}
	}
	return names
}

// ResolveAll resolves a batch of alerts concurrently and returns resolutions
// keyed by alert ID. Individual alert failures are logged and yield an empty
// resolution rather than failing the batch.
func (r *Resolver) ResolveAll(ctx context.Context, alerts []*domain.Alert) map[string]Resolution {
	results := make([]Resolution, len(alerts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, alert := range alerts {
		g.Go(func() error {
			res, err := r.Resolve(gctx, alert)
			if err != nil {
				r.logger.Warn("zip resolution aborted", "alert_id", alert.ID, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Resolution, len(alerts))
	for i, alert := range alerts {
		out[alert.ID] = results[i]
	}
	return out
}

func dedupSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		seen[s] = struct{}{}
	}
	return setToSorted(seen)
}

func setToSorted(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
