package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"googlemaps.github.io/maps"
)

type GoogleConfig struct {
	APIKey string
	// BaseURL overrides the Google endpoint host, for tests and proxies.
	BaseURL string
	// PlaceTypes are searched separately and merged. Empty means
	// DefaultPlaceTypes.
	PlaceTypes         []string
	DetailsConcurrency int
	Timeout            time.Duration
	HTTPClient         *http.Client
}

// Google talks to the Google Maps Geocoding and Places APIs.
type Google struct {
	client      *maps.Client
	placeTypes  []maps.PlaceType
	concurrency int
	logger      *slog.Logger
}

func NewGoogle(cfg GoogleConfig, logger *slog.Logger) (*Google, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("google maps api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	opts := []maps.ClientOption{maps.WithAPIKey(cfg.APIKey), maps.WithHTTPClient(hc)}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if len(cfg.PlaceTypes) == 0 {
		cfg.PlaceTypes = DefaultPlaceTypes
	}
	types := make([]maps.PlaceType, 0, len(cfg.PlaceTypes))
	for _, t := range cfg.PlaceTypes {
		pt, err := maps.ParsePlaceType(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("place type %q: %w", t, err)
		}
		types = append(types, pt)
	}
	if cfg.DetailsConcurrency <= 0 {
		cfg.DetailsConcurrency = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{
		client:      client,
		placeTypes:  types,
		concurrency: cfg.DetailsConcurrency,
		logger:      logger,
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrUpstreamUnavailable, op, err)
}

func (g *Google) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	if strings.TrimSpace(address) == "" {
		return GeocodeResult{}, fmt.Errorf("%w: address is required", model.ErrValidation)
	}
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return GeocodeResult{}, unavailable("geocode", err)
	}
	if len(results) == 0 {
		return GeocodeResult{}, unavailable("geocode", fmt.Errorf("no results for %q", address))
	}
	r := results[0]
	return GeocodeResult{
		Latitude:         r.Geometry.Location.Lat,
		Longitude:        r.Geometry.Location.Lng,
		FormattedAddress: r.FormattedAddress,
		PlaceID:          r.PlaceID,
	}, nil
}

// ValidateAddress reports whether the directory recognises address as an
// establishment. Any failure reads as not valid.
func (g *Google) ValidateAddress(ctx context.Context, address string) bool {
	if strings.TrimSpace(address) == "" {
		return false
	}
	resp, err := g.client.PlaceAutocomplete(ctx, &maps.PlaceAutocompleteRequest{
		Input: address,
		Types: maps.AutocompletePlaceTypeEstablishment,
	})
	if err != nil {
		g.logger.Debug("address validation failed", "err", err)
		return false
	}
	return len(resp.Predictions) > 0
}

// SearchNearby returns up to MaxResults places around the point, enriched with
// details where the details call succeeds.
func (g *Google) SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]Place, error) {
	if radiusMeters <= 0 {
		radiusMeters = 5000
	}
	perType := make([][]maps.PlacesSearchResult, len(g.placeTypes))
	errs := make([]error, len(g.placeTypes))
	tg, tctx := errgroup.WithContext(ctx)
	for i, pt := range g.placeTypes {
		tg.Go(func() error {
			resp, err := g.client.NearbySearch(tctx, &maps.NearbySearchRequest{
				Location: &maps.LatLng{Lat: lat, Lng: lng},
				Radius:   uint(radiusMeters),
				Type:     pt,
			})
			if err != nil {
				errs[i] = err
				return nil
			}
			perType[i] = resp.Results
			return nil
		})
	}
	_ = tg.Wait()

	places, failed := mergeNearby(perType, errs)
	if failed == len(g.placeTypes) {
		return nil, unavailable("nearby search", errors.Join(errs...))
	}
	if failed > 0 {
		g.logger.Warn("nearby search partially failed", "failed_types", failed, "err", errors.Join(errs...))
	}

	// Detail failures keep the basic record, so the group never errors.
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i := range places {
		eg.Go(func() error {
			if p, ok := g.details(ectx, places[i]); ok {
				places[i] = p
			}
			return nil
		})
	}
	_ = eg.Wait()
	return places, nil
}

func (g *Google) details(ctx context.Context, base Place) (Place, bool) {
	if base.PlaceID == "" {
		return base, false
	}
	d, err := g.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID: base.PlaceID,
		Fields: []maps.PlaceDetailsFieldMask{
			maps.PlaceDetailsFieldMaskPlaceID,
			maps.PlaceDetailsFieldMaskName,
			maps.PlaceDetailsFieldMaskFormattedAddress,
			maps.PlaceDetailsFieldMaskGeometry,
			maps.PlaceDetailsFieldMaskFormattedPhoneNumber,
			maps.PlaceDetailsFieldMaskWebsite,
			maps.PlaceDetailsFieldMaskPhotos,
		},
	})
	if err != nil {
		g.logger.Debug("place details failed, using basic record", "place_id", base.PlaceID, "err", err)
		return base, false
	}
	p := base
	if d.Name != "" {
		p.Name = d.Name
	}
	if d.FormattedAddress != "" {
		p.Address = d.FormattedAddress
	}
	if loc := d.Geometry.Location; loc.Lat != 0 || loc.Lng != 0 {
		p.Latitude, p.Longitude = loc.Lat, loc.Lng
	}
	p.PhoneNumber = d.FormattedPhoneNumber
	p.Website = d.Website
	if len(d.Photos) > 0 {
		p.PhotoReference = d.Photos[0].PhotoReference
	}
	return p, true
}

// mergeNearby concatenates results in place type order, dropping repeated
// place ids and stopping at MaxResults.
func mergeNearby(perType [][]maps.PlacesSearchResult, errs []error) ([]Place, int) {
	failed := 0
	seen := make(map[string]bool)
	places := make([]Place, 0, MaxResults)
	for i, results := range perType {
		if errs[i] != nil {
			failed++
			continue
		}
		for _, r := range results {
			if len(places) == MaxResults {
				break
			}
			if r.PlaceID != "" {
				if seen[r.PlaceID] {
					continue
				}
				seen[r.PlaceID] = true
			}
			places = append(places, basicPlace(r))
		}
	}
	return places, failed
}

func basicPlace(r maps.PlacesSearchResult) Place {
	addr := r.Vicinity
	if addr == "" {
		addr = r.FormattedAddress
	}
	p := Place{
		PlaceID:   r.PlaceID,
		Name:      r.Name,
		Address:   addr,
		Latitude:  r.Geometry.Location.Lat,
		Longitude: r.Geometry.Location.Lng,
	}
	if len(r.Photos) > 0 {
		p.PhotoReference = r.Photos[0].PhotoReference
	}
	return p
}
