package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/directory"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/geo"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRadiusMeters = 5000
	MaxRadiusMeters     = 50000
	ExternalIDPrefix    = "google_"
)

// ClinicSource supplies internal clinics and their open slots.
type ClinicSource interface {
	SearchableClinicsInBox(ctx context.Context, box geo.Box) ([]model.Clinic, error)
	ListAvailable(ctx context.Context, clinicID string, day *time.Time) ([]model.TimeSlot, error)
}

type Query struct {
	Lat          float64
	Lng          float64
	RadiusMeters int
}

// Result is one ranked clinic. External results carry no slots.
type Result struct {
	ID             string
	Name           string
	Address        string
	Latitude       float64
	Longitude      float64
	PhoneNumber    string
	Email          string
	WalkInStart    string
	WalkInEnd      string
	PhotoURL       string
	Website        string
	DistanceMeters float64
	IsExternal     bool
	ExternalID     string
	AvailableSlots []model.TimeSlot
}

type Config struct {
	// ExternalTimeout bounds the directory call. Zero means 3s.
	ExternalTimeout time.Duration
	// StrictRadius drops results farther than the requested radius.
	StrictRadius bool
	// SlotConcurrency bounds parallel slot lookups for internal clinics.
	SlotConcurrency int
}

// Aggregator merges internal clinics with external directory places into a
// single list ordered by distance from the query point.
type Aggregator struct {
	clinics ClinicSource
	dir     directory.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
}

func NewAggregator(clinics ClinicSource, dir directory.Client, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Aggregator {
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = 3 * time.Second
	}
	if cfg.SlotConcurrency <= 0 {
		cfg.SlotConcurrency = 8
	}
	if dir == nil {
		dir = directory.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{clinics: clinics, dir: dir, logger: logger, metrics: m, cfg: cfg}
}

func (q *Query) normalize() error {
	if q.RadiusMeters == 0 {
		q.RadiusMeters = DefaultRadiusMeters
	}
	if !(geo.Point{Lat: q.Lat, Lng: q.Lng}).Valid() {
		return fmt.Errorf("%w: lat must be within [-90,90] and lng within [-180,180]", model.ErrValidation)
	}
	if q.RadiusMeters < 0 || q.RadiusMeters > MaxRadiusMeters {
		return fmt.Errorf("%w: radius must be between 1 and %d meters", model.ErrValidation, MaxRadiusMeters)
	}
	return nil
}

// Search runs the internal and external lookups concurrently. Internal
// failures fail the search; external failures degrade to no external results.
func (a *Aggregator) Search(ctx context.Context, q Query) ([]Result, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer("clinic-service/search").Start(ctx, "search.Nearby")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("search.lat", q.Lat),
		attribute.Float64("search.lng", q.Lng),
		attribute.Int("search.radius_m", q.RadiusMeters),
	)
	start := time.Now()
	origin := geo.Point{Lat: q.Lat, Lng: q.Lng}

	var internal []Result
	var external []directory.Place
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		internal, err = a.internal(gctx, origin, q.RadiusMeters)
		return err
	})
	g.Go(func() error {
		external = a.external(gctx, q)
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search internal clinics: %w", err)
	}

	results := make([]Result, 0, len(internal)+len(external))
	results = append(results, internal...)
	for _, p := range external {
		results = append(results, fromPlace(p, origin))
	}
	if a.cfg.StrictRadius {
		results = withinRadius(results, float64(q.RadiusMeters))
	}
	// Internal results come first, so equal distances keep internal ahead.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceMeters < results[j].DistanceMeters
	})

	a.metrics.ObserveSearch(len(internal), len(external), time.Since(start))
	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results, nil
}

func (a *Aggregator) internal(ctx context.Context, origin geo.Point, radius int) ([]Result, error) {
	clinics, err := a.clinics.SearchableClinicsInBox(ctx, geo.BoxAround(origin, float64(radius)))
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(clinics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.SlotConcurrency)
	for i, c := range clinics {
		g.Go(func() error {
			slots, err := a.clinics.ListAvailable(gctx, c.ID, nil)
			if err != nil {
				return fmt.Errorf("slots for clinic %s: %w", c.ID, err)
			}
			results[i] = fromClinic(c, origin, slots)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// external never fails. It gives up after ExternalTimeout even if the client
// ignores cancellation.
func (a *Aggregator) external(ctx context.Context, q Query) []directory.Place {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ExternalTimeout)
	defer cancel()

	type outcome struct {
		places []directory.Place
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		places, err := a.dir.SearchNearby(ctx, q.Lat, q.Lng, q.RadiusMeters)
		done <- outcome{places, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			a.degrade(out.err)
			return nil
		}
		return out.places
	case <-ctx.Done():
		a.degrade(ctx.Err())
		return nil
	}
}

func (a *Aggregator) degrade(err error) {
	a.metrics.DirectoryFailure("nearby")
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	a.logger.Log(context.Background(), level, "external directory unavailable, returning internal results only", "err", err)
}

func fromClinic(c model.Clinic, origin geo.Point, slots []model.TimeSlot) Result {
	if slots == nil {
		slots = []model.TimeSlot{}
	}
	return Result{
		ID:             c.ID,
		Name:           c.Name,
		Address:        c.Address,
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		PhoneNumber:    c.PhoneNumber,
		Email:          c.Email,
		WalkInStart:    c.WalkInStart,
		WalkInEnd:      c.WalkInEnd,
		PhotoURL:       c.PhotoURL,
		DistanceMeters: distance(origin, geo.Point{Lat: c.Latitude, Lng: c.Longitude}),
		AvailableSlots: slots,
	}
}

func fromPlace(p directory.Place, origin geo.Point) Result {
	return Result{
		ID:             ExternalIDPrefix + p.PlaceID,
		Name:           p.Name,
		Address:        p.Address,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		PhoneNumber:    p.PhoneNumber,
		Website:        p.Website,
		DistanceMeters: distance(origin, geo.Point{Lat: p.Latitude, Lng: p.Longitude}),
		IsExternal:     true,
		ExternalID:     p.PlaceID,
	}
}

// distance is rounded to whole meters.
func distance(a, b geo.Point) float64 {
	return math.Round(geo.Distance(a, b))
}

func withinRadius(results []Result, radius float64) []Result {
	out := results[:0]
	for _, r := range results {
		if r.DistanceMeters <= radius {
			out = append(out, r)
		}
	}
	return out
}
