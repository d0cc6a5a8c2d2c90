package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/directory"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/storage"
)

type stubDirectory struct {
	directory.Disabled
	places []directory.Place
	err    error
	delay  time.Duration
}

func (s stubDirectory) SearchNearby(ctx context.Context, _, _ float64, _ int) ([]directory.Place, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.places, s.err
}

type failingSource struct{ *storage.MemoryStore }

func (failingSource) ListAvailable(context.Context, string, *time.Time) ([]model.TimeSlot, error) {
	return nil, errors.New("db down")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NYC origin with one clinic ~1.1km north and one ~0.5km east.
func seeded(t *testing.T) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStore()
	s.SetClock(func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) })
	owner := model.User{ID: "owner", Email: "o@clinic.test", Role: model.RoleClinic}
	if err := s.CreateUser(ctx, &owner); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	clinics := []model.Clinic{
		{ID: "north", Name: "North", Latitude: 40.7228, Longitude: -74.0060, IsSearchable: true, OwnerUserID: "owner"},
		{ID: "east", Name: "East", Latitude: 40.7128, Longitude: -74.0000, IsSearchable: true, OwnerUserID: "owner"},
		{ID: "hidden", Name: "Hidden", Latitude: 40.7128, Longitude: -74.0061, OwnerUserID: "owner"},
	}
	for _, c := range clinics {
		if _, err := s.UpsertClinic(ctx, c); err != nil {
			t.Fatalf("UpsertClinic: %v", err)
		}
	}
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.CreateSlots(ctx, "east", []model.SlotEntry{{Date: day, StartTime: "09:00", EndTime: "10:00"}}); err != nil {
		t.Fatalf("CreateSlots: %v", err)
	}
	return s
}

var nyc = Query{Lat: 40.7128, Lng: -74.0060, RadiusMeters: 5000}

func TestSearchMergesAndSortsByDistance(t *testing.T) {
	dir := stubDirectory{places: []directory.Place{
		{PlaceID: "far", Name: "Far Walk-In", Latitude: 40.7328, Longitude: -74.0060},
		{PlaceID: "near", Name: "Near Walk-In", Latitude: 40.7138, Longitude: -74.0060},
	}}
	a := NewAggregator(seeded(t), dir, quietLogger(), nil, Config{StrictRadius: true})

	results, err := a.Search(context.Background(), nyc)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var ids []string
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	want := []string{"google_near", "east", "north", "google_far"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].DistanceMeters < results[i-1].DistanceMeters {
			t.Fatalf("results not sorted: %v", results)
		}
	}
	if !results[0].IsExternal || results[0].ExternalID != "near" || results[0].AvailableSlots != nil {
		t.Fatalf("unexpected external result %+v", results[0])
	}
	if results[1].IsExternal || len(results[1].AvailableSlots) != 1 {
		t.Fatalf("expected internal clinic with one slot, got %+v", results[1])
	}
	if results[2].AvailableSlots == nil {
		t.Fatalf("internal clinics without slots should carry an empty list")
	}
}

func TestSearchDegradesWhenDirectoryFails(t *testing.T) {
	dir := stubDirectory{err: model.ErrUpstreamUnavailable}
	a := NewAggregator(seeded(t), dir, quietLogger(), nil, Config{})

	results, err := a.Search(context.Background(), nyc)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 internal results, got %d", len(results))
	}
	for _, r := range results {
		if r.IsExternal {
			t.Fatalf("unexpected external result %+v", r)
		}
	}
}

func TestSearchDegradesWhenDirectoryIsSlow(t *testing.T) {
	dir := stubDirectory{delay: 200 * time.Millisecond, places: []directory.Place{{PlaceID: "late"}}}
	a := NewAggregator(seeded(t), dir, quietLogger(), nil, Config{ExternalTimeout: 20 * time.Millisecond})

	start := time.Now()
	results, err := a.Search(context.Background(), nyc)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("search waited for slow directory: %v", elapsed)
	}
	if len(results) != 2 {
		t.Fatalf("expected internal results only, got %d", len(results))
	}
}

func TestSearchInternalFailureFails(t *testing.T) {
	a := NewAggregator(failingSource{seeded(t)}, stubDirectory{}, quietLogger(), nil, Config{})
	if _, err := a.Search(context.Background(), nyc); err == nil {
		t.Fatal("expected error when internal lookup fails")
	}
}

func TestSearchStrictRadius(t *testing.T) {
	q := Query{Lat: 40.7128, Lng: -74.0060, RadiusMeters: 800}

	strict := NewAggregator(seeded(t), nil, quietLogger(), nil, Config{StrictRadius: true})
	results, err := strict.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "east" {
		t.Fatalf("expected only east within 800m, got %+v", results)
	}

	loose := NewAggregator(seeded(t), nil, quietLogger(), nil, Config{})
	results, _ = loose.Search(context.Background(), q)
	if len(results) != 2 {
		t.Fatalf("box prefilter should return both clinics, got %d", len(results))
	}
}

func TestSearchValidation(t *testing.T) {
	a := NewAggregator(seeded(t), nil, quietLogger(), nil, Config{})
	bad := []Query{
		{Lat: 91, Lng: 0},
		{Lat: 0, Lng: -181},
		{Lat: 0, Lng: 0, RadiusMeters: MaxRadiusMeters + 1},
		{Lat: 0, Lng: 0, RadiusMeters: -5},
	}
	for _, q := range bad {
		if _, err := a.Search(context.Background(), q); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("%+v: expected ErrValidation, got %v", q, err)
		}
	}
	if _, err := a.Search(context.Background(), Query{Lat: 40.7128, Lng: -74.0060}); err != nil {
		t.Fatalf("default radius should be accepted: %v", err)
	}
}
