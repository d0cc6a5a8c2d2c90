package seed

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

type fixedGeocoder struct {
	directory.Disabled
	res directory.GeocodeResult
	err error
}

func (g fixedGeocoder) Geocode(context.Context, string) (directory.GeocodeResult, error) {
	return g.res, g.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := func() time.Time { return time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC) }
	store := storage.NewMemoryStore()
	store.SetClock(now)

	first, err := Run(ctx, store, quietLogger(), Options{Now: now})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !first.ClinicCreated {
		t.Fatalf("expected clinic to be created")
	}
	// 09:00-17:00 hourly is 8 slots a day over 7 days.
	if first.SlotsInserted != 56 {
		t.Fatalf("expected 56 slots, got %d", first.SlotsInserted)
	}

	second, err := Run(ctx, store, quietLogger(), Options{Now: now})
	if err != nil {
		t.Fatalf("Run again: %v", err)
	}
	if second.ClinicCreated || second.SlotsInserted != 0 {
		t.Fatalf("expected no-op rerun, got %+v", second)
	}
	if second.OwnerID != first.OwnerID || second.PatientID != first.PatientID {
		t.Fatalf("expected stable users, got %+v vs %+v", second, first)
	}

	c, err := store.GetClinic(ctx, SampleClinicID)
	if err != nil {
		t.Fatalf("GetClinic: %v", err)
	}
	if c.OwnerUserID != first.OwnerID || !c.IsSearchable {
		t.Fatalf("unexpected clinic: %+v", c)
	}
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	slots, err := store.ListAvailable(ctx, SampleClinicID, &day)
	if err != nil {
		t.Fatalf("ListAvailable: %v", err)
	}
	if len(slots) != 8 || slots[0].StartTime != "09:00" || slots[7].EndTime != "17:00" {
		t.Fatalf("unexpected first day slots: %+v", slots)
	}
}

func TestRunUsesGeocoder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	geocoder := fixedGeocoder{res: directory.GeocodeResult{
		Latitude: 40.7484, Longitude: -73.9857, FormattedAddress: "Empire State Building", PlaceID: "place-1",
	}}
	if _, err := Run(ctx, store, quietLogger(), Options{Geocoder: geocoder, Days: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	c, _ := store.GetClinic(ctx, SampleClinicID)
	if c.Latitude != 40.7484 || c.Address != "Empire State Building" || c.ExternalPlaceID != "place-1" {
		t.Fatalf("geocode not applied: %+v", c)
	}
}

func TestRunKeepsDefaultsWhenGeocodingFails(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	geocoder := fixedGeocoder{err: errors.New("boom")}
	if _, err := Run(ctx, store, quietLogger(), Options{Geocoder: geocoder, Days: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	c, _ := store.GetClinic(ctx, SampleClinicID)
	if c.Latitude != 40.7128 || c.Longitude != -74.0060 {
		t.Fatalf("expected default coordinates, got %+v", c)
	}
	if _, err := model.ParseClock(c.WalkInStart); err != nil {
		t.Fatalf("walk-in start: %v", err)
	}
}
