// Package seed loads a sample clinic with a week of hourly slots for local
// development and demos. Running it again only fills missing slots.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/directory"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

const SampleClinicID = "sample-clinic-1"

type Store interface {
	EnsureUser(ctx context.Context, u model.User) (string, error)
	UpsertClinic(ctx context.Context, c model.Clinic) (bool, error)
	CreateSlots(ctx context.Context, clinicID string, entries []model.SlotEntry) (int, error)
}

type Options struct {
	Days     int
	Schedule availability.Schedule
	// Geocoder resolves the sample address. Nil keeps the built-in
	// coordinates.
	Geocoder directory.Client
	Now      func() time.Time
}

type Result struct {
	OwnerID       string
	PatientID     string
	ClinicCreated bool
	SlotsInserted int
}

func DefaultSchedule() availability.Schedule {
	return availability.Schedule{Open: "09:00", Close: "17:00", Duration: time.Hour}
}

func sampleClinic() model.Clinic {
	return model.Clinic{
		ID:           SampleClinicID,
		Name:         "City Health Clinic",
		Address:      "350 5th Ave, New York, NY 10118",
		Latitude:     40.7128,
		Longitude:    -74.0060,
		PhoneNumber:  "+1-212-555-0100",
		Email:        "frontdesk@cityhealth.example",
		WalkInStart:  "09:00",
		WalkInEnd:    "12:00",
		IsSearchable: true,
	}
}

func Run(ctx context.Context, store Store, logger *slog.Logger, opts Options) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Days <= 0 {
		opts.Days = 7
	}
	if opts.Schedule.Duration == 0 {
		opts.Schedule = DefaultSchedule()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var res Result
	var err error
	res.OwnerID, err = store.EnsureUser(ctx, model.User{
		ID:    uuid.NewString(),
		Email: "owner@cityhealth.example",
		Name:  "City Health Admin",
		Role:  model.RoleClinic,
	})
	if err != nil {
		return res, fmt.Errorf("seed owner: %w", err)
	}
	res.PatientID, err = store.EnsureUser(ctx, model.User{
		ID:    uuid.NewString(),
		Email: "patient@example.com",
		Name:  "Sample Patient",
		Role:  model.RolePatient,
	})
	if err != nil {
		return res, fmt.Errorf("seed patient: %w", err)
	}

	clinic := sampleClinic()
	clinic.OwnerUserID = res.OwnerID
	if opts.Geocoder != nil {
		geo, err := opts.Geocoder.Geocode(ctx, clinic.Address)
		if err != nil {
			logger.Warn("geocoding sample clinic failed, using default coordinates", "err", err)
		} else {
			clinic.Latitude, clinic.Longitude = geo.Latitude, geo.Longitude
			if geo.FormattedAddress != "" {
				clinic.Address = geo.FormattedAddress
			}
			clinic.ExternalPlaceID = geo.PlaceID
		}
	}
	res.ClinicCreated, err = store.UpsertClinic(ctx, clinic)
	if err != nil {
		return res, fmt.Errorf("seed clinic: %w", err)
	}

	now := opts.Now().UTC()
	entries, err := opts.Schedule.Entries(now, opts.Days, nil, time.Time{})
	if err != nil {
		return res, fmt.Errorf("seed schedule: %w", err)
	}
	res.SlotsInserted, err = store.CreateSlots(ctx, clinic.ID, entries)
	if err != nil {
		return res, fmt.Errorf("seed slots: %w", err)
	}
	logger.Info("seed complete",
		"clinic_id", clinic.ID,
		"clinic_created", res.ClinicCreated,
		"slots_inserted", res.SlotsInserted,
	)
	return res, nil
}
