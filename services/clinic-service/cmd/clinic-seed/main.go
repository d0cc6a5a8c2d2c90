package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicnear/libs/config"
	"github.com/md-rashed-zaman/clinicnear/libs/db"
	"github.com/md-rashed-zaman/clinicnear/libs/runtime"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/directory"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/seed"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fatal(err)
	}
	var (
		dbURL   = flag.String("database-url", config.String("DATABASE_URL", ""), "postgres connection url")
		days    = flag.Int("days", 7, "number of days of slots to create")
		open    = flag.String("open", "09:00", "first slot start (HH:MM, UTC)")
		closeAt = flag.String("close", "17:00", "last slot end (HH:MM, UTC)")
		length  = flag.Duration("slot", time.Hour, "slot length")
		geocode = flag.Bool("geocode", config.String("GOOGLE_MAPS_API_KEY", "") != "", "resolve the sample address through Google")
	)
	flag.Parse()
	if *dbURL == "" {
		fatal(fmt.Errorf("DATABASE_URL is required"))
	}

	logger := runtime.NewLogger("clinic-seed")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.Open(ctx, *dbURL, db.Options{MaxConns: 2})
	if err != nil {
		fatal(err)
	}
	defer pool.Close()

	opts := seed.Options{
		Days:     *days,
		Schedule: seed.DefaultSchedule(),
	}
	opts.Schedule.Open, opts.Schedule.Close, opts.Schedule.Duration = *open, *closeAt, *length
	if *geocode {
		g, err := directory.NewGoogle(directory.GoogleConfig{APIKey: config.String("GOOGLE_MAPS_API_KEY", "")}, logger)
		if err != nil {
			fatal(err)
		}
		opts.Geocoder = g
	}

	res, err := seed.Run(ctx, storage.NewRepository(pool), logger, opts)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("clinic=%s owner=%s patient=%s clinic_created=%t slots_inserted=%d\n",
		seed.SampleClinicID, res.OwnerID, res.PatientID, res.ClinicCreated, res.SlotsInserted)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
