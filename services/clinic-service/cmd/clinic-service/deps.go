package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicnear/libs/config"
	"github.com/md-rashed-zaman/clinicnear/libs/db"
	"github.com/md-rashed-zaman/clinicnear/libs/kafkax"
	"github.com/md-rashed-zaman/clinicnear/libs/runtime"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/directory"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/realtime"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/search"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/seed"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/storage"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/migrations"
	"github.com/redis/go-redis/v9"
)

// clinicStore is everything the service needs from persistence.
type clinicStore interface {
	booking.Store
	search.ClinicSource
	handlers.ClinicStore
	seed.Store
}

type openedStore struct {
	clinicStore
	memory bool
	checks []runtime.ReadyCheck
	close  func()
}

func openStore(ctx context.Context, logger *slog.Logger) (*openedStore, error) {
	switch mode := strings.ToLower(config.String("STORAGE", "postgres")); mode {
	case "memory":
		logger.Warn("using in-memory storage; data is lost on restart")
		return &openedStore{clinicStore: storage.NewMemoryStore(), memory: true, close: func() {}}, nil
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		migrateOnStart, err := config.Bool("MIGRATE_ON_START", false)
		if err != nil {
			return nil, err
		}
		if migrateOnStart {
			if err := migrateUp(dbURL); err != nil {
				return nil, err
			}
			logger.Info("migrations applied")
		}
		maxConns, err := config.Int("DB_MAX_CONNS", 10)
		if err != nil {
			return nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
		if err != nil {
			return nil, fmt.Errorf("db connection failed: %w", err)
		}
		return &openedStore{
			clinicStore: storage.NewRepository(pool),
			checks:      []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
			close:       pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE %q (want postgres or memory)", mode)
	}
}

func migrateUp(dbURL string) error {
	m, err := db.NewMigrator(dbURL, migrations.FS)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

func openDirectory(logger *slog.Logger, rdb *redis.Client) (directory.Client, error) {
	key := config.String("GOOGLE_MAPS_API_KEY", "")
	if key == "" {
		logger.Info("GOOGLE_MAPS_API_KEY not set; external clinic search disabled")
		return directory.Disabled{}, nil
	}
	concurrency, err := config.Int("DIRECTORY_DETAILS_CONCURRENCY", 5)
	if err != nil {
		return nil, err
	}
	g, err := directory.NewGoogle(directory.GoogleConfig{
		APIKey:             key,
		BaseURL:            config.String("GOOGLE_MAPS_BASE_URL", ""),
		PlaceTypes:         config.List("DIRECTORY_PLACE_TYPES", directory.DefaultPlaceTypes),
		DetailsConcurrency: concurrency,
	}, logger)
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		return g, nil
	}
	ttl, err := config.Duration("DIRECTORY_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, err
	}
	return directory.NewCached(g, rdb, ttl, logger), nil
}

func openRelay(logger *slog.Logger, rdb *redis.Client, origin string) (realtime.Relay, []runtime.ReadyCheck, error) {
	switch mode := strings.ToLower(config.String("REALTIME_RELAY", "none")); mode {
	case "", "none":
		return nil, nil, nil
	case "redis":
		if rdb == nil {
			return nil, nil, fmt.Errorf("REALTIME_RELAY=redis requires REDIS_URL")
		}
		return realtime.NewRedisRelay(rdb, config.String("REALTIME_CHANNEL", "clinicnear:realtime")), nil, nil
	case "kafka":
		brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
		relay, err := realtime.NewKafkaRelay(realtime.KafkaRelayConfig{
			Brokers: brokers,
			Topic:   config.String("REALTIME_TOPIC", "clinicnear.realtime"),
			Origin:  origin,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return relay, []runtime.ReadyCheck{{Name: "kafka", Check: kafkax.ReadyCheck(brokers)}}, nil
	default:
		return nil, nil, fmt.Errorf("unknown REALTIME_RELAY %q (want none, redis or kafka)", mode)
	}
}
