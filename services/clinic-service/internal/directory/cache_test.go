package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
	"github.com/redis/go-redis/v9"
)

type countingClient struct {
	Disabled
	calls  int
	places []Place
	err    error
}

func (c *countingClient) SearchNearby(context.Context, float64, float64, int) ([]Place, error) {
	c.calls++
	return c.places, c.err
}

func TestCachedSearchNearby(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := &countingClient{places: []Place{{PlaceID: "p1", Name: "Walk-In"}}}
	c := NewCached(inner, rdb, time.Minute, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		places, err := c.SearchNearby(ctx, 40.71281, -74.00601, 5000)
		if err != nil {
			t.Fatalf("SearchNearby: %v", err)
		}
		if len(places) != 1 || places[0].PlaceID != "p1" {
			t.Fatalf("unexpected places %+v", places)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", inner.calls)
	}

	mr.FastForward(2 * time.Minute)
	_, _ = c.SearchNearby(ctx, 40.71281, -74.00601, 5000)
	if inner.calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", inner.calls)
	}
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	inner := &countingClient{err: model.ErrUpstreamUnavailable}
	c := NewCached(inner, rdb, time.Minute, quietLogger())

	if _, err := c.SearchNearby(context.Background(), 1, 1, 1000); !errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("failure must not be cached, keys=%v", mr.Keys())
	}
}

func TestCachedBypassesBrokenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	inner := &countingClient{places: []Place{{PlaceID: "p1"}}}
	places, err := NewCached(inner, rdb, time.Minute, quietLogger()).SearchNearby(context.Background(), 1, 1, 1000)
	if err != nil || len(places) != 1 {
		t.Fatalf("expected passthrough, got %v %v", places, err)
	}
}
