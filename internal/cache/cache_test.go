package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/models"
)

type countingSource struct {
	calls int
	pads  []models.Pad
	err   error
}

func (s *countingSource) ListPadsInZone(_ context.Context, zone string) ([]models.Pad, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Pad
	for _, p := range s.pads {
		if p.Zone == zone {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestZoneRosterWithoutRedisPassesThrough(t *testing.T) {
	src := &countingSource{pads: []models.Pad{{ID: 1, Zone: "A"}, {ID: 2, Zone: "B"}}}
	roster := NewZoneRoster(New(nil, DefaultConfig(), zerolog.Nop()), src)

	for i := 0; i < 2; i++ {
		pads, err := roster.ListPadsInZone(context.Background(), "A")
		if err != nil {
			t.Fatal(err)
		}
		if len(pads) != 1 || pads[0].ID != 1 {
			t.Fatalf("pads = %+v", pads)
		}
	}
	if src.calls != 2 {
		t.Fatalf("source called %d times, want 2", src.calls)
	}

	src.err = errors.New("db down")
	if _, err := roster.ListPadsInZone(context.Background(), "A"); err == nil {
		t.Fatal("source error swallowed")
	}
}

func TestUnreachableRedisTripsAndRecovers(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	c := New(client, Config{Cooldown: time.Minute}, zerolog.Nop())
	if c.IsAvailable() {
		t.Fatal("cache available with unreachable redis")
	}

	now := time.Now()
	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	if !c.IsAvailable() {
		t.Fatal("cache did not re-arm after cooldown")
	}
}

func TestZoneRosterCachesAndInvalidates(t *testing.T) {
	addr := os.Getenv("DRONEPAD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DRONEPAD_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	c := New(client, DefaultConfig(), zerolog.Nop())
	if !c.IsAvailable() {
		t.Skip("redis unavailable")
	}

	zone := "test-" + uuid.NewString()
	src := &countingSource{pads: []models.Pad{{ID: 7, Zone: zone, AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall)}}}
	roster := NewZoneRoster(c, src)
	ctx := context.Background()
	t.Cleanup(func() { _ = c.InvalidateZone(ctx, zone) })

	for i := 0; i < 3; i++ {
		pads, err := roster.ListPadsInZone(ctx, zone)
		if err != nil {
			t.Fatal(err)
		}
		if len(pads) != 1 || !pads[0].AcceptedClasses.Contains(models.PayloadSmall) {
			t.Fatalf("pads = %+v", pads)
		}
	}
	if src.calls != 1 {
		t.Fatalf("source called %d times, want 1", src.calls)
	}

	bus := events.NewBus()
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.WatchPadUpdates(watchCtx, bus)
	bus.Publish(events.EventPadUpdated, events.Payload{"pad_id": uint(7), "zone": zone})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := roster.ListPadsInZone(ctx, zone); err != nil {
			t.Fatal(err)
		}
		if src.calls >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pad.updated did not invalidate the roster")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
