package leadership

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("DRONEPAD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DRONEPAD_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewElectionValidation(t *testing.T) {
	if _, err := NewElection(nil, DefaultConfig(), zerolog.Nop()); err == nil {
		t.Fatal("expected error for nil client")
	}

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	cfg := DefaultConfig()
	cfg.RetryInterval = cfg.LeaseDuration
	if _, err := NewElection(client, cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error when retry interval is not shorter than the lease")
	}

	e, err := NewElection(client, ElectionConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewElection: %v", err)
	}
	if e.config.ElectionKey != defaultElectionKey || e.InstanceID() == "" {
		t.Fatalf("defaults not applied: %+v", e.config)
	}
	if e.IsLeader() {
		t.Fatal("new election reports leadership")
	}
}

func TestSingleLeaderAndHandover(t *testing.T) {
	client := testRedis(t)
	key := "dronepad:test:leader:" + uuid.NewString()
	cfg := ElectionConfig{ElectionKey: key, LeaseDuration: 2 * time.Second, RetryInterval: 100 * time.Millisecond}

	cfgA, cfgB := cfg, cfg
	cfgA.InstanceID, cfgB.InstanceID = "a", "b"
	a, err := NewElection(client, cfgA, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewElection(client, cfgB, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-a.LeaderCh():
		if !got {
			t.Fatal("a did not become leader")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a")
	}

	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if b.IsLeader() {
		t.Fatal("two leaders")
	}

	// Releasing on stop lets b take over without waiting for expiry.
	if err := a.Stop(); err != nil {
		t.Fatalf("stop a: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !b.IsLeader() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if !b.IsLeader() {
		t.Fatal("b did not take over")
	}
	leader, err := b.GetLeader(ctx)
	if err != nil || leader != "b" {
		t.Fatalf("GetLeader = %q, %v", leader, err)
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("stop b: %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
