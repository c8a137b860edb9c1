package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeElector struct {
	ch      chan bool
	leader  bool
	stopped bool
}

func (f *fakeElector) Start(context.Context) error { return nil }
func (f *fakeElector) Stop() error                 { f.stopped = true; return nil }
func (f *fakeElector) IsLeader() bool              { return f.leader }
func (f *fakeElector) LeaderCh() <-chan bool       { return f.ch }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLeaderAwareFollowsLeadership(t *testing.T) {
	mem := newMemory(0, time.Now())
	s := NewService(mem, mem, Config{Interval: time.Hour}, zerolog.Nop())
	elector := &fakeElector{ch: make(chan bool, 1)}
	la := NewLeaderAware(s, elector, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := la.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if la.Running() {
		t.Fatal("follower should not sweep")
	}

	elector.ch <- true
	waitFor(t, "sweeper start", la.Running)

	elector.ch <- false
	waitFor(t, "sweeper stop", func() bool { return !la.Running() })

	elector.ch <- true
	waitFor(t, "sweeper restart", la.Running)

	if err := la.Stop(); err != nil {
		t.Fatal(err)
	}
	if la.Running() || !elector.stopped {
		t.Fatal("stop did not halt the sweeper and election")
	}
}
