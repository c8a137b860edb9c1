package booking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/dronepad/internal/config"
	"github.com/friendsincode/dronepad/internal/db"
	"github.com/friendsincode/dronepad/internal/events"
	"github.com/friendsincode/dronepad/internal/interval"
	"github.com/friendsincode/dronepad/internal/models"
	"github.com/friendsincode/dronepad/internal/store"
)

type fixture struct {
	svc   *Service
	store *store.Gorm
	bus   *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(config.DatabaseSQLite, filepath.Join(t.TempDir(), "booking.db"), 5*time.Second, logger.Silent)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st := store.New(database, store.Options{LockTimeout: 5 * time.Second, Holder: "test"})
	bus := events.NewBus()
	return &fixture{
		svc:   NewService(st, bus, DefaultConfig(), zerolog.Nop()),
		store: st,
		bus:   bus,
	}
}

func (f *fixture) addPad(t *testing.T, pad models.Pad) *models.Pad {
	t.Helper()
	if pad.TurnaroundMinutes == 0 {
		pad.TurnaroundMinutes = 5
	}
	if err := f.store.DB().Create(&pad).Error; err != nil {
		t.Fatalf("create pad: %v", err)
	}
	return &pad
}

// padP is the reference pad: zone A, classes {S,M}, turnaround 5m, sep 90s.
func (f *fixture) padP(t *testing.T) *models.Pad {
	return f.addPad(t, models.Pad{
		Name:              "P",
		Zone:              "A",
		AcceptedClasses:   models.NewPayloadClassSet(models.PayloadSmall, models.PayloadMedium),
		TurnaroundMinutes: 5,
		SeparationSeconds: 90,
	})
}

func (f *fixture) book(t *testing.T, padID uint, start, end string) *models.Reservation {
	t.Helper()
	r, err := f.svc.CommitReservation(context.Background(), CommitRequest{
		PadID:        padID,
		PayloadClass: models.PayloadSmall,
		Window:       win(start, end),
	})
	if err != nil {
		t.Fatalf("commit [%s,%s): %v", start, end, err)
	}
	return r
}

func at(clock string) time.Time {
	layout := "2006-01-02 15:04"
	if len(clock) > 5 {
		layout = "2006-01-02 15:04:05"
	}
	ts, err := time.Parse(layout, "2026-03-01 "+clock)
	if err != nil {
		panic(err)
	}
	return ts
}

func win(start, end string) interval.Window {
	return interval.Window{Start: at(start), End: at(end)}
}

// assertSafety checks that no two active reservations on a pad have
// intersecting buffered windows.
func assertSafety(t *testing.T, f *fixture, pad *models.Pad) {
	t.Helper()
	var rs []models.Reservation
	if err := f.store.DB().Where("pad_id = ? AND status IN ?", pad.ID, models.ActiveStatuses()).Find(&rs).Error; err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	sep := pad.Separation()
	for i := range rs {
		for j := i + 1; j < len(rs); j++ {
			if rs[i].Window().Buffered(sep).Overlaps(rs[j].Window()) || rs[j].Window().Buffered(sep).Overlaps(rs[i].Window()) {
				t.Fatalf("safety violated: %s %s and %s %s", rs[i].ID, rs[i].Window(), rs[j].ID, rs[j].Window())
			}
		}
	}
}
