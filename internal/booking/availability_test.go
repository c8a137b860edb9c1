package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/dronepad/internal/interval"
	"github.com/friendsincode/dronepad/internal/models"
)

func TestFindAvailableSlotsReferenceScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pad := f.padP(t)
	f.book(t, pad.ID, "10:00", "10:05")

	results, err := f.svc.FindAvailableSlots(ctx, SearchRequest{
		Zone:         "A",
		Window:       win("09:30", "10:30"),
		PayloadClass: models.PayloadSmall,
		Turnaround:   5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("FindAvailableSlots: %v", err)
	}
	if len(results) != 1 || results[0].Pad.ID != pad.ID {
		t.Fatalf("results = %+v", results)
	}

	buffered := win("09:58:30", "10:06:30")
	var firstAfter *interval.Window
	for i, slot := range results[0].Slots {
		if slot.Overlaps(buffered) {
			t.Errorf("slot %s intersects the buffered reservation %s", slot, buffered)
		}
		if i > 0 && !slot.Start.After(results[0].Slots[i-1].Start) {
			t.Errorf("slots not chronological at %d", i)
		}
		if firstAfter == nil && !slot.Start.Before(at("10:00")) {
			firstAfter = &results[0].Slots[i]
		}
	}
	if firstAfter == nil || !firstAfter.Start.Equal(at("10:10")) {
		t.Fatalf("first slot after the reservation = %v, want 10:10", firstAfter)
	}

	// 09:30..09:50 and 10:10..10:25 survive.
	if got := len(results[0].Slots); got != 9 {
		t.Fatalf("got %d slots, want 9", got)
	}
}

func TestFindAvailableSlotsFiltersAndOrdersPads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	large := f.addPad(t, models.Pad{Name: "L only", Zone: "A", AcceptedClasses: models.NewPayloadClassSet(models.PayloadLarge), SeparationSeconds: 0})
	first := f.addPad(t, models.Pad{Name: "first", Zone: "A", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall), SeparationSeconds: 0})
	down := f.addPad(t, models.Pad{Name: "down", Zone: "A", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall), OutOfService: true})
	full := f.addPad(t, models.Pad{Name: "full", Zone: "A", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall), SeparationSeconds: 0})
	f.addPad(t, models.Pad{Name: "elsewhere", Zone: "B", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall)})
	last := f.addPad(t, models.Pad{Name: "last", Zone: "A", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall, models.PayloadLarge), SeparationSeconds: 0})

	f.book(t, full.ID, "12:00", "13:00")

	results, err := f.svc.FindAvailableSlots(ctx, SearchRequest{
		Zone:         "A",
		Window:       win("12:00", "13:00"),
		PayloadClass: models.PayloadSmall,
		Turnaround:   5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("FindAvailableSlots: %v", err)
	}

	if len(results) != 2 || results[0].Pad.ID != first.ID || results[1].Pad.ID != last.ID {
		ids := []uint{}
		for _, r := range results {
			ids = append(ids, r.Pad.ID)
		}
		t.Fatalf("pad ids = %v, want [%d %d] (excluding %d, %d, %d)", ids, first.ID, last.ID, large.ID, down.ID, full.ID)
	}
	for _, r := range results {
		if len(r.Slots) != DefaultConfig().MaxSlotsPerPad {
			t.Errorf("pad %d got %d slots, want cap %d", r.Pad.ID, len(r.Slots), DefaultConfig().MaxSlotsPerPad)
		}
	}
}

func TestFindAvailableSlotsUsesPadTurnaround(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addPad(t, models.Pad{Name: "slow", Zone: "C", AcceptedClasses: models.NewPayloadClassSet(models.PayloadSmall), TurnaroundMinutes: 20})

	results, err := f.svc.FindAvailableSlots(ctx, SearchRequest{
		Zone:             "C",
		Window:           win("09:00", "09:30"),
		PayloadClass:     models.PayloadSmall,
		UsePadTurnaround: true,
	})
	if err != nil {
		t.Fatalf("FindAvailableSlots: %v", err)
	}
	if len(results) != 1 || len(results[0].Slots) != 3 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Slots[0].Duration() != 20*time.Minute {
		t.Fatalf("slot length %s", results[0].Slots[0].Duration())
	}
}

func TestFindAvailableSlotsRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.padP(t)

	tests := []struct {
		name string
		req  SearchRequest
		want error
	}{
		{"inverted window", SearchRequest{Zone: "A", Window: win("11:00", "10:00"), PayloadClass: models.PayloadSmall, Turnaround: 5 * time.Minute}, ErrInvalidWindow},
		{"zero turnaround", SearchRequest{Zone: "A", Window: win("10:00", "11:00"), PayloadClass: models.PayloadSmall}, ErrInvalidParameter},
		{"unknown class", SearchRequest{Zone: "A", Window: win("10:00", "11:00"), PayloadClass: "XL", Turnaround: 5 * time.Minute}, ErrInvalidParameter},
		{"missing zone", SearchRequest{Window: win("10:00", "11:00"), PayloadClass: models.PayloadSmall, Turnaround: 5 * time.Minute}, ErrInvalidParameter},
		{"span too long", SearchRequest{Zone: "A", Window: interval.Window{Start: at("00:00"), End: at("00:00").Add(25 * time.Hour)}, PayloadClass: models.PayloadSmall, Turnaround: 5 * time.Minute}, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.FindAvailableSlots(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !IsInputError(err) {
				t.Fatalf("%v not classified as input error", err)
			}
		})
	}
}

func TestSearchThenCommitIsConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pad := f.padP(t)
	f.book(t, pad.ID, "10:00", "10:05")
	f.book(t, pad.ID, "10:40", "10:55")

	results, err := f.svc.FindAvailableSlots(ctx, SearchRequest{
		Zone:         "A",
		Window:       win("09:50", "11:10"),
		PayloadClass: models.PayloadMedium,
		Turnaround:   5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("FindAvailableSlots: %v", err)
	}
	if len(results) != 1 || len(results[0].Slots) == 0 {
		t.Fatalf("results = %+v", results)
	}

	// Every offered slot is individually committable against the same state.
	for _, slot := range results[0].Slots {
		r, err := f.svc.CommitReservation(ctx, CommitRequest{PadID: pad.ID, PayloadClass: models.PayloadMedium, Window: slot})
		if err != nil {
			t.Fatalf("commit of offered slot %s: %v", slot, err)
		}
		if _, err := f.svc.Cancel(ctx, r.ID, at("09:00")); err != nil {
			t.Fatalf("cancel: %v", err)
		}
	}
	assertSafety(t, f, pad)
}
