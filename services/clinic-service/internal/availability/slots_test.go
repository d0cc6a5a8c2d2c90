package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

func TestAvailableSlotsSkipsBusyAndPast(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)}}

	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(10*time.Hour), 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Format(time.RFC3339))
	}

	now := day.Add(9*time.Hour + 31*time.Minute)
	if got := AvailableSlots(day.Add(9*time.Hour), day.Add(10*time.Hour), 15*time.Minute, 15*time.Minute, nil, now); len(got) != 1 {
		t.Fatalf("expected 1 future slot, got %d", len(got))
	}
}

func TestScheduleEntriesHourlyWeek(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s := Schedule{Open: "09:00", Close: "17:00", Duration: time.Hour}

	entries, err := s.Entries(from, 7, nil, from)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 7*8 {
		t.Fatalf("expected 56 entries, got %d", len(entries))
	}
	first, last := entries[0], entries[len(entries)-1]
	if first.StartTime != "09:00" || first.EndTime != "10:00" {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if last.StartTime != "16:00" || last.EndTime != "17:00" || !last.Date.Equal(from.AddDate(0, 0, 6)) {
		t.Fatalf("unexpected last entry %+v", last)
	}
}

func TestScheduleEntriesRejectsBadInput(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := (Schedule{Open: "9", Close: "17:00", Duration: time.Hour}).Entries(from, 1, nil, from); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := (Schedule{Open: "09:00", Close: "17:00"}).Entries(from, 1, nil, from); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for zero duration, got %v", err)
	}
}
