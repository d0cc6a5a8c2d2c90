package availability

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Schedule describes a clinic's recurring opening hours.
type Schedule struct {
	Open     string // HH:MM
	Close    string // HH:MM
	Duration time.Duration
	Step     time.Duration
}

// Entries expands the schedule over days consecutive days starting at from.
// Slots that start before now or overlap a busy interval are skipped.
func (s Schedule) Entries(from time.Time, days int, busy []Interval, now time.Time) ([]model.SlotEntry, error) {
	if _, err := model.ParseClock(s.Open); err != nil {
		return nil, err
	}
	if _, err := model.ParseClock(s.Close); err != nil {
		return nil, err
	}
	step := s.Step
	if step <= 0 {
		step = s.Duration
	}
	if s.Duration <= 0 || s.Duration%time.Minute != 0 {
		return nil, fmt.Errorf("%w: slot duration must be a positive whole number of minutes", model.ErrValidation)
	}

	var out []model.SlotEntry
	day := model.Day(from)
	for i := 0; i < days; i++ {
		open, _ := clockOn(day, s.Open)
		closeAt, _ := clockOn(day, s.Close)
		for _, start := range AvailableSlots(open, closeAt, s.Duration, step, busy, now) {
			end := start.Add(s.Duration)
			if !model.Day(end).Equal(day) {
				continue
			}
			out = append(out, model.SlotEntry{
				Date:      day,
				StartTime: start.Format(model.ClockLayout),
				EndTime:   end.Format(model.ClockLayout),
			})
		}
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}

// AvailableSlots returns start times within [windowStart, windowEnd) where a
// slot of length duration fits without overlapping any busy interval.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 || !windowEnd.After(windowStart) {
		return nil
	}
	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// Half-open: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse(model.ClockLayout, hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}
