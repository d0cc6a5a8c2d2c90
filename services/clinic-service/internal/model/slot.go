package model

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// TimeSlot is a bookable window on one calendar day. Date is midnight UTC;
// StartTime and EndTime are zero-padded "HH:MM" strings so they sort
// lexically. BookingID is empty until a booking references the slot.
type TimeSlot struct {
	ID          string
	ClinicID    string
	Date        time.Time
	StartTime   string
	EndTime     string
	IsAvailable bool
	BookingID   string
}

// SlotDetail is a slot plus the clinic it belongs to.
type SlotDetail struct {
	Slot   TimeSlot
	Clinic Clinic
}

// SlotEntry is a requested slot before it is stored.
type SlotEntry struct {
	Date      time.Time
	StartTime string
	EndTime   string
}

// SlotEvent is broadcast to a clinic's subscribers when availability changes.
type SlotEvent struct {
	TimeSlotID  string `json:"timeSlotId"`
	IsAvailable bool   `json:"isAvailable"`
	BookingID   string `json:"bookingId,omitempty"`
}

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, s)
	}
	return d, nil
}

func ParseClock(s string) (string, error) {
	if len(s) != len(ClockLayout) {
		return "", fmt.Errorf("%w: time %q must be HH:MM", ErrValidation, s)
	}
	if _, err := time.Parse(ClockLayout, s); err != nil {
		return "", fmt.Errorf("%w: time %q must be HH:MM", ErrValidation, s)
	}
	return s, nil
}

// NewSlotEntry validates a date and a start/end pair. End must be after start.
func NewSlotEntry(date, start, end string) (SlotEntry, error) {
	d, err := ParseDate(date)
	if err != nil {
		return SlotEntry{}, err
	}
	if _, err := ParseClock(start); err != nil {
		return SlotEntry{}, err
	}
	if _, err := ParseClock(end); err != nil {
		return SlotEntry{}, err
	}
	if end <= start {
		return SlotEntry{}, fmt.Errorf("%w: endTime %s must be after startTime %s", ErrValidation, end, start)
	}
	return SlotEntry{Date: d, StartTime: start, EndTime: end}, nil
}

func (e SlotEntry) Key() string {
	return e.Date.Format(DateLayout) + "|" + e.StartTime + "|" + e.EndTime
}
