package model

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

type Booking struct {
	ID         string
	UserID     string
	ClinicID   string
	TimeSlotID string
	Status     BookingStatus
	Notes      string
	CreatedAt  time.Time
}
