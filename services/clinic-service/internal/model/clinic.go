package model

import "time"

type Clinic struct {
	ID              string
	Name            string
	Address         string
	Latitude        float64
	Longitude       float64
	PhoneNumber     string
	Email           string
	WalkInStart     string
	WalkInEnd       string
	PhotoURL        string
	ExternalPlaceID string
	IsSearchable    bool
	OwnerUserID     string
	CreatedAt       time.Time
}

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleClinic  Role = "CLINIC"
)

type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	IsGuest   bool
	CreatedAt time.Time
}
