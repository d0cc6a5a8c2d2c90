package directory

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

// MaxResults caps how many nearby places one search returns.
const MaxResults = 20

// DefaultPlaceTypes are the directory categories treated as clinics.
var DefaultPlaceTypes = []string{"doctor", "hospital", "pharmacy", "dentist"}

// Place is a clinic known only to the external directory.
type Place struct {
	PlaceID        string  `json:"placeId"`
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	PhoneNumber    string  `json:"phoneNumber,omitempty"`
	Website        string  `json:"website,omitempty"`
	PhotoReference string  `json:"photoReference,omitempty"`
}

type GeocodeResult struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	PlaceID          string
}

// Client is the external place directory. Failures wrap
// model.ErrUpstreamUnavailable.
type Client interface {
	Geocode(ctx context.Context, address string) (GeocodeResult, error)
	ValidateAddress(ctx context.Context, address string) bool
	SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]Place, error)
}

// Disabled is used when no directory credentials are configured. Searches
// return nothing and lookups fail as unavailable.
type Disabled struct{}

func (Disabled) Geocode(context.Context, string) (GeocodeResult, error) {
	return GeocodeResult{}, fmt.Errorf("%w: directory not configured", model.ErrUpstreamUnavailable)
}

func (Disabled) ValidateAddress(context.Context, string) bool { return false }

func (Disabled) SearchNearby(context.Context, float64, float64, int) ([]Place, error) {
	return nil, nil
}
