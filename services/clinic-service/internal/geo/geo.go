package geo

import "math"

// EarthRadiusMeters is the mean radius used for great-circle distance.
const EarthRadiusMeters = 6371000.0

// metersPerDegree is one degree of latitude on the sphere above.
const metersPerDegree = EarthRadiusMeters * math.Pi / 180

// MinBoxDegrees is the smallest half-width of a search box.
const MinBoxDegrees = 0.1

type Point struct {
	Lat float64
	Lng float64
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}

// Distance returns the haversine distance in meters.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Box is an inclusive lat/lng rectangle used as a cheap prefilter.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoxAround returns a box centered on p that is at least MinBoxDegrees wide on
// each side and wide enough to contain a circle of radiusMeters. The box is
// clamped to valid coordinates and does not wrap the antimeridian.
func BoxAround(p Point, radiusMeters float64) Box {
	latDelta := math.Max(MinBoxDegrees, radiusMeters/metersPerDegree)
	var lngDelta float64
	if c := math.Cos(p.Lat * math.Pi / 180); c > 1e-6 {
		lngDelta = math.Max(MinBoxDegrees, radiusMeters/(metersPerDegree*c))
	} else {
		lngDelta = 180
	}
	return Box{
		MinLat: math.Max(-90, p.Lat-latDelta),
		MaxLat: math.Min(90, p.Lat+latDelta),
		MinLng: math.Max(-180, p.Lng-lngDelta),
		MaxLng: math.Min(180, p.Lng+lngDelta),
	}
}

func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}
