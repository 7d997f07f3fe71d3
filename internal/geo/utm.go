// Package geo projects WGS84 coordinates onto the Universal Transverse
// Mercator grid.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned for coordinates UTM does not cover.
var ErrOutOfRange = errors.New("coordinates outside UTM coverage")

const (
	k0     = 0.9996
	radius = 6378137.0
	ecc    = 0.00669438

	falseEasting  = 500000.0
	falseNorthing = 10000000.0

	zoneLetters = "CDEFGHJKLMNPQRSTUVWXX"
)

var (
	ecc2     = ecc * ecc
	ecc3     = ecc2 * ecc
	eccPrime = ecc / (1 - ecc)

	m1 = 1 - ecc/4 - 3*ecc2/64 - 5*ecc3/256
	m2 = 3*ecc/8 + 3*ecc2/32 + 45*ecc3/1024
	m3 = 15*ecc2/256 + 45*ecc3/1024
	m4 = 35 * ecc3 / 3072
)

// UTM is a projected position.
type UTM struct {
	Easting    float64
	Northing   float64
	ZoneNumber int
	ZoneLetter string
}

// Zone returns the zone designator, e.g. "23K".
func (u UTM) Zone() string {
	return fmt.Sprintf("%d%s", u.ZoneNumber, u.ZoneLetter)
}

// FromLatLon projects a latitude/longitude pair in degrees.
func FromLatLon(lat, lon float64) (UTM, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -80 || lat > 84 || lon < -180 || lon > 180 {
		return UTM{}, fmt.Errorf("%w: %f,%f", ErrOutOfRange, lat, lon)
	}

	zone := zoneNumber(lat, lon)
	centralLon := float64((zone-1)*6 - 180 + 3)

	latRad := lat * math.Pi / 180
	sinLat := math.Sin(latRad)
	cosLat := math.Cos(latRad)
	tanLat := math.Tan(latRad)
	tan2 := tanLat * tanLat
	tan4 := tan2 * tan2

	n := radius / math.Sqrt(1-ecc*sinLat*sinLat)
	c := eccPrime * cosLat * cosLat
	a := cosLat * normalizeAngle((lon-centralLon)*math.Pi/180)
	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	m := radius * (m1*latRad - m2*math.Sin(2*latRad) + m3*math.Sin(4*latRad) - m4*math.Sin(6*latRad))

	easting := k0*n*(a+
		a3/6*(1-tan2+c)+
		a5/120*(5-18*tan2+tan4+72*c-58*eccPrime)) + falseEasting

	northing := k0 * (m + n*tanLat*(a2/2+
		a4/24*(5-tan2+9*c+4*c*c)+
		a6/720*(61-58*tan2+tan4+600*c-330*eccPrime)))
	if lat < 0 {
		northing += falseNorthing
	}

	return UTM{
		Easting:    easting,
		Northing:   northing,
		ZoneNumber: zone,
		ZoneLetter: zoneLetter(lat),
	}, nil
}

func zoneNumber(lat, lon float64) int {
	if lat >= 56 && lat < 64 && lon >= 3 && lon < 12 {
		return 32
	}
	if lat >= 72 && lat <= 84 && lon >= 0 {
		switch {
		case lon < 9:
			return 31
		case lon < 21:
			return 33
		case lon < 33:
			return 35
		case lon < 42:
			return 37
		}
	}
	if lon == 180 {
		return 60
	}
	return int((lon+180)/6) + 1
}

func zoneLetter(lat float64) string {
	i := int((lat + 80) / 8)
	if i >= len(zoneLetters) {
		i = len(zoneLetters) - 1
	}
	return zoneLetters[i : i+1]
}

func normalizeAngle(v float64) float64 {
	r := math.Mod(v+math.Pi, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return r - math.Pi
}
