package model

import "math"

// Point is a WGS84 position.
type Point struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// InRange reports whether both components are finite and inside WGS84 bounds.
func (p Point) InRange() bool {
    if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
        return false
    }
    return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Usable is InRange minus the (0,0) placeholder providers return on a miss.
func (p Point) Usable() bool {
    return p.InRange() && !(p.Lat == 0 && p.Lng == 0)
}
