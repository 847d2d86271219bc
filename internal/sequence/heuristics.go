// Package sequence orders the stops of a route, either greedily in process or
// through an external trip optimizer.
package sequence

import (
	"math"

	"fieldcrm/internal/model"
)

// NearestNeighbor returns a visiting order over points. Index 0 stays first;
// each next stop is the unvisited point closest to the current one by planar
// distance on (lng, lat). Ties go to the point that comes first in input order.
func NearestNeighbor(points []model.Point) []int {
	n := len(points)
	if n == 0 {
		return []int{}
	}
	order := make([]int, 0, n)
	remaining := make([]int, 0, n-1)
	for i := 1; i < n; i++ {
		remaining = append(remaining, i)
	}
	cur := 0
	order = append(order, cur)
	for len(remaining) > 0 {
		best, bestD := 0, math.Inf(1)
		for j, idx := range remaining {
			// strict less keeps the earliest on ties
			if d := planar(points[cur], points[idx]); d < bestD {
				best, bestD = j, d
			}
		}
		cur = remaining[best]
		order = append(order, cur)
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return order
}

func planar(a, b model.Point) float64 {
	return math.Hypot(a.Lng-b.Lng, a.Lat-b.Lat)
}

// PathDistance is the great-circle length in meters of visiting points in order.
func PathDistance(points []model.Point, order []int) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		total += haversineMeters(points[order[i]], points[order[i+1]])
	}
	return total
}

func haversineMeters(a, b model.Point) float64 {
	const R = 6371000.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
