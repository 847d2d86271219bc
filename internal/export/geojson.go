// Package export renders routes for consumers outside the API: GeoJSON for
// map views and a spreadsheet walk list for printing.
package export

import (
	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"

	"fieldcrm/internal/model"
)

// RouteGeoJSON returns the route as a FeatureCollection: one Point per stop
// with coordinates, plus a LineString through them in seq order when there
// are at least two. Stops without coordinates are left out.
func RouteGeoJSON(rt model.Route) ([]byte, error) {
	fc := &gjson.FeatureCollection{Features: []*gjson.Feature{}}
	var path []geom.Coord
	for _, s := range rt.Stops {
		if s.Target == nil {
			continue
		}
		p, ok := s.Target.Coordinates()
		if !ok {
			continue
		}
		c := geom.Coord{p.Lng, p.Lat}
		path = append(path, c)
		props := map[string]any{
			"kind":     "stop",
			"stopId":   s.ID,
			"targetId": s.TargetID,
			"seq":      s.Seq,
			"name":     s.Target.Name,
		}
		if s.Outcome != nil {
			props["outcome"] = string(*s.Outcome)
		}
		fc.Features = append(fc.Features, &gjson.Feature{
			ID:         s.ID,
			Geometry:   geom.NewPoint(geom.XY).MustSetCoords(c),
			Properties: props,
		})
	}
	if len(path) >= 2 {
		line := &gjson.Feature{
			ID:         rt.ID,
			Geometry:   geom.NewLineString(geom.XY).MustSetCoords(path),
			Properties: map[string]any{"kind": "path", "routeId": rt.ID, "name": rt.Name},
		}
		fc.Features = append([]*gjson.Feature{line}, fc.Features...)
	}
	return fc.MarshalJSON()
}
