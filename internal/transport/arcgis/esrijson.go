package arcgis

import (
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"
)

// Esri geometry types.
const (
	geometryPoint      = "esriGeometryPoint"
	geometryMultipoint = "esriGeometryMultipoint"
	geometryPolyline   = "esriGeometryPolyline"
	geometryPolygon    = "esriGeometryPolygon"
	geometryEnvelope   = "esriGeometryEnvelope"
)

type spatialReference struct {
	WKID int `json:"wkid"`
}

type esriPoint struct {
	X    float64          `json:"x"`
	Y    float64          `json:"y"`
	SRef spatialReference `json:"spatialReference"`
}

type esriMultipoint struct {
	Points [][2]float64     `json:"points"`
	SRef   spatialReference `json:"spatialReference"`
}

type esriPolyline struct {
	Paths [][][2]float64   `json:"paths"`
	SRef  spatialReference `json:"spatialReference"`
}

type esriPolygon struct {
	Rings [][][2]float64   `json:"rings"`
	SRef  spatialReference `json:"spatialReference"`
}

type esriEnvelope struct {
	XMin float64          `json:"xmin"`
	YMin float64          `json:"ymin"`
	XMax float64          `json:"xmax"`
	YMax float64          `json:"ymax"`
	SRef spatialReference `json:"spatialReference"`
}

// encodeGeometry renders g as Esri JSON and returns its geometry type.
// Polygon rings are re-oriented to the Esri convention: exterior rings
// clockwise, holes counter-clockwise.
func encodeGeometry(g geom.T, wkid int) (string, string, error) {
	sr := spatialReference{WKID: wkid}
	var (
		v   any
		typ string
	)
	switch t := g.(type) {
	case *geom.Point:
		v, typ = esriPoint{X: t.X(), Y: t.Y(), SRef: sr}, geometryPoint
	case *geom.MultiPoint:
		v, typ = esriMultipoint{Points: xy(t.Coords()), SRef: sr}, geometryMultipoint
	case *geom.LineString:
		v, typ = esriPolyline{Paths: [][][2]float64{xy(t.Coords())}, SRef: sr}, geometryPolyline
	case *geom.MultiLineString:
		paths := make([][][2]float64, 0, t.NumLineStrings())
		for _, line := range t.Coords() {
			paths = append(paths, xy(line))
		}
		v, typ = esriPolyline{Paths: paths, SRef: sr}, geometryPolyline
	case *geom.Polygon:
		v, typ = esriPolygon{Rings: rings(t.Coords()), SRef: sr}, geometryPolygon
	case *geom.MultiPolygon:
		var all [][][2]float64
		for _, poly := range t.Coords() {
			all = append(all, rings(poly)...)
		}
		v, typ = esriPolygon{Rings: all, SRef: sr}, geometryPolygon
	case nil:
		return "", "", fmt.Errorf("encode geometry: nil geometry")
	default:
		b := g.Bounds()
		if b.IsEmpty() {
			return "", "", fmt.Errorf("encode geometry: empty %T", g)
		}
		v = esriEnvelope{XMin: b.Min(0), YMin: b.Min(1), XMax: b.Max(0), YMax: b.Max(1), SRef: sr}
		typ = geometryEnvelope
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", "", fmt.Errorf("encode geometry: %w", err)
	}
	return string(data), typ, nil
}

func xy(coords []geom.Coord) [][2]float64 {
	out := make([][2]float64, len(coords))
	for i, c := range coords {
		out[i] = [2]float64{c.X(), c.Y()}
	}
	return out
}

func rings(poly [][]geom.Coord) [][][2]float64 {
	out := make([][][2]float64, len(poly))
	for i, ring := range poly {
		r := xy(ring)
		exterior := i == 0
		if clockwise(r) != exterior {
			reverse(r)
		}
		out[i] = r
	}
	return out
}

// clockwise reports the winding of a ring with y pointing up.
func clockwise(ring [][2]float64) bool {
	var area float64
	for i := range ring {
		j := (i + 1) % len(ring)
		area += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return area < 0
}

func reverse(ring [][2]float64) {
	for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
		ring[i], ring[j] = ring[j], ring[i]
	}
}
