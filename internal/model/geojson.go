package model

import (
	"encoding/json"
	"fmt"
)

// LonLat is a single [lon, lat] coordinate pair.
type LonLat [2]float64

// PolygonGeometry is a GeoJSON Polygon geometry restricted to a single
// outer ring, matching the campaign area invariant (no holes).
type PolygonGeometry struct {
	Type        string     `json:"type"`
	Coordinates [][]LonLat `json:"coordinates"`
}

// PolygonFeature is one Feature of a Campaign's `geom` FeatureCollection.
type PolygonFeature struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Geometry   PolygonGeometry `json:"geometry"`
}

// CampaignGeom is the campaign area: a FeatureCollection of Polygon
// features.
type CampaignGeom struct {
	Type     string           `json:"type"`
	Features []PolygonFeature `json:"features"`
}

// Validate requires one or more Polygon features, each with an outer
// ring of at least 4 vertices that is closed.
func (g CampaignGeom) Validate() error {
	if g.Type != "FeatureCollection" {
		return fmt.Errorf("geom: type must be FeatureCollection, got %q", g.Type)
	}
	if len(g.Features) == 0 {
		return fmt.Errorf("geom: at least one polygon feature is required")
	}
	for i, f := range g.Features {
		if f.Geometry.Type != "Polygon" {
			return fmt.Errorf("geom.features[%d]: geometry type must be Polygon, got %q", i, f.Geometry.Type)
		}
		if len(f.Geometry.Coordinates) == 0 {
			return fmt.Errorf("geom.features[%d]: polygon has no rings", i)
		}
		ring := f.Geometry.Coordinates[0]
		if len(ring) < 4 {
			return fmt.Errorf("geom.features[%d]: outer ring must have at least 4 vertices, got %d", i, len(ring))
		}
		if ring[0] != ring[len(ring)-1] {
			return fmt.Errorf("geom.features[%d]: outer ring must be closed", i)
		}
	}
	return nil
}

// OuterRing returns the feature's outer ring, or nil if absent.
func (f PolygonFeature) OuterRing() []LonLat {
	if len(f.Geometry.Coordinates) == 0 {
		return nil
	}
	return f.Geometry.Coordinates[0]
}

// Centroid computes the simple arithmetic mean ("centroid of vertices")
// of an outer ring, omitting the closing vertex.
func Centroid(ring []LonLat) LonLat {
	if len(ring) == 0 {
		return LonLat{0, 0}
	}
	pts := ring
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	var sumLon, sumLat float64
	for _, p := range pts {
		sumLon += p[0]
		sumLat += p[1]
	}
	n := float64(len(pts))
	return LonLat{sumLon / n, sumLat / n}
}

// CentroidOfCentroids computes the centroid of a CampaignGeom's per-feature
// centroids, used by the Campaign Store's list() to replace a campaign's
// full polygon geometry with a single lightweight point.
func CentroidOfCentroids(g CampaignGeom) LonLat {
	if len(g.Features) == 0 {
		return LonLat{0, 0}
	}
	var sumLon, sumLat float64
	for _, f := range g.Features {
		c := Centroid(f.OuterRing())
		sumLon += c[0]
		sumLat += c[1]
	}
	n := float64(len(g.Features))
	return LonLat{sumLon / n, sumLat / n}
}

// Geometry is an output feature's geometry: Point, LineString or Polygon
// (single outer ring), serialized with a pre-encoded coordinates blob so
// the stream processor never has to build a tree for the whole document.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// NewPointGeometry builds a Point geometry from a single coordinate.
func NewPointGeometry(c LonLat) Geometry {
	b, _ := json.Marshal(c)
	return Geometry{Type: "Point", Coordinates: b}
}

// NewLineStringGeometry builds a LineString geometry from an ordered
// coordinate sequence.
func NewLineStringGeometry(coords []LonLat) Geometry {
	b, _ := json.Marshal(coords)
	return Geometry{Type: "LineString", Coordinates: b}
}

// NewPolygonGeometry builds a Polygon geometry with a single outer ring.
func NewPolygonGeometry(ring []LonLat) Geometry {
	b, _ := json.Marshal([][]LonLat{ring})
	return Geometry{Type: "Polygon", Coordinates: b}
}

// Feature is one emitted output feature.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
