package feature

import (
	"encoding/json"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
)

// Coordinate is a position in degrees. The order is lat/lng, which is the opposite of GeoJSON and orb.Point.
type Coordinate struct {
	Lat float64
	Lng float64
}

func (c Coordinate) ToPoint() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// MarshalJSON writes the coordinate as [lat, lng] pair.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lng})
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var pair []float64
	err := json.Unmarshal(data, &pair)
	if err != nil {
		return errors.Wrapf(err, "Unable to parse coordinate %s", string(data))
	}
	if len(pair) != 2 {
		return errors.Errorf("Coordinate must be a [lat, lng] pair but has %d values", len(pair))
	}
	c.Lat = pair[0]
	c.Lng = pair[1]
	return nil
}

// RoadSegment is one OSM way with its geometry. The same road might be stored in several cells, once for each cell
// touched by one of its vertices.
type RoadSegment struct {
	ID          osm.WayID         `json:"id"`
	Nodes       []osm.NodeID      `json:"nodes,omitempty"`
	Coordinates []Coordinate      `json:"node_coords"`
	Tags        map[string]string `json:"tags"`
	Metadata    RoadMetadata      `json:"metadata"`
}

// LineString returns the geometry in lng/lat order. The result is only a valid line for at least two coordinates.
func (r RoadSegment) LineString() orb.LineString {
	line := make(orb.LineString, len(r.Coordinates))
	for i, coordinate := range r.Coordinates {
		line[i] = coordinate.ToPoint()
	}
	return line
}

// Midpoint returns the vertex at index len/2, which is not necessarily the geometric center of the road.
func (r RoadSegment) Midpoint() (Coordinate, bool) {
	if len(r.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return r.Coordinates[len(r.Coordinates)/2], true
}

func (r RoadSegment) Name() string {
	return r.Tags["name"]
}

func (r RoadSegment) HighwayType() string {
	return r.Tags["highway"]
}

type Intersection struct {
	NodeID         osm.NodeID        `json:"node_id"`
	Lat            float64           `json:"lat"`
	Lng            float64           `json:"lng"`
	ConnectedRoads []osm.WayID       `json:"connected_roads"`
	Tags           map[string]string `json:"tags,omitempty"`
}

func (i Intersection) Coordinate() Coordinate {
	return Coordinate{Lat: i.Lat, Lng: i.Lng}
}

func (i Intersection) NumberOfDistinctRoads() int {
	roads := map[osm.WayID]bool{}
	for _, road := range i.ConnectedRoads {
		roads[road] = true
	}
	return len(roads)
}

func (i Intersection) HasTrafficSignals() bool {
	return i.Tags["highway"] == "traffic_signals"
}

// TurnRestriction is an OSM restriction relation. Members are kept as they are, even when the relation does not have
// the expected from/via/to shape.
type TurnRestriction struct {
	ID      osm.RelationID      `json:"id"`
	Tags    map[string]string   `json:"tags"`
	Members []RestrictionMember `json:"members"`
}

type RestrictionMember struct {
	Type osm.Type `json:"type"`
	Ref  int64    `json:"ref"`
	Role string   `json:"role"`
}
