package feature

import (
	"encoding/json"
	"github.com/paulmach/osm"
	"roadgrid/util"
	"testing"
)

func restriction5001() TurnRestriction {
	return TurnRestriction{
		ID:   5001,
		Tags: map[string]string{"type": "restriction", "restriction": "no_left_turn"},
		Members: []RestrictionMember{
			{Type: osm.TypeWay, Ref: 101, Role: RoleFrom},
			{Type: osm.TypeNode, Ref: 9001, Role: RoleVia},
			{Type: osm.TypeWay, Ref: 102, Role: RoleTo},
		},
	}
}

func TestTurnRestriction_accessors(t *testing.T) {
	r := restriction5001()

	util.AssertEqual(t, "no_left_turn", r.RestrictionType())
	util.AssertEqual(t, []osm.NodeID{9001}, r.ViaNodes())
	util.AssertEqual(t, []osm.WayID{101, 102}, r.Ways())
	util.AssertEqual(t, []int64{101, 9001, 102}, r.References())
}

func TestTurnRestriction_restrictionTypeOfMode(t *testing.T) {
	r := TurnRestriction{Tags: map[string]string{"restriction:hgv": "no_u_turn"}}

	util.AssertEqual(t, "no_u_turn", r.RestrictionType())
}

func TestTurnRestriction_referencesAll(t *testing.T) {
	r := restriction5001()

	util.AssertTrue(t, r.ReferencesAll(101, 102))
	util.AssertTrue(t, r.ReferencesAll(102, 101))
	util.AssertFalse(t, r.ReferencesAll(101, 103))
}

func TestTurnRestriction_appliesTo(t *testing.T) {
	r := restriction5001()

	util.AssertTrue(t, r.AppliesTo(101, 102))
	util.AssertFalse(t, r.AppliesTo(102, 101))
	util.AssertFalse(t, r.AppliesTo(101, 103))
}

func TestTurnRestriction_appliesToWithoutVia(t *testing.T) {
	r := TurnRestriction{
		ID: 1,
		Members: []RestrictionMember{
			{Type: osm.TypeWay, Ref: 101, Role: RoleFrom},
			{Type: osm.TypeWay, Ref: 102, Role: RoleTo},
		},
	}

	util.AssertFalse(t, r.AppliesTo(101, 102))
	util.AssertTrue(t, r.ReferencesAll(101, 102))
}

func TestRoadSegment_geometry(t *testing.T) {
	road := RoadSegment{
		ID:          101,
		Coordinates: []Coordinate{{Lat: 37.79, Lng: -122.401}, {Lat: 37.7915, Lng: -122.398}, {Lat: 37.793, Lng: -122.396}},
	}

	line := road.LineString()
	util.AssertEqual(t, 3, len(line))
	util.AssertEqual(t, -122.401, line[0].Lon())
	util.AssertEqual(t, 37.79, line[0].Lat())

	midpoint, ok := road.Midpoint()
	util.AssertTrue(t, ok)
	util.AssertEqual(t, Coordinate{Lat: 37.7915, Lng: -122.398}, midpoint)

	_, ok = RoadSegment{}.Midpoint()
	util.AssertFalse(t, ok)
}

func TestCoordinate_json(t *testing.T) {
	// Arrange
	var road RoadSegment

	// Act
	err := json.Unmarshal([]byte(`{"id": 7, "node_coords": [[1.5, 2.5]], "tags": {"highway": "residential"}}`), &road)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, osm.WayID(7), road.ID)
	util.AssertEqual(t, []Coordinate{{Lat: 1.5, Lng: 2.5}}, road.Coordinates)

	data, err := json.Marshal(road.Coordinates[0])
	util.AssertNil(t, err)
	util.AssertEqual(t, "[1.5,2.5]", string(data))
}

func TestCoordinate_jsonInvalid(t *testing.T) {
	var c Coordinate

	err := json.Unmarshal([]byte(`[1.5]`), &c)

	util.AssertNotNil(t, err)
}
