package importing

import (
	"github.com/paulmach/osm"
	"roadgrid/feature"
	"roadgrid/index"
	"roadgrid/util"
	"testing"
)

func newTestAssigner(t *testing.T) (*Assigner, *index.CellIndex) {
	cellIndex, err := index.NewFixedLevelCellIndex(index.DefaultLevel)
	util.AssertNil(t, err)
	return NewAssigner(cellIndex), cellIndex
}

func TestAssigner_assignRoad(t *testing.T) {
	// Arrange
	assigner, cellIndex := newTestAssigner(t)
	road := feature.RoadSegment{
		ID: 101,
		Coordinates: []feature.Coordinate{
			{Lat: 37.7900, Lng: -122.4010},
			{Lat: 37.79001, Lng: -122.40101},
			{Lat: 37.7915, Lng: -122.3980},
		},
	}

	// Act
	cells, err := assigner.AssignRoad(road)

	// Assert
	util.AssertNil(t, err)
	util.AssertLen(t, 2, cells)
	util.AssertContains(t, cellFor(t, cellIndex, 37.7900, -122.4010), cells)
	util.AssertContains(t, cellFor(t, cellIndex, 37.7915, -122.3980), cells)
	util.AssertTrue(t, cells[0] < cells[1])
}

func TestAssigner_assignRoad_invalidCoordinate(t *testing.T) {
	assigner, _ := newTestAssigner(t)

	_, err := assigner.AssignRoad(feature.RoadSegment{ID: 1, Coordinates: []feature.Coordinate{{Lat: 0, Lng: 200}}})

	util.AssertErrorIs(t, index.ErrInvalidCoordinate, err)
}

func TestAssigner_assignIntersection(t *testing.T) {
	assigner, cellIndex := newTestAssigner(t)

	cell, err := assigner.AssignIntersection(feature.Intersection{NodeID: 1, Lat: 53.5511, Lng: 9.9937})

	util.AssertNil(t, err)
	util.AssertEqual(t, cellFor(t, cellIndex, 53.5511, 9.9937), cell)
}

func TestAssigner_assignRestriction_viaNode(t *testing.T) {
	// Arrange
	assigner, cellIndex := newTestAssigner(t)
	dataset := testDataset()

	// Act
	cells, err := assigner.AssignRestriction(dataset.TurnRestrictions[0], dataset.Nodes, dataset.RoadsByID())

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, []string{cellFor(t, cellIndex, 37.7915, -122.3980)}, cells)
}

func TestAssigner_assignRestriction_midpointOfWays(t *testing.T) {
	// Arrange
	assigner, cellIndex := newTestAssigner(t)
	dataset := testDataset()
	restriction := feature.TurnRestriction{
		ID: 5003,
		Members: []feature.RestrictionMember{
			{Type: osm.TypeWay, Ref: 101, Role: "from"},
			{Type: osm.TypeNode, Ref: 777, Role: "via"},
			{Type: osm.TypeWay, Ref: 102, Role: "to"},
			{Type: osm.TypeWay, Ref: 999, Role: "to"},
		},
	}

	// Act
	cells, err := assigner.AssignRestriction(restriction, dataset.Nodes, dataset.RoadsByID())

	// Assert
	util.AssertNil(t, err)
	// Midpoint of a two-point road is its second vertex
	expectedCells := map[string]bool{
		cellFor(t, cellIndex, 37.7915, -122.3980): true,
		cellFor(t, cellIndex, 37.7930, -122.3960): true,
	}
	util.AssertLen(t, len(expectedCells), cells)
	for _, cell := range cells {
		util.AssertTrue(t, expectedCells[cell])
	}
}

func TestAssigner_assignRestriction_invalidViaNodeFallsBackToWays(t *testing.T) {
	// Arrange
	assigner, cellIndex := newTestAssigner(t)
	dataset := testDataset()
	dataset.Nodes[9001] = feature.Node{Lat: 137, Lng: -122.3980}
	restriction := dataset.TurnRestrictions[0]

	// Act
	cells, err := assigner.AssignRestriction(restriction, dataset.Nodes, dataset.RoadsByID())

	// Assert
	util.AssertNil(t, err)
	expectedCells := map[string]bool{
		cellFor(t, cellIndex, 37.7915, -122.3980): true,
		cellFor(t, cellIndex, 37.7930, -122.3960): true,
	}
	util.AssertLen(t, len(expectedCells), cells)
	for _, cell := range cells {
		util.AssertTrue(t, expectedCells[cell])
	}
}

func TestAssigner_assignRestriction_noGeometry(t *testing.T) {
	assigner, _ := newTestAssigner(t)
	restriction := feature.TurnRestriction{
		ID:      5004,
		Members: []feature.RestrictionMember{{Type: osm.TypeWay, Ref: 101, Role: "from"}},
	}

	cells, err := assigner.AssignRestriction(restriction, nil, map[osm.WayID]feature.RoadSegment{101: {ID: 101}})

	util.AssertNil(t, err)
	util.AssertLen(t, 0, cells)
}
