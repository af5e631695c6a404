package importing

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"roadgrid/feature"
	"roadgrid/index"
	"sort"
)

// Assigner determines the cells an entity belongs to. All cells are at the storage level of the cell index.
type Assigner struct {
	cellIndex *index.CellIndex
}

func NewAssigner(cellIndex *index.CellIndex) *Assigner {
	return &Assigner{
		cellIndex: cellIndex,
	}
}

// AssignRoad returns the distinct cells of all vertices of the road in token order. Only the vertices are considered,
// a long segment crossing a cell without a vertex in it is not assigned to that cell.
func (a *Assigner) AssignRoad(road feature.RoadSegment) ([]string, error) {
	cells := map[string]bool{}
	for _, coordinate := range road.Coordinates {
		cell, err := a.cellIndex.CellIDForPoint(coordinate.Lat, coordinate.Lng)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to assign road %d", road.ID)
		}
		cells[cell] = true
	}
	return sortedKeys(cells), nil
}

func (a *Assigner) AssignIntersection(intersection feature.Intersection) (string, error) {
	cell, err := a.cellIndex.CellIDForPoint(intersection.Lat, intersection.Lng)
	if err != nil {
		return "", errors.Wrapf(err, "Unable to assign intersection %d", intersection.NodeID)
	}
	return cell, nil
}

// AssignRestriction returns the cells of all via-nodes with known and valid coordinates. Without such node, the
// midpoints of all way members with valid geometry are used instead. An empty result means the restriction can't be
// assigned.
func (a *Assigner) AssignRestriction(restriction feature.TurnRestriction, nodes map[osm.NodeID]feature.Node, roads map[osm.WayID]feature.RoadSegment) ([]string, error) {
	cells := map[string]bool{}

	for _, nodeId := range restriction.ViaNodes() {
		node, ok := nodes[nodeId]
		if !ok {
			continue
		}

		cell, err := a.cellIndex.CellIDForPoint(node.Lat, node.Lng)
		if err != nil {
			sigolo.Warnf("Ignore via node %d of turn restriction %d: %s", nodeId, restriction.ID, err.Error())
			continue
		}
		cells[cell] = true
	}

	if len(cells) > 0 {
		return sortedKeys(cells), nil
	}

	for _, wayId := range restriction.Ways() {
		road, ok := roads[wayId]
		if !ok {
			continue
		}

		midpoint, ok := road.Midpoint()
		if !ok {
			continue
		}

		cell, err := a.cellIndex.CellIDForPoint(midpoint.Lat, midpoint.Lng)
		if err != nil {
			sigolo.Warnf("Ignore way %d of turn restriction %d: %s", wayId, restriction.ID, err.Error())
			continue
		}
		cells[cell] = true
	}

	return sortedKeys(cells), nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
