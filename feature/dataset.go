package feature

import (
	"github.com/paulmach/osm"
	"sort"
)

// Node is a plain OSM node. Nodes are only needed to resolve via-nodes of turn restrictions and to derive
// intersections, roads carry their own coordinates.
type Node struct {
	Lat  float64           `json:"lat"`
	Lng  float64           `json:"lng"`
	Tags map[string]string `json:"tags,omitempty"`
}

func (n Node) Coordinate() Coordinate {
	return Coordinate{Lat: n.Lat, Lng: n.Lng}
}

// Dataset is a batch of data to import, either read from an OSM file or given as JSON.
type Dataset struct {
	Roads            []RoadSegment       `json:"roads"`
	Nodes            map[osm.NodeID]Node `json:"nodes"`
	Intersections    []Intersection      `json:"intersections,omitempty"`
	TurnRestrictions []TurnRestriction   `json:"turn_restrictions,omitempty"`
}

func (d *Dataset) RoadsByID() map[osm.WayID]RoadSegment {
	roads := make(map[osm.WayID]RoadSegment, len(d.Roads))
	for _, road := range d.Roads {
		roads[road.ID] = road
	}
	return roads
}

// DeriveIntersections returns all nodes used by at least two different roads. Nodes without known coordinates are
// ignored. The result is ordered by node ID and the connected roads by way ID.
func (d *Dataset) DeriveIntersections() []Intersection {
	nodeUsage := map[osm.NodeID]map[osm.WayID]bool{}
	for _, road := range d.Roads {
		for _, nodeId := range road.Nodes {
			if _, ok := nodeUsage[nodeId]; !ok {
				nodeUsage[nodeId] = map[osm.WayID]bool{}
			}
			nodeUsage[nodeId][road.ID] = true
		}
	}

	var intersections []Intersection
	for nodeId, roadIds := range nodeUsage {
		if len(roadIds) < 2 {
			continue
		}

		node, ok := d.Nodes[nodeId]
		if !ok {
			continue
		}

		connectedRoads := make([]osm.WayID, 0, len(roadIds))
		for roadId := range roadIds {
			connectedRoads = append(connectedRoads, roadId)
		}
		sort.Slice(connectedRoads, func(i, j int) bool { return connectedRoads[i] < connectedRoads[j] })

		intersections = append(intersections, Intersection{
			NodeID:         nodeId,
			Lat:            node.Lat,
			Lng:            node.Lng,
			ConnectedRoads: connectedRoads,
			Tags:           node.Tags,
		})
	}

	sort.Slice(intersections, func(i, j int) bool { return intersections[i].NodeID < intersections[j].NodeID })
	return intersections
}
