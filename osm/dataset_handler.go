package osm

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"roadgrid/feature"
	"strings"
)

// DatasetHandler collects roads and turn restrictions into a dataset. Every way with a "highway" tag is a road, every
// relation of type "restriction" is a turn restriction. Ways referencing unknown nodes keep only their known
// coordinates.
type DatasetHandler struct {
	Dataset *feature.Dataset

	allNodes map[osm.NodeID]feature.Node
}

func NewDatasetHandler() *DatasetHandler {
	return &DatasetHandler{}
}

func (h *DatasetHandler) Name() string {
	return "DatasetHandler"
}

func (h *DatasetHandler) Init() error {
	h.Dataset = &feature.Dataset{
		Nodes: map[osm.NodeID]feature.Node{},
	}
	h.allNodes = map[osm.NodeID]feature.Node{}
	return nil
}

func (h *DatasetHandler) HandleNode(node *osm.Node) error {
	h.allNodes[node.ID] = feature.Node{
		Lat:  node.Lat,
		Lng:  node.Lon,
		Tags: nodeTags(node.Tags),
	}
	return nil
}

func (h *DatasetHandler) HandleWay(way *osm.Way) error {
	if way.Tags.Find("highway") == "" {
		return nil
	}

	road := feature.RoadSegment{
		ID:          way.ID,
		Nodes:       make([]osm.NodeID, 0, len(way.Nodes)),
		Coordinates: make([]feature.Coordinate, 0, len(way.Nodes)),
		Tags:        feature.TagsToMap(way.Tags),
	}

	for _, wayNode := range way.Nodes {
		node, ok := h.allNodes[wayNode.ID]
		if !ok {
			sigolo.Warnf("Node %d of way %d not found, the node is skipped", wayNode.ID, way.ID)
			continue
		}

		road.Nodes = append(road.Nodes, wayNode.ID)
		road.Coordinates = append(road.Coordinates, node.Coordinate())
		h.Dataset.Nodes[wayNode.ID] = node
	}

	if len(road.Coordinates) == 0 {
		sigolo.Warnf("Way %d has no known nodes and is skipped", way.ID)
		return nil
	}

	h.Dataset.Roads = append(h.Dataset.Roads, road)
	sigolo.Tracef("Read road %d with %d nodes", road.ID, len(road.Nodes))
	return nil
}

func (h *DatasetHandler) HandleRelation(relation *osm.Relation) error {
	if !isRestriction(relation.Tags) {
		return nil
	}

	restriction := feature.TurnRestriction{
		ID:      relation.ID,
		Tags:    feature.TagsToMap(relation.Tags),
		Members: make([]feature.RestrictionMember, len(relation.Members)),
	}

	for i, member := range relation.Members {
		restriction.Members[i] = feature.RestrictionMember{
			Type: member.Type,
			Ref:  member.Ref,
			Role: member.Role,
		}

		// Via nodes are usually not part of any road and would be dropped otherwise.
		if member.Type == osm.TypeNode {
			if node, ok := h.allNodes[osm.NodeID(member.Ref)]; ok {
				h.Dataset.Nodes[osm.NodeID(member.Ref)] = node
			}
		}
	}

	h.Dataset.TurnRestrictions = append(h.Dataset.TurnRestrictions, restriction)
	sigolo.Tracef("Read turn restriction %d with %d members", restriction.ID, len(restriction.Members))
	return nil
}

func (h *DatasetHandler) Done() error {
	sigolo.Debugf("Read %d roads, %d turn restrictions and %d relevant nodes (of %d nodes in total)", len(h.Dataset.Roads), len(h.Dataset.TurnRestrictions), len(h.Dataset.Nodes), len(h.allNodes))
	h.allNodes = nil
	return nil
}

func isRestriction(tags osm.Tags) bool {
	relationType := tags.Find("type")
	return relationType == "restriction" || strings.HasPrefix(relationType, "restriction:")
}

func nodeTags(tags osm.Tags) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	return tags.Map()
}
