package feature

import (
	"github.com/paulmach/osm"
	"strings"
)

const (
	RoleFrom = "from"
	RoleVia  = "via"
	RoleTo   = "to"
)

// RestrictionType returns the value of the "restriction" tag. Mode specific restrictions like "restriction:hgv" are
// used when the general tag is missing.
func (r TurnRestriction) RestrictionType() string {
	if restrictionType, ok := r.Tags["restriction"]; ok {
		return restrictionType
	}

	for key, value := range r.Tags {
		if strings.HasPrefix(key, "restriction:") {
			return value
		}
	}

	return ""
}

// ViaNodes returns the IDs of all node members with the "via" role.
func (r TurnRestriction) ViaNodes() []osm.NodeID {
	var nodes []osm.NodeID
	for _, member := range r.Members {
		if member.Type == osm.TypeNode && member.Role == RoleVia {
			nodes = append(nodes, osm.NodeID(member.Ref))
		}
	}
	return nodes
}

// Ways returns the IDs of all way members regardless of their role.
func (r TurnRestriction) Ways() []osm.WayID {
	var ways []osm.WayID
	for _, member := range r.Members {
		if member.Type == osm.TypeWay {
			ways = append(ways, osm.WayID(member.Ref))
		}
	}
	return ways
}

// References returns the refs of all members. Refs of different member types are not distinguished.
func (r TurnRestriction) References() []int64 {
	refs := make([]int64, len(r.Members))
	for i, member := range r.Members {
		refs[i] = member.Ref
	}
	return refs
}

// ReferencesAll checks whether each of the given refs is the ref of any member, no matter its type or role.
func (r TurnRestriction) ReferencesAll(refs ...int64) bool {
	for _, ref := range refs {
		found := false
		for _, member := range r.Members {
			if member.Ref == ref {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AppliesTo checks the roles: The "from" way must be fromWay, the "to" way must be toWay and there must be at least
// one "via" member.
func (r TurnRestriction) AppliesTo(fromWay osm.WayID, toWay osm.WayID) bool {
	hasFrom := false
	hasTo := false
	hasVia := false

	for _, member := range r.Members {
		switch member.Role {
		case RoleFrom:
			hasFrom = hasFrom || (member.Type == osm.TypeWay && osm.WayID(member.Ref) == fromWay)
		case RoleTo:
			hasTo = hasTo || (member.Type == osm.TypeWay && osm.WayID(member.Ref) == toWay)
		case RoleVia:
			hasVia = true
		}
	}

	return hasFrom && hasTo && hasVia
}

func TagsToMap(tags osm.Tags) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	return tags.Map()
}
