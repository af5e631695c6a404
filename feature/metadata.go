package feature

// RoadMetadata contains the commonly used road properties parsed from the tags of a road.
type RoadMetadata struct {
	Name        string `json:"name"`
	HighwayType string `json:"highway_type"`
	Oneway      bool   `json:"oneway"`
	MaxSpeed    string `json:"maxspeed,omitempty"`
	Lanes       string `json:"lanes,omitempty"`
	Surface     string `json:"surface,omitempty"`
	Access      string `json:"access,omitempty"`
	Bridge      bool   `json:"bridge"`
	Tunnel      bool   `json:"tunnel"`
	Toll        bool   `json:"toll"`
	Ref         string `json:"ref,omitempty"`
}

func ParseRoadMetadata(tags map[string]string) RoadMetadata {
	metadata := RoadMetadata{
		Name:        tags["name"],
		HighwayType: tags["highway"],
		MaxSpeed:    tags["maxspeed"],
		Lanes:       tags["lanes"],
		Surface:     tags["surface"],
		Access:      tags["access"],
		Bridge:      tags["bridge"] == "yes",
		Tunnel:      tags["tunnel"] == "yes",
		Toll:        tags["toll"] == "yes",
		Ref:         tags["ref"],
	}

	if metadata.Name == "" {
		metadata.Name = "Unnamed"
	}
	if metadata.HighwayType == "" {
		metadata.HighwayType = "unknown"
	}

	switch tags["oneway"] {
	case "yes", "1", "true":
		metadata.Oneway = true
	}

	return metadata
}
