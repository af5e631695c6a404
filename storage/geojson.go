package storage

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"path/filepath"
	"roadgrid/index"
	ownIo "roadgrid/io"
)

// ExportCellGeoJSON converts the roads and intersections of the given cell into GeoJSON features. Roads with less than
// two coordinates are no valid lines and therefore skipped. When an output path is given, the collection is also
// written to that file. Relative paths are relative to the store directory.
func (s *Store) ExportCellGeoJSON(cell string, outputPath string) (*geojson.FeatureCollection, error) {
	token, err := index.CanonicalToken(cell)
	if err != nil {
		return nil, err
	}

	record, ok, err := s.GetCellData(token)
	if err != nil {
		return nil, err
	}

	featureCollection := geojson.NewFeatureCollection()

	if ok {
		for _, roadId := range record.SortedRoadIDs() {
			road := record.Roads[roadId]
			if len(road.Coordinates) < 2 {
				sigolo.Debugf("Skip road %d in cell %s with only %d coordinates", road.ID, token, len(road.Coordinates))
				continue
			}

			geoJsonFeature := geojson.NewFeature(road.LineString())
			for key, value := range road.Tags {
				geoJsonFeature.Properties[key] = value
			}
			geoJsonFeature.Properties["road_id"] = int64(road.ID)
			geoJsonFeature.Properties["cell_id"] = token

			featureCollection.Append(geoJsonFeature)
		}

		for _, intersection := range record.Intersections {
			connectedRoads := make([]int64, len(intersection.ConnectedRoads))
			for i, roadId := range intersection.ConnectedRoads {
				connectedRoads[i] = int64(roadId)
			}

			geoJsonFeature := geojson.NewFeature(orb.Point{intersection.Lng, intersection.Lat})
			geoJsonFeature.Properties["type"] = "intersection"
			geoJsonFeature.Properties["node_id"] = int64(intersection.NodeID)
			geoJsonFeature.Properties["connected_roads"] = connectedRoads

			featureCollection.Append(geoJsonFeature)
		}
	}

	if outputPath != "" {
		if !filepath.IsAbs(outputPath) {
			outputPath = filepath.Join(s.dir, outputPath)
		}

		err = ownIo.WriteFeatureCollectionAsGeoJsonFile(featureCollection, outputPath)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to export cell %s", token)
		}
		sigolo.Infof("Exported %d features of cell %s to %s", len(featureCollection.Features), token, outputPath)
	}

	return featureCollection, nil
}
