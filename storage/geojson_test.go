package storage

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"os"
	"path/filepath"
	"roadgrid/feature"
	"roadgrid/index"
	"roadgrid/util"
	"testing"
)

func TestStore_exportCellGeoJSON(t *testing.T) {
	// Arrange
	store := newTestStore(t)
	cell := cellFor(t, 37.7900, -122.4010)
	util.AssertNil(t, store.AddRoad(cell, marketStreet()))

	// Act
	featureCollection, err := store.ExportCellGeoJSON(cell, "")

	// Assert
	util.AssertNil(t, err)
	util.AssertLen(t, 1, featureCollection.Features)

	geoJsonFeature := featureCollection.Features[0]
	util.AssertEqual(t, orb.LineString{{-122.4010, 37.7900}, {-122.3980, 37.7915}}, geoJsonFeature.Geometry)
	util.AssertEqual(t, int64(101), geoJsonFeature.Properties["road_id"])
	util.AssertEqual(t, cell, geoJsonFeature.Properties["cell_id"])
	util.AssertEqual(t, "Market Street", geoJsonFeature.Properties["name"])
	util.AssertEqual(t, "primary", geoJsonFeature.Properties["highway"])
}

func TestStore_exportCellGeoJSON_skipsDegenerateRoadsAndAddsIntersections(t *testing.T) {
	// Arrange
	store := newTestStore(t)
	cell := cellFor(t, 37.7900, -122.4010)
	util.AssertNil(t, store.AddRoad(cell, feature.RoadSegment{
		ID:          102,
		Coordinates: []feature.Coordinate{{Lat: 37.7900, Lng: -122.4010}},
	}))
	util.AssertNil(t, store.AddIntersection(cell, feature.Intersection{
		NodeID:         1,
		Lat:            37.7900,
		Lng:            -122.4010,
		ConnectedRoads: []osm.WayID{101, 102},
	}))

	// Act
	featureCollection, err := store.ExportCellGeoJSON(cell, "")

	// Assert
	util.AssertNil(t, err)
	util.AssertLen(t, 1, featureCollection.Features)

	geoJsonFeature := featureCollection.Features[0]
	util.AssertEqual(t, orb.Point{-122.4010, 37.7900}, geoJsonFeature.Geometry)
	util.AssertEqual(t, "intersection", geoJsonFeature.Properties["type"])
	util.AssertEqual(t, int64(1), geoJsonFeature.Properties["node_id"])
	util.AssertEqual(t, []int64{101, 102}, geoJsonFeature.Properties["connected_roads"])
}

func TestStore_exportCellGeoJSON_missingCell(t *testing.T) {
	store := newTestStore(t)

	featureCollection, err := store.ExportCellGeoJSON(cellFor(t, 1, 1), "")

	util.AssertNil(t, err)
	util.AssertLen(t, 0, featureCollection.Features)
}

func TestStore_exportCellGeoJSON_invalidCell(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ExportCellGeoJSON("invalid", "")

	util.AssertErrorIs(t, index.ErrInvalidCellToken, err)
}

func TestStore_exportCellGeoJSON_writesFile(t *testing.T) {
	// Arrange
	store := newTestStore(t)
	cell := cellFor(t, 37.7900, -122.4010)
	util.AssertNil(t, store.AddRoad(cell, marketStreet()))

	// Act
	_, err := store.ExportCellGeoJSON(cell, filepath.Join("export", "cell.geojson"))

	// Assert
	util.AssertNil(t, err)

	geojsonBytes, err := os.ReadFile(filepath.Join(store.Dir(), "export", "cell.geojson"))
	util.AssertNil(t, err)

	featureCollection, err := geojson.UnmarshalFeatureCollection(geojsonBytes)
	util.AssertNil(t, err)
	util.AssertLen(t, 1, featureCollection.Features)
	util.AssertEqual(t, orb.LineString{{-122.4010, 37.7900}, {-122.3980, 37.7915}}, featureCollection.Features[0].Geometry)
	util.AssertEqual(t, cell, featureCollection.Features[0].Properties["cell_id"])
}
