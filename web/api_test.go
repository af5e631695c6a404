package web

import (
	"bytes"
	"encoding/json"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"roadgrid/feature"
	"roadgrid/importing"
	"roadgrid/index"
	"roadgrid/query"
	"roadgrid/storage"
	"roadgrid/util"
	"strings"
	"testing"
)

func newTestApi(t *testing.T) (*Api, *index.CellIndex) {
	cellIndex, err := index.NewFixedLevelCellIndex(index.DefaultLevel)
	util.AssertNil(t, err)

	store := storage.New(t.TempDir())

	engine, err := query.NewEngine(cellIndex, store, query.DefaultOptions())
	util.AssertNil(t, err)

	return NewApi(cellIndex, store, engine, importing.NewImporter(cellIndex, store)), cellIndex
}

func testDataset() *feature.Dataset {
	return &feature.Dataset{
		Roads: []feature.RoadSegment{
			{
				ID:          101,
				Nodes:       []osm.NodeID{1, 9001},
				Coordinates: []feature.Coordinate{{Lat: 37.7900, Lng: -122.4010}, {Lat: 37.7915, Lng: -122.3980}},
				Tags:        map[string]string{"highway": "primary", "name": "Market Street"},
			},
			{
				ID:          102,
				Nodes:       []osm.NodeID{9001, 3},
				Coordinates: []feature.Coordinate{{Lat: 37.7915, Lng: -122.3980}, {Lat: 37.7930, Lng: -122.3960}},
				Tags:        map[string]string{"highway": "residential", "name": "Front Street"},
			},
		},
		Nodes: map[osm.NodeID]feature.Node{
			1:    {Lat: 37.7900, Lng: -122.4010},
			9001: {Lat: 37.7915, Lng: -122.3980},
			3:    {Lat: 37.7930, Lng: -122.3960},
		},
		TurnRestrictions: []feature.TurnRestriction{
			{
				ID:   5001,
				Tags: map[string]string{"type": "restriction", "restriction": "no_left_turn"},
				Members: []feature.RestrictionMember{
					{Type: osm.TypeWay, Ref: 101, Role: "from"},
					{Type: osm.TypeNode, Ref: 9001, Role: "via"},
					{Type: osm.TypeWay, Ref: 102, Role: "to"},
				},
			},
		},
	}
}

func doRequest(t *testing.T, api *Api, method string, target string, body io.Reader) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, body)
	recorder := httptest.NewRecorder()
	api.Router().ServeHTTP(recorder, request)
	return recorder
}

func importTestDataset(t *testing.T, api *Api) importing.Result {
	data, err := json.Marshal(testDataset())
	util.AssertNil(t, err)

	recorder := doRequest(t, api, http.MethodPost, "/api/import", bytes.NewReader(data))
	util.AssertEqual(t, http.StatusOK, recorder.Code)

	result := importing.Result{}
	util.AssertNil(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	return result
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) ErrorResponse {
	response := ErrorResponse{}
	util.AssertNil(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response
}

func TestApi_import(t *testing.T) {
	api, _ := newTestApi(t)

	result := importTestDataset(t, api)

	util.AssertEqual(t, 2, result.RoadsImported)
	util.AssertEqual(t, 3, result.RoadCellEntries)
	util.AssertEqual(t, 1, result.TurnRestrictionsImported)
	util.AssertTrue(t, result.IntersectionsDerived)
}

func TestApi_import_invalidBody(t *testing.T) {
	api, _ := newTestApi(t)

	recorder := doRequest(t, api, http.MethodPost, "/api/import", strings.NewReader("{roads: ["))

	util.AssertEqual(t, http.StatusBadRequest, recorder.Code)
	util.AssertEqual(t, "Error reading dataset", decodeError(t, recorder).Error)
}

func TestApi_healthAndStatistics(t *testing.T) {
	// Arrange
	api, _ := newTestApi(t)
	importTestDataset(t, api)

	// Act
	healthRecorder := doRequest(t, api, http.MethodGet, "/api/health", nil)
	statisticsRecorder := doRequest(t, api, http.MethodGet, "/api/statistics", nil)

	// Assert
	util.AssertEqual(t, http.StatusOK, healthRecorder.Code)
	health := HealthResponse{}
	util.AssertNil(t, json.Unmarshal(healthRecorder.Body.Bytes(), &health))
	util.AssertEqual(t, "healthy", health.Status)
	util.AssertEqual(t, 2, health.Statistics.TotalCells)

	util.AssertEqual(t, http.StatusOK, statisticsRecorder.Code)
	statistics := storage.Statistics{}
	util.AssertNil(t, json.Unmarshal(statisticsRecorder.Body.Bytes(), &statistics))
	util.AssertEqual(t, 3, statistics.TotalRoads)
	util.AssertEqual(t, 1, statistics.TotalTurnRestrictions)
	util.AssertEqual(t, "application/json", statisticsRecorder.Header().Get("Content-Type"))
}

func TestApi_pointQuery(t *testing.T) {
	// Arrange
	api, cellIndex := newTestApi(t)
	importTestDataset(t, api)
	expectedCell, err := cellIndex.CellIDForPoint(37.7915, -122.3980)
	util.AssertNil(t, err)

	// Act
	recorder := doRequest(t, api, http.MethodGet, "/api/query/point?lat=37.7915&lng=-122.3980", nil)

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	result := query.PointResult{}
	util.AssertNil(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	util.AssertEqual(t, expectedCell, result.CellID)
	util.AssertTrue(t, result.Initialized)
	util.AssertLen(t, 2, result.Data.Roads)
	util.AssertEqual(t, "Market Street", result.Data.Roads[101].Metadata.Name)
}

func TestApi_pointQuery_badRequests(t *testing.T) {
	api, _ := newTestApi(t)

	missingRecorder := doRequest(t, api, http.MethodGet, "/api/query/point?lat=37.79", nil)
	malformedRecorder := doRequest(t, api, http.MethodGet, "/api/query/point?lat=abc&lng=1", nil)
	outOfRangeRecorder := doRequest(t, api, http.MethodGet, "/api/query/point?lat=100&lng=1", nil)

	util.AssertEqual(t, http.StatusBadRequest, missingRecorder.Code)
	util.AssertTrue(t, strings.Contains(decodeError(t, missingRecorder).Details, "'lng'"))
	util.AssertEqual(t, http.StatusBadRequest, malformedRecorder.Code)
	util.AssertEqual(t, http.StatusBadRequest, outOfRangeRecorder.Code)
	util.AssertEqual(t, "Error executing point query", decodeError(t, outOfRangeRecorder).Error)
}

func TestApi_areaAndRadiusQuery(t *testing.T) {
	// Arrange
	api, _ := newTestApi(t)
	importTestDataset(t, api)

	// Act
	areaRecorder := doRequest(t, api, http.MethodGet, "/api/query/area?min_lat=37.785&min_lng=-122.405&max_lat=37.795&max_lng=-122.395", nil)
	radiusRecorder := doRequest(t, api, http.MethodGet, "/api/query/radius?lat=37.7900&lng=-122.4005&radius=100", nil)
	negativeRadiusRecorder := doRequest(t, api, http.MethodGet, "/api/query/radius?lat=37.7900&lng=-122.4005&radius=-1", nil)
	hugeAreaRecorder := doRequest(t, api, http.MethodGet, "/api/query/area?min_lat=-60&min_lng=-100&max_lat=60&max_lng=100", nil)

	// Assert
	util.AssertEqual(t, http.StatusOK, areaRecorder.Code)
	areaResult := query.AreaResult{}
	util.AssertNil(t, json.Unmarshal(areaRecorder.Body.Bytes(), &areaResult))
	util.AssertEqual(t, 2, areaResult.Summary.TotalCells)
	util.AssertEqual(t, 3, areaResult.Summary.TotalRoads)

	util.AssertEqual(t, http.StatusOK, radiusRecorder.Code)
	radiusResult := query.AreaResult{}
	util.AssertNil(t, json.Unmarshal(radiusRecorder.Body.Bytes(), &radiusResult))
	util.AssertEqual(t, 100.0, radiusResult.RadiusMeters)
	util.AssertTrue(t, radiusResult.Summary.TotalRoads >= 1)

	util.AssertEqual(t, http.StatusBadRequest, negativeRadiusRecorder.Code)
	util.AssertEqual(t, http.StatusBadRequest, hugeAreaRecorder.Code)
}

func TestApi_restrictions(t *testing.T) {
	// Arrange
	api, _ := newTestApi(t)
	importTestDataset(t, api)

	// Act
	recorder := doRequest(t, api, http.MethodGet, "/api/restrictions?from=101&to=102", nil)
	unknownRecorder := doRequest(t, api, http.MethodGet, "/api/restrictions?from=101&to=999", nil)
	invalidRecorder := doRequest(t, api, http.MethodGet, "/api/restrictions?from=101&to=x", nil)

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	response := RestrictionsResponse{}
	util.AssertNil(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	util.AssertEqual(t, query.MatchLoose, response.Match)
	util.AssertLen(t, 1, response.Restrictions)
	util.AssertEqual(t, osm.RelationID(5001), response.Restrictions[0].ID)

	util.AssertEqual(t, http.StatusOK, unknownRecorder.Code)
	util.AssertTrue(t, strings.Contains(unknownRecorder.Body.String(), `"restrictions":[]`))

	util.AssertEqual(t, http.StatusBadRequest, invalidRecorder.Code)
}

func TestApi_roads(t *testing.T) {
	// Arrange
	api, _ := newTestApi(t)
	importTestDataset(t, api)

	// Act
	byNameRecorder := doRequest(t, api, http.MethodGet, "/api/roads?name=market", nil)
	byTypeRecorder := doRequest(t, api, http.MethodGet, "/api/roads?type=residential", nil)
	missingRecorder := doRequest(t, api, http.MethodGet, "/api/roads", nil)
	invalidCellRecorder := doRequest(t, api, http.MethodGet, "/api/roads?type=primary&cells=zz", nil)

	// Assert
	util.AssertEqual(t, http.StatusOK, byNameRecorder.Code)
	byName := map[string][]storage.RoadMatch{}
	util.AssertNil(t, json.Unmarshal(byNameRecorder.Body.Bytes(), &byName))
	util.AssertLen(t, 2, byName)

	util.AssertEqual(t, http.StatusOK, byTypeRecorder.Code)
	byType := map[string][]storage.RoadMatch{}
	util.AssertNil(t, json.Unmarshal(byTypeRecorder.Body.Bytes(), &byType))
	util.AssertLen(t, 1, byType)
	for _, matches := range byType {
		util.AssertLen(t, 1, matches)
		util.AssertEqual(t, osm.WayID(102), matches[0].RoadID)
	}

	util.AssertEqual(t, http.StatusBadRequest, missingRecorder.Code)
	util.AssertEqual(t, http.StatusBadRequest, invalidCellRecorder.Code)
}

func TestApi_cellInfo(t *testing.T) {
	// Arrange
	api, cellIndex := newTestApi(t)
	cell, err := cellIndex.CellIDForPoint(37.7900, -122.4010)
	util.AssertNil(t, err)

	// Act
	recorder := doRequest(t, api, http.MethodGet, "/api/cells/"+cell, nil)
	pointRecorder := doRequest(t, api, http.MethodGet, "/api/cell-info?lat=37.7900&lng=-122.4010", nil)
	invalidRecorder := doRequest(t, api, http.MethodGet, "/api/cells/not-a-token", nil)

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	info := CellInfoResponse{}
	util.AssertNil(t, json.Unmarshal(recorder.Body.Bytes(), &info))
	util.AssertEqual(t, cell, info.CellID)
	util.AssertEqual(t, index.DefaultLevel, info.Level)
	util.AssertTrue(t, info.Bounds.MinLat <= 37.7900 && 37.7900 <= info.Bounds.MaxLat)
	util.AssertTrue(t, len(info.Neighbors) > 0)

	util.AssertEqual(t, http.StatusOK, pointRecorder.Code)
	pointInfo := CellInfoResponse{}
	util.AssertNil(t, json.Unmarshal(pointRecorder.Body.Bytes(), &pointInfo))
	util.AssertEqual(t, info, pointInfo)

	util.AssertEqual(t, http.StatusBadRequest, invalidRecorder.Code)
}

func TestApi_cellGeoJson(t *testing.T) {
	// Arrange
	api, cellIndex := newTestApi(t)
	importTestDataset(t, api)
	cell, err := cellIndex.CellIDForPoint(37.7930, -122.3960)
	util.AssertNil(t, err)

	// Act
	recorder := doRequest(t, api, http.MethodGet, "/api/cells/"+cell+"/geojson", nil)

	// Assert
	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertEqual(t, "application/geo+json", recorder.Header().Get("Content-Type"))
	featureCollection, err := geojson.UnmarshalFeatureCollection(recorder.Body.Bytes())
	util.AssertNil(t, err)
	util.AssertTrue(t, len(featureCollection.Features) >= 2)
}

func TestApi_snapshots(t *testing.T) {
	// Arrange
	api, _ := newTestApi(t)
	importTestDataset(t, api)

	// Act
	saveRecorder := doRequest(t, api, http.MethodPost, "/api/snapshots?name=test.snap", nil)
	api.store.ClearAll()
	loadRecorder := doRequest(t, api, http.MethodPost, "/api/snapshots/test.snap/load", nil)
	missingRecorder := doRequest(t, api, http.MethodPost, "/api/snapshots/missing.snap/load", nil)

	// Assert
	util.AssertEqual(t, http.StatusCreated, saveRecorder.Code)
	saveResponse := SnapshotResponse{}
	util.AssertNil(t, json.Unmarshal(saveRecorder.Body.Bytes(), &saveResponse))
	util.AssertTrue(t, strings.HasSuffix(saveResponse.Path, "test.snap"))

	util.AssertEqual(t, http.StatusOK, loadRecorder.Code)
	loadResponse := SnapshotResponse{}
	util.AssertNil(t, json.Unmarshal(loadRecorder.Body.Bytes(), &loadResponse))
	util.AssertEqual(t, 3, loadResponse.Statistics.TotalRoads)

	util.AssertEqual(t, http.StatusNotFound, missingRecorder.Code)
}

func TestApi_loadCorruptSnapshot(t *testing.T) {
	// Arrange
	api, _ := newTestApi(t)
	importTestDataset(t, api)
	saveRecorder := doRequest(t, api, http.MethodPost, "/api/snapshots?name=corrupt.snap", nil)
	util.AssertEqual(t, http.StatusCreated, saveRecorder.Code)
	saveResponse := SnapshotResponse{}
	util.AssertNil(t, json.Unmarshal(saveRecorder.Body.Bytes(), &saveResponse))
	util.AssertNil(t, os.WriteFile(saveResponse.Path, []byte("not a snapshot at all"), 0644))

	// Act
	recorder := doRequest(t, api, http.MethodPost, "/api/snapshots/corrupt.snap/load", nil)

	// Assert
	util.AssertEqual(t, http.StatusUnprocessableEntity, recorder.Code)
	util.AssertTrue(t, strings.Contains(decodeError(t, recorder).Details, "corrupt state"))
	util.AssertEqual(t, 3, api.store.GetStatistics().TotalRoads)
}

func TestApi_invalidSnapshotNames(t *testing.T) {
	api, _ := newTestApi(t)

	saveRecorder := doRequest(t, api, http.MethodPost, "/api/snapshots?name=../outside.snap", nil)
	util.AssertEqual(t, http.StatusBadRequest, saveRecorder.Code)

	for _, name := range []string{"..", ".", "../outside.snap", `sub\dir.snap`} {
		util.AssertErrorIs(t, ErrInvalidParameter, validateSnapshotName(name))
	}
	util.AssertNil(t, validateSnapshotName(""))
	util.AssertNil(t, validateSnapshotName("2024-03-01.snap"))
}

func TestApi_metrics(t *testing.T) {
	api, _ := newTestApi(t)
	doRequest(t, api, http.MethodGet, "/api/query/point?lat=37.79&lng=-122.40", nil)

	recorder := doRequest(t, api, http.MethodGet, "/metrics", nil)

	util.AssertEqual(t, http.StatusOK, recorder.Code)
	util.AssertTrue(t, strings.Contains(recorder.Body.String(), `roadgrid_queries_total{kind="point"}`))
}
