package web

import (
	"encoding/json"
	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"net/http"
	"roadgrid/feature"
	"roadgrid/importing"
	"roadgrid/index"
	ownIo "roadgrid/io"
	"roadgrid/metrics"
	"roadgrid/query"
	"roadgrid/storage"
	"strconv"
	"strings"
	"time"
)

const maxImportBodyBytes = 256 << 20

var ErrInvalidParameter = errors.New("invalid parameter")

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func NewErrorResponse(message string, err error) ErrorResponse {
	response := ErrorResponse{
		Error: message,
	}
	if err != nil {
		response.Details = err.Error()
	}
	return response
}

type HealthResponse struct {
	Status     string             `json:"status"`
	Statistics storage.Statistics `json:"statistics"`
}

type CellInfoResponse struct {
	CellID    string         `json:"cell_id"`
	Level     int            `json:"level"`
	Center    query.Position `json:"center"`
	Bounds    query.Bounds   `json:"bounds"`
	Neighbors []string       `json:"neighbors"`
}

type RestrictionsResponse struct {
	From         osm.WayID                 `json:"from"`
	To           osm.WayID                 `json:"to"`
	Match        query.RestrictionMatch    `json:"match"`
	Restrictions []feature.TurnRestriction `json:"restrictions"`
}

type SnapshotResponse struct {
	Path       string             `json:"path,omitempty"`
	Statistics storage.Statistics `json:"statistics"`
}

// Api serves the query engine, the store and the importer via HTTP. The store handles concurrent imports and
// queries itself, the Api holds no state of its own.
type Api struct {
	cellIndex *index.CellIndex
	store     *storage.Store
	engine    *query.Engine
	importer  *importing.Importer
}

func NewApi(cellIndex *index.CellIndex, store *storage.Store, engine *query.Engine, importer *importing.Importer) *Api {
	return &Api{
		cellIndex: cellIndex,
		store:     store,
		engine:    engine,
		importer:  importer,
	}
}

func (a *Api) StartServer(port int, readTimeout time.Duration, writeTimeout time.Duration) error {
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      a.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	sigolo.Infof("Start server on port %d", port)
	return server.ListenAndServe()
}

func (a *Api) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/statistics", a.handleStatistics).Methods(http.MethodGet)
	r.HandleFunc("/api/query/point", a.handlePointQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/query/area", a.handleAreaQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/query/radius", a.handleRadiusQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/restrictions", a.handleRestrictions).Methods(http.MethodGet)
	r.HandleFunc("/api/roads", a.handleRoads).Methods(http.MethodGet)
	r.HandleFunc("/api/cell-info", a.handleCellInfoForPoint).Methods(http.MethodGet)
	r.HandleFunc("/api/cells/{token}", a.handleCellInfo).Methods(http.MethodGet)
	r.HandleFunc("/api/cells/{token}/geojson", a.handleCellGeoJson).Methods(http.MethodGet)
	r.HandleFunc("/api/import", a.handleImport).Methods(http.MethodPost)
	r.HandleFunc("/api/snapshots", a.handleSaveSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/api/snapshots/{name}/load", a.handleLoadSnapshot).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

func (a *Api) handleHealth(writer http.ResponseWriter, request *http.Request) {
	writeJson(writer, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Statistics: a.statistics(),
	})
}

func (a *Api) handleStatistics(writer http.ResponseWriter, request *http.Request) {
	writeJson(writer, http.StatusOK, a.statistics())
}

func (a *Api) statistics() storage.Statistics {
	statistics := a.store.GetStatistics()
	metrics.SetStoreCells(statistics.TotalCells)
	return statistics
}

func (a *Api) handlePointQuery(writer http.ResponseWriter, request *http.Request) {
	lat, lng, err := coordinateParams(request)
	if err != nil {
		writeError(writer, "Invalid point query", err)
		return
	}

	result, err := a.engine.PointQuery(lat, lng)
	if err != nil {
		writeError(writer, "Error executing point query", err)
		return
	}

	writeJson(writer, http.StatusOK, result)
}

func (a *Api) handleAreaQuery(writer http.ResponseWriter, request *http.Request) {
	values, err := floatParams(request, "min_lat", "min_lng", "max_lat", "max_lng")
	if err != nil {
		writeError(writer, "Invalid area query", err)
		return
	}

	result, err := a.engine.AreaQuery(values[0], values[1], values[2], values[3])
	if err != nil {
		writeError(writer, "Error executing area query", err)
		return
	}

	writeJson(writer, http.StatusOK, result)
}

func (a *Api) handleRadiusQuery(writer http.ResponseWriter, request *http.Request) {
	values, err := floatParams(request, "lat", "lng", "radius")
	if err != nil {
		writeError(writer, "Invalid radius query", err)
		return
	}

	result, err := a.engine.RadiusQuery(values[0], values[1], values[2])
	if err != nil {
		writeError(writer, "Error executing radius query", err)
		return
	}

	writeJson(writer, http.StatusOK, result)
}

func (a *Api) handleRestrictions(writer http.ResponseWriter, request *http.Request) {
	fromRoad, err := intParam(request, "from")
	if err != nil {
		writeError(writer, "Invalid restriction lookup", err)
		return
	}
	toRoad, err := intParam(request, "to")
	if err != nil {
		writeError(writer, "Invalid restriction lookup", err)
		return
	}

	restrictions, err := a.engine.RouteRestrictionLookup(osm.WayID(fromRoad), osm.WayID(toRoad))
	if err != nil {
		writeError(writer, "Error looking up restrictions", err)
		return
	}

	writeJson(writer, http.StatusOK, RestrictionsResponse{
		From:         osm.WayID(fromRoad),
		To:           osm.WayID(toRoad),
		Match:        a.engine.RestrictionMatch(),
		Restrictions: restrictions,
	})
}

// handleRoads searches roads by name or by highway type. The optional "cells" parameter is a comma separated list of
// cell tokens restricting the search.
func (a *Api) handleRoads(writer http.ResponseWriter, request *http.Request) {
	name := request.URL.Query().Get("name")
	highwayType := request.URL.Query().Get("type")

	var cells []string
	if cellsParam := request.URL.Query().Get("cells"); cellsParam != "" {
		cells = strings.Split(cellsParam, ",")
	}

	var result map[string][]storage.RoadMatch
	var err error
	switch {
	case highwayType != "":
		result, err = a.store.GetRoadsByType(highwayType, cells)
	case name != "":
		result, err = a.store.GetRoadsByName(name, cells)
	default:
		err = errors.Wrap(ErrInvalidParameter, "Parameter 'name' or 'type' is required")
	}
	if err != nil {
		writeError(writer, "Error searching roads", err)
		return
	}

	writeJson(writer, http.StatusOK, result)
}

func (a *Api) handleCellInfoForPoint(writer http.ResponseWriter, request *http.Request) {
	lat, lng, err := coordinateParams(request)
	if err != nil {
		writeError(writer, "Invalid cell info request", err)
		return
	}

	cell, err := a.cellIndex.CellIDForPoint(lat, lng)
	if err != nil {
		writeError(writer, "Error resolving cell", err)
		return
	}

	a.writeCellInfo(writer, cell)
}

func (a *Api) handleCellInfo(writer http.ResponseWriter, request *http.Request) {
	a.writeCellInfo(writer, mux.Vars(request)["token"])
}

func (a *Api) writeCellInfo(writer http.ResponseWriter, cell string) {
	info, err := CellInfo(a.cellIndex, cell)
	if err != nil {
		writeError(writer, "Error determining cell info", err)
		return
	}

	writeJson(writer, http.StatusOK, info)
}

func CellInfo(cellIndex *index.CellIndex, cell string) (*CellInfoResponse, error) {
	token, err := index.CanonicalToken(cell)
	if err != nil {
		return nil, err
	}

	level, err := cellIndex.CellLevel(token)
	if err != nil {
		return nil, err
	}

	bounds, err := cellIndex.CellBounds(token)
	if err != nil {
		return nil, err
	}

	centerLat, centerLng, err := cellIndex.CellCenter(token)
	if err != nil {
		return nil, err
	}

	neighbors, err := cellIndex.NeighborCells(token)
	if err != nil {
		return nil, err
	}

	return &CellInfoResponse{
		CellID: token,
		Level:  level,
		Center: query.Position{Lat: centerLat, Lng: centerLng},
		Bounds: query.Bounds{
			MinLat: bounds.Min.Lat(),
			MinLng: bounds.Min.Lon(),
			MaxLat: bounds.Max.Lat(),
			MaxLng: bounds.Max.Lon(),
		},
		Neighbors: neighbors,
	}, nil
}

func (a *Api) handleCellGeoJson(writer http.ResponseWriter, request *http.Request) {
	featureCollection, err := a.store.ExportCellGeoJSON(mux.Vars(request)["token"], "")
	if err != nil {
		writeError(writer, "Error exporting cell", err)
		return
	}

	writer.Header().Set("Access-Control-Allow-Origin", "*")
	writer.Header().Set("Content-Type", "application/geo+json")

	err = ownIo.WriteFeatureCollectionAsGeoJson(featureCollection, writer)
	if err != nil {
		sigolo.Errorf("Error writing GeoJSON response: %+v", err)
	}
}

func (a *Api) handleImport(writer http.ResponseWriter, request *http.Request) {
	dataset := &feature.Dataset{}
	decoder := json.NewDecoder(http.MaxBytesReader(writer, request.Body, maxImportBodyBytes))
	err := decoder.Decode(dataset)
	if err != nil {
		writeError(writer, "Error reading dataset", errors.Wrapf(ErrInvalidParameter, "Unable to parse dataset: %s", err.Error()))
		return
	}

	result, err := a.importer.ImportDataset(dataset)
	if err != nil {
		writeError(writer, "Error importing dataset", err)
		return
	}

	writeJson(writer, http.StatusOK, result)
}

func (a *Api) handleSaveSnapshot(writer http.ResponseWriter, request *http.Request) {
	name := request.URL.Query().Get("name")
	err := validateSnapshotName(name)
	if err != nil {
		writeError(writer, "Error saving snapshot", err)
		return
	}

	path, err := a.store.SaveSnapshot(name)
	if err != nil {
		writeError(writer, "Error saving snapshot", err)
		return
	}

	writeJson(writer, http.StatusCreated, SnapshotResponse{
		Path:       path,
		Statistics: a.statistics(),
	})
}

func (a *Api) handleLoadSnapshot(writer http.ResponseWriter, request *http.Request) {
	name := mux.Vars(request)["name"]
	err := validateSnapshotName(name)
	if err != nil {
		writeError(writer, "Error loading snapshot", err)
		return
	}

	err = a.store.LoadSnapshot(name)
	if err != nil {
		writeError(writer, "Error loading snapshot", err)
		return
	}

	writeJson(writer, http.StatusOK, SnapshotResponse{
		Statistics: a.statistics(),
	})
}

// validateSnapshotName only accepts names of files directly within the storage directory. An empty name is valid and
// results in a generated name when saving.
func validateSnapshotName(name string) error {
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.Wrapf(ErrInvalidParameter, "Snapshot name '%s' must not contain path separators or refer to a directory", name)
	}
	return nil
}

func coordinateParams(request *http.Request) (float64, float64, error) {
	values, err := floatParams(request, "lat", "lng")
	if err != nil {
		return 0, 0, err
	}
	return values[0], values[1], nil
}

func floatParams(request *http.Request, names ...string) ([]float64, error) {
	values := make([]float64, len(names))
	for i, name := range names {
		rawValue := request.URL.Query().Get(name)
		if rawValue == "" {
			return nil, errors.Wrapf(ErrInvalidParameter, "Parameter '%s' is required", name)
		}

		value, err := strconv.ParseFloat(rawValue, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidParameter, "Parameter '%s' is not a number: '%s'", name, rawValue)
		}
		values[i] = value
	}
	return values, nil
}

func intParam(request *http.Request, name string) (int64, error) {
	rawValue := request.URL.Query().Get(name)
	if rawValue == "" {
		return 0, errors.Wrapf(ErrInvalidParameter, "Parameter '%s' is required", name)
	}

	value, err := strconv.ParseInt(rawValue, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidParameter, "Parameter '%s' is not an integer: '%s'", name, rawValue)
	}
	return value, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParameter),
		errors.Is(err, index.ErrInvalidCoordinate),
		errors.Is(err, index.ErrInvalidLevel),
		errors.Is(err, index.ErrInvalidCellToken),
		errors.Is(err, index.ErrRegionTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrCorruptState):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(writer http.ResponseWriter, message string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		sigolo.Errorf("%s: %+v", message, err)
	} else {
		sigolo.Debugf("%s: %s", message, err.Error())
	}

	writeJson(writer, status, NewErrorResponse(message, err))
}

func writeJson(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Access-Control-Allow-Origin", "*")
	writer.Header().Set("Content-Type", "application/json")

	responseBytes, err := json.Marshal(value)
	if err != nil {
		sigolo.Errorf("Error marshalling response object: %+v", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	writer.WriteHeader(status)
	_, err = writer.Write(responseBytes)
	if err != nil {
		sigolo.Errorf("Error writing response: %+v", err)
	}
}
