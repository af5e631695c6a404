package storage

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"roadgrid/feature"
	"roadgrid/index"
	"sort"
	"strings"
	"sync"
	"time"
)

// CellRecord holds everything stored for one cell. Roads are keyed by their ID, intersections and turn restrictions
// are plain lists that are only appended to, so re-importing the same data duplicates them.
type CellRecord struct {
	Roads            map[osm.WayID]feature.RoadSegment `json:"roads"`
	Intersections    []feature.Intersection            `json:"intersections"`
	TurnRestrictions []feature.TurnRestriction         `json:"turn_restrictions"`
	RoadCount        int                               `json:"road_count"`
	LastUpdated      time.Time                         `json:"last_updated"`
}

func newCellRecord() *CellRecord {
	return &CellRecord{
		Roads: map[osm.WayID]feature.RoadSegment{},
	}
}

// EmptyCellRecord returns a record without any data. It's used by callers that treat missing cells as empty ones.
func EmptyCellRecord() CellRecord {
	return *newCellRecord()
}

// copy creates a shallow copy of the record. The entities themselves are shared since they are never modified in place.
func (r *CellRecord) copy() *CellRecord {
	roads := make(map[osm.WayID]feature.RoadSegment, len(r.Roads))
	for id, road := range r.Roads {
		roads[id] = road
	}

	result := &CellRecord{
		Roads:       roads,
		RoadCount:   r.RoadCount,
		LastUpdated: r.LastUpdated,
	}
	if r.Intersections != nil {
		result.Intersections = append([]feature.Intersection{}, r.Intersections...)
	}
	if r.TurnRestrictions != nil {
		result.TurnRestrictions = append([]feature.TurnRestriction{}, r.TurnRestrictions...)
	}

	return result
}

// SortedRoadIDs returns the IDs of all roads in this record in ascending order.
func (r *CellRecord) SortedRoadIDs() []osm.WayID {
	ids := make([]osm.WayID, 0, len(r.Roads))
	for id := range r.Roads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type RoadMatch struct {
	RoadID osm.WayID           `json:"road_id"`
	Road   feature.RoadSegment `json:"road_data"`
}

type Statistics struct {
	TotalCells            int     `json:"total_cells"`
	TotalRoads            int     `json:"total_roads"`
	TotalTurnRestrictions int     `json:"total_turn_restrictions"`
	TotalIntersections    int     `json:"total_intersections"`
	AverageRoadsPerCell   float64 `json:"avg_roads_per_cell"`
}

// Store holds all cell records. All methods are safe for concurrent use: Reads share one lock of the whole store,
// writes hold it exclusively. Several writes in a row (e.g. an import) are not atomic as a whole.
type Store struct {
	dir   string
	cells map[string]*CellRecord
	mutex *sync.RWMutex
	now   func() time.Time
}

// New creates an empty store. The directory is used for snapshots and exports, it's created on first write.
func New(dir string) *Store {
	return &Store{
		dir:   dir,
		cells: map[string]*CellRecord{},
		mutex: &sync.RWMutex{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *Store) Dir() string {
	return s.dir
}

// AddRoad inserts the road into the cell or replaces the road with the same ID. The road metadata is derived from its
// tags again. Entries of this road in other cells are not touched.
func (s *Store) AddRoad(cell string, road feature.RoadSegment) error {
	token, err := index.CanonicalToken(cell)
	if err != nil {
		return err
	}

	road.Metadata = feature.ParseRoadMetadata(road.Tags)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	record := s.getOrCreateUnsafe(token)
	record.Roads[road.ID] = road
	record.RoadCount = len(record.Roads)
	record.LastUpdated = s.now()

	sigolo.Tracef("Added road %d to cell %s", road.ID, token)
	return nil
}

func (s *Store) AddIntersection(cell string, intersection feature.Intersection) error {
	token, err := index.CanonicalToken(cell)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	record := s.getOrCreateUnsafe(token)
	record.Intersections = append(record.Intersections, intersection)
	record.LastUpdated = s.now()

	sigolo.Tracef("Added intersection %d to cell %s", intersection.NodeID, token)
	return nil
}

func (s *Store) AddTurnRestriction(cell string, restriction feature.TurnRestriction) error {
	token, err := index.CanonicalToken(cell)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	record := s.getOrCreateUnsafe(token)
	record.TurnRestrictions = append(record.TurnRestrictions, restriction)
	record.LastUpdated = s.now()

	sigolo.Tracef("Added turn restriction %d to cell %s", restriction.ID, token)
	return nil
}

// GetCellData returns a copy of the record of the given cell. The boolean is false when there's no data for the cell.
func (s *Store) GetCellData(cell string) (*CellRecord, bool, error) {
	token, err := index.CanonicalToken(cell)
	if err != nil {
		return nil, false, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, ok := s.cells[token]
	if !ok {
		return nil, false, nil
	}
	return record.copy(), true, nil
}

func (s *Store) GetRoadsInCell(cell string) (map[osm.WayID]feature.RoadSegment, error) {
	record, ok, err := s.GetCellData(cell)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[osm.WayID]feature.RoadSegment{}, nil
	}
	return record.Roads, nil
}

func (s *Store) GetIntersectionsInCell(cell string) ([]feature.Intersection, error) {
	record, ok, err := s.GetCellData(cell)
	if err != nil {
		return nil, err
	}
	if !ok || record.Intersections == nil {
		return []feature.Intersection{}, nil
	}
	return record.Intersections, nil
}

func (s *Store) GetTurnRestrictionsInCell(cell string) ([]feature.TurnRestriction, error) {
	record, ok, err := s.GetCellData(cell)
	if err != nil {
		return nil, err
	}
	if !ok || record.TurnRestrictions == nil {
		return []feature.TurnRestriction{}, nil
	}
	return record.TurnRestrictions, nil
}

// ScanRoadByID searches all cells for the given road. This is a linear scan over all cells. Cells are visited in
// token order, so the first cell found for a road stored in multiple cells is always the same one.
func (s *Store) ScanRoadByID(roadId osm.WayID) (string, feature.RoadSegment, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, token := range s.sortedTokensUnsafe() {
		if road, ok := s.cells[token].Roads[roadId]; ok {
			return token, road, true
		}
	}

	return "", feature.RoadSegment{}, false
}

// GetRoadsByType returns all roads with the given highway tag value. Only the given cells are searched, or all cells
// when no cells are given.
func (s *Store) GetRoadsByType(highwayType string, cells []string) (map[string][]RoadMatch, error) {
	return s.findRoads(cells, func(road feature.RoadSegment) bool {
		return road.HighwayType() == highwayType
	})
}

// GetRoadsByName returns all roads whose name contains the given string, ignoring case. Only the given cells are
// searched, or all cells when no cells are given.
func (s *Store) GetRoadsByName(name string, cells []string) (map[string][]RoadMatch, error) {
	lowerName := strings.ToLower(name)
	return s.findRoads(cells, func(road feature.RoadSegment) bool {
		return strings.Contains(strings.ToLower(road.Name()), lowerName)
	})
}

func (s *Store) findRoads(cells []string, matches func(road feature.RoadSegment) bool) (map[string][]RoadMatch, error) {
	tokens, err := canonicalTokens(cells)
	if err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(tokens) == 0 {
		tokens = s.sortedTokensUnsafe()
	}

	result := map[string][]RoadMatch{}
	for _, token := range tokens {
		record, ok := s.cells[token]
		if !ok {
			continue
		}

		for _, roadId := range record.SortedRoadIDs() {
			road := record.Roads[roadId]
			if matches(road) {
				result[token] = append(result[token], RoadMatch{RoadID: roadId, Road: road})
			}
		}
	}

	return result, nil
}

func (s *Store) GetStatistics() Statistics {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.statisticsUnsafe()
}

func (s *Store) statisticsUnsafe() Statistics {
	statistics := Statistics{
		TotalCells: len(s.cells),
	}

	for _, record := range s.cells {
		statistics.TotalRoads += len(record.Roads)
		statistics.TotalTurnRestrictions += len(record.TurnRestrictions)
		statistics.TotalIntersections += len(record.Intersections)
	}

	if statistics.TotalCells > 0 {
		statistics.AverageRoadsPerCell = float64(statistics.TotalRoads) / float64(statistics.TotalCells)
	}

	return statistics
}

// Cells returns the tokens of all cells with data in ascending order.
func (s *Store) Cells() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.sortedTokensUnsafe()
}

// CellsWithin returns the sorted tokens of all stored cells lying within one of the given cells.
func (s *Store) CellsWithin(containers []string) ([]string, error) {
	if len(containers) == 0 {
		return []string{}, nil
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return index.CellsWithin(containers, s.sortedTokensUnsafe())
}

func (s *Store) ClearCell(cell string) error {
	token, err := index.CanonicalToken(cell)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.cells, token)
	return nil
}

func (s *Store) ClearAll() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cells = map[string]*CellRecord{}
}

func (s *Store) getOrCreateUnsafe(token string) *CellRecord {
	record, ok := s.cells[token]
	if !ok {
		record = newCellRecord()
		s.cells[token] = record
	}
	return record
}

func (s *Store) sortedTokensUnsafe() []string {
	tokens := make([]string, 0, len(s.cells))
	for token := range s.cells {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func canonicalTokens(cells []string) ([]string, error) {
	tokens := make([]string, 0, len(cells))
	seen := map[string]bool{}
	for _, cell := range cells {
		token, err := index.CanonicalToken(cell)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid cell in list of cells to search")
		}
		if !seen[token] {
			seen[token] = true
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}
