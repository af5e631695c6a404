package query

import (
	"fmt"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"roadgrid/feature"
	"roadgrid/index"
	"roadgrid/metrics"
	"roadgrid/storage"
	"sort"
	"time"
)

type RestrictionMatch string

const (
	// MatchLoose accepts every restriction referencing both roads, no matter the roles of the members.
	MatchLoose RestrictionMatch = "loose"
	// MatchStrict only accepts restrictions with the "from" road as from-member, the "to" road as to-member and a
	// via-member.
	MatchStrict RestrictionMatch = "strict"

	DefaultCoveringCacheSize = 1024
)

type Options struct {
	RestrictionMatch  RestrictionMatch
	CoveringCacheSize int
}

func DefaultOptions() Options {
	return Options{
		RestrictionMatch:  MatchLoose,
		CoveringCacheSize: DefaultCoveringCacheSize,
	}
}

type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// PointResult contains the cell of the queried point. Initialized is false when the cell contains no data, Data is
// then an empty record.
type PointResult struct {
	CellID      string             `json:"cell_id"`
	Location    Position           `json:"location"`
	CellCenter  Position           `json:"cell_center"`
	CellBounds  Bounds             `json:"cell_bounds"`
	Initialized bool               `json:"initialized"`
	Data        storage.CellRecord `json:"data"`
}

type AreaSummary struct {
	TotalCells            int `json:"total_cells"`
	TotalRoads            int `json:"total_roads"`
	TotalIntersections    int `json:"total_intersections"`
	TotalTurnRestrictions int `json:"total_turn_restrictions"`
}

// AreaResult is the result of area and radius queries. Cells only contains cells with data while CoveringCells
// contains the covering of the queried region, which may consist of cells coarser than the storage level.
type AreaResult struct {
	Bbox          *Bounds                        `json:"bbox,omitempty"`
	Center        *Position                      `json:"center,omitempty"`
	RadiusMeters  float64                        `json:"radius_meters,omitempty"`
	Cells         map[string]*storage.CellRecord `json:"cells"`
	CoveringCells []string                       `json:"covering_cells"`
	Summary       AreaSummary                    `json:"summary"`
}

// Engine answers spatial queries by looking up the cells of the cell index in the store.
type Engine struct {
	cellIndex        *index.CellIndex
	store            *storage.Store
	restrictionMatch RestrictionMatch
	coveringCache    *lru.Cache[string, []string]
}

func NewEngine(cellIndex *index.CellIndex, store *storage.Store, options Options) (*Engine, error) {
	if options.RestrictionMatch != MatchLoose && options.RestrictionMatch != MatchStrict {
		return nil, errors.Errorf("Unknown restriction match mode '%s'", options.RestrictionMatch)
	}

	coveringCache, err := lru.New[string, []string](options.CoveringCacheSize)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to create covering cache of size %d", options.CoveringCacheSize)
	}

	return &Engine{
		cellIndex:        cellIndex,
		store:            store,
		restrictionMatch: options.RestrictionMatch,
		coveringCache:    coveringCache,
	}, nil
}

func (e *Engine) RestrictionMatch() RestrictionMatch {
	return e.restrictionMatch
}

func (e *Engine) PointQuery(lat float64, lng float64) (*PointResult, error) {
	defer metrics.ObserveQuery(metrics.QueryPoint, time.Now())

	cell, err := e.cellIndex.CellIDForPoint(lat, lng)
	if err != nil {
		return nil, err
	}

	bounds, err := e.cellIndex.CellBounds(cell)
	if err != nil {
		return nil, err
	}

	centerLat, centerLng, err := e.cellIndex.CellCenter(cell)
	if err != nil {
		return nil, err
	}

	record, ok, err := e.store.GetCellData(cell)
	if err != nil {
		return nil, err
	}

	result := &PointResult{
		CellID:     cell,
		Location:   Position{Lat: lat, Lng: lng},
		CellCenter: Position{Lat: centerLat, Lng: centerLng},
		CellBounds: Bounds{
			MinLat: bounds.Min.Lat(),
			MinLng: bounds.Min.Lon(),
			MaxLat: bounds.Max.Lat(),
			MaxLng: bounds.Max.Lon(),
		},
		Initialized: ok,
	}
	if ok {
		result.Data = *record
	} else {
		result.Data = storage.EmptyCellRecord()
	}

	sigolo.Debugf("Point query at %f, %f resolved to cell %s (initialized=%t)", lat, lng, cell, ok)
	return result, nil
}

func (e *Engine) AreaQuery(minLat float64, minLng float64, maxLat float64, maxLng float64) (*AreaResult, error) {
	defer metrics.ObserveQuery(metrics.QueryArea, time.Now())

	covering, err := e.cachedCovering(fmt.Sprintf("bbox:%v,%v,%v,%v", minLat, minLng, maxLat, maxLng), func() ([]string, error) {
		return e.cellIndex.CellsCoveringBbox(minLat, minLng, maxLat, maxLng)
	})
	if err != nil {
		return nil, err
	}

	result, err := e.collectCells(covering, func(cell string) (bool, error) {
		return e.cellIndex.CellIntersectsBbox(cell, minLat, minLng, maxLat, maxLng)
	})
	if err != nil {
		return nil, err
	}
	result.Bbox = &Bounds{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}

	sigolo.Debugf("Area query covered %d cells of which %d contain data", len(covering), result.Summary.TotalCells)
	return result, nil
}

// RadiusQuery returns the data of all cells covering the circle around the given point.
func (e *Engine) RadiusQuery(lat float64, lng float64, radiusMeters float64) (*AreaResult, error) {
	defer metrics.ObserveQuery(metrics.QueryRadius, time.Now())

	covering, err := e.cachedCovering(fmt.Sprintf("radius:%v,%v,%v", lat, lng, radiusMeters), func() ([]string, error) {
		return e.cellIndex.CellsCoveringRadius(lat, lng, radiusMeters)
	})
	if err != nil {
		return nil, err
	}

	result, err := e.collectCells(covering, func(cell string) (bool, error) {
		return e.cellIndex.CellIntersectsRadius(cell, lat, lng, radiusMeters)
	})
	if err != nil {
		return nil, err
	}
	result.Center = &Position{Lat: lat, Lng: lng}
	result.RadiusMeters = radiusMeters

	sigolo.Debugf("Radius query covered %d cells of which %d contain data", len(covering), result.Summary.TotalCells)
	return result, nil
}

// RouteRestrictionLookup returns all turn restrictions relevant when going from one road to another. Restrictions are
// searched in the cells of both roads and their neighbors. Each road is anchored at the first cell found for it, so
// restrictions far away from that cell are not found. An unknown road results in an empty list.
func (e *Engine) RouteRestrictionLookup(fromRoad osm.WayID, toRoad osm.WayID) ([]feature.TurnRestriction, error) {
	defer metrics.ObserveQuery(metrics.QueryRestrictions, time.Now())

	restrictions := []feature.TurnRestriction{}

	fromCell, _, fromFound := e.store.ScanRoadByID(fromRoad)
	toCell, _, toFound := e.store.ScanRoadByID(toRoad)
	if !fromFound || !toFound {
		sigolo.Debugf("Road %d (found=%t) or %d (found=%t) unknown, no restrictions", fromRoad, fromFound, toRoad, toFound)
		return restrictions, nil
	}

	cellsToCheck := map[string]bool{
		fromCell: true,
		toCell:   true,
	}
	for _, anchorCell := range []string{fromCell, toCell} {
		neighbors, err := e.cellIndex.NeighborCells(anchorCell)
		if err != nil {
			return nil, err
		}
		for _, neighbor := range neighbors {
			cellsToCheck[neighbor] = true
		}
	}

	sortedCells := make([]string, 0, len(cellsToCheck))
	for cell := range cellsToCheck {
		sortedCells = append(sortedCells, cell)
	}
	sort.Strings(sortedCells)

	seenRestrictions := map[osm.RelationID]bool{}
	for _, cell := range sortedCells {
		cellRestrictions, err := e.store.GetTurnRestrictionsInCell(cell)
		if err != nil {
			return nil, err
		}

		for _, restriction := range cellRestrictions {
			if seenRestrictions[restriction.ID] || !e.restrictionApplies(restriction, fromRoad, toRoad) {
				continue
			}
			seenRestrictions[restriction.ID] = true
			restrictions = append(restrictions, restriction)
		}
	}

	sigolo.Debugf("Found %d restrictions from road %d to road %d in %d cells", len(restrictions), fromRoad, toRoad, len(sortedCells))
	return restrictions, nil
}

func (e *Engine) restrictionApplies(restriction feature.TurnRestriction, fromRoad osm.WayID, toRoad osm.WayID) bool {
	if e.restrictionMatch == MatchStrict {
		return restriction.AppliesTo(fromRoad, toRoad)
	}
	return restriction.ReferencesAll(int64(fromRoad), int64(toRoad))
}

// cachedCovering returns the normalized covering for the given key. Coverings only depend on the query parameters
// and the level configuration, so cached entries never become invalid.
func (e *Engine) cachedCovering(key string, createCovering func() ([]string, error)) ([]string, error) {
	if covering, ok := e.coveringCache.Get(key); ok {
		metrics.IncCoveringCache(metrics.OutcomeHit)
		return covering, nil
	}
	metrics.IncCoveringCache(metrics.OutcomeMiss)

	covering, err := createCovering()
	if err != nil {
		return nil, err
	}

	normalizedCovering := e.cellIndex.NormalizeCovering(covering)
	e.coveringCache.Add(key, normalizedCovering)

	return normalizedCovering, nil
}

// collectCells looks up the data of all stored cells within the covering. Covering cells on the storage level are
// looked up directly. Coarser covering cells are resolved to the stored cells within them, of which only those
// intersecting the queried region are used.
func (e *Engine) collectCells(covering []string, intersectsRegion func(cell string) (bool, error)) (*AreaResult, error) {
	result := &AreaResult{
		Cells:         map[string]*storage.CellRecord{},
		CoveringCells: append([]string{}, covering...),
	}

	var candidateCells []string
	var coarseCells []string
	for _, cell := range covering {
		level, err := e.cellIndex.CellLevel(cell)
		if err != nil {
			return nil, err
		}

		if level < e.cellIndex.Level() {
			coarseCells = append(coarseCells, cell)
		} else {
			candidateCells = append(candidateCells, cell)
		}
	}

	storedCells, err := e.store.CellsWithin(coarseCells)
	if err != nil {
		return nil, err
	}
	for _, cell := range storedCells {
		intersects, err := intersectsRegion(cell)
		if err != nil {
			return nil, err
		}
		if intersects {
			candidateCells = append(candidateCells, cell)
		}
	}
	sigolo.Tracef("Resolved %d coarse covering cells to %d stored cells", len(coarseCells), len(storedCells))

	for _, cell := range candidateCells {
		record, ok, err := e.store.GetCellData(cell)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		result.Cells[cell] = record
		result.Summary.TotalCells++
		result.Summary.TotalRoads += len(record.Roads)
		result.Summary.TotalIntersections += len(record.Intersections)
		result.Summary.TotalTurnRestrictions += len(record.TurnRestrictions)
	}

	return result, nil
}
