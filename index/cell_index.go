package index

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"math"
	"sort"
)

const (
	// EarthRadiusMeters is the mean earth radius used to turn metric radii into angles on the unit sphere.
	EarthRadiusMeters = 6371000.0

	MinCellLevel = 0
	MaxCellLevel = s2.MaxLevel // 30

	DefaultLevel            = 15 // Roughly 1km² per cell
	DefaultMinLevel         = MinCellLevel
	DefaultMaxCoveringCells = 8

	// CoveringCellLimit is the maximum number of cells a covering may consist of. Only relevant when the minimum
	// level forces the coverer to exceed the maximum number of covering cells.
	CoveringCellLimit = 4096
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidLevel      = errors.New("invalid cell level")
	ErrInvalidCellToken  = errors.New("invalid cell token")
	ErrRegionTooLarge    = errors.New("region too large")
)

// CellIndex maps coordinates onto S2 cells. Points are always resolved at the maximum level, coverings may contain
// cells between the minimum and maximum level. The index itself holds no data, only its level configuration.
type CellIndex struct {
	minLevel         int
	maxLevel         int
	maxCoveringCells int
	coverer          *s2.RegionCoverer
}

func NewCellIndex(minLevel int, maxLevel int, maxCoveringCells int) (*CellIndex, error) {
	if minLevel < MinCellLevel || maxLevel > MaxCellLevel || minLevel > maxLevel {
		return nil, errors.Wrapf(ErrInvalidLevel, "Level bounds min=%d, max=%d must satisfy %d <= min <= max <= %d", minLevel, maxLevel, MinCellLevel, MaxCellLevel)
	}
	if maxCoveringCells < 1 {
		return nil, errors.Wrapf(ErrInvalidLevel, "Maximum number of covering cells must be at least 1 but was %d", maxCoveringCells)
	}

	return &CellIndex{
		minLevel:         minLevel,
		maxLevel:         maxLevel,
		maxCoveringCells: maxCoveringCells,
		coverer: &s2.RegionCoverer{
			MinLevel: minLevel,
			MaxLevel: maxLevel,
			LevelMod: 1,
			MaxCells: maxCoveringCells,
		},
	}, nil
}

// NewFixedLevelCellIndex creates an index where points and coverings both use the given level.
func NewFixedLevelCellIndex(level int) (*CellIndex, error) {
	return NewCellIndex(level, level, DefaultMaxCoveringCells)
}

// Level is the level of all cells returned by CellIDForPoint and the finest level of coverings.
func (c *CellIndex) Level() int {
	return c.maxLevel
}

func (c *CellIndex) MinLevel() int {
	return c.minLevel
}

func (c *CellIndex) MaxCoveringCells() int {
	return c.maxCoveringCells
}

func (c *CellIndex) CellIDForPoint(lat float64, lng float64) (string, error) {
	err := ValidateCoordinate(lat, lng)
	if err != nil {
		return "", err
	}

	cellId := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(c.maxLevel)
	return cellId.ToToken(), nil
}

// CellBounds returns the axis-aligned bounding box of the four cell vertices. Cell edges are geodesics, so near the
// poles or at large cells the box might not tightly contain the actual cell area.
func (c *CellIndex) CellBounds(token string) (orb.Bound, error) {
	cellId, err := parseToken(token)
	if err != nil {
		return orb.Bound{}, err
	}

	cell := s2.CellFromCellID(cellId)

	minLat, minLng := math.Inf(1), math.Inf(1)
	maxLat, maxLng := math.Inf(-1), math.Inf(-1)
	for i := 0; i < 4; i++ {
		vertex := s2.LatLngFromPoint(cell.Vertex(i))
		minLat = math.Min(minLat, vertex.Lat.Degrees())
		minLng = math.Min(minLng, vertex.Lng.Degrees())
		maxLat = math.Max(maxLat, vertex.Lat.Degrees())
		maxLng = math.Max(maxLng, vertex.Lng.Degrees())
	}

	return orb.Bound{
		Min: orb.Point{minLng, minLat},
		Max: orb.Point{maxLng, maxLat},
	}, nil
}

func (c *CellIndex) CellCenter(token string) (float64, float64, error) {
	cellId, err := parseToken(token)
	if err != nil {
		return 0, 0, err
	}

	center := s2.LatLngFromPoint(s2.CellFromCellID(cellId).Center())
	return center.Lat.Degrees(), center.Lng.Degrees(), nil
}

// NeighborCells returns the four edge neighbors and the edge neighbors of those. This approximates the eight
// surrounding cells but does not guarantee exactly eight of them, e.g. at cube face corners. The given cell is never
// part of the result. The result is sorted.
func (c *CellIndex) NeighborCells(token string) ([]string, error) {
	cellId, err := parseToken(token)
	if err != nil {
		return nil, err
	}

	neighborSet := map[s2.CellID]bool{}
	for _, edgeNeighbor := range cellId.EdgeNeighbors() {
		neighborSet[edgeNeighbor] = true
		for _, secondNeighbor := range edgeNeighbor.EdgeNeighbors() {
			neighborSet[secondNeighbor] = true
		}
	}
	delete(neighborSet, cellId)

	return sortedTokens(neighborSet), nil
}

// CellsCoveringRadius returns a covering of the spherical cap around the given point. The covering is bounded by the
// maximum number of covering cells, which means it may contain cells coarser than Level(). Use NormalizeCovering
// to remove duplicates and overlapping cells.
func (c *CellIndex) CellsCoveringRadius(lat float64, lng float64, radiusMeters float64) ([]string, error) {
	capRegion, err := radiusRegion(lat, lng, radiusMeters)
	if err != nil {
		return nil, err
	}

	covering, err := c.covering(capRegion, capRegion.Area())
	if err != nil {
		return nil, err
	}
	sigolo.Tracef("Radius %fm around (%f, %f) covered by %d cells", radiusMeters, lat, lng, len(covering))

	return covering, nil
}

// CellsCoveringBbox returns a covering of the rectangle spanned by the two corners. Like CellsCoveringRadius, the
// result is bounded by the maximum number of covering cells and may contain cells coarser than Level().
func (c *CellIndex) CellsCoveringBbox(minLat float64, minLng float64, maxLat float64, maxLng float64) ([]string, error) {
	rect, err := bboxRegion(minLat, minLng, maxLat, maxLng)
	if err != nil {
		return nil, err
	}

	covering, err := c.covering(rect, rect.Area())
	if err != nil {
		return nil, err
	}
	sigolo.Tracef("Bbox (%f, %f, %f, %f) covered by %d cells", minLat, minLng, maxLat, maxLng, len(covering))

	return covering, nil
}

// CellIntersectsRadius determines whether the given cell intersects the spherical cap around the given point.
func (c *CellIndex) CellIntersectsRadius(token string, lat float64, lng float64, radiusMeters float64) (bool, error) {
	cellId, err := parseToken(token)
	if err != nil {
		return false, err
	}

	capRegion, err := radiusRegion(lat, lng, radiusMeters)
	if err != nil {
		return false, err
	}

	return capRegion.IntersectsCell(s2.CellFromCellID(cellId)), nil
}

// CellIntersectsBbox determines whether the given cell intersects the rectangle spanned by the two corners.
func (c *CellIndex) CellIntersectsBbox(token string, minLat float64, minLng float64, maxLat float64, maxLng float64) (bool, error) {
	cellId, err := parseToken(token)
	if err != nil {
		return false, err
	}

	rect, err := bboxRegion(minLat, minLng, maxLat, maxLng)
	if err != nil {
		return false, err
	}

	return rect.IntersectsCell(s2.CellFromCellID(cellId)), nil
}

// covering rejects regions needing more than CoveringCellLimit cells on the minimum level. The estimation happens
// before the coverer runs, since the coverer itself has no upper bound when the minimum level is too fine.
func (c *CellIndex) covering(region s2.Region, area float64) ([]string, error) {
	estimatedCells := area / s2.AvgAreaMetric.Value(c.minLevel)
	if estimatedCells > CoveringCellLimit {
		return nil, errors.Wrapf(ErrRegionTooLarge, "Region needs about %.0f cells on level %d but at most %d are allowed", estimatedCells, c.minLevel, CoveringCellLimit)
	}

	covering := c.coverer.Covering(region)
	if len(covering) > CoveringCellLimit {
		return nil, errors.Wrapf(ErrRegionTooLarge, "Region needs %d cells on levels %d to %d but at most %d are allowed", len(covering), c.minLevel, c.maxLevel, CoveringCellLimit)
	}

	return cellUnionToTokens(covering), nil
}

// NormalizeCovering lifts cells finer than Level() to their ancestor on that level and removes cells contained in
// other cells of the covering. Coarser cells are kept as they are, so the result is never larger than the input.
// The result is sorted. Invalid tokens are skipped.
func (c *CellIndex) NormalizeCovering(tokens []string) []string {
	var cellUnion s2.CellUnion

	for _, token := range tokens {
		cellId, err := parseToken(token)
		if err != nil {
			sigolo.Warnf("Skip invalid token '%s' in covering: %s", token, err.Error())
			continue
		}

		if cellId.Level() > c.maxLevel {
			cellId = cellId.Parent(c.maxLevel)
		}
		cellUnion = append(cellUnion, cellId)
	}

	// Ordered by range start with coarser cells first, every cell directly follows its containing cell or other
	// descendants of it.
	sort.Slice(cellUnion, func(i, j int) bool {
		if cellUnion[i].RangeMin() != cellUnion[j].RangeMin() {
			return cellUnion[i].RangeMin() < cellUnion[j].RangeMin()
		}
		return cellUnion[i].Level() < cellUnion[j].Level()
	})

	normalized := map[s2.CellID]bool{}
	var lastContainer s2.CellID
	for _, cellId := range cellUnion {
		if lastContainer != 0 && lastContainer.Contains(cellId) {
			continue
		}
		normalized[cellId] = true
		lastContainer = cellId
	}

	return sortedTokens(normalized)
}

// CellsWithin returns all tokens of the given sorted list lying within one of the container cells. Tokens sort in the
// same order as their cell IDs, so each container is resolved by a binary search over its ID range.
func CellsWithin(containers []string, sortedCellTokens []string) ([]string, error) {
	result := map[s2.CellID]bool{}

	for _, container := range containers {
		containerId, err := parseToken(container)
		if err != nil {
			return nil, err
		}

		rangeMin := containerId.RangeMin().ToToken()
		rangeMax := containerId.RangeMax().ToToken()

		for i := sort.SearchStrings(sortedCellTokens, rangeMin); i < len(sortedCellTokens) && sortedCellTokens[i] <= rangeMax; i++ {
			cellId, err := parseToken(sortedCellTokens[i])
			if err != nil {
				return nil, err
			}
			if containerId.Contains(cellId) {
				result[cellId] = true
			}
		}
	}

	return sortedTokens(result), nil
}

func (c *CellIndex) CellLevel(token string) (int, error) {
	cellId, err := parseToken(token)
	if err != nil {
		return -1, err
	}
	return cellId.Level(), nil
}

func (c *CellIndex) ParentCell(token string, level int) (string, error) {
	cellId, err := parseToken(token)
	if err != nil {
		return "", err
	}

	if level < MinCellLevel || level > cellId.Level() {
		return "", errors.Wrapf(ErrInvalidLevel, "Parent level %d must be between %d and the level %d of cell %s", level, MinCellLevel, cellId.Level(), token)
	}

	return cellId.Parent(level).ToToken(), nil
}

func (c *CellIndex) ChildCells(token string) ([4]string, error) {
	var result [4]string

	cellId, err := parseToken(token)
	if err != nil {
		return result, err
	}

	if cellId.IsLeaf() {
		return result, errors.Wrapf(ErrInvalidLevel, "Cell %s is a leaf cell on level %d and has no children", token, MaxCellLevel)
	}

	for i, child := range cellId.Children() {
		result[i] = child.ToToken()
	}

	return result, nil
}

// CanonicalToken parses the given token and returns its canonical (lower case, trailing zeros removed) form.
func CanonicalToken(token string) (string, error) {
	cellId, err := parseToken(token)
	if err != nil {
		return "", err
	}
	return cellId.ToToken(), nil
}

func ValidateCoordinate(lat float64, lng float64) error {
	// Negated comparisons to also reject NaN values.
	if !(lat >= -90 && lat <= 90) {
		return errors.Wrapf(ErrInvalidCoordinate, "Latitude %f not within [-90, 90]", lat)
	}
	if !(lng >= -180 && lng <= 180) {
		return errors.Wrapf(ErrInvalidCoordinate, "Longitude %f not within [-180, 180]", lng)
	}
	return nil
}

func radiusRegion(lat float64, lng float64, radiusMeters float64) (s2.Cap, error) {
	err := ValidateCoordinate(lat, lng)
	if err != nil {
		return s2.Cap{}, err
	}
	if !(radiusMeters >= 0) || math.IsInf(radiusMeters, 0) {
		return s2.Cap{}, errors.Wrapf(ErrInvalidCoordinate, "Radius %f must be a finite non-negative number of meters", radiusMeters)
	}

	center := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lng))
	angle := s1.Angle(radiusMeters / EarthRadiusMeters)
	return s2.CapFromCenterAngle(center, angle), nil
}

func bboxRegion(minLat float64, minLng float64, maxLat float64, maxLng float64) (s2.Rect, error) {
	err := ValidateCoordinate(minLat, minLng)
	if err != nil {
		return s2.Rect{}, err
	}
	err = ValidateCoordinate(maxLat, maxLng)
	if err != nil {
		return s2.Rect{}, err
	}

	return s2.RectFromLatLng(s2.LatLngFromDegrees(minLat, minLng)).AddPoint(s2.LatLngFromDegrees(maxLat, maxLng)), nil
}

func parseToken(token string) (s2.CellID, error) {
	cellId := s2.CellIDFromToken(token)
	if token == "" || !cellId.IsValid() {
		return 0, errors.Wrapf(ErrInvalidCellToken, "Unable to parse cell token '%s'", token)
	}
	return cellId, nil
}

func cellUnionToTokens(cellUnion s2.CellUnion) []string {
	tokens := make([]string, len(cellUnion))
	for i, cellId := range cellUnion {
		tokens[i] = cellId.ToToken()
	}
	return tokens
}

func sortedTokens(cellIds map[s2.CellID]bool) []string {
	tokens := make([]string, 0, len(cellIds))
	for cellId := range cellIds {
		tokens = append(tokens, cellId.ToToken())
	}
	sort.Strings(tokens)
	return tokens
}
