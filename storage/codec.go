package storage

import (
	"encoding/binary"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"math"
	"roadgrid/feature"
	"time"
)

// Lengths are stored as int32. A length of -1 marks a nil slice or map, so that decoding restores exactly what was
// encoded.
const nilLength = -1

type encoder struct {
	data     []byte
	tagIndex *TagIndex
}

func (e *encoder) uint8(value uint8) {
	e.data = append(e.data, value)
}

func (e *encoder) int32(value int32) {
	e.data = binary.LittleEndian.AppendUint32(e.data, uint32(value))
}

func (e *encoder) int64(value int64) {
	e.data = binary.LittleEndian.AppendUint64(e.data, uint64(value))
}

func (e *encoder) float64(value float64) {
	e.data = binary.LittleEndian.AppendUint64(e.data, math.Float64bits(value))
}

func (e *encoder) string(value string) {
	e.int32(int32(len(value)))
	e.data = append(e.data, value...)
}

func (e *encoder) length(length int, isNil bool) {
	if isNil {
		e.int32(nilLength)
		return
	}
	e.int32(int32(length))
}

func (e *encoder) time(value time.Time) {
	if value.IsZero() {
		e.uint8(0)
		return
	}
	e.uint8(1)
	e.int64(value.UnixNano())
}

// tags writes the key and value index of each tag in key order, so equal maps always result in equal bytes.
func (e *encoder) tags(tags map[string]string) {
	e.length(len(tags), tags == nil)

	for _, key := range sortedKeys(tags) {
		keyIndex, valueIndex := e.tagIndex.GetIndicesFromKeyValueStrings(key, tags[key])
		e.int32(int32(keyIndex))
		e.int32(int32(valueIndex))
	}
}

func (e *encoder) writeTagIndex() {
	e.int32(int32(len(e.tagIndex.keyMap)))
	for keyIndex, key := range e.tagIndex.keyMap {
		e.string(key)
		values := e.tagIndex.valueMap[keyIndex]
		e.int32(int32(len(values)))
		for _, value := range values {
			e.string(value)
		}
	}
}

func (e *encoder) road(road feature.RoadSegment) {
	e.int64(int64(road.ID))

	e.length(len(road.Nodes), road.Nodes == nil)
	for _, node := range road.Nodes {
		e.int64(int64(node))
	}

	e.length(len(road.Coordinates), road.Coordinates == nil)
	for _, coordinate := range road.Coordinates {
		e.float64(coordinate.Lat)
		e.float64(coordinate.Lng)
	}

	e.tags(road.Tags)
}

func (e *encoder) intersection(intersection feature.Intersection) {
	e.int64(int64(intersection.NodeID))
	e.float64(intersection.Lat)
	e.float64(intersection.Lng)

	e.length(len(intersection.ConnectedRoads), intersection.ConnectedRoads == nil)
	for _, road := range intersection.ConnectedRoads {
		e.int64(int64(road))
	}

	e.tags(intersection.Tags)
}

func (e *encoder) restriction(restriction feature.TurnRestriction) {
	e.int64(int64(restriction.ID))
	e.tags(restriction.Tags)

	e.length(len(restriction.Members), restriction.Members == nil)
	for _, member := range restriction.Members {
		e.string(string(member.Type))
		e.int64(member.Ref)
		e.string(member.Role)
	}
}

func (e *encoder) record(record *CellRecord) {
	e.length(len(record.Roads), record.Roads == nil)
	for _, roadId := range record.SortedRoadIDs() {
		e.road(record.Roads[roadId])
	}

	e.length(len(record.Intersections), record.Intersections == nil)
	for _, intersection := range record.Intersections {
		e.intersection(intersection)
	}

	e.length(len(record.TurnRestrictions), record.TurnRestrictions == nil)
	for _, restriction := range record.TurnRestrictions {
		e.restriction(restriction)
	}

	e.int32(int32(record.RoadCount))
	e.time(record.LastUpdated)
}

// encodeCells writes the tag index of all cells followed by the cells in the order of the given tokens.
func encodeCells(cells map[string]*CellRecord, tokens []string) []byte {
	e := &encoder{
		tagIndex: newTagIndexOfCells(cells, tokens),
	}
	e.tagIndex.Print()

	e.writeTagIndex()
	e.int32(int32(len(tokens)))
	for _, token := range tokens {
		e.string(token)
		e.record(cells[token])
	}

	return e.data
}

// decoder reads the data written by the encoder. The first error is kept and all further reads return zero values,
// so the caller only has to check the error once at the end.
type decoder struct {
	data     []byte
	index    int
	err      error
	tagIndex *TagIndex
}

func (d *decoder) next(size int) []byte {
	if d.err != nil {
		return nil
	}
	if size < 0 || d.index+size > len(d.data) {
		d.err = errors.Errorf("Unexpected end of data at index %d when reading %d bytes (total %d bytes)", d.index, size, len(d.data))
		return nil
	}

	bytes := d.data[d.index : d.index+size]
	d.index += size
	return bytes
}

func (d *decoder) uint8() uint8 {
	bytes := d.next(1)
	if bytes == nil {
		return 0
	}
	return bytes[0]
}

func (d *decoder) int32() int32 {
	bytes := d.next(4)
	if bytes == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(bytes))
}

func (d *decoder) int64() int64 {
	bytes := d.next(8)
	if bytes == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(bytes))
}

func (d *decoder) float64() float64 {
	bytes := d.next(8)
	if bytes == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(bytes))
}

func (d *decoder) string() string {
	length := d.int32()
	return string(d.next(int(length)))
}

// length returns the number of elements and whether the collection was nil. Lengths exceeding the remaining data are
// rejected before anything is allocated.
func (d *decoder) length() (int, bool) {
	length := d.int32()
	if d.err != nil {
		return 0, true
	}
	if length == nilLength {
		return 0, true
	}
	if length < 0 || int(length) > len(d.data)-d.index {
		d.err = errors.Errorf("Invalid length %d at index %d", length, d.index)
		return 0, true
	}
	return int(length), false
}

func (d *decoder) time() time.Time {
	if d.uint8() == 0 {
		return time.Time{}
	}
	return time.Unix(0, d.int64()).UTC()
}

func (d *decoder) tags() map[string]string {
	length, isNil := d.length()
	if isNil {
		return nil
	}

	tags := make(map[string]string, length)
	for i := 0; i < length && d.err == nil; i++ {
		keyIndex := d.int32()
		valueIndex := d.int32()
		if d.err != nil {
			break
		}

		key, value, err := d.tagIndex.GetKeyValueFromIndices(int(keyIndex), int(valueIndex))
		if err != nil {
			d.err = errors.Wrapf(err, "Invalid tag at index %d", d.index)
			break
		}
		tags[key] = value
	}
	return tags
}

func (d *decoder) readTagIndex() {
	d.tagIndex = NewTagIndex()

	numberOfKeys, _ := d.length()
	for i := 0; i < numberOfKeys && d.err == nil; i++ {
		key := d.string()
		numberOfValues, _ := d.length()
		for j := 0; j < numberOfValues && d.err == nil; j++ {
			d.tagIndex.Add(key, d.string())
		}
	}
}

func (d *decoder) road() feature.RoadSegment {
	road := feature.RoadSegment{
		ID: osm.WayID(d.int64()),
	}

	length, isNil := d.length()
	if !isNil {
		road.Nodes = make([]osm.NodeID, length)
		for i := 0; i < length; i++ {
			road.Nodes[i] = osm.NodeID(d.int64())
		}
	}

	length, isNil = d.length()
	if !isNil {
		road.Coordinates = make([]feature.Coordinate, length)
		for i := 0; i < length; i++ {
			road.Coordinates[i] = feature.Coordinate{Lat: d.float64(), Lng: d.float64()}
		}
	}

	road.Tags = d.tags()
	road.Metadata = feature.ParseRoadMetadata(road.Tags)

	return road
}

func (d *decoder) intersection() feature.Intersection {
	intersection := feature.Intersection{
		NodeID: osm.NodeID(d.int64()),
		Lat:    d.float64(),
		Lng:    d.float64(),
	}

	length, isNil := d.length()
	if !isNil {
		intersection.ConnectedRoads = make([]osm.WayID, length)
		for i := 0; i < length; i++ {
			intersection.ConnectedRoads[i] = osm.WayID(d.int64())
		}
	}

	intersection.Tags = d.tags()

	return intersection
}

func (d *decoder) restriction() feature.TurnRestriction {
	restriction := feature.TurnRestriction{
		ID:   osm.RelationID(d.int64()),
		Tags: d.tags(),
	}

	length, isNil := d.length()
	if !isNil {
		restriction.Members = make([]feature.RestrictionMember, length)
		for i := 0; i < length; i++ {
			restriction.Members[i] = feature.RestrictionMember{
				Type: osm.Type(d.string()),
				Ref:  d.int64(),
				Role: d.string(),
			}
		}
	}

	return restriction
}

func (d *decoder) record() *CellRecord {
	record := newCellRecord()

	length, _ := d.length()
	for i := 0; i < length && d.err == nil; i++ {
		road := d.road()
		record.Roads[road.ID] = road
	}

	length, isNil := d.length()
	if !isNil {
		record.Intersections = make([]feature.Intersection, length)
		for i := 0; i < length && d.err == nil; i++ {
			record.Intersections[i] = d.intersection()
		}
	}

	length, isNil = d.length()
	if !isNil {
		record.TurnRestrictions = make([]feature.TurnRestriction, length)
		for i := 0; i < length && d.err == nil; i++ {
			record.TurnRestrictions[i] = d.restriction()
		}
	}

	record.RoadCount = int(d.int32())
	record.LastUpdated = d.time()

	return record
}

func decodeCells(data []byte) (map[string]*CellRecord, error) {
	d := &decoder{data: data}

	d.readTagIndex()
	d.tagIndex.Print()

	numberOfCells := d.int32()
	if numberOfCells < 0 {
		return nil, errors.Errorf("Invalid number of cells %d", numberOfCells)
	}

	cells := map[string]*CellRecord{}
	for i := 0; i < int(numberOfCells) && d.err == nil; i++ {
		token := d.string()
		cells[token] = d.record()
	}

	if d.err != nil {
		return nil, d.err
	}
	if d.index != len(d.data) {
		return nil, errors.Errorf("Found %d unexpected bytes after the last cell", len(d.data)-d.index)
	}

	return cells, nil
}
