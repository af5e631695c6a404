package storage

import (
	"bytes"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"io"
	"sort"
	"strings"
)

const NotFound = -1

// TagIndex maps tag keys and values onto numbers. Snapshots contain the index once and refer to each tag by its key
// and value index, so frequent strings like "highway=residential" are only stored once.
type TagIndex struct {
	keyMap   []string   // The index value of a key is the position in this array.
	valueMap [][]string // Array index is here the key index. I.e. valueMap[key] contains the list of value strings.

	keyIndices   map[string]int
	valueIndices []map[string]int
}

func NewTagIndex() *TagIndex {
	return &TagIndex{
		keyIndices: map[string]int{},
	}
}

// newTagIndexOfCells creates an index of all tags of the roads, intersections and turn restrictions of the given
// cells. Cells are visited in the order of the tokens, so equal data always results in an equal index.
func newTagIndexOfCells(cells map[string]*CellRecord, tokens []string) *TagIndex {
	tagIndex := NewTagIndex()

	for _, token := range tokens {
		record := cells[token]
		for _, roadId := range record.SortedRoadIDs() {
			tagIndex.addAll(record.Roads[roadId].Tags)
		}
		for _, intersection := range record.Intersections {
			tagIndex.addAll(intersection.Tags)
		}
		for _, restriction := range record.TurnRestrictions {
			tagIndex.addAll(restriction.Tags)
		}
	}

	return tagIndex
}

func (i *TagIndex) addAll(tags map[string]string) {
	for _, key := range sortedKeys(tags) {
		i.Add(key, tags[key])
	}
}

// Add returns the indices of the given tag and adds the key and value when they're not known yet.
func (i *TagIndex) Add(key string, value string) (int, int) {
	keyIndex, ok := i.keyIndices[key]
	if !ok {
		keyIndex = len(i.keyMap)
		i.keyMap = append(i.keyMap, key)
		i.valueMap = append(i.valueMap, nil)
		i.keyIndices[key] = keyIndex
		i.valueIndices = append(i.valueIndices, map[string]int{})
	}

	valueIndex, ok := i.valueIndices[keyIndex][value]
	if !ok {
		valueIndex = len(i.valueMap[keyIndex])
		i.valueMap[keyIndex] = append(i.valueMap[keyIndex], value)
		i.valueIndices[keyIndex][value] = valueIndex
	}

	return keyIndex, valueIndex
}

// GetIndicesFromKeyValueStrings returns the numerical representation of the given tag and "NotFound" for both indices
// if the key or value doesn't exist.
func (i *TagIndex) GetIndicesFromKeyValueStrings(key string, value string) (int, int) {
	keyIndex, ok := i.keyIndices[key]
	if !ok {
		return NotFound, NotFound
	}

	valueIndex, ok := i.valueIndices[keyIndex][value]
	if !ok {
		return NotFound, NotFound
	}

	return keyIndex, valueIndex
}

// GetKeyValueFromIndices returns the strings of the given key-value indices.
func (i *TagIndex) GetKeyValueFromIndices(keyIndex int, valueIndex int) (string, string, error) {
	if keyIndex < 0 || keyIndex >= len(i.keyMap) {
		return "", "", errors.Errorf("Key index %d out of range, tag index has %d keys", keyIndex, len(i.keyMap))
	}

	values := i.valueMap[keyIndex]
	if valueIndex < 0 || valueIndex >= len(values) {
		return "", "", errors.Errorf("Value index %d out of range, key '%s' has %d values", valueIndex, i.keyMap[keyIndex], len(values))
	}

	return i.keyMap[keyIndex], values[valueIndex], nil
}

func sortedKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (i *TagIndex) NumberOfKeys() int {
	return len(i.keyMap)
}

func (i *TagIndex) WriteAsString(f io.Writer) error {
	for keyIndex, values := range i.valueMap {
		valueString := strings.Join(values, "|")
		valueString = strings.ReplaceAll(valueString, "\n", "\\n")

		line := i.keyMap[keyIndex] + "=" + valueString + "\n"
		_, err := f.Write([]byte(line))
		if err != nil {
			return errors.Wrap(err, "Unable to write tag index")
		}
	}
	return nil
}

func (i *TagIndex) Print() {
	if !sigolo.ShouldLogTrace() {
		return
	}
	buffer := bytes.NewBuffer([]byte{})
	err := i.WriteAsString(buffer)
	if err == nil {
		sigolo.Tracef("Tag-index:\n%+v", buffer.String())
	} else {
		sigolo.Tracef("Error writing tag-index to string: %v", err)
	}
}
