package storage

import (
	"encoding/binary"
	"encoding/json"
	"github.com/cespare/xxhash/v2"
	"github.com/hauke96/sigolo/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	SnapshotFileExtension = ".snap"
	SummaryFileSuffix     = "_summary.json"

	snapshotMagic      = 0x52475331 // "RGS1"
	snapshotVersion    = 1
	snapshotHeaderSize = 4 + 4 + 8 // magic + version + checksum
)

var (
	ErrNotFound     = errors.New("not found")
	ErrCorruptState = errors.New("corrupt state")
)

type SnapshotSummary struct {
	Statistics Statistics `json:"statistics"`
	Cells      []string   `json:"cells"`
}

// SaveSnapshot writes all cells into the given file within the store directory and returns the path of the file. An
// empty name creates a timestamp based name. A human-readable summary file is written next to the snapshot.
func (s *Store) SaveSnapshot(name string) (string, error) {
	if name == "" {
		name = "road_segments_" + time.Now().Format("20060102_150405") + SnapshotFileExtension
	}
	snapshotPath := filepath.Join(s.dir, name)

	sigolo.Infof("Save snapshot to %s", snapshotPath)
	saveStartTime := time.Now()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return "", errors.Wrap(err, "Unable to create zstd encoder")
	}
	payload := encoder.EncodeAll(encodeCells(s.cells, s.sortedTokensUnsafe()), nil)
	err = encoder.Close()
	if err != nil {
		return "", errors.Wrap(err, "Unable to close zstd encoder")
	}

	header := make([]byte, snapshotHeaderSize)
	binary.LittleEndian.PutUint32(header[0:], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:], snapshotVersion)
	binary.LittleEndian.PutUint64(header[8:], xxhash.Sum64(payload))

	err = os.MkdirAll(filepath.Dir(snapshotPath), os.ModePerm)
	if err != nil {
		return "", errors.Wrapf(err, "Unable to create snapshot folder for %s", snapshotPath)
	}

	err = os.WriteFile(snapshotPath, append(header, payload...), 0644)
	if err != nil {
		return "", errors.Wrapf(err, "Unable to write snapshot file %s", snapshotPath)
	}

	summary := SnapshotSummary{
		Statistics: s.statisticsUnsafe(),
		Cells:      s.sortedTokensUnsafe(),
	}
	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "Unable to marshal snapshot summary")
	}

	summaryPath := SummaryPath(snapshotPath)
	err = os.WriteFile(summaryPath, summaryBytes, 0644)
	if err != nil {
		return "", errors.Wrapf(err, "Unable to write snapshot summary file %s", summaryPath)
	}

	sigolo.Infof("Saved %d cells to snapshot %s in %s", len(s.cells), snapshotPath, time.Since(saveStartTime))
	return snapshotPath, nil
}

// LoadSnapshot replaces all data of the store with the content of the given snapshot file. The file is completely
// read and decoded before the store is touched, so on any error the current data stays as it is.
func (s *Store) LoadSnapshot(name string) error {
	snapshotPath := filepath.Join(s.dir, name)

	sigolo.Infof("Load snapshot from %s", snapshotPath)
	loadStartTime := time.Now()

	data, err := os.ReadFile(snapshotPath)
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrNotFound, "Snapshot file %s does not exist", snapshotPath)
	}
	if err != nil {
		return errors.Wrapf(err, "Unable to read snapshot file %s", snapshotPath)
	}

	cells, err := decodeSnapshot(data)
	if err != nil {
		return errors.Wrapf(err, "Unable to load snapshot file %s", snapshotPath)
	}

	s.mutex.Lock()
	s.cells = cells
	statistics := s.statisticsUnsafe()
	s.mutex.Unlock()

	sigolo.Infof("Loaded snapshot %s in %s: %+v", snapshotPath, time.Since(loadStartTime), statistics)
	return nil
}

// SummaryPath returns the path of the summary file belonging to the given snapshot file.
func SummaryPath(snapshotPath string) string {
	return strings.TrimSuffix(snapshotPath, filepath.Ext(snapshotPath)) + SummaryFileSuffix
}

func decodeSnapshot(data []byte) (map[string]*CellRecord, error) {
	if len(data) < snapshotHeaderSize {
		return nil, errors.Wrapf(ErrCorruptState, "Snapshot has only %d bytes", len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:])
	if magic != snapshotMagic {
		return nil, errors.Wrapf(ErrCorruptState, "Unexpected magic number 0x%08x", magic)
	}

	version := binary.LittleEndian.Uint32(data[4:])
	if version != snapshotVersion {
		return nil, errors.Wrapf(ErrCorruptState, "Unsupported snapshot version %d", version)
	}

	payload := data[snapshotHeaderSize:]
	checksum := binary.LittleEndian.Uint64(data[8:])
	if xxhash.Sum64(payload) != checksum {
		return nil, errors.Wrapf(ErrCorruptState, "Checksum mismatch")
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create zstd decoder")
	}
	defer decoder.Close()

	rawPayload, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptState, "Unable to decompress snapshot: %s", err.Error())
	}

	cells, err := decodeCells(rawPayload)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptState, "Unable to decode snapshot: %s", err.Error())
	}

	return cells, nil
}
