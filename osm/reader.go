package osm

import (
	"context"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

type FileFormat string

const (
	FormatXml FileFormat = "xml"
	FormatPbf FileFormat = "pbf"
)

type OsmDataHandler interface {
	Name() string
	Init() error
	HandleNode(node *osm.Node) error
	HandleWay(way *osm.Way) error
	HandleRelation(relation *osm.Relation) error
	Done() error
}

type OsmReader struct {
	firstWayHasBeenProcessed      bool
	firstRelationHasBeenProcessed bool
}

func NewOsmReader() *OsmReader {
	return &OsmReader{
		firstWayHasBeenProcessed:      false,
		firstRelationHasBeenProcessed: false,
	}
}

// FormatOfFile determines the file format by the file extension.
func FormatOfFile(filename string) (FileFormat, error) {
	switch filepath.Ext(filename) {
	case ".osm", ".xml":
		return FormatXml, nil
	case ".pbf":
		return FormatPbf, nil
	}
	return "", errors.Errorf("Unsupported OSM file %s, only .osm and .pbf files are supported", filename)
}

func (r *OsmReader) Read(filename string, handlers ...OsmDataHandler) error {
	format, err := FormatOfFile(filename)
	if err != nil {
		return err
	}

	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to open OSM input file %s", filename)
	}
	defer file.Close()

	sigolo.Infof("Start processing OSM data file %s", filename)
	return r.ReadFrom(file, format, handlers...)
}

// ReadFrom scans all objects of the given reader and passes them to each handler. OSM files are sorted by type, so
// all nodes are handled before the first way and all ways before the first relation.
func (r *OsmReader) ReadFrom(reader io.Reader, format FileFormat, handlers ...OsmDataHandler) error {
	var scanner osm.Scanner
	switch format {
	case FormatXml:
		scanner = osmxml.New(context.Background(), reader)
	case FormatPbf:
		scanner = osmpbf.New(context.Background(), reader, runtime.GOMAXPROCS(-1))
	default:
		return errors.Errorf("Unsupported OSM file format '%s'", format)
	}

	importStartTime := time.Now()

	for _, handler := range handlers {
		err := handler.Init()
		if err != nil {
			return errors.Wrapf(err, "Initializing OSM data handler '%s' failed", handler.Name())
		}
	}

	var err error
	sigolo.Debug("Start processing nodes (1/3)")
	for scanner.Scan() {
		switch osmObj := scanner.Object().(type) {
		case *osm.Node:
			for _, handler := range handlers {
				err = handler.HandleNode(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling node %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		case *osm.Way:
			if !r.firstWayHasBeenProcessed {
				sigolo.Debug("Start processing ways (2/3)")
				r.firstWayHasBeenProcessed = true
			}

			for _, handler := range handlers {
				err = handler.HandleWay(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling way %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		case *osm.Relation:
			if !r.firstRelationHasBeenProcessed {
				sigolo.Debug("Start processing relations (3/3)")
				r.firstRelationHasBeenProcessed = true
			}

			for _, handler := range handlers {
				err = handler.HandleRelation(osmObj)
				if err != nil {
					return errors.Wrapf(err, "Handling relation %d using handler '%s' failed", osmObj.ID, handler.Name())
				}
			}
		}
	}

	err = scanner.Err()
	if err != nil {
		return errors.Wrapf(err, "Unable to scan OSM data")
	}

	for _, handler := range handlers {
		err = handler.Done()
		if err != nil {
			return errors.Wrapf(err, "Calling done function on handler '%s' failed", handler.Name())
		}
	}

	err = scanner.Close()
	if err != nil {
		return errors.Wrapf(err, "Unable to close OSM scanner")
	}

	sigolo.Infof("Done processing OSM data in %s", time.Since(importStartTime))

	return nil
}
