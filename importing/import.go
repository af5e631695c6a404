package importing

import (
	"encoding/json"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
	"roadgrid/feature"
	"roadgrid/index"
	"roadgrid/metrics"
	ownOsm "roadgrid/osm"
	"roadgrid/storage"
	"time"
)

// Result summarizes one import. Entities stored in several cells are counted once in the *Imported fields and once
// per cell in the *CellEntries fields.
type Result struct {
	RoadsImported              int  `json:"roads_imported"`
	RoadCellEntries            int  `json:"road_cell_entries"`
	RoadsSkipped               int  `json:"roads_skipped"`
	IntersectionsImported      int  `json:"intersections_imported"`
	IntersectionsSkipped       int  `json:"intersections_skipped"`
	IntersectionsDerived       bool `json:"intersections_derived"`
	TurnRestrictionsImported   int  `json:"turn_restrictions_imported"`
	TurnRestrictionCellEntries int  `json:"turn_restriction_cell_entries"`
	TurnRestrictionsDropped    int  `json:"turn_restrictions_dropped"`
}

type Importer struct {
	assigner *Assigner
	store    *storage.Store
}

func NewImporter(cellIndex *index.CellIndex, store *storage.Store) *Importer {
	return &Importer{
		assigner: NewAssigner(cellIndex),
		store:    store,
	}
}

// ImportFile reads a .json dataset or an .osm/.pbf file and imports its content.
func (i *Importer) ImportFile(filename string) (*Result, error) {
	var dataset *feature.Dataset
	var err error

	if filepath.Ext(filename) == ".json" {
		dataset, err = readJsonDataset(filename)
	} else {
		dataset, err = readOsmDataset(filename)
	}
	if err != nil {
		return nil, err
	}

	return i.ImportDataset(dataset)
}

// ImportDataset assigns all entities of the dataset to cells and adds them to the store. Entities with invalid
// coordinates are skipped with a warning. When the dataset has no intersections, they are derived from the nodes
// shared by the roads.
func (i *Importer) ImportDataset(dataset *feature.Dataset) (*Result, error) {
	sigolo.Infof("Start import of %d roads, %d intersections and %d turn restrictions", len(dataset.Roads), len(dataset.Intersections), len(dataset.TurnRestrictions))
	importStartTime := time.Now()

	result := &Result{}

	err := i.importRoads(dataset, result)
	if err != nil {
		return nil, err
	}

	intersections := dataset.Intersections
	if len(intersections) == 0 {
		intersections = dataset.DeriveIntersections()
		result.IntersectionsDerived = true
		sigolo.Debugf("Derived %d intersections from roads", len(intersections))
	}

	err = i.importIntersections(intersections, result)
	if err != nil {
		return nil, err
	}

	err = i.importTurnRestrictions(dataset, result)
	if err != nil {
		return nil, err
	}

	metrics.SetStoreCells(i.store.GetStatistics().TotalCells)

	sigolo.Infof("Finished import in %s: %+v", time.Since(importStartTime), *result)
	return result, nil
}

func (i *Importer) importRoads(dataset *feature.Dataset, result *Result) error {
	sigolo.Debugf("Import %d roads", len(dataset.Roads))

	for _, road := range dataset.Roads {
		cells, err := i.assigner.AssignRoad(road)
		if err != nil {
			sigolo.Warnf("Skip road: %s", err.Error())
			result.RoadsSkipped++
			continue
		}
		if len(cells) == 0 {
			sigolo.Warnf("Skip road %d without coordinates", road.ID)
			result.RoadsSkipped++
			continue
		}

		for _, cell := range cells {
			err = i.store.AddRoad(cell, road)
			if err != nil {
				return errors.Wrapf(err, "Unable to add road %d to cell %s", road.ID, cell)
			}
		}

		sigolo.Tracef("Road %d assigned to cells %v", road.ID, cells)
		result.RoadsImported++
		result.RoadCellEntries += len(cells)
	}

	metrics.IncImported(metrics.KindRoad, result.RoadCellEntries)
	return nil
}

func (i *Importer) importIntersections(intersections []feature.Intersection, result *Result) error {
	sigolo.Debugf("Import %d intersections", len(intersections))

	for _, intersection := range intersections {
		if intersection.NumberOfDistinctRoads() < 2 {
			sigolo.Warnf("Skip intersection %d: Connects %d distinct roads but at least 2 are required", intersection.NodeID, intersection.NumberOfDistinctRoads())
			result.IntersectionsSkipped++
			continue
		}

		cell, err := i.assigner.AssignIntersection(intersection)
		if err != nil {
			sigolo.Warnf("Skip intersection: %s", err.Error())
			result.IntersectionsSkipped++
			continue
		}

		err = i.store.AddIntersection(cell, intersection)
		if err != nil {
			return errors.Wrapf(err, "Unable to add intersection %d to cell %s", intersection.NodeID, cell)
		}

		result.IntersectionsImported++
	}

	metrics.IncImported(metrics.KindIntersection, result.IntersectionsImported)
	return nil
}

func (i *Importer) importTurnRestrictions(dataset *feature.Dataset, result *Result) error {
	sigolo.Debugf("Import %d turn restrictions", len(dataset.TurnRestrictions))

	roads := dataset.RoadsByID()

	for _, restriction := range dataset.TurnRestrictions {
		cells, err := i.assigner.AssignRestriction(restriction, dataset.Nodes, roads)
		if err != nil {
			sigolo.Warnf("Drop turn restriction: %s", err.Error())
			cells = nil
		}
		if len(cells) == 0 {
			sigolo.Warnf("Drop turn restriction %d: Neither via nodes nor ways with known coordinates", restriction.ID)
			result.TurnRestrictionsDropped++
			metrics.IncRestrictionsDropped()
			continue
		}

		for _, cell := range cells {
			err = i.store.AddTurnRestriction(cell, restriction)
			if err != nil {
				return errors.Wrapf(err, "Unable to add turn restriction %d to cell %s", restriction.ID, cell)
			}
		}

		sigolo.Tracef("Turn restriction %d assigned to cells %v", restriction.ID, cells)
		result.TurnRestrictionsImported++
		result.TurnRestrictionCellEntries += len(cells)
	}

	metrics.IncImported(metrics.KindTurnRestriction, result.TurnRestrictionCellEntries)
	return nil
}

func readJsonDataset(filename string) (*feature.Dataset, error) {
	sigolo.Infof("Read dataset from %s", filename)

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read dataset file %s", filename)
	}

	dataset := &feature.Dataset{}
	err = json.Unmarshal(data, dataset)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to parse dataset file %s", filename)
	}

	return dataset, nil
}

func readOsmDataset(filename string) (*feature.Dataset, error) {
	handler := ownOsm.NewDatasetHandler()

	err := ownOsm.NewOsmReader().Read(filename, handler)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read OSM file %s", filename)
	}

	return handler.Dataset, nil
}
