package io

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"io"
	"os"
	"path/filepath"
	"time"
)

func WriteFeatureCollectionAsGeoJsonFile(featureCollection *geojson.FeatureCollection, filename string) (err error) {
	err = os.MkdirAll(filepath.Dir(filename), os.ModePerm)
	if err != nil {
		return errors.Wrapf(err, "Unable to create folder for GeoJSON file %s", filename)
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to create GeoJSON file %s", filename)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "Unable to close file handle for GeoJSON file %s", file.Name())
		}
	}()

	return WriteFeatureCollectionAsGeoJson(featureCollection, file)
}

func WriteFeatureCollectionAsGeoJson(featureCollection *geojson.FeatureCollection, writer io.Writer) error {
	sigolo.Debugf("Write %d features to GeoJSON", len(featureCollection.Features))
	writeStartTime := time.Now()

	geojsonBytes, err := featureCollection.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Unable to marshal feature collection")
	}

	_, err = writer.Write(geojsonBytes)
	if err != nil {
		return errors.Wrap(err, "Unable to write GeoJSON")
	}

	sigolo.Debugf("Finished writing GeoJSON in %s", time.Since(writeStartTime))

	return nil
}
