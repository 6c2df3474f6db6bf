package worker

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// DatasetHeader is the column order of the collected CSV dataset.
var DatasetHeader = []string{
	"stationId",
	"year",
	"month",
	"day",
	"hour",
	"minute",
	"second",
	"dateString",
	"timestamp",
	"stationLatitude",
	"stationLongitude",
	"stationElevation",
	"zwdObservation",
	"satelliteAzimuth",
	"satelliteElevation",
	"temperature",
	"pressure",
	"humidity",
	"weatherSource",
	"syntheticZwd",
	"predictedPW",
	"uncertainty",
	"method",
}

// WriteDataset writes rows as CSV with a header line.
func WriteDataset(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DatasetHeader); err != nil {
		return fmt.Errorf("writing dataset header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.record()); err != nil {
			return fmt.Errorf("writing dataset row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r Row) record() []string {
	in := r.Input
	return []string{
		in.StationID,
		strconv.Itoa(in.Year),
		strconv.Itoa(in.Month),
		strconv.Itoa(in.Day),
		strconv.Itoa(in.Hour),
		strconv.Itoa(in.Minute),
		strconv.Itoa(in.Second),
		in.DateString,
		strconv.FormatInt(in.Timestamp, 10),
		formatFloat(in.StationLatitude),
		formatFloat(in.StationLongitude),
		formatFloat(in.StationElevation),
		formatFloat(in.ZWDObservation),
		formatFloat(in.SatelliteAzimuth),
		formatFloat(in.SatelliteElevation),
		formatFloat(in.Temperature),
		formatFloat(in.Pressure),
		formatFloat(in.Humidity),
		string(r.WeatherSource),
		strconv.FormatBool(r.SyntheticZWD),
		formatFloat(r.Prediction.PredictedPW),
		formatFloat(r.Prediction.Uncertainty),
		string(r.Prediction.Method),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DatasetSink persists a collected dataset.
type DatasetSink interface {
	Write(ctx context.Context, rows []Row) error
}

// FileSink writes the dataset to a CSV file, replacing it atomically.
type FileSink struct {
	Path string
}

// Write implements DatasetSink.
func (s FileSink) Write(ctx context.Context, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("creating dataset file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := WriteDataset(tmp, rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing dataset file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replacing dataset file: %w", err)
	}
	return nil
}
