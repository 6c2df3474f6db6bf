package worker_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithpw/zenithpw/internal/meteo"
	"github.com/zenithpw/zenithpw/internal/prediction"
	"github.com/zenithpw/zenithpw/internal/worker"
)

func sampleRow() worker.Row {
	in := worker.ObservationInput(testStations[0], collectNow, rinexSummary(13.13),
		meteo.Conditions{Temperature: 21.5, Pressure: 1009.2, Humidity: 71, Source: meteo.SourceSynthetic})
	return worker.Row{
		Input:         in,
		WeatherSource: meteo.SourceSynthetic,
		SyntheticZWD:  true,
		Prediction:    prediction.FallbackForZWD(in.ZWDObservation),
	}
}

func TestWriteDataset(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, worker.WriteDataset(&buf, []worker.Row{sampleRow()}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, worker.DatasetHeader, records[0])

	row := map[string]string{}
	for i, col := range records[0] {
		row[col] = records[1][i]
	}
	assert.Equal(t, "ABMF", row["stationId"])
	assert.Equal(t, "2024", row["year"])
	assert.Equal(t, "3", row["month"])
	assert.Equal(t, "2024-03-15T12:00:00.000Z", row["dateString"])
	assert.Equal(t, "1710504000", row["timestamp"])
	assert.Equal(t, "16.2623", row["stationLatitude"])
	assert.Equal(t, "-25.6", row["stationElevation"])
	assert.Equal(t, "13.13", row["zwdObservation"])
	assert.Equal(t, "1009.2", row["pressure"])
	assert.Equal(t, "synthetic", row["weatherSource"])
	assert.Equal(t, "true", row["syntheticZwd"])
	assert.Equal(t, "2.1008", row["predictedPW"])
	assert.Equal(t, "fallback_conversion", row["method"])
}

func TestWriteDataset_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, worker.WriteDataset(&buf, nil))
	assert.Equal(t, strings.Join(worker.DatasetHeader, ",")+"\n", buf.String())
}

func TestFileSink_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	sink := worker.FileSink{Path: path}
	require.NoError(t, sink.Write(context.Background(), []worker.Row{sampleRow(), sampleRow()}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "stationId,year"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFileSink_MissingDirectory(t *testing.T) {
	sink := worker.FileSink{Path: filepath.Join(t.TempDir(), "missing", "dataset.csv")}
	assert.Error(t, sink.Write(context.Background(), nil))
}

func TestFileSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := worker.FileSink{Path: filepath.Join(t.TempDir(), "dataset.csv")}
	assert.ErrorIs(t, sink.Write(ctx, nil), context.Canceled)
}
