// Package rinex extracts a zenith wet delay estimate from RINEX observation files.
//
// This is a placeholder extractor, not a RINEX decoder: it averages the leading
// numeric column of long observation records and falls back to a random ZWD when
// none are found. Results built from the fallback are flagged Synthetic.
package rinex

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// UnknownStation is returned when a file name carries no station code.
const UnknownStation = "UNKNOWN"

const (
	headerEnd        = "END OF HEADER"
	minRecordLength  = 60
	valueColumnWidth = 14

	syntheticZWDMin  = 5.0
	syntheticZWDSpan = 20.0
)

var stationPattern = regexp.MustCompile(`^([A-Z0-9]{4,})`)

// Summary is what the extractor recovered from a file.
type Summary struct {
	ZWDObservation     float64 `json:"zwdObservation"`
	SatelliteAzimuth   float64 `json:"satelliteAzimuth"`
	SatelliteElevation float64 `json:"satelliteElevation"`
	TotalObservations  int     `json:"totalObservations"`

	// Synthetic is set when no usable records were found and the ZWD was generated.
	Synthetic bool `json:"synthetic"`
}

// StationID returns the leading station code of a RINEX file name
// (e.g. "ABMF00GLP_R_2024075.crx.gz" gives "ABMF00GLP"), or UnknownStation.
func StationID(filename string) string {
	m := stationPattern.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return UnknownStation
	}
	return m[1]
}

// Open returns a reader over the file content, decompressing .gz files.
func Open(r io.Reader, filename string) (io.ReadCloser, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".gz") {
		return io.NopCloser(r), nil
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	return zr, nil
}

// Rand is the random source used for synthetic values. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type defaultRand struct{}

func (defaultRand) Float64() float64 { return rand.Float64() }
func (defaultRand) IntN(n int) int   { return rand.IntN(n) }

// Extract scans the observation section of content. It never fails; read errors
// end the scan early and the summary is built from whatever was read.
func Extract(content io.Reader, rng Rand) Summary {
	if rng == nil {
		rng = defaultRand{}
	}

	var (
		sum   float64
		count int
	)

	scanner := bufio.NewScanner(content)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	inData := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if !inData {
			if bytes.Contains(line, []byte(headerEnd)) {
				inData = true
			}
			continue
		}
		if len(line) <= minRecordLength {
			continue
		}
		if v, ok := leadingValue(line); ok {
			sum += v
			count++
		}
	}

	s := Summary{
		SatelliteAzimuth:   float64(rng.IntN(360)),
		SatelliteElevation: float64(rng.IntN(90)),
		TotalObservations:  count,
	}
	// A sum that overflowed is treated like an empty observation section.
	if avg := sum / float64(count); count > 0 && !math.IsInf(avg, 0) {
		s.ZWDObservation = round2(avg)
	} else {
		s.ZWDObservation = round2(rng.Float64()*syntheticZWDSpan + syntheticZWDMin)
		s.Synthetic = true
	}
	return s
}

// leadingValue parses the first 14 columns as a positive float.
func leadingValue(line []byte) (float64, bool) {
	field := strings.TrimSpace(string(line[:min(len(line), valueColumnWidth)]))
	if field == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return out
}
