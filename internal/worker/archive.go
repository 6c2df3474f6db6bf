package worker

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// DefaultArchiveURL points at the CDDIS daily RINEX 2 observation archive.
const DefaultArchiveURL = "https://cddis.nasa.gov/archive/gps/data/daily/{{.Year}}/{{.DOY}}/{{.YY}}o/{{.Station}}{{.DOY}}0.{{.YY}}o.gz"

// ArchiveTemplate renders observation archive URLs for a station and UTC day.
//
// Available fields: .Year (2024), .YY (24), .DOY (075), .Station (abmf)
// and .STATION (ABMF).
type ArchiveTemplate struct {
	tmpl *template.Template
}

type archiveFields struct {
	Year    string
	YY      string
	DOY     string
	Station string
	STATION string
}

// ParseArchiveTemplate parses a URL template.
func ParseArchiveTemplate(text string) (*ArchiveTemplate, error) {
	tmpl, err := template.New("archive").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing archive url template: %w", err)
	}
	return &ArchiveTemplate{tmpl: tmpl}, nil
}

// URL renders the archive location for stationID on the UTC date of day.
func (a *ArchiveTemplate) URL(stationID string, day time.Time) (string, error) {
	day = day.UTC()
	fields := archiveFields{
		Year:    fmt.Sprintf("%04d", day.Year()),
		YY:      fmt.Sprintf("%02d", day.Year()%100),
		DOY:     fmt.Sprintf("%03d", day.YearDay()),
		Station: strings.ToLower(stationID),
		STATION: strings.ToUpper(stationID),
	}

	var b strings.Builder
	if err := a.tmpl.Execute(&b, fields); err != nil {
		return "", fmt.Errorf("rendering archive url: %w", err)
	}
	return b.String(), nil
}

// FileName returns the last path segment of an archive URL.
func FileName(url string) string {
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}
