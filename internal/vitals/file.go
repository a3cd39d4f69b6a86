package vitals

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/claude/splitlog/internal/models"
)

// Metric names recognized in an export file. height and
// weight_body_mass follow Health Auto Export naming; age is
// precomputed in years by the exporter.
const (
	metricHeight = "height"
	metricWeight = "weight_body_mass"
	metricAge    = "age"
)

// Export date formats: full datetime with offset, or date-only for
// daily aggregates.
const (
	exportTimeLayout = "2006-01-02 15:04:05 -0700"
	exportDateLayout = "2006-01-02"
)

// exportTime parses either export date format.
type exportTime struct {
	time.Time
}

func (t *exportTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(exportTimeLayout, s)
	if err == nil {
		t.Time = parsed
		return nil
	}
	if parsed, err2 := time.Parse(exportDateLayout, s); err2 == nil {
		t.Time = parsed
		return nil
	}
	return fmt.Errorf("cannot parse export time %q: %w", s, err)
}

// exportPayload is the top-level JSON structure of a metrics export.
type exportPayload struct {
	Data exportData `json:"data"`
}

type exportData struct {
	Metrics []exportMetric `json:"metrics"`
}

// exportMetric keeps its data points raw: exports mix point shapes per
// metric, and only the qty shape matters here.
type exportMetric struct {
	Name  string            `json:"name"`
	Units string            `json:"units"`
	Data  []json.RawMessage `json:"data"`
}

type exportDataPoint struct {
	Date exportTime `json:"date"`
	Qty  float64    `json:"qty"`
}

// FileProvider reads samples from a metrics export file.
type FileProvider struct {
	path string
	log  *slog.Logger
}

// NewFileProvider creates a provider reading the export at path.
func NewFileProvider(path string, log *slog.Logger) *FileProvider {
	return &FileProvider{path: path, log: log}
}

// Latest reads the export and assembles a sample from the newest
// height, weight and age points. Metrics the app does not track and
// data points that fail to parse are skipped, not errors.
func (f *FileProvider) Latest(ctx context.Context) (Sample, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return Sample{}, fmt.Errorf("reading vitals export: %w", err)
	}
	var payload exportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Sample{}, fmt.Errorf("parsing vitals export %s: %w", f.path, err)
	}

	var (
		sample Sample
		found  bool
	)
	for _, m := range payload.Data.Metrics {
		switch m.Name {
		case metricHeight, metricWeight, metricAge:
		default:
			continue
		}
		point, ok := f.newestPoint(m)
		if !ok {
			continue
		}
		switch m.Name {
		case metricHeight:
			cm, err := toCentimeters(point.Qty, m.Units)
			if err != nil {
				f.log.Warn("skipping height sample", "error", err)
				continue
			}
			sample.HeightCM = cm
		case metricWeight:
			kg, err := toKilograms(point.Qty, m.Units)
			if err != nil {
				f.log.Warn("skipping weight sample", "error", err)
				continue
			}
			sample.WeightKG = kg
		case metricAge:
			sample.Age = int(point.Qty)
		}
		found = true
		if point.Date.After(sample.TakenAt) {
			sample.TakenAt = point.Date.Time
		}
	}
	if !found {
		return Sample{}, fmt.Errorf("no height, weight or age samples in %s", f.path)
	}
	return sample, nil
}

// newestPoint decodes a metric's data points and returns the latest
// positive one.
func (f *FileProvider) newestPoint(m exportMetric) (exportDataPoint, bool) {
	var (
		newest exportDataPoint
		ok     bool
	)
	for _, raw := range m.Data {
		var dp exportDataPoint
		if err := json.Unmarshal(raw, &dp); err != nil {
			f.log.Warn("skipping data point", "metric", m.Name, "error", err)
			continue
		}
		if dp.Qty <= 0 {
			continue
		}
		if !ok || dp.Date.After(newest.Date.Time) {
			newest = dp
			ok = true
		}
	}
	return newest, ok
}

// toCentimeters converts a height sample to canonical centimeters.
func toCentimeters(v float64, units string) (float64, error) {
	switch strings.ToLower(units) {
	case "cm", "":
		return v, nil
	case "m":
		return v * 100, nil
	case "in":
		return v * 2.54, nil
	case "ft":
		return v * 30.48, nil
	}
	return 0, fmt.Errorf("unknown height unit %q", units)
}

// toKilograms converts a weight sample to canonical kilograms.
func toKilograms(v float64, units string) (float64, error) {
	switch strings.ToLower(units) {
	case "kg", "":
		return v, nil
	case "lb", "lbs":
		return models.UnitPounds.ToKg(v), nil
	case "g":
		return v / 1000, nil
	}
	return 0, fmt.Errorf("unknown weight unit %q", units)
}
