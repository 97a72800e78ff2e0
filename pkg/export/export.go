package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"loaddash/pkg/result"

	"github.com/pkg/errors"
)

// Format selects the export encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// BaseName is the fixed name of the exported file, without extension.
const BaseName = "load_test_results"

// Header is the column order shared by every export format.
var Header = []string{
	"Timestamp", "URL", "QPS", "Duration", "# Requests", "# Fails",
	"Median (ms)", "90 %ile", "99 %ile", "Average (ms)", "Min (ms)", "Max (ms)",
	"Average size (bytes)", "Error Rate (%)", "Current RPS", "Failures per sec",
}

// Row renders one record in Header order.
func Row(r result.Record) []string {
	return []string{
		result.FormatTimestamp(r.Timestamp),
		r.URL,
		strconv.Itoa(r.QPS),
		strconv.Itoa(r.Duration),
		strconv.FormatInt(r.TotalRequests, 10),
		strconv.FormatInt(r.FailedRequests, 10),
		result.FormatMillis(r.MedianLatency),
		result.FormatMillis(r.P90Latency),
		result.FormatMillis(r.P99Latency),
		result.FormatMillis(r.AvgLatency),
		result.FormatMillis(r.MinLatency),
		result.FormatMillis(r.MaxLatency),
		result.FormatFixed(r.AvgSize),
		result.FormatFixed(r.ErrorRate),
		result.FormatFixed(r.CurrentRPS),
		result.FormatFixed(r.CurrentFailuresPerSec),
	}
}

// CSV encodes records as a header row plus one row per record, in the given order.
// It returns false and no blob when there is nothing to export.
func CSV(records []result.Record) ([]byte, bool) {
	if len(records) == 0 {
		return nil, false
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Writes into a bytes.Buffer cannot fail; Flush surfaces nothing else.
	_ = w.Write(Header)
	for _, r := range records {
		_ = w.Write(Row(r))
	}
	w.Flush()

	return buf.Bytes(), true
}

// Encode dispatches to the encoder for format.
func Encode(format Format, records []result.Record) ([]byte, bool, error) {
	switch format {
	case FormatCSV, "":
		blob, ok := CSV(records)
		return blob, ok, nil
	case FormatXLSX:
		return XLSX(records)
	default:
		return nil, false, errors.Errorf("unsupported export format %q", format)
	}
}

// FileName returns the fixed file name for format.
func FileName(format Format) string {
	if format == "" {
		format = FormatCSV
	}
	return BaseName + "." + string(format)
}

// Save writes the export of records into dir under the fixed file name. Nothing is
// written for an empty record set.
func Save(dir string, format Format, records []result.Record) (string, bool, error) {
	blob, ok, err := Encode(format, records)
	if err != nil || !ok {
		return "", false, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, errors.Wrap(err, "failed to create export directory")
	}

	path := filepath.Join(dir, FileName(format))
	if err := os.WriteFile(path, blob, 0644); err != nil {
		return "", false, errors.Wrap(err, "failed to write export file")
	}
	return path, true, nil
}
