package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loaddash/pkg/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sample(url string, ts float64) result.Record {
	return result.Record{
		Timestamp:             ts,
		URL:                   url,
		QPS:                   10,
		Duration:              2,
		TotalRequests:         20,
		FailedRequests:        2,
		ErrorRate:             10,
		MedianLatency:         0.12345,
		P90Latency:            0.2,
		P99Latency:            0.3,
		AvgLatency:            0.15,
		MinLatency:            0.1,
		MaxLatency:            0.4,
		AvgSize:               1024.5,
		CurrentRPS:            9.87654,
		CurrentFailuresPerSec: 1,
	}
}

func TestCSV_Empty(t *testing.T) {
	blob, ok := CSV(nil)
	assert.False(t, ok)
	assert.Nil(t, blob)

	blob, ok = CSV([]result.Record{})
	assert.False(t, ok)
	assert.Nil(t, blob)
}

func TestCSV_RowCountAndOrder(t *testing.T) {
	records := []result.Record{
		sample("http://c.example", 1700000300),
		sample("http://b.example", 1700000200),
		sample("http://a.example", 1700000100),
	}

	blob, ok := CSV(records)
	require.True(t, ok)

	lines := strings.Split(strings.TrimSuffix(string(blob), "\n"), "\n")
	require.Len(t, lines, len(records)+1)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2023-11-14T22:18:20Z,http://c.example,"))
	assert.True(t, strings.HasPrefix(lines[3], "2023-11-14T22:15:00Z,http://a.example,"))
}

func TestCSV_RowFormatting(t *testing.T) {
	blob, ok := CSV([]result.Record{sample("http://a.example", 1700000000)})
	require.True(t, ok)

	lines := strings.Split(strings.TrimSuffix(string(blob), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t,
		"2023-11-14T22:13:20Z,http://a.example,10,2,20,2,123.45,200.00,300.00,150.00,100.00,400.00,1024.50,10.00,9.88,1.00",
		lines[1])
}

func TestCSV_QuotesURL(t *testing.T) {
	url := `http://example.com/search?q=a,b&name="x"`
	blob, ok := CSV([]result.Record{sample(url, 1700000000)})
	require.True(t, ok)

	rows, err := csv.NewReader(bytes.NewReader(blob)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rows[1], len(Header))
	assert.Equal(t, url, rows[1][1])
}

func TestXLSX_MatchesCSVCells(t *testing.T) {
	records := []result.Record{sample("http://b.example", 2), sample("http://a.example", 1)}

	blob, ok, err := XLSX(records)
	require.NoError(t, err)
	require.True(t, ok)

	f, err := excelize.OpenReader(bytes.NewReader(blob))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, Row(records[0]), rows[1])
	assert.Equal(t, Row(records[1]), rows[2])
}

func TestXLSX_Empty(t *testing.T) {
	blob, ok, err := XLSX(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, blob)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()

	path, written, err := Save(dir, FormatCSV, []result.Record{sample("http://a.example", 1)})
	require.NoError(t, err)
	require.True(t, written)
	assert.Equal(t, filepath.Join(dir, "load_test_results.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestSave_EmptyWritesNothing(t *testing.T) {
	dir := t.TempDir()

	path, written, err := Save(dir, FormatXLSX, nil)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Empty(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSave_UnknownFormat(t *testing.T) {
	_, written, err := Save(t.TempDir(), Format("pdf"), []result.Record{sample("http://a.example", 1)})
	assert.Error(t, err)
	assert.False(t, written)
}
