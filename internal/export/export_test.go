package export

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lvasseur/ski-catalog-scraper/internal/models"
)

func sampleRecords() []models.Record {
	return []models.Record{
		{Brand: "O'Neill", Model: "Thermal Base Layer", Description: "Warm, breathable", Price: "46.90", Discount: "-30"},
		{Brand: "Odlo", Model: "Merino Crew", Price: "89.00"},
	}
}

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWriter(dir, "catalog", logger), dir
}

func TestWriteJSON(t *testing.T) {
	w, _ := newTestWriter(t)

	paths, err := w.Write(sampleRecords(), []string{FormatJSON})

	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Regexp(t, `^catalog_2_\d{8}_\d{6}\.json$`, filepath.Base(paths[0]))

	got, err := ReadRecords(paths[0])
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestWriteCSV(t *testing.T) {
	w, _ := newTestWriter(t)

	paths, err := w.Write(sampleRecords(), []string{FormatCSV})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "\xEF\xBB\xBF"), "CSV should start with a UTF-8 BOM")

	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(text, "\xEF\xBB\xBF"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.Fields, rows[0])
	assert.Equal(t, []string{"O'Neill", "Thermal Base Layer", "Warm, breathable", "46.90", "-30"}, rows[1])
	assert.Equal(t, []string{"Odlo", "Merino Crew", "", "89.00", ""}, rows[2])
}

func TestWriteXLSX(t *testing.T) {
	w, _ := newTestWriter(t)

	paths, err := w.Write(sampleRecords(), []string{FormatXLSX})
	require.NoError(t, err)
	require.Len(t, paths, 1)

	f, err := excelize.OpenFile(paths[0])
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Listings")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.Fields, rows[0])
	assert.Equal(t, "Thermal Base Layer", rows[1][1])
	assert.Equal(t, "89.00", rows[2][3])
}

func TestWriteMultipleFormatsShareOneStem(t *testing.T) {
	w, _ := newTestWriter(t)

	paths, err := w.Write(sampleRecords(), []string{FormatJSON, FormatCSV, FormatXLSX})

	require.NoError(t, err)
	require.Len(t, paths, 3)
	stem := strings.TrimSuffix(filepath.Base(paths[0]), ".json")
	assert.Equal(t, stem+".csv", filepath.Base(paths[1]))
	assert.Equal(t, stem+".xlsx", filepath.Base(paths[2]))
}

func TestWriteRefusesEmptySet(t *testing.T) {
	w, dir := newTestWriter(t)

	_, err := w.Write(nil, []string{FormatJSON})

	assert.ErrorIs(t, err, ErrNoRecords)
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestWriteUnknownFormat(t *testing.T) {
	w, _ := newTestWriter(t)

	_, err := w.Write(sampleRecords(), []string{"parquet"})

	assert.ErrorContains(t, err, `unknown export format "parquet"`)
}

func TestLatestExport(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "catalog_5_20240101_000000.json")
	newer := filepath.Join(dir, "catalog_9_20240301_000000.json")
	newestCSV := filepath.Join(dir, "catalog_9_20240401_000000.csv")

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for path, at := range map[string]time.Time{
		older:     base.Add(-time.Hour),
		newer:     base,
		newestCSV: base.Add(time.Hour),
	} {
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))
		require.NoError(t, os.Chtimes(path, at, at))
	}

	t.Run("newest JSON wins over a newer CSV", func(t *testing.T) {
		path, err := LatestExport(dir)
		require.NoError(t, err)
		assert.Equal(t, newer, path)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := LatestExport(t.TempDir())
		assert.ErrorIs(t, err, ErrNoExports)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := LatestExport(filepath.Join(dir, "missing"))
		assert.ErrorIs(t, err, ErrNoExports)
	})
}

func TestListExports(t *testing.T) {
	dir := t.TempDir()
	jsonFile := filepath.Join(dir, "catalog_1_20240301_000000.json")
	csvFile := filepath.Join(dir, "catalog_1_20240201_000000.csv")
	notes := filepath.Join(dir, "notes.txt")

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.WriteFile(jsonFile, []byte("[]"), 0644))
	require.NoError(t, os.Chtimes(jsonFile, base, base))
	require.NoError(t, os.WriteFile(csvFile, []byte("x"), 0644))
	require.NoError(t, os.Chtimes(csvFile, base.Add(-time.Hour), base.Add(-time.Hour)))
	require.NoError(t, os.WriteFile(notes, []byte("ignore me"), 0644))

	files, err := ListExports(dir)

	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Base(jsonFile), files[0].Name)
	assert.Equal(t, filepath.Base(csvFile), files[1].Name)
}
