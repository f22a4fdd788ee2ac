package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lvasseur/ski-catalog-scraper/internal/models"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// utf8BOM keeps spreadsheet tools from mangling accented characters in
// CSV exports.
const utf8BOM = "\xEF\xBB\xBF"

var (
	ErrNoRecords = errors.New("no records to export")
	ErrNoExports = errors.New("no export files found")
)

// Writer persists crawl results under one directory, one file per
// format, all sharing the same timestamped stem.
type Writer struct {
	dir    string
	base   string
	logger *slog.Logger
}

func NewWriter(dir, base string, logger *slog.Logger) *Writer {
	return &Writer{
		dir:    dir,
		base:   base,
		logger: logger.With("component", "export"),
	}
}

// Write saves records in every requested format and returns the paths
// written. Records keep their slice order in every format.
func (w *Writer) Write(records []models.Record, formats []string) ([]string, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	stem := fmt.Sprintf("%s_%d_%s", w.base, len(records), time.Now().Format("20060102_150405"))

	var paths []string
	for _, format := range formats {
		path := filepath.Join(w.dir, stem+"."+format)

		var err error
		switch format {
		case FormatJSON:
			err = w.writeJSON(path, records)
		case FormatCSV:
			err = w.writeCSV(path, records)
		case FormatXLSX:
			err = w.writeXLSX(path, records)
		default:
			err = fmt.Errorf("unknown export format %q", format)
		}
		if err != nil {
			return paths, fmt.Errorf("export %s: %w", format, err)
		}

		w.logger.Info("Export written", "path", path, "records", len(records))
		paths = append(paths, path)
	}
	return paths, nil
}

func (w *Writer) writeJSON(path string, records []models.Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (w *Writer) writeCSV(path string, records []models.Record) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	write := func() error {
		if _, err := f.WriteString(utf8BOM); err != nil {
			return err
		}
		cw := csv.NewWriter(f)
		if err := cw.Write(models.Fields); err != nil {
			return err
		}
		for _, rec := range records {
			row := make([]string, 0, len(models.Fields))
			for _, name := range models.Fields {
				row = append(row, rec.Field(name))
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}

	if err := write(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (w *Writer) writeXLSX(path string, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Listings"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]interface{}, 0, len(models.Fields))
	for _, name := range models.Fields {
		header = append(header, name)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, rec := range records {
		row := make([]interface{}, 0, len(models.Fields))
		for _, name := range models.Fields {
			row = append(row, rec.Field(name))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// FileInfo describes one export file on disk.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListExports returns the export files in dir, newest first. A missing
// directory is treated as empty.
func ListExports(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.TrimPrefix(filepath.Ext(entry.Name()), ".") {
		case FormatJSON, FormatCSV, FormatXLSX:
		default:
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, FileInfo{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name > files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// LatestExport returns the newest JSON export in dir. The catalog
// server loads this file as its dataset.
func LatestExport(dir string) (string, error) {
	files, err := ListExports(dir)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if strings.HasSuffix(f.Name, "."+FormatJSON) {
			return filepath.Join(dir, f.Name), nil
		}
	}
	return "", ErrNoExports
}

// ReadRecords loads a JSON export back into memory.
func ReadRecords(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return records, nil
}
