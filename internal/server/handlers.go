package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// wardStatsRow mirrors one ward_stats.csv row. AvgElev is a pointer so a
// missing value serializes as an explicit null, never as NaN or omission.
type wardStatsRow struct {
	WardID     string   `json:"ward_id"`
	WardName   string   `json:"ward_name"`
	NumSchools int      `json:"num_schools"`
	AvgElev    *float64 `json:"avg_elev"`
}

// treeCountRow mirrors one ward_tree_counts.csv row.
type treeCountRow struct {
	WardID   string `json:"ward_id"`
	TreeType string `json:"tree_type"`
	Count    int    `json:"count"`
}

// HandleWardStats serves the ward summary table as a JSON array of rows.
func (s *ServerContext) HandleWardStats(w http.ResponseWriter, r *http.Request) {
	records, err := readCSV(filepath.Join(s.ProcessedDir, "ward_stats.csv"))
	if err != nil {
		http.Error(w, "ward stats not available", http.StatusNotFound)
		return
	}

	rows := make([]wardStatsRow, 0, len(records))
	for _, rec := range records {
		row := wardStatsRow{
			WardID:   rec["ward_id"],
			WardName: rec["ward_name"],
		}
		row.NumSchools, _ = strconv.Atoi(rec["num_schools"])
		if v := rec["avg_elev"]; v != "" {
			if elev, err := strconv.ParseFloat(v, 64); err == nil {
				row.AvgElev = &elev
			}
		}
		rows = append(rows, row)
	}

	writeJSON(w, rows)
}

// HandleTreeCounts serves the ward-by-tree-type table as a JSON array of
// rows.
func (s *ServerContext) HandleTreeCounts(w http.ResponseWriter, r *http.Request) {
	records, err := readCSV(filepath.Join(s.ProcessedDir, "ward_tree_counts.csv"))
	if err != nil {
		http.Error(w, "tree counts not available", http.StatusNotFound)
		return
	}

	rows := make([]treeCountRow, 0, len(records))
	for _, rec := range records {
		row := treeCountRow{
			WardID:   rec["ward_id"],
			TreeType: rec["tree_type"],
		}
		row.Count, _ = strconv.Atoi(rec["count"])
		rows = append(rows, row)
	}

	writeJSON(w, rows)
}

// HandleProcessedFile serves processed artifacts verbatim by file name.
// Path: /data/processed/{file}
func (s *ServerContext) HandleProcessedFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/data/processed/")
	if name == "" || name != filepath.Base(name) {
		// reject traversal and nested paths
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.ProcessedDir, name)
	if !s.serveFile(w, r, path, contentTypeFor(name)) {
		http.NotFound(w, r)
	}
}

// serveFile serves a file from disk with ETag validation. It returns true
// when the file was found and served (or answered with 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	etag := fmt.Sprintf(`"%x-%x"`, info.Size(), info.ModTime().UnixNano())
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".geojson":
		return "application/geo+json"
	case ".csv":
		return "text/csv"
	case ".tif":
		return "image/tiff"
	default:
		return ""
	}
}

// readCSV loads a headered CSV into one map per row, keyed by column name.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty CSV", path)
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}
