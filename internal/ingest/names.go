package ingest

import (
	"sort"

	"github.com/gridlake-io/gridlake/internal/model"
	"github.com/gridlake-io/gridlake/internal/sanitize"
)

type fileKey struct{ table, file string }

// sanitizeInfo returns a copy of files with table and file names sanitized,
// so every later step sees the names objects and tables are created under.
func sanitizeInfo(files []model.FileInfo) []model.FileInfo {
	out := make([]model.FileInfo, len(files))
	for i, f := range files {
		f.TableName = sanitize.Name(f.TableName)
		f.FileName = sanitize.FileName(f.FileName)
		out[i] = f
	}
	return out
}

// sanitizeStats returns a copy of stats named the way the conversion names
// files and columns. A column's raw header moves to OriginalName unless the
// caller already set one.
func sanitizeStats(stats []model.FileStats) []model.FileStats {
	out := make([]model.FileStats, len(stats))
	for i, s := range stats {
		s.TableName = sanitize.Name(s.TableName)
		s.FileName = sanitize.FileName(s.FileName)

		headers := make([]string, len(s.Columns))
		for j, c := range s.Columns {
			headers[j] = c.Name
		}
		cols := make([]model.Column, len(s.Columns))
		for j, name := range sanitize.Columns(headers) {
			c := s.Columns[j]
			if c.OriginalName == "" {
				c.OriginalName = c.Name
			}
			c.Name = name
			cols[j] = c
		}
		s.Columns = cols
		out[i] = s
	}
	return out
}

// declaredStats indexes the caller's statistics by sanitized table and file.
func declaredStats(stats []model.FileStats) map[fileKey]*model.FileStats {
	out := make(map[fileKey]*model.FileStats, len(stats))
	for _, s := range sanitizeStats(stats) {
		s := s
		out[fileKey{s.TableName, s.FileName}] = &s
	}
	return out
}

func sortedKeys(m map[string][]model.FileStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
