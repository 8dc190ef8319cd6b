package collision

import (
	"fmt"
	"strings"

	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/model"
)

// IntraFileDuplicate is a column name repeated inside one file.
type IntraFileDuplicate struct {
	TableName  string `json:"tableName,omitempty"`
	FileName   string `json:"fileName"`
	ColumnName string `json:"columnName"`
	Count      int    `json:"count"`
}

// FileFieldType names a file and the type it declares for a column.
type FileFieldType struct {
	TableName string          `json:"tableName,omitempty"`
	FileName  string          `json:"fileName"`
	FieldType model.FieldType `json:"fieldType"`
}

// InterFileDuplicate is a column name declared with more than one type
// across files.
type InterFileDuplicate struct {
	ColumnName string          `json:"columnName"`
	Files      []FileFieldType `json:"files"`
}

// DuplicateReport is the payload returned when duplicate columns block an
// upload.
type DuplicateReport struct {
	IntraFileDuplicates []IntraFileDuplicate `json:"intraFileDuplicates"`
	InterFileDuplicates []InterFileDuplicate `json:"interFileDuplicates"`
}

// Err converts the report into a data validation error.
func (r *DuplicateReport) Err() error {
	if r == nil {
		return nil
	}
	var names []string
	for _, d := range r.IntraFileDuplicates {
		names = append(names, d.FileName+"."+d.ColumnName)
	}
	for _, d := range r.InterFileDuplicates {
		names = append(names, d.ColumnName)
	}
	return errs.New(errs.ErrDataValidation, "collision.DuplicateColumns", errs.CodeDuplicateColumns,
		errs.Subject("columns", strings.Join(names, ",")),
		fmt.Sprintf("%d repeated within a file, %d with conflicting types",
			len(r.IntraFileDuplicates), len(r.InterFileDuplicates)))
}

type fileKey struct{ table, file string }

// DuplicateColumns checks incoming files, plus the existing files they do not
// supersede, for repeated and conflicting column names. It returns nil when
// there is nothing to report.
//
// An existing file is superseded when an incoming file carries the same
// table and file name, since the incoming version replaces it.
func DuplicateColumns(incoming, existing []model.FileStats) *DuplicateReport {
	superseded := make(map[fileKey]bool, len(incoming))
	for _, f := range incoming {
		superseded[fileKey{f.TableName, f.FileName}] = true
	}

	files := make([]model.FileStats, 0, len(incoming)+len(existing))
	files = append(files, incoming...)
	for _, f := range existing {
		if !superseded[fileKey{f.TableName, f.FileName}] {
			files = append(files, f)
		}
	}

	report := &DuplicateReport{}

	for _, f := range incoming {
		counts := make(map[string]int, len(f.Columns))
		var order []string
		for _, c := range f.Columns {
			if counts[c.Name] == 0 {
				order = append(order, c.Name)
			}
			counts[c.Name]++
		}
		for _, name := range order {
			if counts[name] > 1 {
				report.IntraFileDuplicates = append(report.IntraFileDuplicates, IntraFileDuplicate{
					TableName:  f.TableName,
					FileName:   f.FileName,
					ColumnName: name,
					Count:      counts[name],
				})
			}
		}
	}

	type usage struct {
		files []FileFieldType
		seen  map[fileKey]bool
		types map[model.FieldType]bool
	}
	byName := make(map[string]*usage)
	var names []string
	for _, f := range files {
		key := fileKey{f.TableName, f.FileName}
		for _, c := range f.Columns {
			u, ok := byName[c.Name]
			if !ok {
				u = &usage{seen: make(map[fileKey]bool), types: make(map[model.FieldType]bool)}
				byName[c.Name] = u
				names = append(names, c.Name)
			}
			u.types[c.FieldType] = true
			if u.seen[key] {
				continue
			}
			u.seen[key] = true
			u.files = append(u.files, FileFieldType{TableName: f.TableName, FileName: f.FileName, FieldType: c.FieldType})
		}
	}
	for _, name := range names {
		u := byName[name]
		if len(u.types) > 1 {
			report.InterFileDuplicates = append(report.InterFileDuplicates, InterFileDuplicate{
				ColumnName: name,
				Files:      u.files,
			})
		}
	}

	if len(report.IntraFileDuplicates) == 0 && len(report.InterFileDuplicates) == 0 {
		return nil
	}
	return report
}
