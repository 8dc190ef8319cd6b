package model

import (
	"fmt"
	"io"
	"strings"
)

// FieldType is the inferred type of a column.
type FieldType string

const (
	// FieldTypeNumber marks a column whose every non-empty value parsed as a number.
	FieldTypeNumber FieldType = "NUMBER"
	// FieldTypeString marks any other column.
	FieldTypeString FieldType = "STRING"
)

// ParseFieldType converts a case-insensitive name into a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	switch FieldType(strings.ToUpper(strings.TrimSpace(s))) {
	case FieldTypeNumber:
		return FieldTypeNumber, nil
	case FieldTypeString:
		return FieldTypeString, nil
	default:
		return "", fmt.Errorf("model: unknown field type %q", s)
	}
}

// Column holds the statistics computed for one column of one file version.
type Column struct {
	Name          string    `json:"name"`
	OriginalName  string    `json:"originalName"`
	FieldType     FieldType `json:"fieldType"`
	LongestString int       `json:"longestString,omitempty"`
	Min           *float64  `json:"min,omitempty"`
	Max           *float64  `json:"max,omitempty"`
}

// FileStats describes one ingested file version. Column order is the
// source file's column order.
type FileStats struct {
	FileName        string   `json:"fileName"`
	TableName       string   `json:"tableName"`
	NumberOfRows    int64    `json:"numberOfRows"`
	NumberOfColumns int      `json:"numberOfColumns"`
	Columns         []Column `json:"columns"`
	FileSize        int64    `json:"fileSize"`
}

// ColumnByName returns the first column with the given name.
func (s FileStats) ColumnByName(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// FileInfo is one entry of an ingestion batch. Stream is consumed once and
// may be nil for DELETE.
type FileInfo struct {
	TableName string
	FileName  string
	Operation Operation
	Stream    io.Reader
}

// FileInformation summarizes a file after conversion.
type FileInformation struct {
	TableName         string    `json:"tableName"`
	FileName          string    `json:"fileName"`
	FileOperationType Operation `json:"fileOperationType"`
	Columns           []Column  `json:"columns"`
	FileSize          int64     `json:"fileSize"`
	NumberOfRows      int64     `json:"numberOfRows"`
	NumberOfColumns   int       `json:"numberOfColumns"`
	RawKey            string    `json:"rawKey,omitempty"`
	DataKey           string    `json:"dataKey,omitempty"`
}

// Stats converts the summary into the FileStats record persisted for the file.
func (fi FileInformation) Stats() FileStats {
	cols := make([]Column, len(fi.Columns))
	copy(cols, fi.Columns)
	return FileStats{
		FileName:        fi.FileName,
		TableName:       fi.TableName,
		NumberOfRows:    fi.NumberOfRows,
		NumberOfColumns: fi.NumberOfColumns,
		Columns:         cols,
		FileSize:        fi.FileSize,
	}
}

// FileProcessingError is a per-file problem found during ingestion. Fatal
// errors mean the file was not ingested; the rest are row-level anomalies.
type FileProcessingError struct {
	TableName  string `json:"tableName,omitempty"`
	FileName   string `json:"fileName"`
	ColumnName string `json:"columnName,omitempty"`
	Reason     string `json:"reason"`
	Fatal      bool   `json:"fatal,omitempty"`
}

// CollisionType names the case of the collision decision matrix.
type CollisionType string

const (
	// CollisionSameSchema is a different file name carrying an identical schema.
	CollisionSameSchema CollisionType = "SAME_SCHEMA"
	// CollisionSchemaChanged is the same file name carrying a different schema.
	CollisionSchemaChanged CollisionType = "SCHEMA_CHANGED"
	// CollisionIdentical is the same file name and the same schema.
	CollisionIdentical CollisionType = "IDENTICAL"
)

// CollisionRecord pairs an incoming file with the existing file it collides
// with, and lists the operations the user may choose from.
type CollisionRecord struct {
	NewFile      FileStats     `json:"newFile"`
	ExistingFile FileStats     `json:"existingFile"`
	Type         CollisionType `json:"type"`
	Operations   []Operation   `json:"operations"`
}
