// Package model defines the types that flow through the ingestion pipeline:
// column statistics, per-file statistics, batch inputs and per-file results.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operation describes how an incoming file relates to an existing table.
//
// The zero value is OperationUnspecified. It is never a valid user decision
// and is rejected wherever an operation is consumed.
type Operation int

const (
	// OperationUnspecified is the zero value.
	OperationUnspecified Operation = iota
	// OperationAdd creates a new table from the file.
	OperationAdd
	// OperationAppend adds the file to an existing table.
	OperationAppend
	// OperationReplace replaces the contents of an existing table with the file.
	OperationReplace
	// OperationDelete removes the file from an existing table.
	OperationDelete
	// OperationCancel is a user-facing collision decision only. It never
	// reaches the ingestion pipeline.
	OperationCancel
)

var operationNames = map[Operation]string{
	OperationUnspecified: "UNSPECIFIED",
	OperationAdd:         "ADD",
	OperationAppend:      "APPEND",
	OperationReplace:     "REPLACE",
	OperationDelete:      "DELETE",
	OperationCancel:      "CANCEL",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// ParseOperation converts a case-insensitive name into an Operation.
func ParseOperation(s string) (Operation, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for op, name := range operationNames {
		if op != OperationUnspecified && name == upper {
			return op, nil
		}
	}
	return OperationUnspecified, fmt.Errorf("model: unknown operation %q", s)
}

// Ingestible reports whether the operation may be submitted to the pipeline.
func (o Operation) Ingestible() bool {
	switch o {
	case OperationAdd, OperationAppend, OperationReplace, OperationDelete:
		return true
	case OperationUnspecified, OperationCancel:
		return false
	default:
		return false
	}
}

// ReadsStream reports whether the pipeline consumes the file's byte stream
// for this operation.
func (o Operation) ReadsStream() bool {
	switch o {
	case OperationAdd, OperationAppend, OperationReplace:
		return true
	case OperationDelete, OperationUnspecified, OperationCancel:
		return false
	default:
		return false
	}
}

// MarshalText encodes the operation by name.
func (o Operation) MarshalText() ([]byte, error) {
	if _, ok := operationNames[o]; !ok {
		return nil, fmt.Errorf("model: cannot marshal %v", o)
	}
	return []byte(o.String()), nil
}

// UnmarshalText decodes an operation name.
func (o *Operation) UnmarshalText(text []byte) error {
	if len(text) == 0 || strings.EqualFold(string(text), "UNSPECIFIED") {
		*o = OperationUnspecified
		return nil
	}
	parsed, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

var (
	_ json.Marshaler   = Operation(0)
	_ json.Unmarshaler = (*Operation)(nil)
)

// MarshalJSON encodes the operation as a JSON string.
func (o Operation) MarshalJSON() ([]byte, error) {
	text, err := o.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON decodes a JSON string operation.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("model: operation must be a string: %w", err)
	}
	return o.UnmarshalText([]byte(s))
}
