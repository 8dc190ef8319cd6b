// Package fieldtype classifies column values as NUMBER or STRING in a single
// streaming pass, tracking the longest string and the numeric range.
package fieldtype

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gridlake-io/gridlake/internal/model"
)

// ParseNumber parses a cell as a finite number. Surrounding whitespace is
// ignored; NaN and infinities are not numbers.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// IsEmpty reports whether a cell holds no value.
func IsEmpty(raw string) bool {
	return strings.TrimSpace(raw) == ""
}

// Inferencer accumulates the running state for one column of one file.
// It is not safe for concurrent use.
type Inferencer struct {
	trackRange bool

	observed      int64
	sawNonNumeric bool
	maxLength     int
	min           float64
	max           float64
	sawNumber     bool
}

// New creates an Inferencer. When trackRange is true the numeric min and max
// are reported for NUMBER columns.
func New(trackRange bool) *Inferencer {
	return &Inferencer{trackRange: trackRange}
}

// Observe folds one raw cell into the running state and reports whether the
// cell was numeric. Empty cells are skipped.
func (i *Inferencer) Observe(raw string) (float64, bool) {
	if IsEmpty(raw) {
		return 0, false
	}
	i.observed++

	if n := utf8.RuneCountInString(raw); n > i.maxLength {
		i.maxLength = n
	}

	v, ok := ParseNumber(raw)
	if !ok {
		i.sawNonNumeric = true
		return 0, false
	}
	if !i.sawNumber {
		i.min, i.max = v, v
		i.sawNumber = true
	} else {
		if v < i.min {
			i.min = v
		}
		if v > i.max {
			i.max = v
		}
	}
	return v, true
}

// Observed returns the number of non-empty cells seen.
func (i *Inferencer) Observed() int64 {
	return i.observed
}

// FieldType returns NUMBER when at least one value was seen and every value
// parsed as a number, else STRING.
func (i *Inferencer) FieldType() model.FieldType {
	if i.observed > 0 && !i.sawNonNumeric {
		return model.FieldTypeNumber
	}
	return model.FieldTypeString
}

// LongestString returns the longest observed value in runes.
func (i *Inferencer) LongestString() int {
	return i.maxLength
}

// Column builds the column statistics for the inferred type.
func (i *Inferencer) Column(name, originalName string) model.Column {
	return i.ColumnAs(name, originalName, i.FieldType())
}

// ColumnAs builds the column statistics for a column whose type was declared
// up front rather than inferred.
func (i *Inferencer) ColumnAs(name, originalName string, ft model.FieldType) model.Column {
	col := model.Column{
		Name:         name,
		OriginalName: originalName,
		FieldType:    ft,
	}
	switch ft {
	case model.FieldTypeString:
		col.LongestString = i.maxLength
	case model.FieldTypeNumber:
		if i.trackRange && i.sawNumber {
			lo, hi := i.min, i.max
			col.Min = &lo
			col.Max = &hi
		}
	}
	return col
}
