package convert

import (
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/gridlake-io/gridlake/internal/fieldtype"
	"github.com/gridlake-io/gridlake/internal/model"
	"github.com/gridlake-io/gridlake/internal/sanitize"
)

// ColumnOrderKey is the parquet key/value metadata entry holding the source
// column order, since parquet groups store fields sorted by name.
const ColumnOrderKey = "gridlake.columns"

// schema is the column layout declared before the first row is written.
type schema struct {
	names     []string
	originals []string
	types     []model.FieldType
}

// resolveSchema types every column from the declared stats when they name
// it, else from the sample rows.
func resolveSchema(names, originals []string, declared *model.FileStats, sample [][]string) *schema {
	sc := &schema{
		names:     names,
		originals: originals,
		types:     make([]model.FieldType, len(names)),
	}

	byName := make(map[string]model.FieldType)
	if declared != nil {
		for _, c := range declared.Columns {
			byName[sanitize.Name(c.Name)] = c.FieldType
		}
	}

	for i, name := range names {
		if ft, ok := byName[name]; ok && (ft == model.FieldTypeNumber || ft == model.FieldTypeString) {
			sc.types[i] = ft
			continue
		}
		inf := fieldtype.New(false)
		for _, row := range sample {
			inf.Observe(row[i])
		}
		sc.types[i] = inf.FieldType()
	}
	return sc
}

// needsSample reports whether any column is missing from declared.
func needsSample(names []string, declared *model.FileStats) bool {
	if declared == nil {
		return true
	}
	have := make(map[string]bool, len(declared.Columns))
	for _, c := range declared.Columns {
		have[sanitize.Name(c.Name)] = true
	}
	for _, n := range names {
		if !have[n] {
			return true
		}
	}
	return false
}

// parquetSchema builds the columnar schema. Every column is optional so
// empty and non-conforming cells can be written as null.
func (sc *schema) parquetSchema() *parquet.Schema {
	group := make(parquet.Group, len(sc.names))
	for i, name := range sc.names {
		switch sc.types[i] {
		case model.FieldTypeNumber:
			group[name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		default:
			group[name] = parquet.Optional(parquet.String())
		}
	}
	return parquet.NewSchema("row", group)
}

func (sc *schema) columnOrder() string {
	return strings.Join(sc.names, ",")
}
