package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gridlake-io/gridlake/internal/model"
)

// SourceTableColumn is added to the model view to name each row's table.
const SourceTableColumn = "source_table"

// TableDef is everything needed to (re)create one table.
type TableDef struct {
	// Name is the query-service table name.
	Name string
	// Logical is the table name used inside the model.
	Logical string
	// Columns is the union of the columns of every file, in first-seen
	// order.
	Columns []model.Column
	// Location is the URI of the table's columnar directory.
	Location string
	// Files are the URIs of the table's columnar files.
	Files []string
}

// Dialect renders the statements for one query backend.
type Dialect interface {
	Name() string

	// TablesSQL lists which of names exist.
	TablesSQL(names []string) string

	// CreateTable returns the statements that make def current.
	CreateTable(def TableDef) []string
	DropTable(name string) string

	// CreateView joins tables, padding missing columns with nulls.
	CreateView(name string, tables []TableDef) string
	DropView(name string) string
}

// DialectFor returns the dialect of a query backend name.
func DialectFor(backend, database string) (Dialect, error) {
	switch backend {
	case "athena":
		return Athena{Database: database}, nil
	case "duckdb", "mock":
		return DuckDB{}, nil
	default:
		return nil, fmt.Errorf("reconcile: no dialect for backend %q", backend)
	}
}

// Athena renders Hive DDL and Presto DML.
type Athena struct {
	Database string
}

func (Athena) Name() string { return "athena" }

func (a Athena) TablesSQL(names []string) string {
	return fmt.Sprintf(
		"SELECT table_name FROM information_schema.tables WHERE table_schema = %s AND table_name IN (%s)",
		quoteLiteral(strings.ToLower(a.Database)), literalList(names))
}

func (a Athena) CreateTable(def TableDef) []string {
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = athenaIdent(c.Name) + " " + athenaType(c.FieldType)
	}
	location := def.Location
	if !strings.HasSuffix(location, "/") {
		location += "/"
	}
	return []string{
		a.DropTable(def.Name),
		fmt.Sprintf("CREATE EXTERNAL TABLE %s (\n  %s\n)\nSTORED AS PARQUET\nLOCATION %s",
			athenaIdent(def.Name), strings.Join(cols, ",\n  "), quoteLiteral(location)),
	}
}

func (Athena) DropTable(name string) string {
	return "DROP TABLE IF EXISTS " + athenaIdent(name)
}

func (Athena) CreateView(name string, tables []TableDef) string {
	all := unionColumns(tables)
	selects := make([]string, len(tables))
	for i, t := range tables {
		have := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			have[c.Name] = true
		}
		exprs := make([]string, 0, len(all)+1)
		for _, c := range all {
			if have[c.Name] {
				exprs = append(exprs, quoteIdent(c.Name))
				continue
			}
			exprs = append(exprs, fmt.Sprintf("CAST(NULL AS %s) AS %s", athenaType(c.FieldType), quoteIdent(c.Name)))
		}
		exprs = append(exprs, fmt.Sprintf("%s AS %s", quoteLiteral(t.Logical), quoteIdent(SourceTableColumn)))
		selects[i] = fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), quoteIdent(t.Name))
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s", quoteIdent(name), strings.Join(selects, "\nUNION ALL\n"))
}

func (Athena) DropView(name string) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", quoteIdent(name))
}

func athenaType(ft model.FieldType) string {
	if ft == model.FieldTypeNumber {
		return "double"
	}
	return "string"
}

// DuckDB renders tables as views over read_parquet.
type DuckDB struct{}

func (DuckDB) Name() string { return "duckdb" }

func (DuckDB) TablesSQL(names []string) string {
	return fmt.Sprintf(
		"SELECT table_name FROM information_schema.tables WHERE table_name IN (%s)",
		literalList(names))
}

func (DuckDB) CreateTable(def TableDef) []string {
	files := make([]string, len(def.Files))
	for i, f := range def.Files {
		files[i] = quoteLiteral(f)
	}
	sort.Strings(files)

	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		cols[i] = fmt.Sprintf("CAST(%s AS %s) AS %s", quoteIdent(c.Name), duckType(c.FieldType), quoteIdent(c.Name))
	}
	return []string{fmt.Sprintf(
		"CREATE OR REPLACE VIEW %s AS SELECT %s FROM read_parquet([%s], union_by_name = true)",
		quoteIdent(def.Name), strings.Join(cols, ", "), strings.Join(files, ", "))}
}

func (DuckDB) DropTable(name string) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", quoteIdent(name))
}

func (DuckDB) CreateView(name string, tables []TableDef) string {
	selects := make([]string, len(tables))
	for i, t := range tables {
		selects[i] = fmt.Sprintf("SELECT *, %s AS %s FROM %s",
			quoteLiteral(t.Logical), quoteIdent(SourceTableColumn), quoteIdent(t.Name))
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS\n%s", quoteIdent(name), strings.Join(selects, "\nUNION ALL BY NAME\n"))
}

func (DuckDB) DropView(name string) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", quoteIdent(name))
}

func duckType(ft model.FieldType) string {
	if ft == model.FieldTypeNumber {
		return "DOUBLE"
	}
	return "VARCHAR"
}

// unionColumns merges column lists by name, keeping first-seen order and
// the first type seen.
func unionColumns(tables []TableDef) []model.Column {
	var out []model.Column
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, c := range t.Columns {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, model.Column{Name: c.Name, FieldType: c.FieldType})
		}
	}
	return out
}

// athenaIdent quotes a Hive DDL identifier. Hive escapes a backtick inside
// one by doubling it.
func athenaIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func literalList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteLiteral(v)
	}
	return strings.Join(quoted, ", ")
}
