// Package reconcile keeps the query service's tables and model view in step
// with the files that have been ingested.
//
// Validate checks operation legality for a batch before any stream is
// read. SyncTable and SyncView issue the DDL once conversions succeed.
// Table existence is always read from the query service itself, so the
// checks stay correct when tables are changed out of band.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/logging"
	"github.com/gridlake-io/gridlake/internal/model"
	"github.com/gridlake-io/gridlake/internal/objectstore"
	"github.com/gridlake-io/gridlake/internal/query"
)

// Reconciler validates batches and issues DDL through a query gateway.
type Reconciler struct {
	gateway *query.Gateway
	store   objectstore.Store
	dialect Dialect
	bucket  string
	locks   *keyedMutex
}

// Options configures a Reconciler.
type Options struct {
	// Bucket is the object store bucket that table locations point into.
	Bucket string
}

// New creates a Reconciler.
func New(gateway *query.Gateway, store objectstore.Store, dialect Dialect, opts Options) *Reconciler {
	return &Reconciler{
		gateway: gateway,
		store:   store,
		dialect: dialect,
		bucket:  opts.Bucket,
		locks:   newKeyedMutex(),
	}
}

// Dialect returns the dialect statements are rendered in.
func (r *Reconciler) Dialect() Dialect {
	return r.dialect
}

// LockTable serializes work on one table. Callers hold it around every
// change to a table's files and its SyncTable call.
func (r *Reconciler) LockTable(clientID, modelID, table string) func() {
	return r.locks.Lock("table:" + TableName(clientID, modelID, table))
}

// ExistingTables reports which of the logical tables exist in the query
// service. Missing tables are absent from the map, not errors.
func (r *Reconciler) ExistingTables(ctx context.Context, clientID, modelID string, tables []string) (map[string]bool, error) {
	out := make(map[string]bool, len(tables))
	if len(tables) == 0 {
		return out, nil
	}

	byName := make(map[string]string, len(tables))
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		name := TableName(clientID, modelID, t)
		if _, ok := byName[name]; ok {
			continue
		}
		byName[name] = t
		names = append(names, name)
	}
	sort.Strings(names)

	rows, err := r.gateway.Run(ctx, r.dialect.TablesSQL(names))
	if err != nil {
		return nil, fmt.Errorf("reconcile: list tables: %w", err)
	}
	for _, row := range rows {
		name, _ := row["table_name"].(string)
		if t, ok := byName[strings.ToLower(name)]; ok {
			out[t] = true
		}
	}
	return out, nil
}

// TableExists reports whether one logical table exists.
func (r *Reconciler) TableExists(ctx context.Context, clientID, modelID, table string) (bool, error) {
	found, err := r.ExistingTables(ctx, clientID, modelID, []string{table})
	if err != nil {
		return false, err
	}
	return found[table], nil
}

// FileExists reports whether a file's columnar copy is already stored.
func (r *Reconciler) FileExists(ctx context.Context, clientID, modelID, table, file string) (bool, error) {
	ok, err := objectstore.Exists(ctx, r.store, objectstore.DataKey(clientID, modelID, table, file))
	if err != nil {
		return false, errs.Wrap(errs.ErrInvalidOperation, "reconcile.FileExists",
			errs.Subject("table", table, "file", file), err)
	}
	return ok, nil
}

// Validate checks every entry of a batch against the current state of
// the query service and returns all violations joined. Nothing is read
// from the entries' streams.
//
//	ADD      table must not exist and must be the table's only entry
//	APPEND   table must exist and must not already hold the file
//	REPLACE  table must exist and no other entry may write to it
//	DELETE   table must exist
//
// Two entries of one table whose names differ only by extension share a
// columnar object and are reported as DUPLICATE_FILE.
func (r *Reconciler) Validate(ctx context.Context, clientID, modelID string, files []model.FileInfo) error {
	const op = "reconcile.Validate"
	var problems []error

	// data key -> first file name claiming it
	seen := make(map[string]string, len(files))
	dataKey := func(f model.FileInfo) string {
		return objectstore.DataKey(clientID, modelID, f.TableName, f.FileName)
	}
	perTable := make(map[string][]model.FileInfo)
	var tables []string

	for _, f := range files {
		subject := errs.Subject("table", f.TableName, "file", f.FileName)
		switch {
		case f.TableName == "" || f.FileName == "":
			problems = append(problems, errs.New(errs.ErrInvalidArgument, op, "", subject, "table and file names are required"))
			continue
		case !f.Operation.Ingestible():
			problems = append(problems, errs.New(errs.ErrInvalidArgument, op, "", subject,
				fmt.Sprintf("operation %s cannot be ingested", f.Operation)))
			continue
		case seen[dataKey(f)] != "":
			msg := "file appears more than once in the batch"
			if first := seen[dataKey(f)]; first != f.FileName {
				msg = fmt.Sprintf("file is stored as the same object as %s", first)
			}
			problems = append(problems, errs.New(errs.ErrInvalidArgument, op, errs.CodeDuplicateFile, subject, msg))
			continue
		case f.Operation.ReadsStream() && f.Stream == nil:
			problems = append(problems, errs.New(errs.ErrInvalidArgument, op, "", subject,
				fmt.Sprintf("%s needs a stream", f.Operation)))
			continue
		}
		seen[dataKey(f)] = f.FileName
		if _, ok := perTable[f.TableName]; !ok {
			tables = append(tables, f.TableName)
		}
		perTable[f.TableName] = append(perTable[f.TableName], f)
	}

	if len(tables) == 0 {
		return errors.Join(problems...)
	}

	existing, err := r.ExistingTables(ctx, clientID, modelID, tables)
	if err != nil {
		return errors.Join(append(problems, err)...)
	}

	for _, table := range tables {
		entries := perTable[table]
		adds, writers := 0, 0
		for _, f := range entries {
			if f.Operation == model.OperationAdd {
				adds++
			}
			if f.Operation != model.OperationDelete {
				writers++
			}
		}

		for _, f := range entries {
			subject := errs.Subject("table", f.TableName, "file", f.FileName, "operation", f.Operation.String())
			switch f.Operation {
			case model.OperationAdd:
				if existing[table] {
					problems = append(problems, errs.New(errs.ErrDataValidation, op, errs.CodeTableAlreadyExists, subject, ""))
				} else if len(entries) > 1 {
					problems = append(problems, errs.New(errs.ErrDataValidation, op, errs.CodeInvalidTableSet, subject,
						fmt.Sprintf("table is added by this batch and named by %d entries", len(entries))))
				}
			case model.OperationAppend:
				if !existing[table] {
					if adds == 0 {
						problems = append(problems, errs.New(errs.ErrDataValidation, op, errs.CodeTableDoesNotExist, subject, ""))
					}
					continue
				}
				found, err := r.FileExists(ctx, clientID, modelID, table, f.FileName)
				if err != nil {
					problems = append(problems, err)
					continue
				}
				if found {
					problems = append(problems, errs.New(errs.ErrDataValidation, op, errs.CodeFileAlreadyExists, subject, ""))
				}
			case model.OperationReplace:
				if !existing[table] && adds == 0 {
					problems = append(problems, errs.New(errs.ErrDataValidation, op, errs.CodeTableDoesNotExist, subject, ""))
				} else if adds == 0 && writers > 1 {
					problems = append(problems, errs.New(errs.ErrDataValidation, op, errs.CodeInvalidTableSet, subject,
						fmt.Sprintf("table is replaced by this batch and written by %d entries", writers)))
				}
			case model.OperationDelete:
				if !existing[table] && adds == 0 {
					problems = append(problems, errs.New(errs.ErrDataValidation, op, errs.CodeTableDoesNotExist, subject, ""))
				}
			case model.OperationUnspecified, model.OperationCancel:
				// rejected above
			}
		}
	}

	if len(problems) > 0 {
		logging.FromCtx(ctx).Warnf("batch rejected", map[string]any{
			"entries":    len(files),
			"violations": len(problems),
		})
	}
	return errors.Join(problems...)
}

// Table builds the definition of a logical table from its files, in the
// order given.
func (r *Reconciler) Table(clientID, modelID, table string, files []model.FileStats) TableDef {
	def := TableDef{
		Name:     TableName(clientID, modelID, table),
		Logical:  table,
		Location: objectstore.URI(r.bucket, objectstore.DataPrefix(clientID, modelID, table)),
	}
	seen := make(map[string]bool)
	for _, f := range files {
		def.Files = append(def.Files, objectstore.URI(r.bucket, objectstore.DataKey(clientID, modelID, table, f.FileName)))
		for _, c := range f.Columns {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			def.Columns = append(def.Columns, model.Column{Name: c.Name, OriginalName: c.OriginalName, FieldType: c.FieldType})
		}
	}
	return def
}

// SyncTable makes a table's definition match files. With no files left the
// table is dropped. Callers hold LockTable.
func (r *Reconciler) SyncTable(ctx context.Context, clientID, modelID, table string, files []model.FileStats) error {
	def := r.Table(clientID, modelID, table, files)
	log := logging.FromCtx(ctx).With(map[string]any{"table": table, "queryTable": def.Name})

	var stmts []string
	if len(files) == 0 {
		stmts = []string{r.dialect.DropTable(def.Name)}
	} else {
		stmts = r.dialect.CreateTable(def)
	}
	for _, stmt := range stmts {
		if _, err := r.gateway.Run(ctx, stmt); err != nil {
			return fmt.Errorf("reconcile: sync table %s: %w", def.Name, err)
		}
	}

	if len(files) == 0 {
		log.Info("table dropped")
	} else {
		log.Infof("table synced", map[string]any{"files": len(files), "columns": len(def.Columns)})
	}
	return nil
}

// DropTable removes a table from the query service.
func (r *Reconciler) DropTable(ctx context.Context, clientID, modelID, table string) error {
	return r.SyncTable(ctx, clientID, modelID, table, nil)
}

// SyncView recreates the model view over every table of the model and
// returns its name. Tables without files are skipped; with none left the
// view is dropped and the name is still returned.
func (r *Reconciler) SyncView(ctx context.Context, clientID, modelID string, tables map[string][]model.FileStats) (string, error) {
	name := ViewName(clientID, modelID)
	unlock := r.locks.Lock("view:" + name)
	defer unlock()

	names := make([]string, 0, len(tables))
	for t, files := range tables {
		if len(files) > 0 {
			names = append(names, t)
		}
	}
	sort.Strings(names)

	defs := make([]TableDef, len(names))
	for i, t := range names {
		defs[i] = r.Table(clientID, modelID, t, tables[t])
	}

	stmt := r.dialect.DropView(name)
	if len(defs) > 0 {
		stmt = r.dialect.CreateView(name, defs)
	}
	if _, err := r.gateway.Run(ctx, stmt); err != nil {
		return "", fmt.Errorf("reconcile: sync view %s: %w", name, err)
	}

	logging.FromCtx(ctx).Infof("view synced", map[string]any{"view": name, "tables": len(defs)})
	return name, nil
}
