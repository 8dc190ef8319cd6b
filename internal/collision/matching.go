// Package collision classifies an incoming batch against already ingested
// files. It never mutates state; it only reports the decisions a user must
// make before an upload proceeds.
package collision

import (
	"github.com/gridlake-io/gridlake/internal/fingerprint"
	"github.com/gridlake-io/gridlake/internal/model"
)

// Operations offered per collision type. Callers get a copy.
var offered = map[model.CollisionType][]model.Operation{
	model.CollisionSameSchema:    {model.OperationAppend, model.OperationAdd},
	model.CollisionSchemaChanged: {model.OperationReplace, model.OperationCancel},
	model.CollisionIdentical:     {model.OperationReplace},
}

// OperationsFor returns the operations offered for a collision type.
func OperationsFor(t model.CollisionType) []model.Operation {
	ops := offered[t]
	out := make([]model.Operation, len(ops))
	copy(out, ops)
	return out
}

type candidate struct {
	stats model.FileStats
	fp    fingerprint.Pair
}

// MatchingFiles returns one CollisionRecord for each incoming file that
// collides with an existing one. Incoming files without a match need no
// decision and default to ADD.
//
// Matches are checked in a fixed order, and within each step the first
// existing file in iteration order wins:
//
//  1. same fileColumnsHash: IDENTICAL, offers [REPLACE]
//  2. same columnsHash, different file name: SAME_SCHEMA, offers [APPEND, ADD]
//  3. same file name, different schema: SCHEMA_CHANGED, offers [REPLACE, CANCEL]
func MatchingFiles(incoming, existing []model.FileStats) []model.CollisionRecord {
	pool := make([]candidate, len(existing))
	for i, e := range existing {
		pool[i] = candidate{stats: e, fp: fingerprint.Of(e)}
	}

	var records []model.CollisionRecord
	for _, in := range incoming {
		if rec, ok := match(in, pool); ok {
			records = append(records, rec)
		}
	}
	return records
}

func match(in model.FileStats, pool []candidate) (model.CollisionRecord, bool) {
	fp := fingerprint.Of(in)

	for _, c := range pool {
		if c.fp.FileColumnsHash == fp.FileColumnsHash {
			return record(in, c.stats, model.CollisionIdentical), true
		}
	}
	for _, c := range pool {
		if c.fp.ColumnsHash == fp.ColumnsHash && c.stats.FileName != in.FileName {
			return record(in, c.stats, model.CollisionSameSchema), true
		}
	}
	for _, c := range pool {
		if c.stats.FileName == in.FileName && sameTable(c.stats, in) {
			return record(in, c.stats, model.CollisionSchemaChanged), true
		}
	}
	return model.CollisionRecord{}, false
}

// sameTable treats a missing table name as a wildcard, since profiled files
// may not have been assigned a table yet.
func sameTable(a, b model.FileStats) bool {
	return a.TableName == "" || b.TableName == "" || a.TableName == b.TableName
}

func record(in, existing model.FileStats, t model.CollisionType) model.CollisionRecord {
	return model.CollisionRecord{
		NewFile:      in,
		ExistingFile: existing,
		Type:         t,
		Operations:   OperationsFor(t),
	}
}

// Result is the combined outcome of both checks.
type Result struct {
	Duplicates *DuplicateReport        `json:"duplicates,omitempty"`
	Collisions []model.CollisionRecord `json:"collisions"`
}

// Blocked reports whether duplicate columns prevent the upload.
func (r Result) Blocked() bool {
	return r.Duplicates != nil
}

// Check runs the duplicate column check and the matching file check.
func Check(incoming, existing []model.FileStats) Result {
	return Result{
		Duplicates: DuplicateColumns(incoming, existing),
		Collisions: MatchingFiles(incoming, existing),
	}
}
