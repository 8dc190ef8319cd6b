package collision

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/model"
)

func col(name string, ft model.FieldType) model.Column {
	return model.Column{Name: name, OriginalName: name, FieldType: ft}
}

func file(table, name string, cols ...model.Column) model.FileStats {
	return model.FileStats{TableName: table, FileName: name, Columns: cols, NumberOfColumns: len(cols)}
}

var (
	str = model.FieldTypeString
	num = model.FieldTypeNumber
)

func TestMatchingFilesDecisionMatrix(t *testing.T) {
	existingA := file("sales", "a.csv", col("col1", str), col("col2", num))

	tests := []struct {
		name     string
		incoming model.FileStats
		wantType model.CollisionType
		wantOps  []model.Operation
	}{
		{
			name:     "different filename same schema",
			incoming: file("sales", "b.csv", col("col1", str), col("col2", num)),
			wantType: model.CollisionSameSchema,
			wantOps:  []model.Operation{model.OperationAppend, model.OperationAdd},
		},
		{
			name:     "same filename extra column",
			incoming: file("sales", "a.csv", col("col1", str), col("col2", num), col("col3", str)),
			wantType: model.CollisionSchemaChanged,
			wantOps:  []model.Operation{model.OperationReplace, model.OperationCancel},
		},
		{
			name:     "identical",
			incoming: file("sales", "a.csv", col("col1", str), col("col2", num)),
			wantType: model.CollisionIdentical,
			wantOps:  []model.Operation{model.OperationReplace},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := MatchingFiles([]model.FileStats{tt.incoming}, []model.FileStats{existingA})
			if len(records) != 1 {
				t.Fatalf("expected 1 record, got %d", len(records))
			}
			rec := records[0]
			if rec.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", rec.Type, tt.wantType)
			}
			if !reflect.DeepEqual(rec.Operations, tt.wantOps) {
				t.Errorf("Operations = %v, want %v", rec.Operations, tt.wantOps)
			}
			if rec.ExistingFile.FileName != "a.csv" {
				t.Errorf("ExistingFile = %q", rec.ExistingFile.FileName)
			}
		})
	}
}

func TestMatchingFilesNoMatch(t *testing.T) {
	existing := []model.FileStats{file("sales", "a.csv", col("col1", str))}
	incoming := []model.FileStats{file("sales", "c.csv", col("other", num))}

	if records := MatchingFiles(incoming, existing); len(records) != 0 {
		t.Errorf("expected no collisions, got %v", records)
	}
}

func TestMatchingFilesPrefersFileScopedHash(t *testing.T) {
	// Both existing files share the schema; only the second shares the name.
	existing := []model.FileStats{
		file("sales", "x.csv", col("col1", str)),
		file("sales", "a.csv", col("col1", str)),
	}
	incoming := []model.FileStats{file("sales", "a.csv", col("col1", str))}

	records := MatchingFiles(incoming, existing)
	if len(records) != 1 || records[0].Type != model.CollisionIdentical {
		t.Fatalf("expected IDENTICAL, got %+v", records)
	}
	if records[0].ExistingFile.FileName != "a.csv" {
		t.Errorf("matched %q, want a.csv", records[0].ExistingFile.FileName)
	}
}

func TestMatchingFilesTieBreaksByInsertionOrder(t *testing.T) {
	existing := []model.FileStats{
		file("sales", "first.csv", col("col1", str)),
		file("sales", "second.csv", col("col1", str)),
	}
	incoming := []model.FileStats{file("sales", "new.csv", col("col1", str))}

	records := MatchingFiles(incoming, existing)
	if len(records) != 1 || records[0].ExistingFile.FileName != "first.csv" {
		t.Fatalf("expected match on first.csv, got %+v", records)
	}
}

func TestOperationsForReturnsCopy(t *testing.T) {
	ops := OperationsFor(model.CollisionIdentical)
	ops[0] = model.OperationDelete
	if OperationsFor(model.CollisionIdentical)[0] != model.OperationReplace {
		t.Error("OperationsFor leaked its backing slice")
	}
}

func TestDuplicateColumnsIntraFile(t *testing.T) {
	incoming := []model.FileStats{
		file("sales", "a.csv", col("amount", num), col("name", str), col("amount", num)),
	}

	report := DuplicateColumns(incoming, nil)
	if report == nil {
		t.Fatal("expected a report")
	}
	if len(report.IntraFileDuplicates) != 1 {
		t.Fatalf("IntraFileDuplicates = %+v", report.IntraFileDuplicates)
	}
	d := report.IntraFileDuplicates[0]
	if d.FileName != "a.csv" || d.ColumnName != "amount" || d.Count != 2 {
		t.Errorf("unexpected entry %+v", d)
	}
	if len(report.InterFileDuplicates) != 0 {
		t.Errorf("InterFileDuplicates = %+v", report.InterFileDuplicates)
	}
}

func TestDuplicateColumnsInterFile(t *testing.T) {
	incoming := []model.FileStats{file("sales", "a.csv", col("amount", num))}
	existing := []model.FileStats{file("returns", "b.csv", col("amount", str))}

	report := DuplicateColumns(incoming, existing)
	if report == nil {
		t.Fatal("expected a report")
	}
	if len(report.InterFileDuplicates) != 1 {
		t.Fatalf("InterFileDuplicates = %+v", report.InterFileDuplicates)
	}
	d := report.InterFileDuplicates[0]
	if d.ColumnName != "amount" || len(d.Files) != 2 {
		t.Fatalf("unexpected entry %+v", d)
	}
	if d.Files[0].FileName != "a.csv" || d.Files[1].FileName != "b.csv" {
		t.Errorf("files = %+v", d.Files)
	}

	err := report.Err()
	if !errors.Is(err, errs.ErrDataValidation) || errs.CodeOf(err) != errs.CodeDuplicateColumns {
		t.Errorf("Err() = %v", err)
	}
}

func TestDuplicateColumnsClean(t *testing.T) {
	incoming := []model.FileStats{file("sales", "a.csv", col("amount", num))}
	existing := []model.FileStats{file("sales", "b.csv", col("amount", num))}

	if report := DuplicateColumns(incoming, existing); report != nil {
		t.Errorf("expected nil report, got %+v", report)
	}
	if (*DuplicateReport)(nil).Err() != nil {
		t.Error("nil report should produce nil error")
	}
}

func TestDuplicateColumnsSupersededFileIgnored(t *testing.T) {
	// Re-uploading a.csv with a retyped column is not a conflict with its own
	// previous version.
	incoming := []model.FileStats{file("sales", "a.csv", col("amount", str))}
	existing := []model.FileStats{file("sales", "a.csv", col("amount", num))}

	if report := DuplicateColumns(incoming, existing); report != nil {
		t.Errorf("expected nil report, got %+v", report)
	}
}

func TestCheckBlocked(t *testing.T) {
	incoming := []model.FileStats{file("sales", "a.csv", col("x", num), col("x", num))}
	res := Check(incoming, nil)
	if !res.Blocked() {
		t.Error("expected duplicate columns to block the upload")
	}
}
