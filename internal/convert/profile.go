package convert

import (
	"errors"
	"fmt"
	"io"

	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/fieldtype"
	"github.com/gridlake-io/gridlake/internal/model"
)

// ProfileOptions configures Profile.
type ProfileOptions struct {
	Delimiter  rune
	TrackRange bool
}

// Profile reads r once and returns the statistics a conversion would
// produce, without writing anything. Column types are inferred over the
// whole stream.
func Profile(r io.Reader, table, file string, opts ProfileOptions) (model.FileStats, []model.FileProcessingError, error) {
	subject := errs.Subject("table", table, "file", file)
	src := newSource(r, opts.Delimiter)
	if err := src.readHeader(subject); err != nil {
		return model.FileStats{}, nil, err
	}

	infs := make([]*fieldtype.Inferencer, len(src.columns))
	for i := range infs {
		infs[i] = fieldtype.New(opts.TrackRange)
	}
	for {
		row, err := src.next(subject)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.FileStats{}, nil, err
		}
		for i, cell := range row {
			infs[i].Observe(cell)
		}
	}

	stats := model.FileStats{
		FileName:        file,
		TableName:       table,
		NumberOfRows:    src.rows,
		NumberOfColumns: len(src.columns),
		Columns:         make([]model.Column, len(src.columns)),
		FileSize:        src.bytesRead(),
	}
	for i, inf := range infs {
		stats.Columns[i] = inf.Column(src.columns[i], src.originals[i])
	}

	var problems []model.FileProcessingError
	if src.ragged.count > 0 {
		problems = append(problems, model.FileProcessingError{
			TableName: table,
			FileName:  file,
			Reason: fmt.Sprintf("%d row(s) did not have %d columns, first at row %d",
				src.ragged.count, len(src.columns), src.ragged.firstRow),
		})
	}
	return stats, problems, nil
}
