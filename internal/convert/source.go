package convert

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/sanitize"
)

// source reads a delimited stream row by row. Rows are padded or cut to
// the header width; each mismatch is counted as a column_count anomaly.
type source struct {
	csv     *csv.Reader
	counter *countingReader

	originals []string
	columns   []string

	rows   int64
	ragged anomaly
}

func newSource(r io.Reader, delimiter rune) *source {
	counter := &countingReader{r: r}
	cr := csv.NewReader(counter)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return &source{csv: cr, counter: counter}
}

// readHeader consumes the first record and derives the sanitized column
// names. An empty stream is malformed.
func (s *source) readHeader(subject string) error {
	header, err := s.csv.Read()
	if errors.Is(err, io.EOF) {
		return errs.New(errs.ErrDataValidation, "convert.readHeader", errs.CodeMalformedStream, subject, "stream has no header row")
	}
	if err != nil {
		return malformed("convert.readHeader", subject, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	s.originals = make([]string, len(header))
	for i, h := range header {
		s.originals[i] = strings.TrimSpace(h)
	}
	s.columns = sanitize.Columns(s.originals)

	seen := make(map[string]bool, len(s.columns))
	for _, c := range s.columns {
		if seen[c] {
			return errs.New(errs.ErrDataValidation, "convert.readHeader", errs.CodeDuplicateColumns,
				subject, fmt.Sprintf("column %q appears more than once", c))
		}
		seen[c] = true
	}
	return nil
}

// next returns the next data row, or io.EOF.
func (s *source) next(subject string) ([]string, error) {
	record, err := s.csv.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, malformed("convert.read", subject, err)
	}
	s.rows++

	width := len(s.columns)
	if len(record) == width {
		return record, nil
	}
	s.ragged.add(s.rows)
	if len(record) > width {
		return record[:width], nil
	}
	row := make([]string, width)
	copy(row, record)
	return row, nil
}

// bytesRead is the number of source bytes consumed so far.
func (s *source) bytesRead() int64 {
	return s.counter.n
}

func malformed(op, subject string, err error) error {
	e := errs.Wrap(errs.ErrDataValidation, op, subject, err)
	e.Code = errs.CodeMalformedStream
	return e
}

func storageFailure(op, subject string, err error) error {
	e := errs.Wrap(errs.ErrInvalidOperation, op, subject, err)
	e.Code = errs.CodeStorageFailure
	return e
}

// anomaly counts rows with the same problem and remembers the first one.
type anomaly struct {
	count    int
	firstRow int64
}

func (a *anomaly) add(row int64) {
	if a.count == 0 {
		a.firstRow = row
	}
	a.count++
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
