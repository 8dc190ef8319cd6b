// Package convert forks one uploaded file into a cleaned raw copy and a
// Parquet copy, computing column statistics on the way.
//
// A single reader goroutine parses the stream and hands every row to two
// branch goroutines over bounded channels. Neither branch holds the file in
// memory; the only buffered rows are the type-inference sample taken before
// the columnar schema is declared. Convert returns once both branches have
// finished, with every branch failure joined into the returned error.
package convert

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/fieldtype"
	"github.com/gridlake-io/gridlake/internal/logging"
	"github.com/gridlake-io/gridlake/internal/model"
	"github.com/gridlake-io/gridlake/internal/objectstore"
)

// Defaults applied to zero Options fields.
const (
	DefaultSampleRows = 1000
	DefaultBufferRows = 256
	defaultBatchRows  = 512
)

// Content types of the two outputs.
const (
	ContentTypeRaw      = "text/csv"
	ContentTypeColumnar = "application/vnd.apache.parquet"
)

// Metrics label values used with MetricsRecorder.
const (
	BranchRaw      = "raw"
	BranchColumnar = "columnar"

	AnomalyColumnCount  = "column_count"
	AnomalyTypeMismatch = "type_mismatch"
)

// MetricsRecorder receives conversion counters. It keeps this package
// independent of the metrics package.
type MetricsRecorder interface {
	RecordRows(n int64)
	RecordBytes(branch string, n int64)
	RecordRowErrors(kind string, n int)
}

// Options configures a Pipeline.
type Options struct {
	// SampleRows bounds the rows buffered to infer undeclared column types.
	SampleRows int

	// BufferRows is the capacity of each branch channel.
	BufferRows int

	// PartSize is the multipart upload part size of both outputs.
	PartSize int

	// Delimiter separates fields; zero means comma.
	Delimiter rune

	// RawCodec compresses the raw copy.
	RawCodec Codec

	// TrackRange records min and max on NUMBER columns.
	TrackRange bool
}

func (o Options) withDefaults() Options {
	if o.SampleRows <= 0 {
		o.SampleRows = DefaultSampleRows
	}
	if o.BufferRows <= 0 {
		o.BufferRows = DefaultBufferRows
	}
	if o.RawCodec == "" {
		o.RawCodec = CodecNone
	}
	return o
}

// Pipeline converts files for one client and model.
type Pipeline struct {
	store   objectstore.Store
	opts    Options
	metrics MetricsRecorder
}

// NewPipeline creates a Pipeline writing into store.
func NewPipeline(store objectstore.Store, opts Options) *Pipeline {
	return &Pipeline{store: store, opts: opts.withDefaults()}
}

// SetMetrics installs a recorder. Passing nil disables recording.
func (p *Pipeline) SetMetrics(m MetricsRecorder) {
	p.metrics = m
}

// Request is one file to convert.
type Request struct {
	ClientID  string
	ModelID   string
	ProcessID string

	// Info carries the sanitized table and file names and the stream.
	Info model.FileInfo

	// Declared are the caller's statistics for this file, if any. Declared
	// column types take precedence over sampling.
	Declared *model.FileStats
}

// Result is the outcome of one conversion.
type Result struct {
	Information model.FileInformation

	// Errors are row-level anomalies. They never fail the conversion.
	Errors []model.FileProcessingError

	// RawRows is the number of data rows written to the raw copy.
	RawRows int64

	RawBytes      int64
	ColumnarBytes int64

	// Keys lists every object the conversion may have written. On failure
	// these are the candidates for orphan collection.
	Keys []string
}

// Convert consumes req.Info.Stream once and uploads both outputs.
//
// Failures before either branch starts (an empty or unparsable header)
// return a nil Result. Once the branches start, a non-nil Result is always
// returned so the caller can see which keys may hold partial objects.
func (p *Pipeline) Convert(ctx context.Context, req Request) (*Result, error) {
	info := req.Info
	subject := errs.Subject("table", info.TableName, "file", info.FileName)
	if info.Stream == nil {
		return nil, errs.New(errs.ErrInvalidArgument, "convert.Convert", errs.CodeMalformedStream, subject, "no stream")
	}

	log := logging.FromCtx(ctx).With(map[string]any{
		"table": info.TableName,
		"file":  info.FileName,
	})
	start := time.Now()

	src := newSource(info.Stream, p.opts.Delimiter)
	if err := src.readHeader(subject); err != nil {
		return nil, err
	}

	var sample [][]string
	var sampleErr error
	if needsSample(src.columns, req.Declared) {
		sample, sampleErr = readSample(src, p.opts.SampleRows, subject)
	}
	sc := resolveSchema(src.columns, src.originals, req.Declared, sample)

	rawKey := objectstore.RawKey(req.ClientID, req.ModelID, info.TableName, info.FileName) + p.opts.RawCodec.Extension()
	dataKey := objectstore.DataKey(req.ClientID, req.ModelID, info.TableName, info.FileName)
	res := &Result{Keys: []string{rawKey, dataKey}}

	f := newFork(p.opts.BufferRows)
	md := p.objectMetadata(req)
	var (
		g              errgroup.Group
		rawOut         rawOutcome
		colOut         columnarOutcome
		rawErr, colErr error
	)
	g.Go(func() error {
		f.run(ctx, src, sample, sampleErr, subject)
		return f.err
	})
	g.Go(func() error {
		rawOut, rawErr = p.writeRaw(ctx, rawKey, sc, f, md, subject)
		return rawErr
	})
	g.Go(func() error {
		colOut, colErr = p.writeColumnar(ctx, dataKey, sc, f, md, subject)
		return colErr
	})
	_ = g.Wait()

	res.RawRows = rawOut.rows
	res.RawBytes = rawOut.bytes
	res.ColumnarBytes = colOut.bytes
	res.Information = model.FileInformation{
		TableName:         info.TableName,
		FileName:          info.FileName,
		FileOperationType: info.Operation,
		Columns:           colOut.columns,
		FileSize:          src.bytesRead(),
		NumberOfRows:      colOut.rows,
		NumberOfColumns:   len(sc.names),
		RawKey:            rawKey,
		DataKey:           dataKey,
	}
	res.Errors = p.anomalies(info, sc, src.ragged, colOut.mismatches)

	if err := errors.Join(f.err, rawErr, colErr); err != nil {
		log.Warnf("conversion failed", map[string]any{
			"error":    err.Error(),
			"rowsRead": src.rows,
		})
		return res, err
	}

	if p.metrics != nil {
		p.metrics.RecordRows(colOut.rows)
		p.metrics.RecordBytes(BranchRaw, rawOut.bytes)
		p.metrics.RecordBytes(BranchColumnar, colOut.bytes)
		p.metrics.RecordRowErrors(AnomalyColumnCount, src.ragged.count)
		for _, m := range colOut.mismatches {
			p.metrics.RecordRowErrors(AnomalyTypeMismatch, m.count)
		}
	}
	log.Infof("file converted", map[string]any{
		"rows":          colOut.rows,
		"columns":       len(sc.names),
		"rawBytes":      rawOut.bytes,
		"columnarBytes": colOut.bytes,
		"anomalies":     len(res.Errors),
		"durationMs":    time.Since(start).Milliseconds(),
	})
	return res, nil
}

func (p *Pipeline) objectMetadata(req Request) map[string]string {
	md := map[string]string{
		"table": req.Info.TableName,
		"file":  req.Info.FileName,
	}
	if req.ProcessID != "" {
		md["process-id"] = req.ProcessID
	}
	return md
}

// readSample buffers up to n rows. A read error is returned alongside the
// rows read before it so the fork can report it in order.
func readSample(src *source, n int, subject string) ([][]string, error) {
	sample := make([][]string, 0, min(n, 1024))
	for len(sample) < n {
		row, err := src.next(subject)
		if errors.Is(err, io.EOF) {
			return sample, nil
		}
		if err != nil {
			return sample, err
		}
		sample = append(sample, row)
	}
	return sample, nil
}

// fork fans rows from one reader out to two branches. err is written
// before the channels close, so a branch may read it once its channel is
// drained.
type fork struct {
	raw chan []string
	col chan []string
	err error
}

func newFork(buffer int) *fork {
	return &fork{
		raw: make(chan []string, buffer),
		col: make(chan []string, buffer),
	}
}

func (f *fork) run(ctx context.Context, src *source, sample [][]string, sampleErr error, subject string) {
	f.err = f.pump(ctx, src, sample, sampleErr, subject)
	close(f.raw)
	close(f.col)
}

func (f *fork) pump(ctx context.Context, src *source, sample [][]string, sampleErr error, subject string) error {
	for _, row := range sample {
		if err := f.send(ctx, row); err != nil {
			return err
		}
	}
	if sampleErr != nil {
		return sampleErr
	}
	for {
		row, err := src.next(subject)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := f.send(ctx, row); err != nil {
			return err
		}
	}
}

// send delivers row to both branches. Both branches observe the same rows
// in the same order.
func (f *fork) send(ctx context.Context, row []string) error {
	for _, ch := range []chan []string{f.raw, f.col} {
		select {
		case ch <- row:
		case <-ctx.Done():
			return fmt.Errorf("convert: %w", ctx.Err())
		}
	}
	return nil
}

// drain discards the rest of a branch's rows so the reader never blocks on
// a branch that gave up.
func drain(ch <-chan []string) {
	for range ch {
	}
}

type rawOutcome struct {
	rows  int64
	bytes int64
}

// writeRaw re-serializes rows under the sanitized header.
func (p *Pipeline) writeRaw(ctx context.Context, key string, sc *schema, f *fork, md map[string]string, subject string) (rawOutcome, error) {
	var out rawOutcome
	if enc := p.opts.RawCodec.ContentEncoding(); enc != "" {
		md = copyWith(md, "content-encoding", enc)
	}
	up := objectstore.NewUploader(ctx, p.store, key, ContentTypeRaw, objectstore.UploaderOptions{
		PartSize: p.opts.PartSize,
		Metadata: md,
	})
	fail := func(op string, err error) (rawOutcome, error) {
		drain(f.raw)
		_ = up.Abort()
		return out, storageFailure(op, subject, err)
	}

	counter := &countingWriter{w: up}
	cw, err := p.opts.RawCodec.NewWriter(counter)
	if err != nil {
		return fail("convert.writeRaw", err)
	}
	w := csv.NewWriter(cw)
	if p.opts.Delimiter != 0 {
		w.Comma = p.opts.Delimiter
	}
	if err := w.Write(sc.names); err != nil {
		return fail("convert.writeRaw", err)
	}
	for row := range f.raw {
		if err := w.Write(row); err != nil {
			return fail("convert.writeRaw", err)
		}
		out.rows++
	}
	if f.err != nil {
		// The reader reports its own failure.
		_ = up.Abort()
		return out, nil
	}

	w.Flush()
	if err := w.Error(); err != nil {
		_ = up.Abort()
		return out, storageFailure("convert.writeRaw", subject, err)
	}
	if err := cw.Close(); err != nil {
		_ = up.Abort()
		return out, storageFailure("convert.writeRaw", subject, err)
	}
	if err := up.Close(); err != nil {
		return out, storageFailure("convert.writeRaw", subject, err)
	}
	out.bytes = counter.n
	return out, nil
}

type columnarOutcome struct {
	rows       int64
	bytes      int64
	columns    []model.Column
	mismatches []anomaly
}

// writeColumnar runs every cell through the inferencer and writes the
// typed row to Parquet. NUMBER cells that do not parse are written as null
// and counted per column.
func (p *Pipeline) writeColumnar(ctx context.Context, key string, sc *schema, f *fork, md map[string]string, subject string) (columnarOutcome, error) {
	out := columnarOutcome{mismatches: make([]anomaly, len(sc.names))}
	up := objectstore.NewUploader(ctx, p.store, key, ContentTypeColumnar, objectstore.UploaderOptions{
		PartSize: p.opts.PartSize,
		Metadata: md,
	})
	counter := &countingWriter{w: up}
	pw := parquet.NewGenericWriter[map[string]any](counter,
		sc.parquetSchema(),
		parquet.Compression(&parquet.Snappy),
		parquet.KeyValueMetadata(ColumnOrderKey, sc.columnOrder()),
	)
	fail := func(err error) (columnarOutcome, error) {
		drain(f.col)
		_ = up.Abort()
		return out, storageFailure("convert.writeColumnar", subject, err)
	}

	infs := make([]*fieldtype.Inferencer, len(sc.names))
	for i := range infs {
		infs[i] = fieldtype.New(p.opts.TrackRange)
	}

	batch := make([]map[string]any, 0, defaultBatchRows)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := pw.Write(batch)
		if err != nil {
			return err
		}
		if n != len(batch) {
			return fmt.Errorf("wrote %d of %d rows", n, len(batch))
		}
		batch = batch[:0]
		return nil
	}

	for row := range f.col {
		out.rows++
		rec := make(map[string]any, len(sc.names))
		for i, cell := range row {
			v, numeric := infs[i].Observe(cell)
			switch {
			case fieldtype.IsEmpty(cell):
				rec[sc.names[i]] = nil
			case sc.types[i] == model.FieldTypeNumber && numeric:
				rec[sc.names[i]] = v
			case sc.types[i] == model.FieldTypeNumber:
				rec[sc.names[i]] = nil
				out.mismatches[i].add(out.rows)
			default:
				rec[sc.names[i]] = cell
			}
		}
		batch = append(batch, rec)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return fail(err)
			}
		}
	}

	out.columns = make([]model.Column, len(sc.names))
	for i, inf := range infs {
		out.columns[i] = inf.ColumnAs(sc.names[i], sc.originals[i], sc.types[i])
	}

	if f.err != nil {
		_ = up.Abort()
		return out, nil
	}
	if err := flush(); err != nil {
		_ = up.Abort()
		return out, storageFailure("convert.writeColumnar", subject, err)
	}
	if err := pw.Close(); err != nil {
		_ = up.Abort()
		return out, storageFailure("convert.writeColumnar", subject, err)
	}
	if err := up.Close(); err != nil {
		return out, storageFailure("convert.writeColumnar", subject, err)
	}
	out.bytes = counter.n
	return out, nil
}

func (p *Pipeline) anomalies(info model.FileInfo, sc *schema, ragged anomaly, mismatches []anomaly) []model.FileProcessingError {
	var out []model.FileProcessingError
	if ragged.count > 0 {
		out = append(out, model.FileProcessingError{
			TableName: info.TableName,
			FileName:  info.FileName,
			Reason: fmt.Sprintf("%d row(s) did not have %d columns, first at row %d",
				ragged.count, len(sc.names), ragged.firstRow),
		})
	}
	for i, m := range mismatches {
		if m.count == 0 {
			continue
		}
		out = append(out, model.FileProcessingError{
			TableName:  info.TableName,
			FileName:   info.FileName,
			ColumnName: sc.names[i],
			Reason: fmt.Sprintf("%d value(s) are not numeric, first at row %d; written as null",
				m.count, m.firstRow),
		})
	}
	return out
}

func copyWith(md map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(md)+1)
	for key, val := range md {
		out[key] = val
	}
	out[k] = v
	return out
}
