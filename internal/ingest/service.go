// Package ingest runs a batch of uploaded files through validation,
// conversion, cataloguing and table reconciliation.
//
// A batch is rejected as a whole when any entry is illegal. Once accepted,
// files are converted concurrently and fail independently; every change
// to one table's files and definition is serialized. The model view is
// rebuilt once at the end.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gridlake-io/gridlake/internal/activity"
	"github.com/gridlake-io/gridlake/internal/catalog"
	"github.com/gridlake-io/gridlake/internal/collision"
	"github.com/gridlake-io/gridlake/internal/convert"
	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/gc"
	"github.com/gridlake-io/gridlake/internal/logging"
	"github.com/gridlake-io/gridlake/internal/metadata"
	"github.com/gridlake-io/gridlake/internal/model"
	"github.com/gridlake-io/gridlake/internal/objectstore"
	"github.com/gridlake-io/gridlake/internal/reconcile"
	"github.com/gridlake-io/gridlake/internal/tracking"
)

// Status is the outcome of a batch.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// DefaultMaxConcurrentFiles bounds conversions when Options leaves it unset.
const DefaultMaxConcurrentFiles = 4

// MetricsRecorder receives per-file outcomes. *metrics.IngestMetrics
// satisfies it.
type MetricsRecorder interface {
	RecordFile(operation string, durationSeconds float64, success bool)
	RecordCollision(collisionType string)
}

// Request is one batch.
type Request struct {
	ClientID string
	ModelID  string

	// ProcessID correlates logs, objects and the tracking record. One is
	// created when empty and a tracker is configured.
	ProcessID string

	// FileStats are the caller's statistics for the files being uploaded.
	// Declared column types are used for the columnar schema.
	FileStats []model.FileStats

	FileInfo []model.FileInfo
}

// TableJoin describes one table's part in the model view.
type TableJoin struct {
	TableName  string   `json:"tableName"`
	QueryTable string   `json:"queryTable"`
	Files      []string `json:"files"`
	Columns    []string `json:"columns"`
}

// JoinInformation describes how the model view combines its tables.
type JoinInformation struct {
	ViewName     string      `json:"viewName"`
	SourceColumn string      `json:"sourceColumn"`
	Tables       []TableJoin `json:"tables"`
}

// Result is the outcome of Ingest.
type Result struct {
	ProcessID            string                      `json:"processId,omitempty"`
	FileInformation      []model.FileInformation     `json:"fileInformation"`
	FileProcessingErrors []model.FileProcessingError `json:"fileProcessingErrors"`
	JoinInformation      *JoinInformation            `json:"joinInformation,omitempty"`
	ViewName             string                      `json:"viewName"`
	Status               Status                      `json:"status"`
}

// Deps are the collaborators a Service composes. Tracker, Activity, Meta
// and Metrics are optional.
type Deps struct {
	Pipeline   *convert.Pipeline
	Reconciler *reconcile.Reconciler
	Catalog    *catalog.Catalog
	Store      objectstore.Store

	// Meta stores orphan markers for failed conversions.
	Meta     metadata.MetadataStore
	Tracker  tracking.Tracker
	Activity activity.Logger
	Metrics  MetricsRecorder
}

// Options configures a Service.
type Options struct {
	MaxConcurrentFiles int
}

// Service ingests batches.
type Service struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a Service.
func New(deps Deps, opts Options) *Service {
	if opts.MaxConcurrentFiles <= 0 {
		opts.MaxConcurrentFiles = DefaultMaxConcurrentFiles
	}
	if deps.Activity == nil {
		deps.Activity = activity.Nop{}
	}
	return &Service{deps: deps, opts: opts, now: time.Now}
}

// fileOutcome is the result of one entry.
type fileOutcome struct {
	info   *model.FileInformation
	errors []model.FileProcessingError
	err    error
}

// Ingest validates and runs a batch.
//
// A rejected batch returns a nil Result and an error whose kind is
// errs.ErrInvalidArgument or errs.ErrDataValidation; nothing has been
// read or written. Otherwise the Result reports each file, and per-file
// failures appear in FileProcessingErrors rather than in the error.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	const op = "ingest.Ingest"
	if req.ClientID == "" || req.ModelID == "" {
		return nil, errs.New(errs.ErrInvalidArgument, op, "", "", "client and model ids are required")
	}
	if len(req.FileInfo) == 0 {
		return nil, errs.New(errs.ErrInvalidArgument, op, "", errs.Subject("client", req.ClientID, "model", req.ModelID), "empty batch")
	}

	files := sanitizeInfo(req.FileInfo)
	declared := declaredStats(req.FileStats)

	if req.ProcessID == "" && s.deps.Tracker != nil {
		rec, err := s.deps.Tracker.Create(ctx, fmt.Sprintf("ingest %s/%s", req.ClientID, req.ModelID))
		if err != nil {
			return nil, errs.Wrap(errs.ErrInvalidOperation, "tracking.Create", errs.Subject("client", req.ClientID, "model", req.ModelID), err)
		}
		req.ProcessID = rec.ID
	}
	ctx = logging.WithScopeCtx(ctx, req.ClientID, req.ModelID)
	if req.ProcessID != "" {
		ctx = logging.WithProcessIDCtx(ctx, req.ProcessID)
	}
	log := logging.FromCtx(ctx)
	start := s.now()

	if err := s.deps.Reconciler.Validate(ctx, req.ClientID, req.ModelID, files); err != nil {
		s.finish(ctx, req, StatusFailed, err.Error(), len(files))
		return nil, err
	}
	s.track(ctx, req.ProcessID, tracking.StatusRunning, fmt.Sprintf("%d file(s)", len(files)))
	log.Infof("batch accepted", map[string]any{"files": len(files)})

	outcomes := make([]fileOutcome, len(files))
	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrentFiles)
	for i, f := range files {
		g.Go(func() error {
			outcomes[i] = s.processFile(ctx, req, f, declared[fileKey{f.TableName, f.FileName}])
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		ProcessID:            req.ProcessID,
		FileInformation:      []model.FileInformation{},
		FileProcessingErrors: []model.FileProcessingError{},
	}
	succeeded := 0
	for _, o := range outcomes {
		if o.info != nil {
			res.FileInformation = append(res.FileInformation, *o.info)
		}
		res.FileProcessingErrors = append(res.FileProcessingErrors, o.errors...)
		if o.err == nil {
			succeeded++
		}
	}

	viewOK := true
	if succeeded > 0 {
		join, err := s.syncView(ctx, req.ClientID, req.ModelID)
		if err != nil {
			viewOK = false
			log.Warnf("view sync failed", map[string]any{"error": err.Error()})
			res.FileProcessingErrors = append(res.FileProcessingErrors, model.FileProcessingError{
				FileName: reconcile.ViewName(req.ClientID, req.ModelID),
				Reason:   err.Error(),
				Fatal:    true,
			})
		} else {
			res.JoinInformation = join
		}
	}
	res.ViewName = reconcile.ViewName(req.ClientID, req.ModelID)

	switch {
	case succeeded == len(files) && viewOK:
		res.Status = StatusSuccess
	case succeeded == 0:
		res.Status = StatusFailed
	default:
		res.Status = StatusPartial
	}

	log.Infof("batch finished", map[string]any{
		"status":     string(res.Status),
		"files":      len(files),
		"succeeded":  succeeded,
		"errors":     len(res.FileProcessingErrors),
		"durationMs": s.now().Sub(start).Milliseconds(),
	})
	s.finish(ctx, req, res.Status, string(res.Status), len(files))
	return res, nil
}

func (s *Service) processFile(ctx context.Context, req Request, f model.FileInfo, declared *model.FileStats) fileOutcome {
	start := s.now()
	log := logging.FromCtx(ctx).With(map[string]any{
		"table":     f.TableName,
		"file":      f.FileName,
		"operation": f.Operation.String(),
	})

	var out fileOutcome
	switch f.Operation {
	case model.OperationDelete:
		out = s.deleteFile(ctx, req, f)
	case model.OperationAdd, model.OperationAppend, model.OperationReplace:
		out = s.convertFile(ctx, req, f, declared)
	case model.OperationUnspecified, model.OperationCancel:
		out.err = errs.New(errs.ErrInvalidArgument, "ingest.processFile", "",
			errs.Subject("table", f.TableName, "file", f.FileName), "operation cannot be ingested")
	}

	if out.err != nil {
		log.Warnf("file failed", map[string]any{"error": out.err.Error()})
		out.errors = append(out.errors, model.FileProcessingError{
			TableName: f.TableName,
			FileName:  f.FileName,
			Reason:    out.err.Error(),
			Fatal:     true,
		})
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordFile(f.Operation.String(), s.now().Sub(start).Seconds(), out.err == nil)
	}
	return out
}

func (s *Service) convertFile(ctx context.Context, req Request, f model.FileInfo, declared *model.FileStats) fileOutcome {
	res, err := s.deps.Pipeline.Convert(ctx, convert.Request{
		ClientID:  req.ClientID,
		ModelID:   req.ModelID,
		ProcessID: req.ProcessID,
		Info:      f,
		Declared:  declared,
	})
	if err != nil {
		var rowErrs []model.FileProcessingError
		if res != nil {
			rowErrs = res.Errors
			s.recordOrphans(ctx, req, f, res.Keys, err)
		}
		return fileOutcome{errors: rowErrs, err: err}
	}

	if err := s.register(ctx, req, f, res.Information); err != nil {
		s.recordOrphans(ctx, req, f, res.Keys, err)
		return fileOutcome{errors: res.Errors, err: err}
	}
	info := res.Information
	return fileOutcome{info: &info, errors: res.Errors}
}

// register catalogues a converted file and brings its table up to date.
// REPLACE first removes the table's other files.
func (s *Service) register(ctx context.Context, req Request, f model.FileInfo, info model.FileInformation) error {
	unlock := s.deps.Reconciler.LockTable(req.ClientID, req.ModelID, f.TableName)
	defer unlock()

	if f.Operation == model.OperationReplace {
		if err := s.clearTable(ctx, req, f.TableName, info.DataKey, info.RawKey); err != nil {
			return err
		}
	}

	if err := s.deps.Catalog.Put(ctx, req.ClientID, req.ModelID, info.Stats()); err != nil {
		return errs.Wrap(errs.ErrInvalidOperation, "catalog.Put", errs.Subject("table", f.TableName, "file", f.FileName), err)
	}
	return s.syncTable(ctx, req, f.TableName)
}

func (s *Service) deleteFile(ctx context.Context, req Request, f model.FileInfo) fileOutcome {
	unlock := s.deps.Reconciler.LockTable(req.ClientID, req.ModelID, f.TableName)
	defer unlock()

	if err := s.removeFile(ctx, req, f.TableName, f.FileName); err != nil {
		return fileOutcome{err: err}
	}
	if err := s.syncTable(ctx, req, f.TableName); err != nil {
		return fileOutcome{err: err}
	}
	return fileOutcome{info: &model.FileInformation{
		TableName:         f.TableName,
		FileName:          f.FileName,
		FileOperationType: model.OperationDelete,
	}}
}

// removeFile deletes a file's objects and catalog record.
func (s *Service) removeFile(ctx context.Context, req Request, table, file string) error {
	subject := errs.Subject("table", table, "file", file)
	if err := objectstore.DeleteAll(ctx, s.deps.Store, fileKeys(req, table, file)); err != nil {
		return errs.Wrap(errs.ErrInvalidOperation, "ingest.removeFile", subject, err)
	}
	if err := s.deps.Catalog.Delete(ctx, req.ClientID, req.ModelID, table, file); err != nil {
		return errs.Wrap(errs.ErrInvalidOperation, "ingest.removeFile", subject, err)
	}
	logging.FromCtx(ctx).Infof("file removed", map[string]any{"table": table, "file": file})
	return nil
}

// clearTable deletes the objects and catalog records of every file of a
// table, sparing the object keys in keep. The objects go in one batch.
func (s *Service) clearTable(ctx context.Context, req Request, table string, keep ...string) error {
	subject := errs.Subject("table", table)
	old, err := s.deps.Catalog.ListTable(ctx, req.ClientID, req.ModelID, table)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidOperation, "catalog.ListTable", subject, err)
	}
	if len(old) == 0 {
		return nil
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[k] = true
	}
	var doomed []string
	for _, o := range old {
		for _, k := range fileKeys(req, table, o.FileName) {
			if !kept[k] {
				doomed = append(doomed, k)
			}
		}
	}
	if err := objectstore.DeleteAll(ctx, s.deps.Store, doomed); err != nil {
		return errs.Wrap(errs.ErrInvalidOperation, "ingest.clearTable", subject, err)
	}
	if _, err := s.deps.Catalog.DeleteTable(ctx, req.ClientID, req.ModelID, table); err != nil {
		return errs.Wrap(errs.ErrInvalidOperation, "ingest.clearTable", subject, err)
	}
	logging.FromCtx(ctx).Infof("table cleared", map[string]any{"table": table, "files": len(old), "objects": len(doomed)})
	return nil
}

func fileKeys(req Request, table, file string) []string {
	return convert.FileKeys(req.ClientID, req.ModelID, table, file)
}

// syncTable reapplies a table's definition from the catalog. Callers hold
// the table lock.
func (s *Service) syncTable(ctx context.Context, req Request, table string) error {
	files, err := s.deps.Catalog.ListTable(ctx, req.ClientID, req.ModelID, table)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidOperation, "catalog.ListTable", errs.Subject("table", table), err)
	}
	return s.deps.Reconciler.SyncTable(ctx, req.ClientID, req.ModelID, table, files)
}

func (s *Service) syncView(ctx context.Context, clientID, modelID string) (*JoinInformation, error) {
	tables, err := s.deps.Catalog.Tables(ctx, clientID, modelID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidOperation, "catalog.Tables", errs.Subject("client", clientID, "model", modelID), err)
	}
	name, err := s.deps.Reconciler.SyncView(ctx, clientID, modelID, tables)
	if err != nil {
		return nil, err
	}
	return joinInformation(s.deps.Reconciler, clientID, modelID, name, tables), nil
}

func joinInformation(r *reconcile.Reconciler, clientID, modelID, view string, tables map[string][]model.FileStats) *JoinInformation {
	join := &JoinInformation{ViewName: view, SourceColumn: reconcile.SourceTableColumn, Tables: []TableJoin{}}
	for _, t := range sortedKeys(tables) {
		def := r.Table(clientID, modelID, t, tables[t])
		tj := TableJoin{TableName: t, QueryTable: def.Name}
		for _, f := range tables[t] {
			tj.Files = append(tj.Files, f.FileName)
		}
		for _, c := range def.Columns {
			tj.Columns = append(tj.Columns, c.Name)
		}
		join.Tables = append(join.Tables, tj)
	}
	return join
}

func (s *Service) recordOrphans(ctx context.Context, req Request, f model.FileInfo, keys []string, cause error) {
	if s.deps.Meta == nil || len(keys) == 0 {
		return
	}
	m, err := gc.RecordOrphans(context.WithoutCancel(ctx), s.deps.Meta, gc.OrphanMarker{
		ProcessID: req.ProcessID,
		ClientID:  req.ClientID,
		ModelID:   req.ModelID,
		TableName: f.TableName,
		FileName:  f.FileName,
		Keys:      keys,
		Reason:    cause.Error(),
	})
	log := logging.FromCtx(ctx).With(map[string]any{"table": f.TableName, "file": f.FileName})
	if err != nil {
		log.Warnf("orphan marker not stored", map[string]any{"error": err.Error(), "keys": keys})
		return
	}
	log.Infof("orphan marker stored", map[string]any{"marker": m.ID, "keys": len(keys)})
}

func (s *Service) track(ctx context.Context, id string, status tracking.Status, detail string) {
	if s.deps.Tracker == nil || id == "" {
		return
	}
	if _, err := s.deps.Tracker.Update(ctx, id, status, detail); err != nil && !errors.Is(err, tracking.ErrNotFound) {
		logging.FromCtx(ctx).Warnf("tracking update failed", map[string]any{"error": err.Error(), "status": string(status)})
	}
}

func (s *Service) finish(ctx context.Context, req Request, status Status, detail string, files int) {
	ts := tracking.StatusCompleted
	if status == StatusFailed {
		ts = tracking.StatusFailed
	}
	s.track(ctx, req.ProcessID, ts, detail)
	s.deps.Activity.Record(ctx, activity.Event{
		Type:      activity.TypeIngestion,
		ProcessID: req.ProcessID,
		ClientID:  req.ClientID,
		ModelID:   req.ModelID,
		Status:    string(status),
		Time:      s.now(),
		Details:   map[string]any{"files": files},
	})
}

// CheckCollisions compares incoming files against the model's catalogue.
// It never writes.
func (s *Service) CheckCollisions(ctx context.Context, clientID, modelID string, incoming []model.FileStats) (collision.Result, error) {
	existing, err := s.deps.Catalog.List(ctx, clientID, modelID)
	if err != nil {
		return collision.Result{}, errs.Wrap(errs.ErrInvalidOperation, "ingest.CheckCollisions",
			errs.Subject("client", clientID, "model", modelID), err)
	}
	res := collision.Check(sanitizeStats(incoming), existing)
	if s.deps.Metrics != nil {
		for _, c := range res.Collisions {
			s.deps.Metrics.RecordCollision(string(c.Type))
		}
	}
	logging.FromCtx(ctx).Infof("collision check", map[string]any{
		"incoming":   len(incoming),
		"existing":   len(existing),
		"collisions": len(res.Collisions),
		"blocked":    res.Blocked(),
	})
	return res, nil
}
