package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gridlake-io/gridlake/internal/convert"
	"github.com/gridlake-io/gridlake/internal/logging"
	"github.com/gridlake-io/gridlake/internal/metadata"
	"github.com/gridlake-io/gridlake/internal/model"
	"github.com/gridlake-io/gridlake/internal/objectstore"
)

// OrphanSweeperConfig configures the orphan sweeper.
type OrphanSweeperConfig struct {
	// ScanIntervalMs is the interval between scans in milliseconds.
	// Default: 60000 (1 minute)
	ScanIntervalMs int64

	// OrphanTTLMs is how long a marker waits before its objects are deleted.
	// Default: 3600000 (1 hour)
	OrphanTTLMs int64
}

// SweepRecorder receives sweep results. *metrics.GCMetrics satisfies it.
type SweepRecorder interface {
	RecordDeletedObjects(n int)
	RecordSweepFailure()
}

// FileLister lists the files a table currently holds. *catalog.Catalog
// implements it.
type FileLister interface {
	ListTable(ctx context.Context, clientID, modelID, table string) ([]model.FileStats, error)
}

// OrphanSweeper deletes the objects named by orphan markers once the markers
// pass their TTL, then removes the markers.
type OrphanSweeper struct {
	meta     metadata.MetadataStore
	obj      objectstore.Store
	files    FileLister
	config   OrphanSweeperConfig
	recorder SweepRecorder
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	lastErr error
}

// NewOrphanSweeper creates an orphan sweeper. Keys still owned by a file in
// files are never deleted: a successful retry rewrites the same keys a
// failed attempt left behind.
func NewOrphanSweeper(meta metadata.MetadataStore, obj objectstore.Store, files FileLister, config OrphanSweeperConfig) *OrphanSweeper {
	if config.ScanIntervalMs <= 0 {
		config.ScanIntervalMs = 60000
	}
	if config.OrphanTTLMs <= 0 {
		config.OrphanTTLMs = 3600000
	}
	return &OrphanSweeper{
		meta:   meta,
		obj:    obj,
		files:  files,
		config: config,
		now:    time.Now,
	}
}

// SetRecorder attaches a metrics recorder. Call before Start.
func (w *OrphanSweeper) SetRecorder(r SweepRecorder) {
	w.recorder = r
}

// Start begins the background loop. The first scan runs immediately.
func (w *OrphanSweeper) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run()
}

// Stop stops the background loop and waits for it to exit.
func (w *OrphanSweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *OrphanSweeper) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(time.Duration(w.config.ScanIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.scanAndLog(ctx)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.scanAndLog(ctx)
		}
	}
}

func (w *OrphanSweeper) scanAndLog(ctx context.Context) {
	deleted, err := w.ScanOnce(ctx)
	if ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
	if err != nil {
		logging.Warnf("orphan sweep incomplete", map[string]any{
			"deletedMarkers": deleted,
			"error":          err,
		})
		return
	}
	if deleted > 0 {
		logging.Infof("orphan sweep finished", map[string]any{"deletedMarkers": deleted})
	}
}

// Health returns the error of the last background scan, or nil when it
// completed. It backs the /healthz endpoint of the gc command.
func (w *OrphanSweeper) Health() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastErr != nil {
		return fmt.Errorf("orphan sweep incomplete: %w", w.lastErr)
	}
	return nil
}

// ScanOnce sweeps every eligible marker and returns how many markers were
// removed. Failures on one marker do not stop the scan; they are joined into
// the returned error.
func (w *OrphanSweeper) ScanOnce(ctx context.Context) (int, error) {
	var errs []error
	deleted := 0
	nowMs := w.now().UnixMilli()

	err := w.forEachMarker(ctx, func(key string, value []byte) error {
		swept, err := w.sweepMarker(ctx, key, value, nowMs)
		if err != nil {
			errs = append(errs, err)
			if w.recorder != nil {
				w.recorder.RecordSweepFailure()
			}
			return nil
		}
		if swept {
			deleted++
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return deleted, errors.Join(errs...)
}

// forEachMarker lists the orphan prefix and calls fn for each marker in key
// order. The prefix ends in '/', so Oxia returns exactly its direct children.
func (w *OrphanSweeper) forEachMarker(ctx context.Context, fn func(key string, value []byte) error) error {
	kvs, err := w.meta.List(ctx, OrphanPrefix, "", 0)
	if err != nil {
		return fmt.Errorf("gc: list orphan markers: %w", err)
	}
	for _, kv := range kvs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

// sweepMarker deletes the marker's objects and then the marker. It returns
// false without error when the marker is still inside its TTL.
func (w *OrphanSweeper) sweepMarker(ctx context.Context, key string, value []byte, nowMs int64) (bool, error) {
	marker, err := ParseMarker(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	if nowMs < marker.CreatedAt+w.config.OrphanTTLMs {
		return false, nil
	}

	doomed, err := w.unowned(ctx, marker)
	if err != nil {
		return false, err
	}
	if err := objectstore.DeleteAll(ctx, w.obj, doomed); err != nil {
		return false, fmt.Errorf("gc: delete objects of marker %s: %w", marker.ID, err)
	}
	if w.recorder != nil {
		w.recorder.RecordDeletedObjects(len(doomed))
	}

	if err := w.meta.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("gc: delete marker %s: %w", marker.ID, err)
	}

	logging.FromCtx(ctx).Debugf("orphan marker swept", map[string]any{
		"markerId":  marker.ID,
		"processId": marker.ProcessID,
		"table":     marker.TableName,
		"file":      marker.FileName,
		"objects":   len(doomed),
		"kept":      len(marker.Keys) - len(doomed),
	})
	return true, nil
}

// unowned returns the marker keys that no catalogued file of the marker's
// table owns.
func (w *OrphanSweeper) unowned(ctx context.Context, marker OrphanMarker) ([]string, error) {
	if w.files == nil || marker.TableName == "" {
		return marker.Keys, nil
	}
	live, err := w.files.ListTable(ctx, marker.ClientID, marker.ModelID, marker.TableName)
	if err != nil {
		return nil, fmt.Errorf("gc: list files of marker %s: %w", marker.ID, err)
	}
	if len(live) == 0 {
		return marker.Keys, nil
	}
	owned := make(map[string]bool)
	for _, f := range live {
		for _, k := range convert.FileKeys(marker.ClientID, marker.ModelID, marker.TableName, f.FileName) {
			owned[k] = true
		}
	}
	doomed := make([]string, 0, len(marker.Keys))
	for _, k := range marker.Keys {
		if !owned[k] {
			doomed = append(doomed, k)
		}
	}
	return doomed, nil
}

// PendingOrphanCount returns the number of markers still inside their TTL.
func (w *OrphanSweeper) PendingOrphanCount(ctx context.Context) (int, error) {
	pending, _, err := w.counts(ctx)
	return pending, err
}

// EligibleOrphanCount returns the number of markers past their TTL.
func (w *OrphanSweeper) EligibleOrphanCount(ctx context.Context) (int, error) {
	_, eligible, err := w.counts(ctx)
	return eligible, err
}

func (w *OrphanSweeper) counts(ctx context.Context) (pending, eligible int, err error) {
	nowMs := w.now().UnixMilli()
	err = w.forEachMarker(ctx, func(_ string, value []byte) error {
		marker, err := ParseMarker(value)
		if err != nil {
			return nil
		}
		if nowMs >= marker.CreatedAt+w.config.OrphanTTLMs {
			eligible++
		} else {
			pending++
		}
		return nil
	})
	return pending, eligible, err
}
