// Package catalog stores the statistics of every ingested file in the
// metadata store. It is the record the collision check compares incoming
// files against and the source of each table's file list.
//
// Key layout:
//
//	/gridlake/v1/clients/{client}/models/{model}/seq
//	/gridlake/v1/clients/{client}/models/{model}/files/{escape(table/file)}
//
// Every file of a model sits at one level under files/, so a single prefix
// List returns the model's files. Records carry a per-model sequence number
// so List can return files in the order they were first ingested.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/gridlake-io/gridlake/internal/metadata"
	"github.com/gridlake-io/gridlake/internal/model"
)

const (
	keyPrefix     = "/gridlake/v1/clients/"
	updateRetries = 10
)

// Record is one stored file.
type Record struct {
	Seq       int64           `json:"seq"`
	Stats     model.FileStats `json:"stats"`
	UpdatedAt int64           `json:"updatedAt"`
}

// Catalog reads and writes FileStats records.
type Catalog struct {
	meta metadata.MetadataStore
	now  func() time.Time
}

// New creates a Catalog over meta.
func New(meta metadata.MetadataStore) *Catalog {
	return &Catalog{meta: meta, now: time.Now}
}

func modelKey(clientID, modelID string) string {
	return keyPrefix + url.PathEscape(clientID) + "/models/" + url.PathEscape(modelID) + "/"
}

func filesPrefix(clientID, modelID string) string {
	return modelKey(clientID, modelID) + "files/"
}

// FileKey returns the metadata key of one file's record.
func FileKey(clientID, modelID, table, file string) string {
	return filesPrefix(clientID, modelID) + url.PathEscape(table+"/"+file)
}

func tablePrefix(clientID, modelID, table string) string {
	return filesPrefix(clientID, modelID) + url.PathEscape(table+"/")
}

func seqKey(clientID, modelID string) string {
	return modelKey(clientID, modelID) + "seq"
}

// Get returns a file's stats and whether the file is catalogued.
func (c *Catalog) Get(ctx context.Context, clientID, modelID, table, file string) (model.FileStats, bool, error) {
	res, err := c.meta.Get(ctx, FileKey(clientID, modelID, table, file))
	if err != nil {
		return model.FileStats{}, false, fmt.Errorf("catalog: get %s/%s: %w", table, file, err)
	}
	if !res.Exists {
		return model.FileStats{}, false, nil
	}
	rec, err := decode(res.Value)
	if err != nil {
		return model.FileStats{}, false, err
	}
	return rec.Stats, true, nil
}

// Put stores a file's stats. A file that is already catalogued keeps its
// position in List order.
func (c *Catalog) Put(ctx context.Context, clientID, modelID string, stats model.FileStats) error {
	if stats.TableName == "" || stats.FileName == "" {
		return fmt.Errorf("catalog: put needs table and file names")
	}
	key := FileKey(clientID, modelID, stats.TableName, stats.FileName)

	var seq int64
	_, err := metadata.Update(ctx, c.meta, key, updateRetries, func(current []byte) ([]byte, error) {
		if current != nil {
			prev, err := decode(current)
			if err != nil {
				return nil, err
			}
			seq = prev.Seq
		} else if seq == 0 {
			next, err := c.nextSeq(ctx, clientID, modelID)
			if err != nil {
				return nil, err
			}
			seq = next
		}
		return json.Marshal(Record{Seq: seq, Stats: stats, UpdatedAt: c.now().UnixMilli()})
	})
	if err != nil {
		return fmt.Errorf("catalog: put %s/%s: %w", stats.TableName, stats.FileName, err)
	}
	return nil
}

func (c *Catalog) nextSeq(ctx context.Context, clientID, modelID string) (int64, error) {
	var next int64
	_, err := metadata.Update(ctx, c.meta, seqKey(clientID, modelID), updateRetries, func(current []byte) ([]byte, error) {
		next = 1
		if current != nil {
			cur, err := strconv.ParseInt(string(current), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("catalog: corrupt sequence: %w", err)
			}
			next = cur + 1
		}
		return []byte(strconv.FormatInt(next, 10)), nil
	})
	if err != nil {
		return 0, fmt.Errorf("catalog: advance sequence: %w", err)
	}
	return next, nil
}

// List returns every file of a model in ingestion order.
func (c *Catalog) List(ctx context.Context, clientID, modelID string) ([]model.FileStats, error) {
	return c.list(ctx, filesPrefix(clientID, modelID))
}

// ListTable returns the files of one table in ingestion order.
func (c *Catalog) ListTable(ctx context.Context, clientID, modelID, table string) ([]model.FileStats, error) {
	return c.list(ctx, tablePrefix(clientID, modelID, table))
}

// Tables groups a model's files by table.
func (c *Catalog) Tables(ctx context.Context, clientID, modelID string) (map[string][]model.FileStats, error) {
	files, err := c.List(ctx, clientID, modelID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]model.FileStats)
	for _, f := range files {
		out[f.TableName] = append(out[f.TableName], f)
	}
	return out, nil
}

func (c *Catalog) list(ctx context.Context, prefix string) ([]model.FileStats, error) {
	kvs, err := c.meta.List(ctx, prefix, "", 0)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", prefix, err)
	}
	recs := make([]Record, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := decode(kv.Value)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })

	out := make([]model.FileStats, len(recs))
	for i, r := range recs {
		out[i] = r.Stats
	}
	return out, nil
}

// Delete removes a file's record. Deleting a missing record succeeds.
func (c *Catalog) Delete(ctx context.Context, clientID, modelID, table, file string) error {
	if err := c.meta.Delete(ctx, FileKey(clientID, modelID, table, file)); err != nil {
		return fmt.Errorf("catalog: delete %s/%s: %w", table, file, err)
	}
	return nil
}

// DeleteTable removes every record of a table and returns what was removed.
func (c *Catalog) DeleteTable(ctx context.Context, clientID, modelID, table string) ([]model.FileStats, error) {
	files, err := c.ListTable(ctx, clientID, modelID, table)
	if err != nil {
		return nil, err
	}
	if err := c.meta.DeleteRange(ctx, tablePrefix(clientID, modelID, table), ""); err != nil {
		return nil, fmt.Errorf("catalog: delete table %s: %w", table, err)
	}
	return files, nil
}

func decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("catalog: decode record: %w", err)
	}
	return rec, nil
}
