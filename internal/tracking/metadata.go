package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridlake-io/gridlake/internal/metadata"
)

// ProcessPrefix is the metadata prefix holding process records.
const ProcessPrefix = "/gridlake/v1/processes/"

// MetadataTracker keeps process records in the metadata store.
type MetadataTracker struct {
	meta metadata.MetadataStore
	now  func() time.Time
}

// NewMetadataTracker creates a tracker over meta.
func NewMetadataTracker(meta metadata.MetadataStore) *MetadataTracker {
	return &MetadataTracker{meta: meta, now: time.Now}
}

func processKey(id string) string {
	return ProcessPrefix + id
}

func (t *MetadataTracker) Create(ctx context.Context, name string) (Record, error) {
	now := t.now().UnixMilli()
	rec := Record{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if _, err := t.meta.Put(ctx, processKey(rec.ID), data, metadata.WithExpectedVersion(0)); err != nil {
		return Record{}, fmt.Errorf("tracking: create %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (t *MetadataTracker) Update(ctx context.Context, id string, status Status, detail string) (Record, error) {
	var out Record
	_, err := metadata.Update(ctx, t.meta, processKey(id), 5, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var rec Record
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, fmt.Errorf("tracking: decode %s: %w", id, err)
		}
		next, err := transition(rec, status, detail, t.now())
		if err != nil {
			return nil, err
		}
		out = next
		return json.Marshal(next)
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (t *MetadataTracker) Get(ctx context.Context, id string) (Record, error) {
	res, err := t.meta.Get(ctx, processKey(id))
	if err != nil {
		return Record{}, fmt.Errorf("tracking: get %s: %w", id, err)
	}
	if !res.Exists {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec Record
	if err := json.Unmarshal(res.Value, &rec); err != nil {
		return Record{}, fmt.Errorf("tracking: decode %s: %w", id, err)
	}
	return rec, nil
}

var _ Tracker = (*MetadataTracker)(nil)
