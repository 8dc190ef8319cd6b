package gc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridlake-io/gridlake/internal/metadata"
)

// OrphanPrefix is the metadata prefix holding orphan markers.
const OrphanPrefix = "/gridlake/v1/gc/orphans/"

// OrphanMarker records the object keys a failed ingestion may have written.
type OrphanMarker struct {
	ID        string   `json:"id"`
	ProcessID string   `json:"processId,omitempty"`
	ClientID  string   `json:"clientId"`
	ModelID   string   `json:"modelId"`
	TableName string   `json:"tableName"`
	FileName  string   `json:"fileName"`
	Keys      []string `json:"keys"`
	Reason    string   `json:"reason,omitempty"`
	CreatedAt int64    `json:"createdAt"`
}

// MarkerKey returns the metadata key for a marker id.
func MarkerKey(id string) string {
	return OrphanPrefix + id
}

// ParseMarker decodes a stored marker.
func ParseMarker(data []byte) (OrphanMarker, error) {
	var m OrphanMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return OrphanMarker{}, fmt.Errorf("gc: parse orphan marker: %w", err)
	}
	return m, nil
}

// RecordOrphans stores a marker for m.Keys. It assigns the id and creation
// time when unset and returns the stored marker.
func RecordOrphans(ctx context.Context, meta metadata.MetadataStore, m OrphanMarker) (OrphanMarker, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return OrphanMarker{}, fmt.Errorf("gc: encode orphan marker: %w", err)
	}
	if _, err := meta.Put(ctx, MarkerKey(m.ID), data, metadata.WithExpectedVersion(0)); err != nil {
		return OrphanMarker{}, fmt.Errorf("gc: store orphan marker %s: %w", m.ID, err)
	}
	return m, nil
}
