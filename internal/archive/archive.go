package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/sources"
)

// Archiver persists raw collection batches before any filtering or
// enrichment, so a run can be replayed or audited later.
type Archiver interface {
	ArchiveBatch(clusterID uuid.UUID, platform models.Platform, posts []sources.RawPost) error
	Retrieve(name string) ([]byte, error)
	List(prefix string) ([]string, error)
}

// Batch is the JSON document written for each archived collection run.
type Batch struct {
	ClusterID  uuid.UUID         `json:"cluster_id"`
	Platform   models.Platform   `json:"platform"`
	ArchivedAt time.Time         `json:"archived_at"`
	Count      int               `json:"count"`
	Posts      []sources.RawPost `json:"posts"`
}

// batchName builds the blob path: raw/<date>/<platform>/<cluster>-<unix>.json
func batchName(clusterID uuid.UUID, platform models.Platform, at time.Time) string {
	return fmt.Sprintf("raw/%s/%s/%s-%d.json",
		at.UTC().Format("2006-01-02"), platform, clusterID, at.UTC().Unix())
}

func encodeBatch(clusterID uuid.UUID, platform models.Platform, posts []sources.RawPost, at time.Time) ([]byte, error) {
	batch := Batch{
		ClusterID:  clusterID,
		Platform:   platform,
		ArchivedAt: at.UTC(),
		Count:      len(posts),
		Posts:      posts,
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive batch: %w", err)
	}
	return data, nil
}
