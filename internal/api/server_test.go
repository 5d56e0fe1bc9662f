package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/politrack/sentinel/internal/archive"
	"github.com/politrack/sentinel/internal/campaign"
	"github.com/politrack/sentinel/internal/collector"
	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/dedup"
	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/ratelimit"
	"github.com/politrack/sentinel/internal/scheduler"
	"github.com/politrack/sentinel/internal/sentiment"
	"github.com/politrack/sentinel/internal/sources"
	"github.com/politrack/sentinel/internal/store"
)

type fixture struct {
	server   *httptest.Server
	store    *store.MemoryStore
	cluster  models.Cluster
	archiver *archive.MemoryArchiver
}

type silentSource struct{}

func (silentSource) Platform() models.Platform { return models.PlatformTwitter }
func (silentSource) IsEnabled() bool           { return true }
func (silentSource) Search(ctx context.Context, q sources.Query) (*sources.Page, error) {
	return &sources.Page{}, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.Event) {}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cluster := models.Cluster{
		ID:       uuid.New(),
		Name:     "DMK",
		Type:     models.ClusterOwn,
		Keywords: []string{"dmk"},
		Active:   true,
	}
	data, err := json.Marshal([]models.Cluster{cluster})
	require.NoError(t, err)
	clustersFile := filepath.Join(t.TempDir(), "clusters.json")
	require.NoError(t, os.WriteFile(clustersFile, data, 0o644))

	cfg := &config.Config{
		CollectionInterval: 15 * time.Minute,
		DetectionInterval:  30 * time.Minute,
		WorkerCount:        1,
		MaxPages:           1,
		MaxResultsPerPage:  10,
		ClustersFile:       clustersFile,

		CampaignWindow:       24 * time.Hour,
		CampaignMinPosts:     5,
		CampaignMinVelocity:  1.0,
		EscalationVelocity:   10.0,
		CampaignQuietTimeout: 48 * time.Hour,
	}

	st := store.NewMemoryStore()
	cache := dedup.NewMemoryCache()
	arch := archive.NewMemoryArchiver()
	col := collector.New(cfg, []sources.PlatformSource{silentSource{}}, sentiment.NewEngine(nil),
		cache, ratelimit.NewMemoryLimiter(nil, false), st, nopPublisher{}, arch)
	det := campaign.NewDetector(cfg, st, nopPublisher{})
	sched := scheduler.NewService(cfg, col, det)

	srv := httptest.NewServer(NewServer(cfg, sched, det, st, cache, arch).Router())
	t.Cleanup(srv.Close)

	return &fixture{server: srv, store: st, cluster: cluster, archiver: arch}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "healthy", payload["status"])
}

func TestCollectClusterAccepted(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/collect/cluster/"+f.cluster.ID.String(), nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var task models.Task
	require.NoError(t, json.Unmarshal(body, &task))
	assert.Equal(t, models.TaskCluster, task.Type)
	assert.Equal(t, models.TaskQueued, task.Status)

	resp, body = f.do(t, http.MethodGet, "/api/tasks/"+task.ID.String(), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Task
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, task.ID, got.ID)
}

func TestCollectClusterInvalidID(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/collect/cluster/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCollectClusterUnknownID(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/collect/cluster/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCollectEmergencyRequiresClusterOrKeywords(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/collect/emergency", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/collect/emergency",
		map[string]string{"cluster_id": f.cluster.ID.String()})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var task models.Task
	require.NoError(t, json.Unmarshal(body, &task))
	assert.Equal(t, models.TaskEmergency, task.Type)
}

func TestCollectEmergencyWithKeywordsAndPriority(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/collect/emergency", map[string]interface{}{
		"keywords": []string{"election fraud"},
		"priority": 3,
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var task models.Task
	require.NoError(t, json.Unmarshal(body, &task))
	assert.Equal(t, models.TaskEmergency, task.Type)
	assert.Equal(t, []string{"election fraud"}, task.Keywords)
	assert.Equal(t, 3, task.Priority)
}

func TestListClustersWithPostCounts(t *testing.T) {
	f := newFixture(t)
	inserted, err := f.store.CreatePost(context.Background(), &models.Post{
		ID:               uuid.New(),
		Platform:         models.PlatformTwitter,
		ExternalPostID:   "1",
		Content:          "dmk rally",
		PrimaryClusterID: f.cluster.ID,
		PostedAt:         time.Now().Add(-time.Hour),
		CollectedAt:      time.Now(),
	})
	require.NoError(t, err)
	require.True(t, inserted)

	resp, body := f.do(t, http.MethodGet, "/api/clusters", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var clusters []struct {
		models.Cluster
		PostCount int `json:"post_count"`
	}
	require.NoError(t, json.Unmarshal(body, &clusters))
	require.Len(t, clusters, 1)
	assert.Equal(t, f.cluster.ID, clusters[0].ID)
	assert.Equal(t, 1, clusters[0].PostCount)
}

func TestListAndFetchArchives(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.archiver.ArchiveBatch(f.cluster.ID, models.PlatformTwitter, []sources.RawPost{
		{ExternalID: "1", Content: "dmk rally", PostedAt: time.Now().Add(-time.Hour)},
	}))

	resp, body := f.do(t, http.MethodGet, "/api/archives?prefix=raw/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Archives []string `json:"archives"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	require.Len(t, listing.Archives, 1)

	resp, body = f.do(t, http.MethodGet, "/api/archives/"+listing.Archives[0], nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var batch archive.Batch
	require.NoError(t, json.Unmarshal(body, &batch))
	assert.Equal(t, f.cluster.ID, batch.ClusterID)
	assert.Equal(t, 1, batch.Count)

	resp, _ = f.do(t, http.MethodGet, "/api/archives/raw/never/archived.json", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetTaskNotFound(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelQueuedTask(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/api/collect/scheduled", nil)
	var tasks []models.Task
	require.NoError(t, json.Unmarshal(body, &tasks))
	require.NotEmpty(t, tasks)
	task := tasks[0]

	resp, _ := f.do(t, http.MethodDelete, "/api/tasks/"+task.ID.String(), nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, body = f.do(t, http.MethodGet, "/api/tasks/"+task.ID.String(), nil)
	var got models.Task
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, models.TaskCancelled, got.Status)
}

func seedCampaign(t *testing.T, f *fixture, status models.CampaignStatus, threat models.ThreatLevel) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		ID:              uuid.New(),
		Name:            fmt.Sprintf("#wave-%s campaign", status),
		Status:          status,
		ThreatLevel:     threat,
		TotalPosts:      7,
		FirstDetectedAt: time.Now().Add(-2 * time.Hour).UTC(),
		LastUpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.store.CreateCampaign(context.Background(), c))
	return c
}

func TestListCampaignsWithFilters(t *testing.T) {
	f := newFixture(t)
	seedCampaign(t, f, models.CampaignActive, models.ThreatHigh)
	seedCampaign(t, f, models.CampaignResolved, models.ThreatLow)

	resp, body := f.do(t, http.MethodGet, "/api/campaigns?status=active", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var campaigns []*models.Campaign
	require.NoError(t, json.Unmarshal(body, &campaigns))
	require.Len(t, campaigns, 1)
	assert.Equal(t, models.CampaignActive, campaigns[0].Status)

	resp, _ = f.do(t, http.MethodGet, "/api/campaigns?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetCampaignNotFound(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/campaigns/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCampaignStats(t *testing.T) {
	f := newFixture(t)
	seedCampaign(t, f, models.CampaignActive, models.ThreatHigh)

	resp, body := f.do(t, http.MethodGet, "/api/campaigns/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats campaign.Stats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 7, stats.TotalPosts)
}

func TestAcknowledgeCampaign(t *testing.T) {
	f := newFixture(t)
	seeded := seedCampaign(t, f, models.CampaignActive, models.ThreatHigh)

	resp, _ := f.do(t, http.MethodPost, "/api/campaigns/"+seeded.ID.String()+"/acknowledge",
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/campaigns/"+seeded.ID.String()+"/acknowledge",
		map[string]string{"by": "analyst1", "note": "investigating"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var acked models.Campaign
	require.NoError(t, json.Unmarshal(body, &acked))
	assert.Equal(t, models.CampaignAcknowledged, acked.Status)
	assert.Equal(t, "analyst1", acked.AcknowledgedBy)
}

func TestResolveThenAcknowledgeConflicts(t *testing.T) {
	f := newFixture(t)
	seeded := seedCampaign(t, f, models.CampaignActive, models.ThreatMedium)

	resp, _ := f.do(t, http.MethodPost, "/api/campaigns/"+seeded.ID.String()+"/resolve",
		map[string]string{"note": "statement issued"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/campaigns/"+seeded.ID.String()+"/acknowledge",
		map[string]string{"by": "analyst1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDetectAccepted(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/campaigns/detect", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var task models.Task
	require.NoError(t, json.Unmarshal(body, &task))
	assert.Equal(t, models.TaskDetection, task.Type)
}
