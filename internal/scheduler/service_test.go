package scheduler

import (
	"context"
	"encoding/json"
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
	"github.com/politrack/sentinel/internal/retry"
	"github.com/politrack/sentinel/internal/sentiment"
	"github.com/politrack/sentinel/internal/sources"
	"github.com/politrack/sentinel/internal/store"
)

type stubSource struct {
	platform models.Platform
	posts    []sources.RawPost
	err      error
	block    chan struct{}
}

func (s *stubSource) Platform() models.Platform { return s.platform }
func (s *stubSource) IsEnabled() bool           { return true }

func (s *stubSource) Search(ctx context.Context, q sources.Query) (*sources.Page, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &sources.Page{Posts: s.posts}, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.Event) {}

func writeClustersFile(t *testing.T, clusters []models.Cluster) string {
	t.Helper()
	data, err := json.Marshal(clusters)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "clusters.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestService(t *testing.T, clusters []models.Cluster, srcs ...sources.PlatformSource) (*Service, *store.MemoryStore) {
	t.Helper()
	cfg := &config.Config{
		CollectionInterval: 15 * time.Minute,
		DetectionInterval:  30 * time.Minute,
		WorkerCount:        2,
		MaxPages:           2,
		MaxResultsPerPage:  50,
		TaskRetryLimit:     1,
		ClustersFile:       writeClustersFile(t, clusters),

		CampaignWindow:       24 * time.Hour,
		CampaignMinPosts:     5,
		CampaignMinVelocity:  1.0,
		EscalationVelocity:   10.0,
		CampaignQuietTimeout: 48 * time.Hour,
	}

	st := store.NewMemoryStore()
	col := collector.New(cfg, srcs, sentiment.NewEngine(nil),
		dedup.NewMemoryCache(), ratelimit.NewMemoryLimiter(nil, false), st,
		nopPublisher{}, archive.NewMemoryArchiver())
	det := campaign.NewDetector(cfg, st, nopPublisher{})

	svc := NewService(cfg, col, det)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	return svc, st
}

func activeCluster() models.Cluster {
	return models.Cluster{
		ID:       uuid.New(),
		Name:     "DMK",
		Type:     models.ClusterOwn,
		Keywords: []string{"dmk"},
		Active:   true,
	}
}

func waitForStatus(t *testing.T, svc *Service, id uuid.UUID, want models.TaskStatus) *models.Task {
	t.Helper()
	var task *models.Task
	require.Eventually(t, func() bool {
		got, err := svc.GetTask(id)
		if err != nil {
			return false
		}
		task = got
		return got.Status == want
	}, 5*time.Second, 10*time.Millisecond, "task never reached %s", want)
	return task
}

func TestTriggerClusterRunsToCompletion(t *testing.T) {
	cluster := activeCluster()
	src := &stubSource{
		platform: models.PlatformTwitter,
		posts: []sources.RawPost{{
			ExternalID: "1",
			Author:     "observer",
			Content:    "DMK delivered an excellent budget",
			PostedAt:   time.Now().Add(-5 * time.Minute),
		}},
	}
	svc, st := newTestService(t, []models.Cluster{cluster}, src)

	task, err := svc.TriggerCluster(cluster.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCluster, task.Type)
	assert.Equal(t, cluster.ID, task.ClusterID)

	done := waitForStatus(t, svc, task.ID, models.TaskSucceeded)
	assert.Equal(t, 1, done.Attempts)
	require.NotNil(t, done.CompletedAt)

	posts, err := st.ListPostsSince(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestTriggerClusterUnknownID(t *testing.T) {
	svc, _ := newTestService(t, []models.Cluster{activeCluster()}, &stubSource{platform: models.PlatformTwitter})

	_, err := svc.TriggerCluster(uuid.New())
	assert.Error(t, err)
}

func TestTriggerScheduledEnqueuesTaskPerClusterPlatform(t *testing.T) {
	active := activeCluster()
	inactive := activeCluster()
	inactive.Name = "paused"
	inactive.Active = false

	twitter := &stubSource{
		platform: models.PlatformTwitter,
		posts: []sources.RawPost{{
			ExternalID: "1",
			Author:     "observer",
			Content:    "DMK rally draws a crowd",
			PostedAt:   time.Now().Add(-5 * time.Minute),
		}},
	}
	reddit := &stubSource{
		platform: models.PlatformReddit,
		posts: []sources.RawPost{{
			ExternalID: "r1",
			Author:     "lurker",
			Content:    "DMK thread on the front page",
			PostedAt:   time.Now().Add(-5 * time.Minute),
		}},
	}
	svc, st := newTestService(t, []models.Cluster{active, inactive}, twitter, reddit)

	tasks, err := svc.TriggerScheduled()
	require.NoError(t, err)

	// One task per active cluster and enabled platform, none for the
	// inactive cluster. Each pair carries its own id.
	require.Len(t, tasks, 2)
	platforms := map[models.Platform]bool{}
	for _, task := range tasks {
		assert.Equal(t, models.TaskScheduled, task.Type)
		assert.Equal(t, active.ID, task.ClusterID)
		platforms[task.Platform] = true
		waitForStatus(t, svc, task.ID, models.TaskSucceeded)
	}
	assert.True(t, platforms[models.PlatformTwitter])
	assert.True(t, platforms[models.PlatformReddit])

	posts, err := st.ListPostsSince(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, post := range posts {
		assert.Equal(t, active.ID, post.PrimaryClusterID)
	}
}

func TestFailedTaskCarriesErrorClass(t *testing.T) {
	cluster := activeCluster()
	src := &stubSource{
		platform: models.PlatformTwitter,
		err:      &retry.AuthError{StatusCode: 401, Message: "expired token"},
	}
	svc, _ := newTestService(t, []models.Cluster{cluster}, src)

	task, err := svc.TriggerCluster(cluster.ID)
	require.NoError(t, err)

	done := waitForStatus(t, svc, task.ID, models.TaskFailed)
	assert.Equal(t, models.ErrorAuth, done.ErrorClass)
	assert.Contains(t, done.LastError, "expired token")
	// Auth failures are not retried.
	assert.Equal(t, 1, done.Attempts)
}

func TestCancelRunningTask(t *testing.T) {
	cluster := activeCluster()
	src := &stubSource{
		platform: models.PlatformTwitter,
		block:    make(chan struct{}),
	}
	svc, _ := newTestService(t, []models.Cluster{cluster}, src)

	task, err := svc.TriggerCluster(cluster.ID)
	require.NoError(t, err)
	waitForStatus(t, svc, task.ID, models.TaskRunning)

	require.NoError(t, svc.CancelTask(task.ID))
	done := waitForStatus(t, svc, task.ID, models.TaskCancelled)
	require.NotNil(t, done.CompletedAt)
}

func TestCancelFinishedTask(t *testing.T) {
	cluster := activeCluster()
	src := &stubSource{platform: models.PlatformTwitter}
	svc, _ := newTestService(t, []models.Cluster{cluster}, src)

	task, err := svc.TriggerCluster(cluster.ID)
	require.NoError(t, err)
	waitForStatus(t, svc, task.ID, models.TaskSucceeded)

	err = svc.CancelTask(task.ID)
	assert.ErrorIs(t, err, ErrTaskDone)
}

func TestGetTaskUnknown(t *testing.T) {
	svc, _ := newTestService(t, []models.Cluster{activeCluster()}, &stubSource{platform: models.PlatformTwitter})

	_, err := svc.GetTask(uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTriggerEmergencyIsPriority(t *testing.T) {
	cluster := activeCluster()
	src := &stubSource{platform: models.PlatformTwitter}
	svc, _ := newTestService(t, []models.Cluster{cluster}, src)

	task, err := svc.TriggerEmergency(cluster.ID, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, models.TaskEmergency, task.Type)
	assert.Equal(t, 1, task.Priority)

	waitForStatus(t, svc, task.ID, models.TaskSucceeded)
}

func TestTriggerEmergencyWithAdHocKeywords(t *testing.T) {
	src := &stubSource{
		platform: models.PlatformTwitter,
		posts: []sources.RawPost{{
			ExternalID: "1",
			Author:     "observer",
			Content:    "election fraud claims spreading fast",
			PostedAt:   time.Now().Add(-5 * time.Minute),
		}},
	}
	svc, st := newTestService(t, []models.Cluster{activeCluster()}, src)

	task, err := svc.TriggerEmergency(uuid.Nil, []string{"election fraud"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"election fraud"}, task.Keywords)
	assert.Equal(t, 3, task.Priority)

	waitForStatus(t, svc, task.ID, models.TaskSucceeded)

	posts, err := st.ListPostsSince(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestTriggerEmergencyNeedsClusterOrKeywords(t *testing.T) {
	svc, _ := newTestService(t, []models.Cluster{activeCluster()}, &stubSource{platform: models.PlatformTwitter})

	_, err := svc.TriggerEmergency(uuid.Nil, nil, 1)
	assert.Error(t, err)
}

func TestTriggerDetection(t *testing.T) {
	svc, _ := newTestService(t, []models.Cluster{activeCluster()}, &stubSource{platform: models.PlatformTwitter})

	task, err := svc.TriggerDetection()
	require.NoError(t, err)
	assert.Equal(t, models.TaskDetection, task.Type)
	waitForStatus(t, svc, task.ID, models.TaskSucceeded)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorClass
	}{
		{"nil", nil, models.ErrorNone},
		{"auth", &retry.AuthError{StatusCode: 401}, models.ErrorAuth},
		{"rate limited", collector.ErrRateLimited, models.ErrorRateLimited},
		{"transient", &retry.StatusError{StatusCode: 503}, models.ErrorTransient},
		{"internal", assert.AnError, models.ErrorInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}
