package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/campaign"
	"github.com/politrack/sentinel/internal/collector"
	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/retry"
)

var (
	// ErrTaskNotFound is returned for unknown task ids
	ErrTaskNotFound = errors.New("task not found")
	// ErrQueueFull is returned when the work queues cannot accept more tasks
	ErrQueueFull = errors.New("task queue is full")
	// ErrTaskDone is returned when cancelling a task that already finished
	ErrTaskDone = errors.New("task already finished")
)

// Emergency collections look back this far rather than a whole
// collection interval.
const emergencyWindow = time.Hour

// Finished tasks stay queryable this long before pruning.
const taskRetention = 24 * time.Hour

const queueCapacity = 64

// Service owns the cron triggers, the worker pool, and the task registry.
// Emergency tasks jump the queue via a separate priority channel that
// workers drain first.
type Service struct {
	config    *config.Config
	collector *collector.Collector
	detector  *campaign.Detector
	cron      *cron.Cron

	mu    sync.RWMutex
	tasks map[uuid.UUID]*taskEntry

	normal   chan *taskEntry
	priority chan *taskEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

type taskEntry struct {
	task   *models.Task
	run    func(ctx context.Context) error
	cancel context.CancelFunc
}

// NewService creates the scheduler
func NewService(cfg *config.Config, col *collector.Collector, det *campaign.Detector) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:    cfg,
		collector: col,
		detector:  det,
		cron:      cron.New(),
		tasks:     make(map[uuid.UUID]*taskEntry),
		normal:    make(chan *taskEntry, queueCapacity),
		priority:  make(chan *taskEntry, queueCapacity),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Start registers the cron triggers and launches the worker pool
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.CollectionInterval), func() {
		if _, err := s.TriggerScheduled(); err != nil {
			logrus.Errorf("Failed to enqueue scheduled collection: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register collection trigger: %w", err)
	}

	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.DetectionInterval), func() {
		if _, err := s.TriggerDetection(); err != nil {
			logrus.Errorf("Failed to enqueue campaign detection: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register detection trigger: %w", err)
	}

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: %d workers, collection every %s, detection every %s",
		s.config.WorkerCount, s.config.CollectionInterval, s.config.DetectionInterval)
	return nil
}

// Stop halts the cron, cancels running tasks, and waits for workers to drain
func (s *Service) Stop() {
	s.cron.Stop()
	s.cancel()
	s.wg.Wait()
	logrus.Info("Scheduler stopped")
}

// TriggerScheduled enqueues one collection task per active cluster and
// enabled platform. Each pair runs, retries, and cancels independently, and
// the worker pool bounds how many execute at once.
func (s *Service) TriggerScheduled() ([]*models.Task, error) {
	clusters, err := s.config.LoadClusters()
	if err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}
	platforms := s.collector.EnabledPlatforms()
	since := s.now().UTC().Add(-s.config.CollectionInterval)

	var tasks []*models.Task
	for _, cluster := range clusters {
		if !cluster.Active {
			continue
		}
		for _, platform := range platforms {
			cluster, platform := cluster, platform
			task := &models.Task{
				ID:        uuid.New(),
				Type:      models.TaskScheduled,
				Status:    models.TaskQueued,
				ClusterID: cluster.ID,
				Platform:  platform,
				CreatedAt: s.now().UTC(),
			}
			queued, err := s.enqueue(task, false, func(ctx context.Context) error {
				_, err := s.collector.CollectPlatform(ctx, cluster, clusters, platform, since)
				return err
			})
			if err != nil {
				return tasks, fmt.Errorf("enqueue %s on %s: %w", cluster.Name, platform, err)
			}
			tasks = append(tasks, queued)
		}
	}
	return tasks, nil
}

// TriggerCluster enqueues an on-demand collection for one cluster
func (s *Service) TriggerCluster(clusterID uuid.UUID) (*models.Task, error) {
	cluster, clusters, err := s.findCluster(clusterID)
	if err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:        uuid.New(),
		Type:      models.TaskCluster,
		Status:    models.TaskQueued,
		ClusterID: clusterID,
		CreatedAt: s.now().UTC(),
	}
	return s.enqueue(task, false, func(ctx context.Context) error {
		since := s.now().UTC().Add(-s.config.CollectionInterval)
		_, err := s.collector.CollectCluster(ctx, cluster, clusters, since)
		return err
	})
}

// TriggerEmergency enqueues a priority collection with a short lookback.
// The caller names a known cluster, an ad-hoc keyword list, or both; given
// both, the keywords replace the cluster's own for this run. Workers pick
// emergency tasks before anything else in the queue.
func (s *Service) TriggerEmergency(clusterID uuid.UUID, keywords []string, priority int) (*models.Task, error) {
	if clusterID == uuid.Nil && len(keywords) == 0 {
		return nil, errors.New("emergency collection needs a cluster or keywords")
	}
	if priority < 1 {
		priority = 1
	}

	clusters, err := s.config.LoadClusters()
	if err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}

	var cluster models.Cluster
	if clusterID != uuid.Nil {
		found := false
		for _, c := range clusters {
			if c.ID == clusterID {
				cluster = c
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("cluster %s not found", clusterID)
		}
		if len(keywords) > 0 {
			cluster.Keywords = keywords
		}
	} else {
		cluster = models.Cluster{
			ID:       uuid.New(),
			Name:     "emergency",
			Keywords: keywords,
			Active:   true,
		}
		// The ad-hoc cluster joins the entity list so its keywords are
		// scored like any configured cluster's.
		clusters = append(clusters, cluster)
	}

	task := &models.Task{
		ID:        uuid.New(),
		Type:      models.TaskEmergency,
		Status:    models.TaskQueued,
		ClusterID: clusterID,
		Keywords:  keywords,
		Priority:  priority,
		CreatedAt: s.now().UTC(),
	}
	return s.enqueue(task, true, func(ctx context.Context) error {
		since := s.now().UTC().Add(-emergencyWindow)
		_, err := s.collector.CollectCluster(ctx, cluster, clusters, since)
		return err
	})
}

// TriggerDetection enqueues a campaign detection pass
func (s *Service) TriggerDetection() (*models.Task, error) {
	task := &models.Task{
		ID:        uuid.New(),
		Type:      models.TaskDetection,
		Status:    models.TaskQueued,
		CreatedAt: s.now().UTC(),
	}
	return s.enqueue(task, false, func(ctx context.Context) error {
		_, err := s.detector.Run(ctx)
		return err
	})
}

// GetTask returns a snapshot of the task record
func (s *Service) GetTask(id uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	snapshot := *entry.task
	return &snapshot, nil
}

// ListTasks returns snapshots of all retained tasks
func (s *Service) ListTasks() []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(s.tasks))
	for _, entry := range s.tasks {
		snapshot := *entry.task
		tasks = append(tasks, &snapshot)
	}
	return tasks
}

// CancelTask cancels a queued or running task. Queued tasks are marked
// cancelled and skipped when a worker reaches them; running tasks have
// their context cancelled.
func (s *Service) CancelTask(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	switch entry.task.Status {
	case models.TaskQueued:
		entry.task.Status = models.TaskCancelled
		completed := s.now().UTC()
		entry.task.CompletedAt = &completed
		return nil
	case models.TaskRunning:
		if entry.cancel != nil {
			entry.cancel()
		}
		return nil
	default:
		return ErrTaskDone
	}
}

func (s *Service) enqueue(task *models.Task, urgent bool, run func(ctx context.Context) error) (*models.Task, error) {
	entry := &taskEntry{task: task, run: run}

	s.mu.Lock()
	s.prune()
	s.tasks[task.ID] = entry
	s.mu.Unlock()

	queue := s.normal
	if urgent {
		queue = s.priority
	}

	select {
	case queue <- entry:
	default:
		s.mu.Lock()
		delete(s.tasks, task.ID)
		s.mu.Unlock()
		return nil, ErrQueueFull
	}

	logrus.Debugf("Enqueued %s task %s", task.Type, task.ID)
	snapshot := *task
	return &snapshot, nil
}

// prune drops finished tasks past the retention window. Caller holds the lock.
func (s *Service) prune() {
	cutoff := s.now().UTC().Add(-taskRetention)
	for id, entry := range s.tasks {
		if entry.task.CompletedAt != nil && entry.task.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for {
		// Drain priority work first.
		select {
		case <-s.ctx.Done():
			return
		case entry := <-s.priority:
			s.execute(entry)
			continue
		default:
		}

		select {
		case <-s.ctx.Done():
			return
		case entry := <-s.priority:
			s.execute(entry)
		case entry := <-s.normal:
			s.execute(entry)
		}
	}
}

// execute runs one task with whole-task retries. A task is re-run only for
// transient failures, up to the configured retry limit.
func (s *Service) execute(entry *taskEntry) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	s.mu.Lock()
	if entry.task.Status != models.TaskQueued {
		s.mu.Unlock()
		return
	}
	started := s.now().UTC()
	entry.task.Status = models.TaskRunning
	entry.task.StartedAt = &started
	entry.cancel = cancel
	s.mu.Unlock()

	var err error
	attempts := 0
	for attempts <= s.config.TaskRetryLimit {
		attempts++
		err = entry.run(ctx)
		if err == nil || ctx.Err() != nil || !retry.IsRetryable(err) {
			break
		}
		logrus.Warnf("Task %s attempt %d failed, retrying: %v", entry.task.ID, attempts, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	completed := s.now().UTC()
	entry.task.Attempts = attempts
	entry.task.CompletedAt = &completed
	entry.cancel = nil

	switch {
	case ctx.Err() != nil:
		entry.task.Status = models.TaskCancelled
	case err != nil:
		entry.task.Status = models.TaskFailed
		entry.task.ErrorClass = classify(err)
		entry.task.LastError = err.Error()
		logrus.Errorf("Task %s (%s) failed after %d attempts: %v", entry.task.ID, entry.task.Type, attempts, err)
	default:
		entry.task.Status = models.TaskSucceeded
		logrus.Infof("Task %s (%s) finished in %s", entry.task.ID, entry.task.Type, completed.Sub(started))
	}
}

func (s *Service) findCluster(clusterID uuid.UUID) (models.Cluster, []models.Cluster, error) {
	clusters, err := s.config.LoadClusters()
	if err != nil {
		return models.Cluster{}, nil, fmt.Errorf("load clusters: %w", err)
	}
	for _, cluster := range clusters {
		if cluster.ID == clusterID {
			return cluster, clusters, nil
		}
	}
	return models.Cluster{}, nil, fmt.Errorf("cluster %s not found", clusterID)
}

// classify maps a task failure to the operator-facing error class
func classify(err error) models.ErrorClass {
	if err == nil {
		return models.ErrorNone
	}

	var authErr *retry.AuthError
	if errors.As(err, &authErr) {
		return models.ErrorAuth
	}
	if errors.Is(err, collector.ErrRateLimited) {
		return models.ErrorRateLimited
	}
	if retry.IsRetryable(err) {
		return models.ErrorTransient
	}
	return models.ErrorInternal
}
