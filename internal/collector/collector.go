package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/archive"
	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/dedup"
	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/notifications"
	"github.com/politrack/sentinel/internal/ratelimit"
	"github.com/politrack/sentinel/internal/retry"
	"github.com/politrack/sentinel/internal/sentiment"
	"github.com/politrack/sentinel/internal/sources"
	"github.com/politrack/sentinel/internal/store"
)

// ErrRateLimited is returned when enforcement is on and a platform budget
// is exhausted mid-run. Posts collected before the cutoff are kept.
var ErrRateLimited = errors.New("platform rate limit exhausted")

// Posts at or above this fused threat level raise an alert event in
// addition to the regular new_post event.
const alertThreatLevel = 0.7

// Stats summarizes one collection run for logging and task records
type Stats struct {
	Fetched        int `json:"fetched"`
	Duplicates     int `json:"duplicates"`
	BelowThreshold int `json:"below_threshold"`
	Stored         int `json:"stored"`
	Failures       int `json:"failures"`
}

func (s *Stats) add(other Stats) {
	s.Fetched += other.Fetched
	s.Duplicates += other.Duplicates
	s.BelowThreshold += other.BelowThreshold
	s.Stored += other.Stored
	s.Failures += other.Failures
}

// Collector runs the ingestion pipeline for one cluster and platform at a
// time: rate-limit gate, paged fetch with retries, engagement threshold,
// dedup, sentiment fusion, idempotent persistence, then events.
type Collector struct {
	config    *config.Config
	sources   []sources.PlatformSource
	engine    *sentiment.Engine
	dedupe    dedup.Cache
	limiter   ratelimit.Limiter
	store     store.Store
	publisher notifications.Publisher
	archiver  archive.Archiver
	now       func() time.Time
}

// New creates a collector
func New(cfg *config.Config, srcs []sources.PlatformSource, engine *sentiment.Engine,
	cache dedup.Cache, limiter ratelimit.Limiter, st store.Store,
	publisher notifications.Publisher, archiver archive.Archiver) *Collector {
	return &Collector{
		config:    cfg,
		sources:   srcs,
		engine:    engine,
		dedupe:    cache,
		limiter:   limiter,
		store:     st,
		publisher: publisher,
		archiver:  archiver,
		now:       time.Now,
	}
}

// SetClock overrides the time source for tests
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// CollectCluster fans out across all enabled platforms concurrently and
// aggregates their stats. Platform failures are collected, not fatal: one
// platform being down must not block the others.
func (c *Collector) CollectCluster(ctx context.Context, cluster models.Cluster, all []models.Cluster, since time.Time) (Stats, error) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total Stats
		errs  []error
	)

	for _, src := range c.sources {
		if !src.IsEnabled() {
			logrus.Debugf("Skipping %s for cluster %s: no credentials configured", src.Platform(), cluster.Name)
			continue
		}

		wg.Add(1)
		go func(src sources.PlatformSource) {
			defer wg.Done()

			stats, err := c.collectSource(ctx, cluster, all, src, since)

			mu.Lock()
			defer mu.Unlock()
			total.add(stats)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", src.Platform(), err))
			}
		}(src)
	}
	wg.Wait()

	logrus.WithFields(logrus.Fields{
		"cluster":         cluster.Name,
		"fetched":         total.Fetched,
		"duplicates":      total.Duplicates,
		"below_threshold": total.BelowThreshold,
		"stored":          total.Stored,
		"failures":        total.Failures,
	}).Info("Collection run finished")

	if len(errs) > 0 {
		return total, errors.Join(errs...)
	}
	return total, nil
}

// EnabledPlatforms lists the platforms that have credentials configured
func (c *Collector) EnabledPlatforms() []models.Platform {
	var platforms []models.Platform
	for _, src := range c.sources {
		if src.IsEnabled() {
			platforms = append(platforms, src.Platform())
		}
	}
	return platforms
}

// CollectPlatform runs the pipeline for one cluster on one platform
func (c *Collector) CollectPlatform(ctx context.Context, cluster models.Cluster, all []models.Cluster, platform models.Platform, since time.Time) (Stats, error) {
	for _, src := range c.sources {
		if src.Platform() != platform {
			continue
		}
		if !src.IsEnabled() {
			return Stats{}, fmt.Errorf("%s source has no credentials configured", platform)
		}
		return c.collectSource(ctx, cluster, all, src, since)
	}
	return Stats{}, fmt.Errorf("no source registered for platform %s", platform)
}

func (c *Collector) collectSource(ctx context.Context, cluster models.Cluster, all []models.Cluster, src sources.PlatformSource, since time.Time) (Stats, error) {
	var stats Stats
	var raw []sources.RawPost

	for _, keyword := range cluster.Keywords {
		batch, err := c.fetchKeyword(ctx, src, keyword, since)
		raw = append(raw, batch...)
		if err != nil {
			c.archiveBatch(cluster.ID, src.Platform(), raw)
			return stats, err
		}
	}

	c.archiveBatch(cluster.ID, src.Platform(), raw)

	stats.Fetched = len(raw)
	threshold := cluster.Thresholds[src.Platform()]

	for _, post := range raw {
		if post.Engagement.Total() < threshold {
			stats.BelowThreshold++
			continue
		}

		seen, err := c.dedupe.Seen(ctx, src.Platform(), post.ExternalID)
		if err == nil && seen {
			stats.Duplicates++
			continue
		}

		if err := c.process(ctx, cluster, all, src.Platform(), post); err != nil {
			logrus.Errorf("Failed to process %s post %s: %v", src.Platform(), post.ExternalID, err)
			stats.Failures++
			continue
		}
		stats.Stored++
	}

	return stats, nil
}

// fetchKeyword pages through search results for one keyword. Every outbound
// request passes the rate limiter first, including retries.
func (c *Collector) fetchKeyword(ctx context.Context, src sources.PlatformSource, keyword string, since time.Time) ([]sources.RawPost, error) {
	var all []sources.RawPost
	token := ""

	for page := 0; page < c.config.MaxPages; page++ {
		q := sources.Query{
			Keyword:    keyword,
			Since:      since,
			PageToken:  token,
			MaxResults: c.config.MaxResultsPerPage,
		}

		var result *sources.Page
		err := retry.Do(ctx, fmt.Sprintf("%s search %q", src.Platform(), keyword), func(ctx context.Context) error {
			decision, limitErr := c.limiter.Allow(ctx, src.Platform())
			if limitErr != nil {
				logrus.Warnf("Rate limiter unavailable for %s, proceeding: %v", src.Platform(), limitErr)
			} else if !decision.Allowed {
				return &retry.Permanent{Err: fmt.Errorf("%w: retry after %s", ErrRateLimited, decision.RetryAfter)}
			} else if decision.Exceeded {
				logrus.Warnf("%s over its rate budget (enforcement off), remaining accounting only", src.Platform())
			}

			var searchErr error
			result, searchErr = src.Search(ctx, q)
			return searchErr
		})
		if err != nil {
			return all, err
		}

		all = append(all, result.Posts...)
		if result.NextToken == "" {
			break
		}
		token = result.NextToken
	}

	return all, nil
}

// process runs analysis and persistence for a single post. The dedup mark is
// written only after the post is durably stored, so a crash between fetch and
// store means re-collection, never loss.
func (c *Collector) process(ctx context.Context, cluster models.Cluster, all []models.Cluster, platform models.Platform, raw sources.RawPost) error {
	if len(all) == 0 {
		all = []models.Cluster{cluster}
	}

	analysis, err := c.engine.Analyze(ctx, sentiment.Input{
		Text:             raw.Content,
		PrimaryClusterID: cluster.ID,
		Clusters:         all,
	})
	if err != nil {
		return fmt.Errorf("sentiment analysis: %w", err)
	}

	post := &models.Post{
		ID:                  uuid.New(),
		Platform:            platform,
		ExternalPostID:      raw.ExternalID,
		Author:              raw.Author,
		Content:             raw.Content,
		URL:                 raw.URL,
		Engagement:          raw.Engagement,
		PostedAt:            raw.PostedAt,
		CollectedAt:         c.now().UTC(),
		PrimaryClusterID:    cluster.ID,
		EntitySentiments:    analysis.EntitySentiments,
		ComparativeAnalysis: analysis.Comparative,
		SentimentScore:      analysis.Score,
		SentimentLabel:      analysis.Label,
		ThreatLevel:         analysis.ThreatLevel,
	}

	inserted, err := c.store.CreatePost(ctx, post)
	if err != nil {
		return fmt.Errorf("store post: %w", err)
	}

	if _, err := c.dedupe.MarkIfUnseen(ctx, platform, raw.ExternalID); err != nil {
		logrus.Warnf("Failed to mark %s post %s as seen: %v", platform, raw.ExternalID, err)
	}

	if !inserted {
		// Already stored by an earlier run whose cache entry expired.
		return nil
	}

	c.publisher.Publish(models.Event{Type: models.EventNewPost, Data: post})
	if post.ThreatLevel >= alertThreatLevel {
		c.publisher.Publish(models.Event{Type: models.EventAlert, Data: post})
	}

	return nil
}

func (c *Collector) archiveBatch(clusterID uuid.UUID, platform models.Platform, posts []sources.RawPost) {
	if c.archiver == nil || len(posts) == 0 {
		return
	}
	if err := c.archiver.ArchiveBatch(clusterID, platform, posts); err != nil {
		logrus.Warnf("Failed to archive %s batch for cluster %s: %v", platform, clusterID, err)
	}
}
