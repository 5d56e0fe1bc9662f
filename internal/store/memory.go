package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/politrack/sentinel/internal/models"
)

// MemoryStore is an in-process Store for tests and local development
type MemoryStore struct {
	mu        sync.RWMutex
	posts     map[uuid.UUID]*models.Post
	postKeys  map[string]uuid.UUID // platform:external_post_id -> post id
	campaigns map[uuid.UUID]*models.Campaign
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:     make(map[uuid.UUID]*models.Post),
		postKeys:  make(map[string]uuid.UUID),
		campaigns: make(map[uuid.UUID]*models.Campaign),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func postKey(platform models.Platform, externalID string) string {
	return string(platform) + ":" + externalID
}

func (s *MemoryStore) CreatePost(ctx context.Context, post *models.Post) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := postKey(post.Platform, post.ExternalPostID)
	if _, exists := s.postKeys[key]; exists {
		return false, nil
	}

	copied := *post
	s.posts[post.ID] = &copied
	s.postKeys[key] = post.ID
	return true, nil
}

func (s *MemoryStore) GetPostByExternalID(ctx context.Context, platform models.Platform, externalID string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.postKeys[postKey(platform, externalID)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.posts[id]
	return &copied, nil
}

func (s *MemoryStore) ListPostsSince(ctx context.Context, since time.Time) ([]*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []*models.Post
	for _, post := range s.posts {
		if !post.CollectedAt.Before(since) {
			copied := *post
			posts = append(posts, &copied)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CollectedAt.After(posts[j].CollectedAt)
	})
	return posts, nil
}

func (s *MemoryStore) CountPostsByCluster(ctx context.Context, clusterID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, post := range s.posts {
		if post.PrimaryClusterID == clusterID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *campaign
	s.campaigns[campaign.ID] = &copied
	return nil
}

func (s *MemoryStore) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[campaign.ID]; !ok {
		return ErrNotFound
	}
	copied := *campaign
	s.campaigns[campaign.ID] = &copied
	return nil
}

func (s *MemoryStore) GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *campaign
	return &copied, nil
}

func (s *MemoryStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var campaigns []*models.Campaign
	for _, campaign := range s.campaigns {
		if filter.Status != "" && campaign.Status != filter.Status {
			continue
		}
		if filter.ThreatLevel != "" && campaign.ThreatLevel != filter.ThreatLevel {
			continue
		}
		if !filter.Since.IsZero() && campaign.LastUpdatedAt.Before(filter.Since) {
			continue
		}
		copied := *campaign
		campaigns = append(campaigns, &copied)
	}
	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].LastUpdatedAt.After(campaigns[j].LastUpdatedAt)
	})
	if filter.Limit > 0 && len(campaigns) > filter.Limit {
		campaigns = campaigns[:filter.Limit]
	}
	return campaigns, nil
}
