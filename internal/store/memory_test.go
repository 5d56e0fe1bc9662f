package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/politrack/sentinel/internal/models"
)

func samplePost(platform models.Platform, externalID string) *models.Post {
	return &models.Post{
		ID:             uuid.New(),
		Platform:       platform,
		ExternalPostID: externalID,
		Content:        "DMK's healthcare is excellent",
		PostedAt:       time.Now().Add(-time.Hour),
		CollectedAt:    time.Now(),
		PrimaryClusterID: uuid.New(),
		EntitySentiments: map[string]models.EntitySentiment{
			"DMK": {Entity: "DMK", Label: models.SentimentPositive, Score: 0.7},
		},
		SentimentScore: 0.7,
		SentimentLabel: models.SentimentPositive,
	}
}

func TestMemoryStore_CreatePostIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := samplePost(models.PlatformTwitter, "t1")
	inserted, err := s.CreatePost(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same external id again: no second Post even though the struct differs
	second := samplePost(models.PlatformTwitter, "t1")
	inserted, err = s.CreatePost(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := s.GetPostByExternalID(ctx, models.PlatformTwitter, "t1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)

	// Same id on another platform is a distinct post
	inserted, err = s.CreatePost(ctx, samplePost(models.PlatformReddit, "t1"))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestMemoryStore_GetPostNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetPostByExternalID(context.Background(), models.PlatformTwitter, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListPostsSince(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	old := samplePost(models.PlatformTwitter, "old")
	old.CollectedAt = time.Now().Add(-48 * time.Hour)
	_, err := s.CreatePost(ctx, old)
	require.NoError(t, err)

	recent := samplePost(models.PlatformTwitter, "recent")
	_, err = s.CreatePost(ctx, recent)
	require.NoError(t, err)

	posts, err := s.ListPostsSince(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "recent", posts[0].ExternalPostID)
}

func TestMemoryStore_CampaignLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	campaign := &models.Campaign{
		ID:              uuid.New(),
		Name:            "anti-DMK healthcare narrative",
		ThreatLevel:     models.ThreatHigh,
		Status:          models.CampaignMonitoring,
		Keywords:        []string{"healthcare", "failure"},
		FirstDetectedAt: time.Now(),
		LastUpdatedAt:   time.Now(),
	}
	require.NoError(t, s.CreateCampaign(ctx, campaign))

	campaign.Status = models.CampaignActive
	campaign.TotalPosts = 12
	require.NoError(t, s.UpdateCampaign(ctx, campaign))

	stored, err := s.GetCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignActive, stored.Status)
	assert.Equal(t, 12, stored.TotalPosts)

	active, err := s.ListCampaigns(ctx, CampaignFilter{Status: models.CampaignActive})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	resolved, err := s.ListCampaigns(ctx, CampaignFilter{Status: models.CampaignResolved})
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestMemoryStore_UpdateMissingCampaign(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateCampaign(context.Background(), &models.Campaign{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)
}
