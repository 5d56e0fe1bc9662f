package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/politrack/sentinel/internal/models"
)

var ErrNotFound = errors.New("resource not found")

// CampaignFilter narrows campaign listings for the dashboard surface
type CampaignFilter struct {
	Status      models.CampaignStatus
	ThreatLevel models.ThreatLevel
	Since       time.Time
	Limit       int
}

// Store is the data access interface. Each pipeline stage commits its own
// output independently; nothing here participates in cross-stage transactions.
type Store interface {
	Ping(ctx context.Context) error

	// CreatePost persists a post, returning false when a post with the same
	// (platform, external_post_id) already exists. Safe to call twice with
	// the same post: re-ingestion after cache expiry is a no-op.
	CreatePost(ctx context.Context, post *models.Post) (bool, error)
	GetPostByExternalID(ctx context.Context, platform models.Platform, externalID string) (*models.Post, error)
	ListPostsSince(ctx context.Context, since time.Time) ([]*models.Post, error)
	CountPostsByCluster(ctx context.Context, clusterID uuid.UUID) (int, error)

	CreateCampaign(ctx context.Context, campaign *models.Campaign) error
	UpdateCampaign(ctx context.Context, campaign *models.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, filter CampaignFilter) ([]*models.Campaign, error)
}
