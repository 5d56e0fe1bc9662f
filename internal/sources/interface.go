package sources

import (
	"context"
	"time"

	"github.com/politrack/sentinel/internal/models"
)

// RawPost is the normalized shape every platform adapter emits
type RawPost struct {
	ExternalID string
	Author     string
	Content    string
	URL        string
	Engagement models.Engagement
	PostedAt   time.Time
}

// Page is one page of search results plus the cursor for the next one.
// An empty NextToken means the listing is exhausted.
type Page struct {
	Posts     []RawPost
	NextToken string
}

// Query describes one paged search against a platform
type Query struct {
	Keyword    string
	Since      time.Time
	PageToken  string
	MaxResults int
}

// PlatformSource defines the contract for all platform adapters. Platform
// specific parsing stays inside the adapter; everything downstream sees
// RawPost only.
type PlatformSource interface {
	Platform() models.Platform
	IsEnabled() bool
	Search(ctx context.Context, q Query) (*Page, error)
}
