package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/retry"
)

// RedditSource implements sitewide search via the Reddit OAuth API
type RedditSource struct {
	clientID     string
	clientSecret string
	client       *resty.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ PlatformSource = (*RedditSource)(nil)

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type redditSearchResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// NewRedditSource creates a new Reddit source
func NewRedditSource(clientID, clientSecret string) *RedditSource {
	return &RedditSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       resty.New().SetTimeout(30 * time.Second),
	}
}

func (r *RedditSource) Platform() models.Platform {
	return models.PlatformReddit
}

func (r *RedditSource) IsEnabled() bool {
	return r.clientID != "" && r.clientSecret != ""
}

func (r *RedditSource) Search(ctx context.Context, q Query) (*Page, error) {
	if !r.IsEnabled() {
		return nil, &retry.AuthError{StatusCode: 0, Message: "reddit credentials not configured"}
	}

	token, err := r.token(ctx)
	if err != nil {
		return nil, err
	}

	limit := q.MaxResults
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	searchURL := fmt.Sprintf("https://oauth.reddit.com/search.json?q=%s&sort=new&limit=%d",
		url.QueryEscape(q.Keyword), limit)
	if q.PageToken != "" {
		searchURL += "&after=" + url.QueryEscape(q.PageToken)
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("User-Agent", "Sentinel/1.0").
		Get(searchURL)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return nil, &retry.AuthError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	case resp.StatusCode() != 200:
		return nil, &retry.StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var searchResp redditSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, &retry.Permanent{Err: fmt.Errorf("failed to parse Reddit response: %w", err)}
	}

	page := &Page{NextToken: searchResp.Data.After}
	for _, child := range searchResp.Data.Children {
		post := child.Data
		postedAt := time.Unix(int64(post.Created), 0)
		if postedAt.Before(q.Since) {
			// Results are sorted newest first; everything after is older
			page.NextToken = ""
			break
		}

		content := post.Title
		if post.Selftext != "" {
			content += "\n" + post.Selftext
		}

		page.Posts = append(page.Posts, RawPost{
			ExternalID: post.ID,
			Author:     post.Author,
			Content:    content,
			URL:        fmt.Sprintf("https://reddit.com%s", post.Permalink),
			Engagement: models.Engagement{
				Likes:    post.Score,
				Comments: post.NumComments,
			},
			PostedAt: postedAt,
		})
	}

	return page, nil
}

// token returns a cached app-only token, refreshing it when near expiry
func (r *RedditSource) token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accessToken != "" && time.Now().Before(r.tokenExpiry.Add(-time.Minute)) {
		return r.accessToken, nil
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "Sentinel/1.0").
		SetBasicAuth(r.clientID, r.clientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		Post("https://www.reddit.com/api/v1/access_token")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return "", &retry.AuthError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}
	if resp.StatusCode() != 200 {
		return "", &retry.StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", &retry.Permanent{Err: fmt.Errorf("failed to parse Reddit auth response: %w", err)}
	}
	if authResp.AccessToken == "" {
		return "", &retry.AuthError{StatusCode: resp.StatusCode(), Message: "reddit auth returned empty token"}
	}

	r.accessToken = authResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn) * time.Second)
	return r.accessToken, nil
}
