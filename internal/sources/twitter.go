package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/retry"
)

const twitterSearchURL = "https://api.twitter.com/2/tweets/search/recent"

// TwitterSource implements the Twitter/X recent search API
type TwitterSource struct {
	bearerToken string
	client      *resty.Client
}

var _ PlatformSource = (*TwitterSource)(nil)

type twitterSearchResponse struct {
	Data []twitterTweet `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
		ViewCount    int `json:"impression_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

// NewTwitterSource creates a new Twitter source
func NewTwitterSource(bearerToken string) *TwitterSource {
	return &TwitterSource{
		bearerToken: bearerToken,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Sentinel/1.0"),
	}
}

func (t *TwitterSource) Platform() models.Platform {
	return models.PlatformTwitter
}

func (t *TwitterSource) IsEnabled() bool {
	return t.bearerToken != ""
}

func (t *TwitterSource) Search(ctx context.Context, q Query) (*Page, error) {
	if !t.IsEnabled() {
		return nil, &retry.AuthError{StatusCode: 0, Message: "twitter bearer token not configured"}
	}

	maxResults := q.MaxResults
	if maxResults <= 0 || maxResults > 100 {
		maxResults = 100
	}

	searchURL := fmt.Sprintf("%s?query=%s&start_time=%s&max_results=%d&tweet.fields=created_at,author_id,public_metrics,referenced_tweets",
		twitterSearchURL,
		url.QueryEscape(fmt.Sprintf("%q -is:retweet", q.Keyword)),
		q.Since.UTC().Format(time.RFC3339),
		maxResults)
	if q.PageToken != "" {
		searchURL += "&next_token=" + url.QueryEscape(q.PageToken)
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+t.bearerToken).
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

	var searchResp twitterSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, &retry.Permanent{Err: fmt.Errorf("failed to parse Twitter response: %w", err)}
	}

	page := &Page{NextToken: searchResp.Meta.NextToken}
	for _, tweet := range searchResp.Data {
		if isRetweet(tweet) {
			continue
		}

		postedAt, err := time.Parse(time.RFC3339, tweet.CreatedAt)
		if err != nil {
			logrus.Warnf("Skipping tweet %s with bad timestamp: %v", tweet.ID, err)
			continue
		}

		page.Posts = append(page.Posts, RawPost{
			ExternalID: tweet.ID,
			Author:     tweet.AuthorID,
			Content:    tweet.Text,
			URL:        fmt.Sprintf("https://twitter.com/i/status/%s", tweet.ID),
			Engagement: models.Engagement{
				Likes:    tweet.PublicMetrics.LikeCount,
				Shares:   tweet.PublicMetrics.RetweetCount,
				Comments: tweet.PublicMetrics.ReplyCount,
				Views:    tweet.PublicMetrics.ViewCount,
			},
			PostedAt: postedAt,
		})
	}

	return page, nil
}

func isRetweet(tweet twitterTweet) bool {
	for _, ref := range tweet.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}
