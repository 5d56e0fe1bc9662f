package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/retry"
)

const youtubeAPIURL = "https://www.googleapis.com/youtube/v3"

// YouTubeSource implements video search via the YouTube Data API. Titles and
// descriptions are the analyzed content; view/like/comment counts come from a
// follow-up statistics call.
type YouTubeSource struct {
	apiKey string
	client *resty.Client
}

var _ PlatformSource = (*YouTubeSource)(nil)

type youtubeSearchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type youtubeStatsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// NewYouTubeSource creates a new YouTube source
func NewYouTubeSource(apiKey string) *YouTubeSource {
	return &YouTubeSource{
		apiKey: apiKey,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Sentinel/1.0"),
	}
}

func (y *YouTubeSource) Platform() models.Platform {
	return models.PlatformYouTube
}

func (y *YouTubeSource) IsEnabled() bool {
	return y.apiKey != ""
}

func (y *YouTubeSource) Search(ctx context.Context, q Query) (*Page, error) {
	if !y.IsEnabled() {
		return nil, &retry.AuthError{StatusCode: 0, Message: "youtube api key not configured"}
	}

	maxResults := q.MaxResults
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 50
	}

	searchURL := fmt.Sprintf("%s/search?part=snippet&type=video&order=date&q=%s&publishedAfter=%s&maxResults=%d&key=%s",
		youtubeAPIURL, url.QueryEscape(q.Keyword), q.Since.UTC().Format(time.RFC3339), maxResults, url.QueryEscape(y.apiKey))
	if q.PageToken != "" {
		searchURL += "&pageToken=" + url.QueryEscape(q.PageToken)
	}

	resp, err := y.client.R().SetContext(ctx).Get(searchURL)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return nil, &retry.AuthError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	case resp.StatusCode() != 200:
		return nil, &retry.StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var searchResp youtubeSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, &retry.Permanent{Err: fmt.Errorf("failed to parse YouTube response: %w", err)}
	}

	var videoIDs []string
	for _, item := range searchResp.Items {
		if item.ID.VideoID != "" {
			videoIDs = append(videoIDs, item.ID.VideoID)
		}
	}

	stats, err := y.fetchStatistics(ctx, videoIDs)
	if err != nil {
		// Statistics are an enrichment; the search result is still usable
		logrus.Warnf("Failed to fetch YouTube statistics: %v", err)
		stats = map[string]models.Engagement{}
	}

	page := &Page{NextToken: searchResp.NextPageToken}
	for _, item := range searchResp.Items {
		if item.ID.VideoID == "" {
			continue
		}

		postedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			logrus.Warnf("Skipping YouTube video %s with bad timestamp: %v", item.ID.VideoID, err)
			continue
		}

		page.Posts = append(page.Posts, RawPost{
			ExternalID: item.ID.VideoID,
			Author:     item.Snippet.ChannelTitle,
			Content:    strings.TrimSpace(item.Snippet.Title + "\n" + item.Snippet.Description),
			URL:        fmt.Sprintf("https://www.youtube.com/watch?v=%s", item.ID.VideoID),
			Engagement: stats[item.ID.VideoID],
			PostedAt:   postedAt,
		})
	}

	return page, nil
}

func (y *YouTubeSource) fetchStatistics(ctx context.Context, videoIDs []string) (map[string]models.Engagement, error) {
	stats := make(map[string]models.Engagement, len(videoIDs))
	if len(videoIDs) == 0 {
		return stats, nil
	}

	statsURL := fmt.Sprintf("%s/videos?part=statistics&id=%s&key=%s",
		youtubeAPIURL, strings.Join(videoIDs, ","), url.QueryEscape(y.apiKey))

	resp, err := y.client.R().SetContext(ctx).Get(statsURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, &retry.StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var statsResp youtubeStatsResponse
	if err := json.Unmarshal(resp.Body(), &statsResp); err != nil {
		return nil, fmt.Errorf("failed to parse statistics response: %w", err)
	}

	for _, item := range statsResp.Items {
		stats[item.ID] = models.Engagement{
			Likes:    atoiSafe(item.Statistics.LikeCount),
			Comments: atoiSafe(item.Statistics.CommentCount),
			Views:    atoiSafe(item.Statistics.ViewCount),
		}
	}
	return stats, nil
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
