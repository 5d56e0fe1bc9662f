package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/retry"
)

const instagramGraphURL = "https://graph.facebook.com/v19.0"

// InstagramSource implements hashtag media search via the Instagram Graph API.
// Keywords are normalized into hashtags because Instagram only exposes
// hashtag-scoped discovery.
type InstagramSource struct {
	accessToken string
	client      *resty.Client
}

var _ PlatformSource = (*InstagramSource)(nil)

type instagramHashtagResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

type instagramMediaResponse struct {
	Data   []instagramMedia `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

type instagramMedia struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	Username      string `json:"username"`
	Permalink     string `json:"permalink"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
}

// NewInstagramSource creates a new Instagram source
func NewInstagramSource(accessToken string) *InstagramSource {
	return &InstagramSource{
		accessToken: accessToken,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Sentinel/1.0"),
	}
}

func (i *InstagramSource) Platform() models.Platform {
	return models.PlatformInstagram
}

func (i *InstagramSource) IsEnabled() bool {
	return i.accessToken != ""
}

func (i *InstagramSource) Search(ctx context.Context, q Query) (*Page, error) {
	if !i.IsEnabled() {
		return nil, &retry.AuthError{StatusCode: 0, Message: "instagram access token not configured"}
	}

	hashtagID, err := i.resolveHashtag(ctx, q.Keyword)
	if err != nil {
		return nil, err
	}
	if hashtagID == "" {
		// No such hashtag, nothing to collect
		return &Page{}, nil
	}

	limit := q.MaxResults
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	mediaURL := fmt.Sprintf("%s/%s/recent_media?fields=id,caption,username,permalink,timestamp,like_count,comments_count&limit=%d&access_token=%s",
		instagramGraphURL, hashtagID, limit, url.QueryEscape(i.accessToken))
	if q.PageToken != "" {
		mediaURL += "&after=" + url.QueryEscape(q.PageToken)
	}

	resp, err := i.client.R().SetContext(ctx).Get(mediaURL)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return nil, &retry.AuthError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	case resp.StatusCode() >= 400:
		return nil, &retry.StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var mediaResp instagramMediaResponse
	if err := json.Unmarshal(resp.Body(), &mediaResp); err != nil {
		return nil, &retry.Permanent{Err: fmt.Errorf("failed to parse Instagram response: %w", err)}
	}

	page := &Page{NextToken: mediaResp.Paging.Cursors.After}
	if mediaResp.Paging.Next == "" {
		page.NextToken = ""
	}

	for _, media := range mediaResp.Data {
		if media.Caption == "" {
			continue
		}

		postedAt, err := time.Parse("2006-01-02T15:04:05-0700", media.Timestamp)
		if err != nil {
			logrus.Warnf("Skipping Instagram media %s with bad timestamp: %v", media.ID, err)
			continue
		}
		if postedAt.Before(q.Since) {
			continue
		}

		page.Posts = append(page.Posts, RawPost{
			ExternalID: media.ID,
			Author:     media.Username,
			Content:    media.Caption,
			URL:        media.Permalink,
			Engagement: models.Engagement{
				Likes:    media.LikeCount,
				Comments: media.CommentsCount,
			},
			PostedAt: postedAt,
		})
	}

	return page, nil
}

func (i *InstagramSource) resolveHashtag(ctx context.Context, keyword string) (string, error) {
	tag := hashtagify(keyword)
	searchURL := fmt.Sprintf("%s/ig_hashtag_search?q=%s&access_token=%s",
		instagramGraphURL, url.QueryEscape(tag), url.QueryEscape(i.accessToken))

	resp, err := i.client.R().SetContext(ctx).Get(searchURL)
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return "", &retry.AuthError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	case resp.StatusCode() == 404:
		return "", nil
	case resp.StatusCode() >= 400:
		return "", &retry.StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var hashtagResp instagramHashtagResponse
	if err := json.Unmarshal(resp.Body(), &hashtagResp); err != nil {
		return "", &retry.Permanent{Err: fmt.Errorf("failed to parse hashtag response: %w", err)}
	}
	if len(hashtagResp.Data) == 0 {
		return "", nil
	}
	return hashtagResp.Data[0].ID, nil
}

func hashtagify(keyword string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(keyword), " ", ""))
}
