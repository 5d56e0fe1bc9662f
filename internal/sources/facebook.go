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

const facebookGraphURL = "https://graph.facebook.com/v19.0"

// FacebookSource implements post search via the Facebook Graph API
type FacebookSource struct {
	accessToken string
	client      *resty.Client
}

var _ PlatformSource = (*FacebookSource)(nil)

type facebookSearchResponse struct {
	Data   []facebookPost `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
	Error *facebookError `json:"error"`
}

type facebookError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type facebookPost struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
	From        struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"from"`
	PermalinkURL string `json:"permalink_url"`
	Reactions    struct {
		Summary struct {
			TotalCount int `json:"total_count"`
		} `json:"summary"`
	} `json:"reactions"`
	Comments struct {
		Summary struct {
			TotalCount int `json:"total_count"`
		} `json:"summary"`
	} `json:"comments"`
	Shares struct {
		Count int `json:"count"`
	} `json:"shares"`
}

// NewFacebookSource creates a new Facebook source
func NewFacebookSource(accessToken string) *FacebookSource {
	return &FacebookSource{
		accessToken: accessToken,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Sentinel/1.0"),
	}
}

func (f *FacebookSource) Platform() models.Platform {
	return models.PlatformFacebook
}

func (f *FacebookSource) IsEnabled() bool {
	return f.accessToken != ""
}

func (f *FacebookSource) Search(ctx context.Context, q Query) (*Page, error) {
	if !f.IsEnabled() {
		return nil, &retry.AuthError{StatusCode: 0, Message: "facebook access token not configured"}
	}

	limit := q.MaxResults
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	searchURL := fmt.Sprintf("%s/search?type=post&q=%s&limit=%d&since=%d&fields=id,message,created_time,from,permalink_url,reactions.summary(true),comments.summary(true),shares&access_token=%s",
		facebookGraphURL, url.QueryEscape(q.Keyword), limit, q.Since.Unix(), url.QueryEscape(f.accessToken))
	if q.PageToken != "" {
		searchURL += "&after=" + url.QueryEscape(q.PageToken)
	}

	resp, err := f.client.R().SetContext(ctx).Get(searchURL)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return nil, &retry.AuthError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	case resp.StatusCode() >= 400:
		return nil, &retry.StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	var searchResp facebookSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, &retry.Permanent{Err: fmt.Errorf("failed to parse Facebook response: %w", err)}
	}

	// Graph API reports auth problems inside a 200 body
	if searchResp.Error != nil {
		if searchResp.Error.Code == 190 || searchResp.Error.Type == "OAuthException" {
			return nil, &retry.AuthError{StatusCode: 200, Message: searchResp.Error.Message}
		}
		return nil, &retry.Permanent{Err: fmt.Errorf("facebook API error %d: %s", searchResp.Error.Code, searchResp.Error.Message)}
	}

	page := &Page{NextToken: searchResp.Paging.Cursors.After}
	if searchResp.Paging.Next == "" {
		page.NextToken = ""
	}

	for _, post := range searchResp.Data {
		if post.Message == "" {
			continue
		}

		postedAt, err := time.Parse("2006-01-02T15:04:05-0700", post.CreatedTime)
		if err != nil {
			logrus.Warnf("Skipping Facebook post %s with bad timestamp: %v", post.ID, err)
			continue
		}

		page.Posts = append(page.Posts, RawPost{
			ExternalID: post.ID,
			Author:     post.From.Name,
			Content:    post.Message,
			URL:        post.PermalinkURL,
			Engagement: models.Engagement{
				Likes:    post.Reactions.Summary.TotalCount,
				Shares:   post.Shares.Count,
				Comments: post.Comments.Summary.TotalCount,
			},
			PostedAt: postedAt,
		})
	}

	return page, nil
}
