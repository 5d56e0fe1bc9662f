package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/retry"
)

func TestTwitterSource_Platform(t *testing.T) {
	source := NewTwitterSource("bearer_token")
	assert.Equal(t, models.PlatformTwitter, source.Platform())
}

func TestTwitterSource_IsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected bool
	}{
		{"Token provided", "bearer_token", true},
		{"Missing token", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewTwitterSource(tt.token)
			assert.Equal(t, tt.expected, source.IsEnabled())
		})
	}
}

func TestTwitterSource_DisabledReturnsAuthError(t *testing.T) {
	source := NewTwitterSource("")
	_, err := source.Search(context.Background(), Query{Keyword: "DMK", Since: time.Now()})
	require.Error(t, err)

	var authErr *retry.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.False(t, retry.IsRetryable(err), "missing credentials must not be retried")
}

func TestFacebookSource_IsEnabled(t *testing.T) {
	assert.True(t, NewFacebookSource("token").IsEnabled())
	assert.False(t, NewFacebookSource("").IsEnabled())
}

func TestInstagramSource_IsEnabled(t *testing.T) {
	assert.True(t, NewInstagramSource("token").IsEnabled())
	assert.False(t, NewInstagramSource("").IsEnabled())
}

func TestYouTubeSource_IsEnabled(t *testing.T) {
	assert.True(t, NewYouTubeSource("key").IsEnabled())
	assert.False(t, NewYouTubeSource("").IsEnabled())
}

func TestRedditSource_IsEnabled(t *testing.T) {
	tests := []struct {
		name         string
		clientID     string
		clientSecret string
		expected     bool
	}{
		{"Both credentials provided", "id", "secret", true},
		{"Missing client ID", "", "secret", false},
		{"Missing client secret", "id", "", false},
		{"Both missing", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewRedditSource(tt.clientID, tt.clientSecret)
			assert.Equal(t, tt.expected, source.IsEnabled())
		})
	}
}

func TestHashtagify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DMK", "dmk"},
		{"Tamil Nadu politics", "tamilnadupolitics"},
		{"  BJP ", "bjp"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, hashtagify(tt.input))
	}
}

func TestIsRetweet(t *testing.T) {
	plain := twitterTweet{ID: "1"}
	assert.False(t, isRetweet(plain))

	rt := twitterTweet{ID: "2"}
	rt.ReferencedTweets = append(rt.ReferencedTweets, struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{Type: "retweeted", ID: "1"})
	assert.True(t, isRetweet(rt))

	quoted := twitterTweet{ID: "3"}
	quoted.ReferencedTweets = append(quoted.ReferencedTweets, struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}{Type: "quoted", ID: "1"})
	assert.False(t, isRetweet(quoted))
}
