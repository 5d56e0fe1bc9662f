package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/politrack/sentinel/internal/retry"
)

// TextScore is the polarity of one text fragment
type TextScore struct {
	Score      float64 `json:"score"`      // [-1, 1]
	Confidence float64 `json:"confidence"` // [0, 1]
}

// Classifier scores the text component of an entity's sentiment. The hosted
// model behind HTTPClassifier is treated as an opaque capability; the engine
// falls back to LexiconClassifier whenever it is unreachable.
type Classifier interface {
	ScoreText(ctx context.Context, text string) (TextScore, error)
}

// HTTPClassifier calls an external text-analysis service
type HTTPClassifier struct {
	baseURL string
	apiKey  string
	client  *resty.Client
}

var _ Classifier = (*HTTPClassifier)(nil)

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// NewHTTPClassifier creates a classifier client for the given endpoint
func NewHTTPClassifier(baseURL, apiKey string) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  resty.New().SetTimeout(15 * time.Second),
	}
}

func (c *HTTPClassifier) ScoreText(ctx context.Context, text string) (TextScore, error) {
	var result classifyResponse

	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(classifyRequest{Text: text}).
		SetResult(&result)
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := req.Post(c.baseURL + "/v1/sentiment")
	if err != nil {
		return TextScore{}, fmt.Errorf("classifier request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return TextScore{}, &retry.AuthError{StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	case resp.StatusCode() != 200:
		return TextScore{}, &retry.StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	return TextScore{Score: clamp(result.Score, -1, 1), Confidence: clamp(result.Confidence, 0, 1)}, nil
}

// LexiconClassifier is the basic keyword+polarity heuristic used when no
// external service is configured or reachable
type LexiconClassifier struct{}

var _ Classifier = (*LexiconClassifier)(nil)

func (LexiconClassifier) ScoreText(ctx context.Context, text string) (TextScore, error) {
	var total float64
	var hits int

	negate := false
	scale := 1.0
	for _, tok := range strings.Fields(text) {
		word := normalizeToken(tok)
		if word == "" {
			continue
		}
		if negators[word] {
			negate = true
			continue
		}
		if mult, ok := intensifiers[word]; ok {
			scale *= mult
			continue
		}
		if polarity, ok := wordPolarity[word]; ok {
			if negate {
				polarity = -polarity
			}
			total += polarity * scale
			hits++
		}
		negate = false
		scale = 1.0
	}

	if hits == 0 {
		return TextScore{Score: 0, Confidence: 0.3}, nil
	}

	score := clamp(total/float64(hits), -1, 1)
	confidence := clamp(0.4+0.1*float64(hits), 0, 0.8)
	return TextScore{Score: score, Confidence: confidence}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
