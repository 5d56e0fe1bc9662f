package sentiment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/politrack/sentinel/internal/models"
)

var (
	dmkID = uuid.New()
	bjpID = uuid.New()
)

func testClusters() []models.Cluster {
	return []models.Cluster{
		{ID: dmkID, Name: "DMK", Type: models.ClusterOwn, Keywords: []string{"DMK", "Stalin"}, Active: true},
		{ID: bjpID, Name: "BJP", Type: models.ClusterCompetitor, Keywords: []string{"BJP", "Modi"}, Active: true},
	}
}

func TestAnalyze_DirectContrast(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "DMK's healthcare is excellent 👍 but BJP's approach has failed 👎",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	require.Len(t, result.EntitySentiments, 2)

	dmk := result.EntitySentiments["DMK"]
	assert.Equal(t, models.SentimentPositive, dmk.Label)
	assert.InDelta(t, 0.75, dmk.Score, 0.12)
	assert.Positive(t, dmk.Components.Text)
	assert.Positive(t, dmk.Components.Emoji)

	bjp := result.EntitySentiments["BJP"]
	assert.Equal(t, models.SentimentNegative, bjp.Label)
	assert.InDelta(t, -0.65, bjp.Score, 0.12)

	require.NotNil(t, result.Comparative)
	assert.True(t, result.Comparative.HasComparison)
	assert.Equal(t, models.ComparisonDirectContrast, result.Comparative.ComparisonType)
	assert.ElementsMatch(t, []string{"DMK", "BJP"}, result.Comparative.Entities)
	assert.NotEmpty(t, result.Comparative.Summary)

	// Primary mirroring: the collecting cluster's entity drives the post-level score
	assert.Equal(t, "DMK", result.PrimaryEntity)
	assert.Equal(t, dmk.Score, result.Score)
	assert.Equal(t, dmk.Label, result.Label)
}

func TestAnalyze_OmitsUnmentionedEntities(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "DMK announced a great new scheme today",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	require.Len(t, result.EntitySentiments, 1)
	_, hasBJP := result.EntitySentiments["BJP"]
	assert.False(t, hasBJP, "entities not in the text must be omitted, never zero-filled")
	assert.Nil(t, result.Comparative, "single entity posts carry no comparative analysis")
}

func TestAnalyze_NoEntities(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "The weather in Chennai is lovely today",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)
	assert.Empty(t, result.EntitySentiments)
}

func TestAnalyze_PronounResolution(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "Stalin inaugurated the new hospital. He praised the doctors for their great work.",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	require.Contains(t, result.EntitySentiments, "DMK")
	dmk := result.EntitySentiments["DMK"]
	assert.GreaterOrEqual(t, dmk.MentionCount, 2, "pronoun sentence should add a mention")
	assert.Equal(t, models.SentimentPositive, dmk.Label)
}

func TestAnalyze_PronounAmbiguityNotResolved(t *testing.T) {
	engine := NewEngine(nil)

	// Two entities in the first sentence: the pronoun stays unresolved and the
	// second sentence's praise attaches to nobody
	result, err := engine.Analyze(context.Background(), Input{
		Text:             "DMK and BJP clashed in the assembly. They made an excellent point.",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	dmk := result.EntitySentiments["DMK"]
	assert.Equal(t, 1, dmk.MentionCount)
}

func TestAnalyze_TrailingEmojiAppliesToAll(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "DMK and BJP both campaigned in Chennai today. 😡",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	require.Len(t, result.EntitySentiments, 2)
	for entity, s := range result.EntitySentiments {
		assert.Negative(t, s.Components.Emoji, "trailing emoji must reach %s", entity)
	}
}

func TestAnalyze_AddressedHashtagRoutesToEntity(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "DMK and BJP faced off in the bypoll. #FailedBJP",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	bjp := result.EntitySentiments["BJP"]
	assert.Negative(t, bjp.Components.Hashtag, "addressed hashtag must hit its entity")

	dmk := result.EntitySentiments["DMK"]
	assert.Zero(t, dmk.Components.Hashtag, "addressed hashtag must not bleed onto others")
}

func TestAnalyze_SarcasmMarkerFlipsScore(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "Great job by BJP on fuel prices /s",
		PrimaryClusterID: bjpID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	bjp := result.EntitySentiments["BJP"]
	assert.True(t, bjp.Sarcasm)
	assert.NotEmpty(t, bjp.SarcasmReason)
	assert.Negative(t, bjp.Score, "sarcasm must flip the stated praise")
}

func TestAnalyze_SarcasmByContradiction(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "BJP has done excellent work 🤡🤡",
		PrimaryClusterID: bjpID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	bjp := result.EntitySentiments["BJP"]
	assert.True(t, bjp.Sarcasm)
	assert.Negative(t, bjp.Score)
}

func TestAnalyze_ThreatLevel(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "DMK traitors looted the state, expose the scam and boycott them",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	dmk := result.EntitySentiments["DMK"]
	assert.Equal(t, models.SentimentNegative, dmk.Label)
	assert.Greater(t, dmk.ThreatLevel, 0.5)
	assert.Contains(t, dmk.ThreatReasoning, "threat indicators")
	assert.Greater(t, result.ThreatLevel, 0.5)
}

func TestAnalyze_NeutralCoexistence(t *testing.T) {
	engine := NewEngine(nil)

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "DMK and BJP representatives attended the state function in Chennai",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	require.NotNil(t, result.Comparative)
	assert.Equal(t, models.ComparisonNeutralCoexistence, result.Comparative.ComparisonType)
}

// brokenClassifier stands in for an unreachable hosted classifier
type brokenClassifier struct{}

func (brokenClassifier) ScoreText(context.Context, string) (TextScore, error) {
	return TextScore{}, errors.New("dial tcp: connection refused")
}

func TestAnalyze_ClassifierFailureFallsBack(t *testing.T) {
	reliable := NewEngine(nil)
	degraded := NewEngine(brokenClassifier{})
	ctx := context.Background()

	in := Input{
		Text:             "DMK's new scheme is excellent",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	}

	baseline, err := reliable.Analyze(ctx, in)
	require.NoError(t, err)
	fallback, err := degraded.Analyze(ctx, in)
	require.NoError(t, err)

	// Same heuristic score, reduced confidence
	assert.Equal(t, baseline.EntitySentiments["DMK"].Score, fallback.EntitySentiments["DMK"].Score)
	assert.Less(t,
		fallback.EntitySentiments["DMK"].Confidence,
		baseline.EntitySentiments["DMK"].Confidence)
}

// scriptedClassifier returns a fixed score, standing in for the hosted model
type scriptedClassifier struct {
	score TextScore
}

func (s scriptedClassifier) ScoreText(context.Context, string) (TextScore, error) {
	return s.score, nil
}

func TestAnalyze_ClassifierScoreUsed(t *testing.T) {
	engine := NewEngine(scriptedClassifier{score: TextScore{Score: -0.9, Confidence: 0.95}})

	result, err := engine.Analyze(context.Background(), Input{
		Text:             "DMK held a rally in Madurai",
		PrimaryClusterID: dmkID,
		Clusters:         testClusters(),
	})
	require.NoError(t, err)

	dmk := result.EntitySentiments["DMK"]
	assert.Equal(t, models.SentimentNegative, dmk.Label)
	assert.Equal(t, -0.9, dmk.Components.Text)
}

func TestLexiconClassifier(t *testing.T) {
	clf := LexiconClassifier{}
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		sign int // -1, 0, 1
	}{
		{"positive", "an excellent and visionary scheme", 1},
		{"negative", "a corrupt and shameful failure", -1},
		{"negated positive", "this is not good at all", -1},
		{"intensified", "extremely terrible governance", -1},
		{"no signal", "the assembly met on Tuesday", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := clf.ScoreText(ctx, tt.text)
			require.NoError(t, err)
			switch tt.sign {
			case 1:
				assert.Positive(t, score.Score)
			case -1:
				assert.Negative(t, score.Score)
			default:
				assert.Zero(t, score.Score)
				assert.LessOrEqual(t, score.Confidence, 0.3)
			}
		})
	}
}

func TestSplitContrast(t *testing.T) {
	parts := splitContrast("DMK is good but BJP is bad")
	require.Len(t, parts, 2)
	assert.Equal(t, "DMK is good", parts[0])
	assert.Equal(t, "BJP is bad", parts[1])

	parts = splitContrast("no contrast here")
	assert.Len(t, parts, 1)
}
