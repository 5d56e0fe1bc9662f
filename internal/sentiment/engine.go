package sentiment

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/models"
)

// Component weights for the fused score. When a post carries no emoji or
// hashtag signal for an entity, the remaining weights are renormalized.
const (
	textWeight    = 0.5
	emojiWeight   = 0.3
	hashtagWeight = 0.2
)

// fallbackPenalty shrinks confidence when the hosted classifier is
// unreachable and the lexicon heuristic fills in
const fallbackPenalty = 0.75

var hashtagPattern = regexp.MustCompile(`#([A-Za-z0-9_]+)`)

// Engine fuses text, emoji, and hashtag signals into per-entity sentiment.
// It never fails a post: classifier outages degrade to the lexicon heuristic.
type Engine struct {
	classifier Classifier
	fallback   LexiconClassifier
}

// NewEngine creates a fusion engine. classifier may be nil, in which case the
// lexicon heuristic is the only text scorer.
func NewEngine(classifier Classifier) *Engine {
	return &Engine{classifier: classifier}
}

// Input is one post's text plus the set of active clusters to detect
type Input struct {
	Text             string
	PrimaryClusterID uuid.UUID
	Clusters         []models.Cluster
}

// Result carries per-entity sentiment for mentioned entities only, the
// comparative analysis when two or more entities appear, and the primary
// entity mirror values.
type Result struct {
	EntitySentiments map[string]models.EntitySentiment
	Comparative      *models.ComparativeAnalysis
	PrimaryEntity    string
	Score            float64
	Label            models.SentimentLabel
	ThreatLevel      float64
}

// clause is one contrast-delimited span of a sentence with the entities it names
type clause struct {
	text     string
	sentence int
	entities []string
	emojis   []float64
	hashtags []string
}

// Analyze runs the fusion pipeline over one post
func (e *Engine) Analyze(ctx context.Context, in Input) (*Result, error) {
	clauses := segment(in.Text)

	mentions := detectEntities(clauses, in.Clusters)
	resolvePronouns(clauses, mentions)

	detected := detectedEntities(clauses)
	result := &Result{
		EntitySentiments: make(map[string]models.EntitySentiment, len(detected)),
		Label:            models.SentimentNeutral,
	}
	if len(detected) == 0 {
		return result, nil
	}

	// Signals in clauses naming no entity apply to every detected entity,
	// unless a hashtag carries an explicit addressee in its body.
	sharedEmojis, sharedHashtags := unaddressedSignals(clauses, detected)

	for _, entity := range detected {
		sentiment, err := e.scoreEntity(ctx, entity, clauses, sharedEmojis, sharedHashtags, mentions[entity])
		if err != nil {
			return nil, err
		}
		result.EntitySentiments[entity] = sentiment
		if sentiment.ThreatLevel > result.ThreatLevel {
			result.ThreatLevel = sentiment.ThreatLevel
		}
	}

	if len(detected) >= 2 {
		result.Comparative = compare(clauses, detected, result.EntitySentiments)
	}

	result.PrimaryEntity = primaryEntity(in, detected)
	if primary, ok := result.EntitySentiments[result.PrimaryEntity]; ok {
		result.Score = primary.Score
		result.Label = primary.Label
	}

	return result, nil
}

// scoreEntity fuses the weighted components for one entity
func (e *Engine) scoreEntity(ctx context.Context, entity string, clauses []clause, sharedEmojis []float64, sharedHashtags []string, mentionCount int) (models.EntitySentiment, error) {
	var textParts []string
	var emojis []float64
	var hashtags []string

	for _, c := range clauses {
		if !containsString(c.entities, entity) {
			continue
		}
		textParts = append(textParts, c.text)
		emojis = append(emojis, c.emojis...)
		hashtags = append(hashtags, c.hashtags...)
	}
	emojis = append(emojis, sharedEmojis...)
	hashtags = append(hashtags, sharedHashtags...)
	// Hashtags that name the entity are an explicit addressee wherever they sit
	for _, c := range clauses {
		if containsString(c.entities, entity) {
			continue
		}
		for _, tag := range c.hashtags {
			if hashtagNamesEntity(tag, entity) {
				hashtags = append(hashtags, tag)
			}
		}
	}

	entityText := strings.Join(textParts, " ")
	textScore, usedFallback := e.textScore(ctx, entityText)

	emojiMean, hasEmoji := mean(emojis)
	hashtagMean, hasHashtag := hashtagMean(hashtags)

	components := models.ComponentScores{
		Text:    textScore.Score,
		Emoji:   emojiMean,
		Hashtag: hashtagMean,
	}

	// Renormalize weights over the components that actually carry signal
	totalWeight := textWeight
	fused := textWeight * textScore.Score
	components.TextWeight = textWeight
	if hasEmoji {
		fused += emojiWeight * emojiMean
		totalWeight += emojiWeight
		components.EmojiWeight = emojiWeight
	}
	if hasHashtag {
		fused += hashtagWeight * hashtagMean
		totalWeight += hashtagWeight
		components.HashtagWeight = hashtagWeight
	}
	fused = clamp(fused/totalWeight, -1, 1)

	confidence := clamp(textScore.Confidence+0.05*float64(len(emojis)+len(hashtags)), 0, 1)
	if usedFallback {
		confidence *= fallbackPenalty
	}

	sarcastic, sarcasmReason := detectSarcasm(entityText, textScore.Score, emojiMean, hasEmoji)
	if sarcastic {
		fused = -fused
	}

	threat, threatReason := threatLevel(entityText, fused)

	return models.EntitySentiment{
		Entity:          entity,
		Label:           labelFor(fused),
		Score:           fused,
		Confidence:      confidence,
		Components:      components,
		MentionCount:    mentionCount,
		Sarcasm:         sarcastic,
		SarcasmReason:   sarcasmReason,
		ThreatLevel:     threat,
		ThreatReasoning: threatReason,
	}, nil
}

// textScore tries the hosted classifier first and degrades to the lexicon
// heuristic with a confidence penalty
func (e *Engine) textScore(ctx context.Context, text string) (TextScore, bool) {
	if e.classifier != nil {
		score, err := e.classifier.ScoreText(ctx, text)
		if err == nil {
			return score, false
		}
		logrus.Warnf("Sentiment classifier unavailable, using lexicon fallback: %v", err)
	}
	score, _ := e.fallback.ScoreText(ctx, text)
	return score, e.classifier != nil
}

// segment splits text into sentences and contrast-delimited clauses, and
// extracts each clause's emoji and hashtag signals
func segment(text string) []clause {
	var clauses []clause

	sentences := splitSentences(text)
	for si, sentence := range sentences {
		for _, part := range splitContrast(sentence) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			c := clause{text: part, sentence: si}
			for _, r := range part {
				if polarity, ok := emojiPolarity[r]; ok {
					c.emojis = append(c.emojis, polarity)
				}
			}
			for _, m := range hashtagPattern.FindAllStringSubmatch(part, -1) {
				c.hashtags = append(c.hashtags, m[1])
			}
			clauses = append(clauses, c)
		}
	}

	return clauses
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
}

func splitContrast(sentence string) []string {
	words := strings.Fields(sentence)
	var parts []string
	var current []string
	for _, w := range words {
		if contrastWords[normalizeToken(w)] && len(current) > 0 {
			parts = append(parts, strings.Join(current, " "))
			current = current[:0]
			continue
		}
		current = append(current, w)
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, " "))
	}
	return parts
}

// detectEntities marks each clause with the cluster entities it names and
// returns per-entity mention counts
func detectEntities(clauses []clause, clusters []models.Cluster) map[string]int {
	mentions := make(map[string]int)

	for i := range clauses {
		lower := strings.ToLower(clauses[i].text)
		for _, cluster := range clusters {
			if !cluster.Active {
				continue
			}
			count := countMatches(lower, cluster)
			if count == 0 {
				continue
			}
			clauses[i].entities = append(clauses[i].entities, cluster.Name)
			mentions[cluster.Name] += count
		}
	}

	return mentions
}

func countMatches(lowerText string, cluster models.Cluster) int {
	terms := append([]string{cluster.Name}, cluster.Keywords...)
	seen := make(map[string]bool)
	count := 0
	for _, term := range terms {
		term = strings.ToLower(term)
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		count += strings.Count(lowerText, term)
	}
	return count
}

// resolvePronouns attributes a pronoun-bearing sentence to the single entity
// named in the sentence before it
func resolvePronouns(clauses []clause, mentions map[string]int) {
	sentenceEntities := make(map[int]map[string]bool)
	for _, c := range clauses {
		if sentenceEntities[c.sentence] == nil {
			sentenceEntities[c.sentence] = make(map[string]bool)
		}
		for _, e := range c.entities {
			sentenceEntities[c.sentence][e] = true
		}
	}

	for i := range clauses {
		c := &clauses[i]
		if len(c.entities) > 0 || c.sentence == 0 {
			continue
		}
		if !hasPronoun(c.text) {
			continue
		}
		prev := sentenceEntities[c.sentence-1]
		if len(prev) != 1 {
			continue
		}
		for entity := range prev {
			c.entities = append(c.entities, entity)
			mentions[entity]++
		}
	}
}

func hasPronoun(text string) bool {
	for _, tok := range strings.Fields(text) {
		if pronouns[normalizeToken(tok)] {
			return true
		}
	}
	return false
}

func detectedEntities(clauses []clause) []string {
	set := make(map[string]bool)
	for _, c := range clauses {
		for _, e := range c.entities {
			set[e] = true
		}
	}
	entities := make([]string, 0, len(set))
	for e := range set {
		entities = append(entities, e)
	}
	sort.Strings(entities)
	return entities
}

// unaddressedSignals collects emoji and hashtag signals from clauses naming no
// entity; these apply to all detected entities. A hashtag whose body names an
// entity is excluded here and routed to that entity instead.
func unaddressedSignals(clauses []clause, detected []string) ([]float64, []string) {
	var emojis []float64
	var hashtags []string

	for _, c := range clauses {
		if len(c.entities) > 0 {
			continue
		}
		emojis = append(emojis, c.emojis...)
		for _, tag := range c.hashtags {
			addressed := false
			for _, entity := range detected {
				if hashtagNamesEntity(tag, entity) {
					addressed = true
					break
				}
			}
			if !addressed {
				hashtags = append(hashtags, tag)
			}
		}
	}

	return emojis, hashtags
}

func hashtagNamesEntity(tag, entity string) bool {
	return strings.Contains(strings.ToLower(tag), strings.ToLower(strings.ReplaceAll(entity, " ", "")))
}

// detectSarcasm looks for explicit markers and praise contradicted by signals
func detectSarcasm(text string, textScore, emojiMean float64, hasEmoji bool) (bool, string) {
	lower := strings.ToLower(text)

	for _, tok := range strings.Fields(lower) {
		if tok == "/s" {
			return true, "explicit sarcasm marker \"/s\""
		}
	}
	for _, phrase := range []string{"yeah right", "oh sure", "sure, sure", "slow clap"} {
		if strings.Contains(lower, phrase) {
			return true, fmt.Sprintf("sarcastic phrase %q", phrase)
		}
	}

	if hasEmoji {
		if textScore > 0.25 && emojiMean < -0.4 {
			return true, "stated praise contradicted by negative emoji"
		}
		if textScore < -0.25 && emojiMean > 0.4 {
			return true, "stated criticism contradicted by positive emoji"
		}
	}

	return false, ""
}

// threatLevel grades how threatening the post is toward the entity
func threatLevel(text string, score float64) (float64, string) {
	level := 0.0
	if score < 0 {
		level = -score * 0.6
	}

	var matched []string
	for _, tok := range strings.Fields(text) {
		word := normalizeToken(tok)
		if threatWords[word] && !containsString(matched, word) {
			matched = append(matched, word)
		}
	}
	if len(matched) > 0 {
		level = clamp(level+0.4, 0, 1)
		return level, fmt.Sprintf("threat indicators: %s", strings.Join(matched, ", "))
	}
	if level > 0 {
		return level, "negative sentiment without explicit threat indicators"
	}
	return 0, ""
}

// compare classifies the relationship between co-mentioned entities
func compare(clauses []clause, detected []string, sentiments map[string]models.EntitySentiment) *models.ComparativeAnalysis {
	analysis := &models.ComparativeAnalysis{
		HasComparison: true,
		Entities:      detected,
	}

	switch {
	case hasContrastStructure(clauses) || oppositeSigns(detected, sentiments):
		analysis.ComparisonType = models.ComparisonDirectContrast
	case allNeutral(detected, sentiments):
		analysis.ComparisonType = models.ComparisonNeutralCoexistence
	default:
		analysis.ComparisonType = models.ComparisonImplicit
	}

	analysis.Summary = comparisonSummary(analysis.ComparisonType, detected, sentiments)
	return analysis
}

// hasContrastStructure reports whether some sentence opposes clauses naming
// different entities across a contrast conjunction
func hasContrastStructure(clauses []clause) bool {
	bySentence := make(map[int][]clause)
	for _, c := range clauses {
		bySentence[c.sentence] = append(bySentence[c.sentence], c)
	}
	for _, parts := range bySentence {
		if len(parts) < 2 {
			continue
		}
		seen := make(map[string]bool)
		distinct := 0
		for _, c := range parts {
			for _, e := range c.entities {
				if !seen[e] {
					seen[e] = true
					distinct++
				}
			}
		}
		if distinct >= 2 {
			return true
		}
	}
	return false
}

func oppositeSigns(detected []string, sentiments map[string]models.EntitySentiment) bool {
	var hasPositive, hasNegative bool
	for _, e := range detected {
		s := sentiments[e].Score
		if s > 0.15 {
			hasPositive = true
		}
		if s < -0.15 {
			hasNegative = true
		}
	}
	return hasPositive && hasNegative
}

func allNeutral(detected []string, sentiments map[string]models.EntitySentiment) bool {
	for _, e := range detected {
		if sentiments[e].Label != models.SentimentNeutral {
			return false
		}
	}
	return true
}

func comparisonSummary(kind models.ComparisonType, detected []string, sentiments map[string]models.EntitySentiment) string {
	switch kind {
	case models.ComparisonDirectContrast:
		favored, criticized := splitBySign(detected, sentiments)
		if len(favored) > 0 && len(criticized) > 0 {
			return fmt.Sprintf("%s portrayed favorably while %s portrayed negatively.",
				strings.Join(favored, " and "), strings.Join(criticized, " and "))
		}
		return fmt.Sprintf("%s are directly contrasted.", strings.Join(detected, " and "))
	case models.ComparisonNeutralCoexistence:
		return fmt.Sprintf("%s are mentioned together without comparison.", strings.Join(detected, " and "))
	default:
		return fmt.Sprintf("%s are implicitly compared through shared context.", strings.Join(detected, " and "))
	}
}

func splitBySign(detected []string, sentiments map[string]models.EntitySentiment) (favored, criticized []string) {
	for _, e := range detected {
		switch sentiments[e].Label {
		case models.SentimentPositive:
			favored = append(favored, e)
		case models.SentimentNegative:
			criticized = append(criticized, e)
		}
	}
	return favored, criticized
}

func primaryEntity(in Input, detected []string) string {
	for _, cluster := range in.Clusters {
		if cluster.ID == in.PrimaryClusterID {
			return cluster.Name
		}
	}
	if len(detected) > 0 {
		return detected[0]
	}
	return ""
}

func labelFor(score float64) models.SentimentLabel {
	switch {
	case score > 0.1:
		return models.SentimentPositive
	case score < -0.1:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values)), true
}

func hashtagMean(tags []string) (float64, bool) {
	var scores []float64
	for _, tag := range tags {
		if polarity := hashtagPolarity(tag); polarity != 0 {
			scores = append(scores, polarity)
		}
	}
	return meanOrZero(scores)
}

func meanOrZero(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	m, _ := mean(values)
	return m, true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
