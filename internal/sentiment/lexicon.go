package sentiment

import "strings"

// Polarity lexicon for the keyword fallback path. Magnitudes are tuned so the
// fused scores land in the ranges operators expect from the hosted classifier.
var wordPolarity = map[string]float64{
	// positive
	"excellent":   0.7,
	"outstanding": 0.7,
	"great":       0.6,
	"good":        0.5,
	"best":        0.6,
	"love":        0.6,
	"welcome":     0.4,
	"praise":      0.5,
	"praised":     0.5,
	"success":     0.6,
	"successful":  0.6,
	"win":         0.5,
	"won":         0.5,
	"improved":    0.5,
	"improvement": 0.5,
	"progress":    0.5,
	"strong":      0.4,
	"visionary":   0.6,
	"historic":    0.4,
	"developed":   0.4,
	"development": 0.4,
	"support":     0.3,
	"supports":    0.3,

	// negative
	"failed":        -0.6,
	"failure":       -0.6,
	"fail":          -0.6,
	"fails":         -0.6,
	"terrible":      -0.7,
	"awful":         -0.7,
	"worst":         -0.7,
	"bad":           -0.5,
	"hate":          -0.6,
	"corrupt":       -0.7,
	"corruption":    -0.7,
	"scam":          -0.7,
	"scandal":       -0.6,
	"betrayed":      -0.6,
	"betrayal":      -0.6,
	"liar":          -0.6,
	"lies":          -0.5,
	"shame":         -0.5,
	"shameful":      -0.6,
	"disaster":      -0.6,
	"disastrous":    -0.6,
	"useless":       -0.6,
	"incompetent":   -0.6,
	"broken":        -0.4,
	"collapse":      -0.5,
	"collapsed":     -0.5,
	"crisis":        -0.4,
	"anti":          -0.3,
	"against":       -0.2,
	"destroyed":     -0.6,
	"destroying":    -0.6,
	"looted":        -0.7,
	"looting":       -0.7,
	"traitor":       -0.7,
	"traitors":      -0.7,
	"antipeople":    -0.6,
	"dictatorship":  -0.6,
	"authoritarian": -0.5,
}

// Negators flip the sign of the next sentiment word in the clause
var negators = map[string]bool{
	"not":     true,
	"no":      true,
	"never":   true,
	"hardly":  true,
	"without": true,
	"isnt":    true,
	"wasnt":   true,
	"dont":    true,
	"didnt":   true,
	"cant":    true,
	"wont":    true,
}

// Intensifiers scale the next sentiment word
var intensifiers = map[string]float64{
	"very":       1.3,
	"extremely":  1.5,
	"totally":    1.3,
	"completely": 1.4,
	"absolutely": 1.4,
	"utterly":    1.5,
	"so":         1.2,
	"really":     1.2,
}

var emojiPolarity = map[rune]float64{
	'👍': 0.8,
	'👏': 0.7,
	'🙏': 0.4,
	'💪': 0.6,
	'🎉': 0.7,
	'❤': 0.8,
	'😊': 0.6,
	'😍': 0.8,
	'✨': 0.5,
	'🔥': 0.5,
	'🏆': 0.7,
	'✅': 0.6,

	'👎': -0.8,
	'😡': -0.8,
	'🤬': -0.9,
	'😠': -0.7,
	'💔': -0.6,
	'🤡': -0.7,
	'🙄': -0.5,
	'😤': -0.5,
	'😢': -0.4,
	'😭': -0.4,
	'❌': -0.6,
	'🚨': -0.4,
}

// Words inside a hashtag that carry polarity, matched as substrings after
// lowercasing (#FailedBJP, #DMKRising)
var hashtagPositive = []string{"support", "win", "wins", "rising", "love", "great", "best", "forward", "victory", "proud"}
var hashtagNegative = []string{"fail", "failed", "scam", "shame", "corrupt", "exposed", "down", "quit", "resign", "antipeople", "goback", "stop"}

// Threat lexicon: words that push an entity's threat level up regardless of
// plain polarity
var threatWords = map[string]bool{
	"destroy":   true,
	"destroyed": true,
	"riot":      true,
	"riots":     true,
	"violence":  true,
	"attack":    true,
	"traitor":   true,
	"traitors":  true,
	"boycott":   true,
	"expose":    true,
	"exposed":   true,
	"scam":      true,
	"corrupt":   true,
	"protest":   true,
	"protests":  true,
	"threat":    true,
	"danger":    true,
	"dangerous": true,
}

// Pronouns eligible for resolution to an entity named in the previous sentence
var pronouns = map[string]bool{
	"he":     true,
	"she":    true,
	"they":   true,
	"him":    true,
	"her":    true,
	"them":   true,
	"his":    true,
	"hers":   true,
	"their":  true,
	"theirs": true,
	"it":     true,
	"its":    true,
}

// Contrast conjunctions split a sentence into opposing clauses
var contrastWords = map[string]bool{
	"but":      true,
	"however":  true,
	"whereas":  true,
	"yet":      true,
	"although": true,
	"while":    true,
}

// normalizeToken lowercases and strips everything but letters, so "DMK's"
// and "failed." match lexicon entries
func normalizeToken(tok string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tok) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hashtagPolarity scores a single hashtag body (without '#')
func hashtagPolarity(tag string) float64 {
	lower := strings.ToLower(tag)
	for _, w := range hashtagNegative {
		if strings.Contains(lower, w) {
			return -0.7
		}
	}
	for _, w := range hashtagPositive {
		if strings.Contains(lower, w) {
			return 0.7
		}
	}
	return 0
}
