package analytics

import (
	"strings"
	"unicode"
)

// DefaultTopicLimit is how many topics a summary reports.
const DefaultTopicLimit = 5

// minTopicTokenLength filters short filler tokens before stopword checks.
const minTopicTokenLength = 4

// TopicExtractor ranks recurring topics across mission titles. Implementations
// may range from simple keyword counting to real NLP; the aggregator only
// depends on this contract.
type TopicExtractor interface {
	// Topics returns up to limit topics ordered by descending relevance.
	Topics(titles []string, limit int) []string
}

// StopwordExtractor is the default TopicExtractor: a heuristic keyword count.
// Titles are tokenized on whitespace, lowercased, stripped of non-letter
// runes (diacritics kept), then short tokens and stopwords are dropped and
// the remainder ranked by frequency with ties broken by first appearance.
// It counts words, it does not model topics; treat the output as a rough
// signal, not semantics.
type StopwordExtractor struct {
	stopwords map[string]bool
}

// defaultStopwords covers Portuguese and English filler words that dominate
// mission titles without carrying topical meaning. Tokens of length three or
// less are filtered before this list applies, so short fillers are omitted.
var defaultStopwords = []string{
	// Portuguese
	"sobre", "para", "pela", "pelo", "pelas", "pelos", "como", "mais",
	"desta", "deste", "esta", "este", "essa", "esse", "aquela", "aquele",
	"quando", "onde", "entre", "depois", "antes", "ainda", "todo", "toda",
	"todos", "todas", "minha", "meus", "minhas", "nosso", "nossa", "vamos",
	"fazer", "cada", "momento", "tempo", "hoje",
	// English
	"with", "from", "this", "that", "your", "about", "into", "over",
	"after", "before", "through", "every", "their", "these", "those",
	"what", "when", "where", "will", "have", "been",
}

// NewStopwordExtractor builds the default extractor.
func NewStopwordExtractor() *StopwordExtractor {
	sw := make(map[string]bool, len(defaultStopwords))
	for _, w := range defaultStopwords {
		sw[w] = true
	}
	return &StopwordExtractor{stopwords: sw}
}

// Topics implements TopicExtractor.
func (x *StopwordExtractor) Topics(titles []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultTopicLimit
	}
	counts := make(map[string]int)
	var order []string
	for _, title := range titles {
		for _, raw := range strings.Fields(title) {
			token := normalizeToken(raw)
			if len([]rune(token)) < minTopicTokenLength || x.stopwords[token] {
				continue
			}
			if counts[token] == 0 {
				order = append(order, token)
			}
			counts[token]++
		}
	}

	// Stable sort keeps first-seen order among equal counts.
	ranked := make([]string, len(order))
	copy(ranked, order)
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && counts[ranked[j]] > counts[ranked[j-1]]; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// normalizeToken lowercases and drops every non-letter rune. Diacritics are
// letters and survive, so "Oração" and "oração" collapse together while
// "família," loses only the comma.
func normalizeToken(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
