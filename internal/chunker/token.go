package chunker

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Metric counts and splits text in tokens.
type Metric interface {
	Name() string
	Count(text string) int
	// Split breaks text into pieces of at most maxTokens each, preferring
	// sentence boundaries, then word boundaries, then token boundaries
	// inside a word. Pieces are consecutive substrings of text: neighbours
	// are separated by the single space they were cut at, or by nothing
	// when a word was cut.
	Split(text string, maxTokens int) []string
}

// Strategy selects a Metric.
type Strategy string

const (
	StrategyApproximate Strategy = "approximate"
	StrategyExact       Strategy = "exact"
)

// DefaultEncoding is the tiktoken encoding used by the exact strategy.
const DefaultEncoding = "cl100k_base"

// ParseStrategy accepts the strategy names and their aliases
// ("simple" for approximate, "tokenizer" for exact).
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approximate", "simple", "":
		return StrategyApproximate, nil
	case "exact", "tokenizer":
		return StrategyExact, nil
	}
	return "", fmt.Errorf("unknown chunking strategy %q", s)
}

// NewMetric builds the metric for a strategy. When the exact tokenizer
// cannot be loaded it logs a warning and returns the approximate metric.
func NewMetric(strategy Strategy, encoding string, log *slog.Logger) Metric {
	if strategy != StrategyExact {
		return Approximate{}
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		if log != nil {
			log.Warn("exact tokenizer unavailable, using approximate token counts",
				"encoding", encoding, "error", err)
		}
		return Approximate{}
	}
	return &Exact{enc: enc, encoding: encoding}
}

var approxToken = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)

// Approximate counts every word and every punctuation rune as one token.
// On English prose this stays within about 25% of cl100k_base and it
// undercounts long or rare words, so budgets should leave headroom.
type Approximate struct{}

func (Approximate) Name() string { return string(StrategyApproximate) }

func (Approximate) Count(text string) int {
	return len(approxToken.FindAllStringIndex(text, -1))
}

func (a Approximate) Split(text string, maxTokens int) []string {
	return splitByCount(text, maxTokens, a.Count, cutApproximate)
}

// cutApproximate cuts a word at the start of every maxTokens-th token.
func cutApproximate(word string, maxTokens int) []string {
	idx := approxToken.FindAllStringIndex(word, -1)
	var out []string
	start := 0
	for k := maxTokens; k < len(idx); k += maxTokens {
		out = append(out, word[start:idx[k][0]])
		start = idx[k][0]
	}
	return append(out, word[start:])
}

// Exact counts tokens with a tiktoken encoding.
type Exact struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

func (e *Exact) Name() string { return string(StrategyExact) + ":" + e.encoding }

func (e *Exact) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}

func (e *Exact) Split(text string, maxTokens int) []string {
	return splitByCount(text, maxTokens, e.Count, func(word string, limit int) []string {
		return cutByPrefix(word, limit, e.Count)
	})
}

// cutByPrefix repeatedly takes the longest rune prefix of word that counts
// at most maxTokens. Every fragment holds at least one rune.
func cutByPrefix(word string, maxTokens int, count func(string) int) []string {
	var out []string
	for word != "" {
		bounds := runeBounds(word)
		n := sort.Search(len(bounds), func(i int) bool {
			return count(word[:bounds[i]]) > maxTokens
		})
		if n == 0 {
			n = 1
		}
		cut := bounds[n-1]
		out = append(out, word[:cut])
		word = word[cut:]
	}
	return out
}

// runeBounds returns the byte offset just past each rune of s.
func runeBounds(s string) []int {
	bounds := make([]int, 0, len(s))
	for i, r := range s {
		bounds = append(bounds, i+utf8.RuneLen(r))
	}
	return bounds
}

// unit is a sentence, word or word fragment. glued units follow the
// previous unit with no space between them.
type unit struct {
	text  string
	glued bool
}

// splitByCount packs sentences greedily into pieces of at most maxTokens.
// Sentences that are too long on their own are packed word by word, and
// words that are too long on their own are cut into fragments.
func splitByCount(text string, maxTokens int, count func(string) int, cut func(string, int) []string) []string {
	if text == "" {
		return nil
	}
	if maxTokens <= 0 || count(text) <= maxTokens {
		return []string{text}
	}

	var units []unit
	for _, sent := range splitSentences(text) {
		if count(sent) <= maxTokens {
			units = append(units, unit{text: sent})
			continue
		}
		for _, w := range strings.Split(sent, " ") {
			if count(w) <= maxTokens {
				units = append(units, unit{text: w})
				continue
			}
			for i, frag := range cut(w, maxTokens) {
				units = append(units, unit{text: frag, glued: i > 0})
			}
		}
	}

	var pieces []string
	current := ""
	for _, u := range units {
		if current == "" {
			current = u.text
			continue
		}
		sep := " "
		if u.glued {
			sep = ""
		}
		candidate := current + sep + u.text
		if count(candidate) <= maxTokens {
			current = candidate
			continue
		}
		pieces = append(pieces, current)
		current = u.text
	}
	pieces = append(pieces, current)
	return pieces
}

// splitSentences cuts after words ending in terminal punctuation,
// optionally followed by closing quotes or brackets.
func splitSentences(text string) []string {
	words := strings.Split(text, " ")
	var out []string
	start := 0
	for i, w := range words {
		if endsSentence(w) && i < len(words)-1 {
			out = append(out, strings.Join(words[start:i+1], " "))
			start = i + 1
		}
	}
	return append(out, strings.Join(words[start:], " "))
}

func endsSentence(word string) bool {
	w := strings.TrimRight(word, `"')]}”’»`)
	if w == "" {
		return false
	}
	switch w[len(w)-1] {
	case '.', '!', '?':
		return true
	}
	return strings.HasSuffix(w, "…")
}
