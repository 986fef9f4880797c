package search

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pders01/ntrack/internal/tracker"
)

// Result is a tracker that matched a query
type Result struct {
	Tracker *tracker.Tracker `json:"tracker"`
	Score   float64          `json:"score"`
	Matches []Match          `json:"matches,omitempty"`
}

// Match represents where text was found
type Match struct {
	Field  string  `json:"field"` // "title", "content", "source", "type"
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// Engine scores trackers in memory without an index. It is the fallback
// when no index path is configured.
type Engine struct {
	src Source
	now func() time.Time
}

func NewEngine(src Source) *Engine {
	return &Engine{src: src, now: time.Now}
}

// Search scores every tracker against query and returns the best matches.
func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	now := e.now()
	var results []*Result
	for _, t := range e.src.List() {
		if r := e.searchTracker(t, terms, now); r != nil {
			results = append(results, r)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) searchTracker(t *tracker.Tracker, terms []string, now time.Time) *Result {
	var matches []Match
	var total float64

	add := func(field, text string, weight float64, snippet int) {
		if s := scoreField(text, terms, weight); s > 0 {
			matches = append(matches, Match{Field: field, Text: truncate(text, snippet), Weight: s})
			total += s
		}
	}

	add("title", t.DisplayTitle(), 3.0, 100)
	if fc := t.FeedContent; fc != nil {
		add("content", fc.DisplayedContent, 2.0, 150)
		add("excerpt", fc.FetchedContent, 1.0, 150)
	}
	add("type", t.Type.Label(), 1.0, 50)
	add("source", t.Source, 0.5, 100)

	if total == 0 {
		return nil
	}
	// new content ranks slightly higher
	if t.IsFresh(now) {
		total *= 1.1
	}
	return &Result{Tracker: t, Score: total, Matches: matches}
}

// scoreField calculates relevance score for a field
func scoreField(text string, terms []string, weight float64) float64 {
	if text == "" {
		return 0
	}

	lower := strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var score float64
	matchedTerms := 0

	for _, term := range terms {
		if strings.Contains(lower, term) {
			score += 2.0
			matchedTerms++
		}

		for _, word := range words {
			switch {
			case word == term:
				score += 1.5
				matchedTerms++
			case strings.HasPrefix(word, term) || strings.HasSuffix(word, term):
				score += 1.0
				matchedTerms++
			case strings.Contains(word, term):
				score += 0.5
				matchedTerms++
			}
		}
	}

	if len(terms) > 1 && matchedTerms > 1 {
		score *= 1.0 + float64(matchedTerms)/float64(len(terms))
	}

	tf := float64(matchedTerms) / float64(len(words))
	score *= 1.0 + math.Log(1.0+tf)

	return score * weight
}

// tokenize breaks text into lower cased terms of two or more characters
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len([]rune(term)) > 1 {
				terms = append(terms, term)
			}
			current.Reset()
		}
	}

	if len([]rune(current.String())) > 1 {
		terms = append(terms, current.String())
	}

	return terms
}

// truncate limits text length with ellipsis
func truncate(text string, maxLen int) string {
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen-1]) + "…"
}
