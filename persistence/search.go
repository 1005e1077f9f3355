package persistence

import (
	"sort"
	"strings"
	"unicode"
)

// Scoring weights for a single search term.
const (
	scoreNameExact    = 10
	scoreNameContains = 5
	scoreDescription  = 3
	scorePath         = 2
	scoreDocument     = 1
	scoreFeatureBase  = 2
)

// Entry is one service with everything search needs to score it.
type Entry struct {
	Service  Service
	Docs     []DocumentMapping
	Features []Feature
}

// SearchResult is a ranked match.
type SearchResult struct {
	Service         Service           `json:"service"`
	Score           float64           `json:"score"`
	Documents       []DocumentMapping `json:"documents"`
	MatchedFeatures []string          `json:"matched_features,omitempty"`
}

type scorer func(e *Entry) (float64, []string)

// RankQuery scores entries against query as a single case-insensitive term.
func RankQuery(entries []Entry, query string) []SearchResult {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return nil
	}
	return rank(entries, func(e *Entry) (float64, []string) {
		return scoreTerm(e, term)
	})
}

// RankFeature scores entries only by the features they own.
func RankFeature(entries []Entry, feature string) []SearchResult {
	term := strings.ToLower(strings.TrimSpace(feature))
	if term == "" {
		return nil
	}
	return rank(entries, func(e *Entry) (float64, []string) {
		return scoreFeatures(e, term)
	})
}

// RankKeyword splits keyword on runs of non-alphanumeric characters and
// sums per-token scores.
func RankKeyword(entries []Entry, keyword string) []SearchResult {
	tokens := Tokenize(keyword)
	if len(tokens) == 0 {
		return nil
	}
	return rank(entries, func(e *Entry) (float64, []string) {
		var total float64
		var matched []string
		for _, tok := range tokens {
			s, m := scoreTerm(e, tok)
			total += s
			matched = appendUnique(matched, m...)
		}
		return total, matched
	})
}

// Tokenize lowercases s and splits it into alphanumeric tokens.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func scoreTerm(e *Entry, term string) (float64, []string) {
	var score float64

	name := strings.ToLower(e.Service.Name)
	switch {
	case name == term:
		score += scoreNameExact
	case strings.Contains(name, term):
		score += scoreNameContains
	}
	if strings.Contains(strings.ToLower(e.Service.Description), term) {
		score += scoreDescription
	}
	if strings.Contains(strings.ToLower(e.Service.Path), term) {
		score += scorePath
	}
	for _, d := range e.Docs {
		if strings.Contains(strings.ToLower(d.Location), term) || strings.Contains(strings.ToLower(d.Title), term) {
			score += scoreDocument
			break
		}
	}

	fs, matched := scoreFeatures(e, term)
	return score + fs, matched
}

func scoreFeatures(e *Entry, term string) (float64, []string) {
	var score float64
	var matched []string
	for _, f := range e.Features {
		if !featureMatches(f, term) {
			continue
		}
		score += f.Relevance + scoreFeatureBase
		matched = appendUnique(matched, f.Name)
	}
	return score, matched
}

func featureMatches(f Feature, term string) bool {
	if strings.Contains(strings.ToLower(f.Name), term) || strings.Contains(strings.ToLower(f.Description), term) {
		return true
	}
	for _, k := range f.Keywords {
		if strings.Contains(strings.ToLower(k), term) {
			return true
		}
	}
	return false
}

func rank(entries []Entry, score scorer) []SearchResult {
	var results []SearchResult
	for i := range entries {
		e := &entries[i]
		s, matched := score(e)
		if s <= 0 {
			continue
		}
		results = append(results, SearchResult{
			Service:         e.Service,
			Score:           s,
			Documents:       append([]DocumentMapping(nil), e.Docs...),
			MatchedFeatures: matched,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Service.Name < results[j].Service.Name
	})
	return results
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
