// Package relevance scores page text against a business record's identity.
package relevance

import (
	"strings"

	"github.com/mhertel/leadscout/internal/textnorm"
)

// Address score bonuses. Zip and city must match together; the street match
// is independent, so the maximum combined score is 3.
const (
	zipCityBonus = 2
	streetBonus  = 1
	MaxScore     = zipCityBonus + streetBonus
)

// Criteria bundles everything EvaluatePage needs for one verdict. Keywords
// are expected lower-cased and non-empty; callers render them per record.
type Criteria struct {
	Keywords        []string
	MinKeywordHits  int
	RequireAddress  bool
	Street          string
	Zip             string
	City            string
	AddressMinScore int
}

// AddressScore returns 0-3: +2 when every zip token and every city token is
// contained in the normalized page text (both token sets non-empty), +1 when
// every street token is contained (street token set non-empty). A blank
// component never awards points.
func AddressScore(pageText, street, zip, city string) int {
	page := textnorm.Normalize(pageText)
	streetTokens := textnorm.Tokenize(street)
	zipTokens := textnorm.Tokenize(zip)
	cityTokens := textnorm.Tokenize(city)

	score := 0
	if len(zipTokens) > 0 && len(cityTokens) > 0 &&
		containsAll(page, zipTokens) && containsAll(page, cityTokens) {
		score += zipCityBonus
	}
	if len(streetTokens) > 0 && containsAll(page, streetTokens) {
		score += streetBonus
	}
	return score
}

// KeywordHits sums the non-overlapping substring occurrences of each keyword
// in the normalized page text. Empty keywords contribute nothing.
func KeywordHits(pageText string, keywords []string) int {
	page := textnorm.Normalize(pageText)
	hits := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		hits += strings.Count(page, strings.ToLower(kw))
	}
	return hits
}

// EvaluatePage decides whether a page matches the record. The keyword
// threshold is a hard gate: below it the page is irrelevant no matter how
// well the address matches. The address check only applies when required.
func EvaluatePage(pageText string, c Criteria) bool {
	if KeywordHits(pageText, c.Keywords) < c.MinKeywordHits {
		return false
	}
	if !c.RequireAddress {
		return true
	}
	return AddressScore(pageText, c.Street, c.Zip, c.City) >= c.AddressMinScore
}

func containsAll(page string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(page, tok) {
			return false
		}
	}
	return true
}
