package civicscreen

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Report categories used by the default tables.
const (
	CategoryRoad       = "Road & Traffic"
	CategoryWater      = "Water & Drainage"
	CategoryLighting   = "Street Lighting"
	CategorySafety     = "Public Safety"
	CategoryParks      = "Parks & Recreation"
	CategorySanitation = "Garbage & Sanitation"
	CategoryElectric   = "Electricity"
	CategoryOther      = "Other"
)

// minWordRunes is the minimum rune count for a word to be kept as a token.
const minWordRunes = 3

// CategoryKeywords lists the keywords that vote for one category.
type CategoryKeywords struct {
	Category string
	Keywords []string
}

// DefaultCategoryKeywords is the keyword table behind the default text classifier.
// Order breaks ties: earlier categories win.
var DefaultCategoryKeywords = []CategoryKeywords{
	{CategoryParks, []string{"park", "parks", "playground", "garden", "bench", "tree", "trees", "grass", "lawn", "swing"}},
	{CategoryLighting, []string{"streetlight", "streetlights", "lamp", "lamps", "light", "lights", "lighting", "bulb", "dark"}},
	{CategoryWater, []string{"water", "drain", "drainage", "sewer", "flood", "flooded", "flooding", "leak", "leaking", "pipe", "waterlogging", "puddle"}},
	{CategoryRoad, []string{"road", "roads", "pothole", "potholes", "traffic", "street", "signal", "crossing", "footpath", "sidewalk", "speed"}},
	{CategorySanitation, []string{"garbage", "trash", "waste", "litter", "dump", "dumped", "rubbish", "bin", "bins", "smell", "sanitation"}},
	{CategoryElectric, []string{"electricity", "electric", "power", "outage", "wire", "wires", "transformer", "pole", "voltage", "cable"}},
	{CategorySafety, []string{"fire", "accident", "danger", "dangerous", "unsafe", "crime", "theft", "collapse", "collapsed", "injury", "hazard"}},
}

// enStopWords are common English stop words stripped before keyword matching.
var enStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true,
	"that": true, "are": true, "was": true, "were": true, "has": true,
	"have": true, "been": true, "from": true, "not": true, "there": true,
	"its": true, "our": true, "near": true, "very": true, "all": true,
	"into": true, "since": true, "filled": true, "location": true,
}

// KeywordClassifier is a deterministic text classifier voting by keyword hits.
// It needs no model and is the fallback when none is configured.
type KeywordClassifier struct {
	Table []CategoryKeywords // nil = DefaultCategoryKeywords
}

// ClassifyText returns the category with the most keyword hits and the share
// of hits it received. Descriptions with no hits are CategoryOther at 0.
func (k *KeywordClassifier) ClassifyText(_ context.Context, description string) (Classification, error) {
	table := k.Table
	if table == nil {
		table = DefaultCategoryKeywords
	}

	tokens := keywordTokens(description)
	best, bestHits, total := "", 0, 0
	for _, ck := range table {
		hits := countHits(tokens, ck.Keywords)
		total += hits
		if hits > bestHits {
			best, bestHits = ck.Category, hits
		}
	}

	if bestHits == 0 {
		return Classification{Category: CategoryOther}, nil
	}
	return Classification{Category: best, Confidence: float64(bestHits) / float64(total)}, nil
}

// Categories lists the categories of the table in order.
func (k *KeywordClassifier) Categories() []string {
	table := k.Table
	if table == nil {
		table = DefaultCategoryKeywords
	}
	out := make([]string, 0, len(table)+1)
	for _, ck := range table {
		out = append(out, ck.Category)
	}
	return append(out, CategoryOther)
}

func countHits(tokens []string, keywords []string) int {
	n := 0
	for _, t := range tokens {
		for _, kw := range keywords {
			if t == kw {
				n++
				break
			}
		}
	}
	return n
}

// keywordTokens lowercases description and splits it into meaningful words,
// dropping punctuation, English stop words and words under 3 runes.
func keywordTokens(description string) []string {
	var tokens []string
	for _, w := range strings.Fields(description) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}«»—–-")
		if w == "" {
			continue
		}
		lower := strings.ToLower(w)
		if enStopWords[lower] {
			continue
		}
		if utf8.RuneCountInString(lower) < minWordRunes {
			continue
		}
		tokens = append(tokens, lower)
	}
	return tokens
}
