// Package classify assigns coarse category labels to department and aisle
// names using ordered keyword rule lists. Classification is pure and
// deterministic: the same name always yields the same label, which keeps
// dimension loads idempotent at the classification level.
//
// Rules are evaluated top to bottom; the first rule containing a matching
// keyword wins, and names matching nothing fall into the "General" bucket.
package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Rule pairs a label with the keywords that select it. A keyword matches when
// it appears as a substring of the folded name.
type Rule struct {
	Label    string
	Keywords []string
}

// DefaultLabel is the fallback for names no rule matches.
const DefaultLabel = "General"

// departmentRules map department names onto the four coarse categories the
// reporting layer groups by.
var departmentRules = []Rule{
	{"Food", []string{"produce", "frozen", "meat", "seafood", "deli"}},
	{"Beverage", []string{"dairy", "beverages", "alcohol"}},
	{"Personal Care", []string{"personal", "beauty", "health"}},
	{"Household", []string{"household", "pets"}},
}

// aisleRules map aisle names onto shelf-type buckets.
var aisleRules = []Rule{
	{"Fresh", []string{"fresh", "produce", "fruit", "vegetable"}},
	{"Frozen", []string{"frozen", "ice"}},
	{"Beverage", []string{"beverage", "drink", "juice", "soda", "water"}},
	{"Snacks", []string{"snack", "candy", "chocolate", "cookies"}},
	{"Dairy", []string{"dairy", "milk", "yogurt", "cheese"}},
	{"Dry Goods", []string{"packaged", "canned", "dry"}},
}

// Department returns the coarse category for a department name.
func Department(name string) string {
	return match(departmentRules, name)
}

// Aisle returns the shelf-type label for an aisle name.
func Aisle(name string) string {
	return match(aisleRules, name)
}

func match(rules []Rule, name string) string {
	folded := Fold(name)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(folded, kw) {
				return r.Label
			}
		}
	}
	return DefaultLabel
}

// foldTransform strips combining marks after NFD decomposition, so accented
// source names ("café") still hit their ASCII keywords.
var foldTransform = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lowercases name and removes diacritics for keyword matching.
func Fold(name string) string {
	ascii, _, err := transform.String(foldTransform, name)
	if err != nil {
		ascii = name
	}
	return strings.ToLower(ascii)
}
