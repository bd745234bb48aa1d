package reference

import (
	"strconv"
	"strings"
	"unicode"
)

// Outcome classifies a resolution attempt. Ambiguous and NotFound are
// first-class outcomes the caller branches on, never errors.
type Outcome int

const (
	// Resolved means exactly one item matched.
	Resolved Outcome = iota
	// Ambiguous means the utterance matched more than one item; the
	// resolver never guesses.
	Ambiguous
	// NotFound means nothing matched, the position was out of range, or
	// there is no active window.
	NotFound
)

// String returns the audit label for the outcome.
func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Resolution is the result of resolving one utterance against a window.
// It is transient: nothing is written back into the window.
type Resolution struct {
	Outcome Outcome
	Item    Item   // set when Outcome == Resolved
	Matched []Item // candidates when Outcome == Ambiguous, for clarification prompts
}

// ordinalWords maps ordinal words to 1-based positions. "last" is handled
// separately since it depends on window length.
var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

// stopwords are utterance tokens that carry no distinguishing signal for
// descriptive matching.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "one": true, "ones": true,
	"that": true, "this": true, "it": true, "item": true, "option": true,
	"i": true, "me": true, "my": true, "please": true, "want": true,
	"would": true, "like": true, "to": true, "take": true, "buy": true,
	"get": true, "give": true, "show": true, "ill": true, "i'll": true,
}

// Resolve maps an utterance to an item of the window. Resolution order,
// first match wins:
//
//  1. Positional: a bare ordinal numeral ("1", "2") selects the item at
//     that 1-based position; out of range is NotFound.
//  2. Ordinal word: "first".."tenth" select the same way; "last" selects
//     the final element regardless of count.
//  3. Descriptive: tokens matching exactly one item's label resolve to
//     that item; more than one is Ambiguous; none is NotFound.
//
// A nil or empty window always yields NotFound — callers re-list or ask the
// customer to clarify, they never raise.
func Resolve(w *Window, utterance string) Resolution {
	if w == nil || len(w.Items) == 0 {
		return Resolution{Outcome: NotFound}
	}

	// 1. Positional.
	if pos, ok := bareNumeral(utterance); ok {
		return byPosition(w, pos)
	}

	tokens := tokenize(utterance)

	// 2. Ordinal word.
	for _, tok := range tokens {
		if tok == "last" {
			return Resolution{Outcome: Resolved, Item: w.Items[len(w.Items)-1]}
		}
		if pos, ok := ordinalWords[tok]; ok {
			return byPosition(w, pos)
		}
	}

	// 3. Descriptive.
	return byDescription(w, tokens)
}

// byPosition selects the 1-based position, NotFound when out of range.
func byPosition(w *Window, pos int) Resolution {
	if pos < 1 || pos > len(w.Items) {
		return Resolution{Outcome: NotFound}
	}
	return Resolution{Outcome: Resolved, Item: w.Items[pos-1]}
}

// byDescription intersects label matches across meaningful tokens. Tokens
// matching no item at all are ignored; if every token is like that, the
// reference is NotFound rather than ambiguous.
func byDescription(w *Window, tokens []string) Resolution {
	var candidates []Item
	matchedAny := false

	for _, tok := range tokens {
		if stopwords[tok] || len(tok) < 2 {
			continue
		}
		matches := labelMatches(w.Items, tok)
		if len(matches) == 0 {
			continue
		}
		if !matchedAny {
			candidates = matches
			matchedAny = true
			continue
		}
		candidates = intersect(candidates, matches)
	}

	if !matchedAny {
		return Resolution{Outcome: NotFound}
	}
	switch len(candidates) {
	case 0:
		return Resolution{Outcome: NotFound}
	case 1:
		return Resolution{Outcome: Resolved, Item: candidates[0]}
	default:
		return Resolution{Outcome: Ambiguous, Matched: candidates}
	}
}

// labelMatches returns the items whose label contains tok as a whole word,
// case-insensitively.
func labelMatches(items []Item, tok string) []Item {
	var out []Item
	for _, item := range items {
		for _, word := range tokenize(item.Label) {
			if word == tok {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func intersect(a, b []Item) []Item {
	ids := make(map[string]bool, len(b))
	for _, item := range b {
		ids[item.ID] = true
	}
	var out []Item
	for _, item := range a {
		if ids[item.ID] {
			out = append(out, item)
		}
	}
	return out
}

// bareNumeral reports whether the utterance is nothing but a positive
// integer, allowing surrounding whitespace and trailing punctuation.
func bareNumeral(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!?")
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
