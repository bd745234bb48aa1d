package conversation

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// DetectLanguage infers the customer's language from the utterance script.
// Script inspection is deterministic and cheap; Latin-script text defaults
// to English since word-level identification is the generator's job, not
// ours. The returned tag feeds the language directive in composition.
func DetectLanguage(text string) language.Tag {
	counts := map[string]int{}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			counts["zh"]++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			counts["ja"]++
		case unicode.Is(unicode.Hangul, r):
			counts["ko"]++
		case unicode.Is(unicode.Cyrillic, r):
			counts["ru"]++
		case unicode.Is(unicode.Arabic, r):
			counts["ar"]++
		case unicode.Is(unicode.Thai, r):
			counts["th"]++
		case unicode.Is(unicode.Devanagari, r):
			counts["hi"]++
		case unicode.Is(unicode.Hebrew, r):
			counts["he"]++
		}
	}

	// Hiragana/Katakana wins over Han for mixed Japanese text, so check it
	// before the general maximum.
	if counts["ja"] > 0 {
		return language.Japanese
	}

	best, bestCount := "", 0
	for code, n := range counts {
		if n > bestCount {
			best, bestCount = code, n
		}
	}
	if bestCount == 0 {
		return language.English
	}

	tag, err := language.Parse(best)
	if err != nil {
		return language.English
	}
	return tag
}

// DetectEnergy classifies the customer's register from surface features:
// exclamation marks, emoji, and shouty capitalization raise it; very terse
// messages lower it.
func DetectEnergy(text string) Energy {
	var exclaims, emoji, letters, upper int
	for _, r := range text {
		switch {
		case r == '!' || r == '！':
			exclaims++
		case r >= 0x1F300 && r <= 0x1FAFF: // pictographs
			emoji++
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}

	score := exclaims + 2*emoji
	if letters >= 4 && float64(upper)/float64(letters) > 0.6 {
		score += 2
	}

	switch {
	case score >= 2:
		return EnergyHigh
	case score == 0 && utf8.RuneCountInString(text) <= 3:
		return EnergyLow
	default:
		return EnergyNeutral
	}
}
