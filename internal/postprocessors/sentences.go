package postprocessors

import (
	"strings"
	"unicode"
)

// abbreviations never end a sentence. Keys are lower case without the final period.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {}, "st": {},
	"vs": {}, "etc": {}, "e.g": {}, "i.e": {}, "cf": {}, "al": {}, "approx": {},
	"fig": {}, "figs": {}, "no": {}, "nos": {}, "vol": {}, "pp": {}, "p": {}, "ch": {},
	"sec": {}, "eq": {}, "ref": {}, "dept": {}, "inc": {}, "ltd": {}, "co": {}, "corp": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {},
	"sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {},
	"u.s": {}, "u.k": {}, "a.m": {}, "p.m": {}, "ph.d": {},
}

const closers = `"')]}’”»`

// SplitSentences splits text into sentences. A sentence ends at '.', '!' or
// '?' (optionally followed by closing quotes or brackets) when the next word
// starts with an upper case letter or a digit, or at the end of the text. Whitespace
// inside a sentence is collapsed to single spaces.
func SplitSentences(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		sentences []string
		start     int
	)
	for i, w := range words {
		if i == len(words)-1 {
			break
		}
		if endsSentence(w) && startsSentence(words[i+1]) {
			sentences = append(sentences, strings.Join(words[start:i+1], " "))
			start = i + 1
		}
	}
	sentences = append(sentences, strings.Join(words[start:], " "))
	return sentences
}

func endsSentence(word string) bool {
	core := strings.TrimRight(word, closers)
	if core == "" {
		return false
	}
	switch core[len(core)-1] {
	case '!', '?':
		return true
	case '.':
	default:
		return false
	}

	stem := strings.TrimRight(core, ".")
	if stem == "" {
		return false
	}
	// Single-letter initials such as "J." in "J. Smith".
	if r := []rune(stem); len(r) == 1 && unicode.IsLetter(r[0]) {
		return false
	}
	stem = strings.TrimLeft(stem, `"'([{‘“«`)
	if _, ok := abbreviations[strings.ToLower(stem)]; ok {
		return false
	}
	return true
}

func startsSentence(word string) bool {
	for _, r := range word {
		if strings.ContainsRune(`"'([{‘“«`, r) {
			continue
		}
		return unicode.IsUpper(r) || unicode.IsDigit(r)
	}
	return false
}
