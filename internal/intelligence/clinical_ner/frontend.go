// Package clinical_ner turns raw clinical text into tagged, normalised tokens
// and detects the token spans that name concepts in a concept store.
package clinical_ner

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// PronounLemma is the lemma placeholder assigned to personal pronouns.
const PronounLemma = "-PRON-"

// RawToken is what a FrontEnd produces for each token of a document.
// Start and End are byte offsets into the NFC-normalised text.
type RawToken struct {
	Text   string
	Lemma  string
	Tag    string
	IsStop bool
	Start  int
	End    int
}

// FrontEnd is the generic NLP layer in front of the processor.
type FrontEnd interface {
	// Normalize returns the text that token offsets refer to.
	Normalize(text string) string
	// Tokenize splits normalised text into tokens.
	Tokenize(text string) []RawToken
	// Lemmatize returns the lemma and part-of-speech tag of a single word.
	Lemmatize(word string) (lemma, tag string)
	// IsStopword reports whether the lowercase word is a stopword.
	IsStopword(lower string) bool
}

// RuleFrontEnd is a dependency-free English FrontEnd.  It emits Penn
// Treebank style tags from closed word lists and suffix rules.  Lemmas are
// lowercase forms with regular plurals stripped.
type RuleFrontEnd struct {
	stopwords map[string]struct{}
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+(?:['’][\p{L}]+)?|[^\s\p{L}\p{M}\p{N}]`)

// NewRuleFrontEnd returns a RuleFrontEnd using the built-in stopword list
// plus extra.
func NewRuleFrontEnd(extra ...string) *RuleFrontEnd {
	sw := make(map[string]struct{}, len(englishStopwords)+len(extra))
	for _, w := range englishStopwords {
		sw[w] = struct{}{}
	}
	for _, w := range extra {
		sw[strings.ToLower(w)] = struct{}{}
	}
	return &RuleFrontEnd{stopwords: sw}
}

func (f *RuleFrontEnd) Normalize(text string) string {
	return norm.NFC.String(text)
}

func (f *RuleFrontEnd) Tokenize(text string) []RawToken {
	locs := tokenPattern.FindAllStringIndex(text, -1)
	out := make([]RawToken, 0, len(locs))
	for _, loc := range locs {
		word := text[loc[0]:loc[1]]
		lemma, tag := f.Lemmatize(word)
		out = append(out, RawToken{
			Text:   word,
			Lemma:  lemma,
			Tag:    tag,
			IsStop: f.IsStopword(strings.ToLower(word)),
			Start:  loc[0],
			End:    loc[1],
		})
	}
	return out
}

func (f *RuleFrontEnd) IsStopword(lower string) bool {
	_, ok := f.stopwords[lower]
	return ok
}

func (f *RuleFrontEnd) Lemmatize(word string) (string, string) {
	lower := strings.ToLower(word)
	n := utf8.RuneCountInString(lower)

	switch {
	case lower == "":
		return "", "XX"
	case isPronoun(lower):
		return PronounLemma, "PRP"
	case isAllDigits(lower):
		return lower, "CD"
	case !hasLetterOrDigit(lower):
		return lower, punctTag(lower)
	}
	if tag, ok := closedClass[lower]; ok {
		return lower, tag
	}
	if isAllUpper(word) && n > 1 {
		return lower, "NNP"
	}
	switch {
	case n > 5 && strings.HasSuffix(lower, "ing"):
		return lower, "VBG"
	case n > 4 && strings.HasSuffix(lower, "ed"):
		return lower, "VBD"
	case n > 4 && strings.HasSuffix(lower, "ies"):
		return strings.TrimSuffix(lower, "ies") + "y", "NNS"
	case n > 3 && strings.HasSuffix(lower, "s") && !hasAnySuffix(lower, "ss", "us", "is", "es"):
		return strings.TrimSuffix(lower, "s"), "NNS"
	}
	return lower, "NN"
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func punctTag(s string) string {
	switch s {
	case ".", "!", "?":
		return "."
	case ",":
		return ","
	case ":", ";":
		return ":"
	case "(", "[", "{":
		return "-LRB-"
	case ")", "]", "}":
		return "-RRB-"
	}
	return "SYM"
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// isAllUpper reports whether s has at least one letter and no lowercase
// letters.
func isAllUpper(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if unicode.IsLower(r) {
				return false
			}
			letters++
		}
	}
	return letters > 0
}

func isPronoun(lower string) bool {
	_, ok := pronouns[lower]
	return ok
}

var pronouns = toSet(
	"i", "me", "my", "mine", "myself",
	"you", "your", "yours", "yourself", "yourselves",
	"he", "him", "his", "himself",
	"she", "her", "hers", "herself",
	"it", "its", "itself",
	"we", "us", "our", "ours", "ourselves",
	"they", "them", "their", "theirs", "themselves",
)

var closedClass = func() map[string]string {
	m := make(map[string]string)
	for _, w := range []string{"a", "an", "the", "this", "that", "these", "those", "each", "every", "no", "some", "any", "all"} {
		m[w] = "DT"
	}
	for _, w := range []string{"of", "in", "on", "at", "by", "for", "with", "without", "from", "to", "into", "over", "under", "after", "before", "since", "during", "about", "per"} {
		m[w] = "IN"
	}
	for _, w := range []string{"and", "or", "but", "nor"} {
		m[w] = "CC"
	}
	for _, w := range []string{"can", "could", "may", "might", "must", "shall", "should", "will", "would"} {
		m[w] = "MD"
	}
	for _, w := range []string{"is", "are", "am"} {
		m[w] = "VBZ"
	}
	for _, w := range []string{"was", "were"} {
		m[w] = "VBD"
	}
	m["not"] = "RB"
	m["be"] = "VB"
	m["been"] = "VBN"
	m["has"] = "VBZ"
	m["have"] = "VBP"
	m["had"] = "VBD"
	return m
}()

var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
	"down", "during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more",
	"most", "my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "ours", "ourselves", "out", "over", "own", "same",
	"she", "should", "so", "some", "such", "than", "that", "the", "their", "theirs",
	"them", "themselves", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was", "we", "were",
	"what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your", "yours", "yourself", "yourselves",
}

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
