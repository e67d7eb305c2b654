package clinical_ner

import (
	"unicode/utf8"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/intelligence/concept_store"
)

// Span is a detected concept mention over tokens [Start, End).
type Span struct {
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Name       string   `json:"name"`
	Candidates []string `json:"candidates"`
}

// Len returns the number of tokens the span covers.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether s and o share a token.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Names is the part of a concept store the detector needs.
type Names interface {
	Separator() string
	IsFragment(name string) bool
	IsName(name string) bool
	Candidates(name string) []string
}

var _ Names = (*concept_store.Store)(nil)

// Detector grows spans greedily from anchor tokens against a name index.
type Detector struct {
	names Names
	sep   string
	cfg   config.NERConfig
}

// NewDetector returns a Detector over names.
func NewDetector(names Names, cfg config.NERConfig) *Detector {
	return &Detector{names: names, sep: names.Separator(), cfg: cfg}
}

// Detect returns the non-overlapping spans found in tokens, ordered by
// start index.
func (d *Detector) Detect(tokens []Token) []Span {
	var spans []Span
	for i := range tokens {
		span, ok := d.grow(tokens, i)
		if !ok {
			continue
		}
		if overlapsAny(span, spans) {
			continue
		}
		span.Candidates = d.names.Candidates(span.Name)
		spans = append(spans, span)
	}
	return spans
}

func overlapsAny(s Span, committed []Span) bool {
	for _, c := range committed {
		if s.Overlaps(c) {
			return true
		}
	}
	return false
}

// grow extends a span from anchor i and returns the longest full name
// reached on the way.
func (d *Detector) grow(tokens []Token, i int) (Span, bool) {
	anchor := tokens[i]
	if anchor.IsSkip || anchor.IsStop {
		return Span{}, false
	}

	var name string
	switch {
	case d.names.IsFragment(anchor.Norm):
		name = anchor.Norm
	case d.names.IsFragment(anchor.Lower):
		name = anchor.Lower
	default:
		return Span{}, false
	}

	var best Span
	found := false
	if d.accept(name, tokens[i:i+1]) {
		best, found = Span{Start: i, End: i + 1, Name: name}, true
	}

	last := i
	for j := i + 1; j < len(tokens); j++ {
		if j-last-1 > d.cfg.MaxSkipTokens {
			break
		}
		tok := tokens[j]
		if tok.IsSkip {
			continue
		}
		next, ok := d.extend(name, tok)
		if !ok {
			break
		}
		name, last = next, j
		if d.accept(name, tokens[i:j+1]) {
			best, found = Span{Start: i, End: j + 1, Name: name}, true
		}
	}
	return best, found
}

// extend tries forward growth with the token's norm and then its lowercase
// form, and only then the reversed word order.
func (d *Detector) extend(name string, tok Token) (string, bool) {
	for _, form := range [2]string{tok.Norm, tok.Lower} {
		if cand := name + d.sep + form; d.names.IsFragment(cand) {
			return cand, true
		}
	}
	if !d.cfg.TryReverseWordOrder {
		return "", false
	}
	for _, form := range [2]string{tok.Norm, tok.Lower} {
		if cand := form + d.sep + name; d.names.IsFragment(cand) {
			return cand, true
		}
	}
	return "", false
}

// accept reports whether name is a full concept name that passes the length
// rules for the tokens it was built from.
func (d *Detector) accept(name string, tokens []Token) bool {
	if !d.names.IsName(name) {
		return false
	}
	n := utf8.RuneCountInString(name)
	if n < d.cfg.MinNameLen {
		return false
	}
	if d.cfg.CheckUpperCaseNames && n < d.cfg.UpperCaseLimitLen {
		return len(tokens) == 1 && tokens[0].IsUpper
	}
	return true
}
