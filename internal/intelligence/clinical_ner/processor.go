package clinical_ner

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
)

// Token is one tagged and normalised document token.  Tokens are created by
// a Processor and are not modified afterwards.
type Token struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Lower string `json:"lower"`
	// Norm is the form used for concept name lookup.
	Norm  string `json:"norm"`
	Lemma string `json:"lemma"`
	Tag   string `json:"tag"`

	IsPunct bool `json:"is_punct"`
	IsSkip  bool `json:"is_skip"`
	IsStop  bool `json:"is_stop"`
	IsDigit bool `json:"is_digit"`
	IsUpper bool `json:"is_upper"`

	// Corrected is set when Norm was derived from a spelling correction.
	Corrected bool `json:"corrected,omitempty"`

	Start int `json:"start"`
	End   int `json:"end"`
}

// Speller is the spelling correction the processor relies on.
// *spell_checker.Corrector satisfies it.
type Speller interface {
	Known(word string) bool
	Correct(word string) (string, bool)
}

// Processor tags and normalises tokens.  It is immutable and safe for
// concurrent use.
type Processor struct {
	fe      FrontEnd
	speller Speller
	logger  logging.Logger

	skipRe         *regexp.Regexp
	keepPunct      map[string]struct{}
	doNotNormalize map[string]struct{}
	skipStopwords  bool

	spellCheck      bool
	spellLenLimit   int
	minLenNormalize int
}

// NewProcessor builds a Processor from the general and preprocessing
// sections of cfg.  speller may be nil, which disables spell checking.
func NewProcessor(cfg *config.Config, fe FrontEnd, speller Speller, logger logging.Logger) *Processor {
	if fe == nil {
		fe = NewRuleFrontEnd()
	}
	p := &Processor{
		fe:              fe,
		speller:         speller,
		logger:          logging.OrNop(logger),
		skipRe:          compileSkipPattern(cfg.Preprocessing.WordsToSkip),
		keepPunct:       toSet(cfg.Preprocessing.KeepPunct...),
		doNotNormalize:  toSet(cfg.Preprocessing.DoNotNormalize...),
		skipStopwords:   cfg.Preprocessing.SkipStopwords,
		spellCheck:      cfg.General.SpellCheck && speller != nil,
		spellLenLimit:   cfg.General.SpellCheckLenLimit,
		minLenNormalize: cfg.General.MinLenNormalize,
	}
	return p
}

func compileSkipPattern(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(w)))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`^(` + strings.Join(quoted, "|") + `)$`)
}

// FrontEnd returns the processor's front end.
func (p *Processor) FrontEnd() FrontEnd { return p.fe }

// Normalize returns the text that token offsets refer to.
func (p *Processor) Normalize(text string) string { return p.fe.Normalize(text) }

// Process tokenises normalised text and tags every token.
func (p *Processor) Process(text string) []Token {
	return p.process(text, p.spellCheck)
}

func (p *Processor) process(text string, spell bool) []Token {
	raw := p.fe.Tokenize(text)
	out := make([]Token, len(raw))
	for i, rt := range raw {
		out[i] = p.tag(i, rt, spell)
	}
	return out
}

func (p *Processor) tag(i int, rt RawToken, spell bool) Token {
	lower := strings.ToLower(rt.Text)
	t := Token{
		Index:   i,
		Text:    rt.Text,
		Lower:   lower,
		Lemma:   rt.Lemma,
		Tag:     rt.Tag,
		IsStop:  rt.IsStop,
		IsDigit: isAllDigits(lower),
		IsUpper: isAllUpper(rt.Text),
		Start:   rt.Start,
		End:     rt.End,
	}

	if !hasLetterOrDigit(lower) {
		if _, keep := p.keepPunct[lower]; !keep {
			t.IsPunct = true
			t.IsSkip = true
		}
	}
	if !t.IsSkip {
		if (p.skipRe != nil && p.skipRe.MatchString(lower)) || t.IsDigit || (p.skipStopwords && t.IsStop) {
			t.IsSkip = true
		}
	}

	if t.IsSkip {
		t.Norm = lower
		return t
	}
	t.Norm, t.IsSkip = p.normalForm(lower, t.Lemma, t.Tag)
	if t.IsSkip {
		return t
	}

	if spell && !t.IsPunct && utf8.RuneCountInString(lower) >= p.spellLenLimit &&
		!p.speller.Known(lower) && !containsDigit(lower) {
		if fixed, ok := p.speller.Correct(lower); ok {
			lemma, tag := p.fe.Lemmatize(fixed)
			t.Norm, t.IsSkip = p.normalForm(fixed, lemma, tag)
			t.Corrected = true
			p.logger.Debug("token spell-corrected",
				logging.String("from", lower), logging.String("to", fixed))
		}
	}
	return t
}

// normalForm applies the length, tag and pronoun rules to a lowercase word,
// in that order.  The second result reports a pronoun placeholder, which
// makes the token skippable.  Words shorter than min_len_normalize keep their
// lowercase form even when they are pronouns.
func (p *Processor) normalForm(lower, lemma, tag string) (string, bool) {
	if utf8.RuneCountInString(lower) < p.minLenNormalize {
		return lower, false
	}
	if _, ok := p.doNotNormalize[tag]; ok {
		return lower, false
	}
	if lemma == PronounLemma {
		return PronounLemma, true
	}
	if lemma == "" {
		return lower, false
	}
	return strings.ToLower(lemma), false
}

// PrepareName normalises a raw concept name into the tokens a concept store
// is keyed on.  Spell checking is never applied and skippable tokens are
// dropped.
func (p *Processor) PrepareName(name string) []string {
	toks := p.process(p.fe.Normalize(name), false)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.IsSkip {
			continue
		}
		out = append(out, t.Norm)
	}
	return out
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
