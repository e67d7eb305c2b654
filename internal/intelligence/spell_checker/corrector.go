// Package spell_checker implements frequency-ranked edit-distance spelling
// correction over a table of known words.
package spell_checker

import (
	"sort"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Options tune a Corrector.
type Options struct {
	// Deep enables edit-distance-2 candidates when no distance-1 word is
	// known.
	Deep bool
	// Diacritics extends the edit alphabet with accented Latin letters.
	Diacritics bool
	// MaxWordRunes bounds the input length; longer words are never corrected.
	// Zero means 40.
	MaxWordRunes int
}

// Suggestion is a ranked correction candidate.
type Suggestion struct {
	Term      string `json:"term"`
	Distance  int    `json:"distance"`
	Frequency uint64 `json:"frequency"`
}

// Corrector is immutable and safe for concurrent use.
type Corrector struct {
	known    map[string]uint64
	alphabet []rune
	opts     Options
}

const defaultMaxWordRunes = 40

// NewCorrector returns a Corrector over known, a word → frequency table.  The
// map is retained, not copied; callers must not modify it afterwards.
func NewCorrector(known map[string]uint64, opts Options) *Corrector {
	if opts.MaxWordRunes <= 0 {
		opts.MaxWordRunes = defaultMaxWordRunes
	}
	if known == nil {
		known = map[string]uint64{}
	}
	alphabet := []rune("abcdefghijklmnopqrstuvwxyz")
	if opts.Diacritics {
		alphabet = append(alphabet, accentedLetters()...)
	}
	return &Corrector{known: known, alphabet: alphabet, opts: opts}
}

// Known reports whether word is in the table.
func (c *Corrector) Known(word string) bool {
	_, ok := c.known[word]
	return ok
}

// Correct returns the best correction of word and true, or "" and false when
// word is already known or no better candidate exists.
func (c *Corrector) Correct(word string) (string, bool) {
	s := c.Suggest(word)
	if len(s) == 0 || s[0].Term == word {
		return "", false
	}
	return s[0].Term, true
}

// Suggest returns the known candidates for word, ranked by frequency
// descending then lexicographically.  A known word yields itself alone.
func (c *Corrector) Suggest(word string) []Suggestion {
	if word == "" {
		return nil
	}
	if f, ok := c.known[word]; ok {
		return []Suggestion{{Term: word, Distance: 0, Frequency: f}}
	}
	runes := []rune(word)
	if len(runes) > c.opts.MaxWordRunes {
		return nil
	}

	found := make(map[string]int)
	c.edits1(runes, func(cand []rune) {
		s := string(cand)
		if _, ok := c.known[s]; ok {
			found[s] = 1
		}
	})

	if len(found) == 0 && c.opts.Deep {
		seen := make(map[string]struct{})
		c.edits1(runes, func(e1 []rune) {
			k := string(e1)
			if _, dup := seen[k]; dup {
				return
			}
			seen[k] = struct{}{}
			c.edits1(e1, func(e2 []rune) {
				s := string(e2)
				if _, ok := c.known[s]; ok && s != word {
					if _, have := found[s]; !have {
						found[s] = 2
					}
				}
			})
		})
	}

	out := make([]Suggestion, 0, len(found))
	for term, dist := range found {
		out = append(out, Suggestion{Term: term, Distance: dist, Frequency: c.known[term]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// edits1 calls emit with every string at edit distance one from w: deletes,
// transposes, substitutions and inserts over the alphabet.  The slice passed
// to emit is reused between calls.
func (c *Corrector) edits1(w []rune, emit func([]rune)) {
	n := len(w)
	buf := make([]rune, 0, n+1)

	for i := 0; i < n; i++ {
		buf = append(append(buf[:0], w[:i]...), w[i+1:]...)
		emit(buf)
	}
	for i := 0; i < n-1; i++ {
		if w[i] == w[i+1] {
			continue
		}
		buf = append(buf[:0], w...)
		buf[i], buf[i+1] = buf[i+1], buf[i]
		emit(buf)
	}
	for i := 0; i < n; i++ {
		for _, r := range c.alphabet {
			if r == w[i] {
				continue
			}
			buf = append(buf[:0], w...)
			buf[i] = r
			emit(buf)
		}
	}
	for i := 0; i <= n; i++ {
		for _, r := range c.alphabet {
			buf = append(append(append(buf[:0], w[:i]...), r), w[i:]...)
			emit(buf)
		}
	}
}

// accentedLetters lists the lowercase Latin-1 and Latin Extended-A letters
// whose canonical decomposition is an ASCII letter plus combining marks.
func accentedLetters() []rune {
	var out []rune
	for r := rune(0x00C0); r <= 0x017F; r++ {
		if !unicode.IsLower(r) {
			continue
		}
		d := []rune(norm.NFD.String(string(r)))
		if len(d) < 2 || d[0] < 'a' || d[0] > 'z' {
			continue
		}
		out = append(out, r)
	}
	return out
}
