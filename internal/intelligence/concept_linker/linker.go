package concept_linker

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/internal/intelligence/clinical_ner"
	"github.com/turtacn/ClinLink/internal/intelligence/common"
	"github.com/turtacn/ClinLink/internal/intelligence/concept_store"
)

// maxBoosted caps a similarity raised by a preference boost.
const maxBoosted = 0.99

// frequentConceptMinCount is the training count a concept needs before the
// frequency preference applies to it.
const frequentConceptMinCount = 10

// Outcome records how a span was resolved.
type Outcome int

const (
	OutcomeFastPath Outcome = iota + 1
	OutcomeAccepted
	OutcomeRejectedThreshold
	OutcomeRejectedFiltered
	OutcomeRejectedPolicy
)

var outcomeNames = map[Outcome]string{
	OutcomeFastPath:          "fast_path",
	OutcomeAccepted:          "accepted",
	OutcomeRejectedThreshold: "rejected_threshold",
	OutcomeRejectedFiltered:  "rejected_filtered",
	OutcomeRejectedPolicy:    "rejected_policy",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Accepted reports whether the outcome keeps the entity.
func (o Outcome) Accepted() bool {
	return o == OutcomeFastPath || o == OutcomeAccepted
}

// Outcomes lists every outcome, in declaration order.
func Outcomes() []Outcome {
	return []Outcome{OutcomeFastPath, OutcomeAccepted, OutcomeRejectedThreshold, OutcomeRejectedFiltered, OutcomeRejectedPolicy}
}

// LinkedEntity is a span resolved to a concept.  Start and End are byte
// offsets into the normalised document text.
type LinkedEntity struct {
	Span       clinical_ner.Span `json:"span"`
	CUI        string            `json:"cui"`
	Similarity float64           `json:"similarity"`
	Outcome    Outcome           `json:"outcome"`
	Text       string            `json:"text"`
	Start      int               `json:"start"`
	End        int               `json:"end"`
}

// Linker resolves spans to concepts.  It is immutable and safe for
// concurrent use.
type Linker struct {
	store  *concept_store.Store
	model  *ContextModel
	cfg    config.LinkingConfig
	logger logging.Logger

	include map[string]struct{}
	exclude map[string]struct{}
}

// NewLinker returns a Linker using model for context similarity.
func NewLinker(store *concept_store.Store, model *ContextModel, cfg config.LinkingConfig, logger logging.Logger) *Linker {
	return &Linker{
		store:   store,
		model:   model,
		cfg:     cfg,
		logger:  logging.OrNop(logger),
		include: stringSet(cfg.Filters.Include),
		exclude: stringSet(cfg.Filters.Exclude),
	}
}

func stringSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		out[s] = struct{}{}
	}
	return out
}

// Filter applies the include and exclude lists to candidates, preserving
// order.
func (l *Linker) Filter(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, cui := range candidates {
		if len(l.include) > 0 {
			if _, ok := l.include[cui]; !ok {
				continue
			}
		}
		if _, ok := l.exclude[cui]; ok {
			continue
		}
		out = append(out, cui)
	}
	return out
}

// Link resolves one span.  The returned entity always carries an Outcome;
// callers drop entities whose outcome is not accepted.
func (l *Linker) Link(tokens []clinical_ner.Token, span clinical_ner.Span) LinkedEntity {
	ent := LinkedEntity{Span: span}
	if span.Start >= 0 && span.End <= len(tokens) && span.Start < span.End {
		ent.Start = tokens[span.Start].Start
		ent.End = tokens[span.End-1].End
	}

	cands := l.Filter(span.Candidates)
	if len(cands) == 0 {
		ent.Outcome = OutcomeRejectedFiltered
		return ent
	}

	if l.fastPath(span.Name, cands) {
		ent.CUI, ent.Similarity, ent.Outcome = cands[0], 1, OutcomeFastPath
		return ent
	}

	ctx := l.model.ContextVectors(tokens, span, "")
	ent.CUI, ent.Similarity = l.pick(span.Name, cands, ctx)
	ent.Outcome = l.threshold(ent.CUI, ent.Similarity)
	return ent
}

// LinkAll resolves spans in order and returns only accepted entities.
func (l *Linker) LinkAll(tokens []clinical_ner.Token, spans []clinical_ner.Span) []LinkedEntity {
	out := make([]LinkedEntity, 0, len(spans))
	for _, s := range spans {
		if ent := l.Link(tokens, s); ent.Outcome.Accepted() {
			out = append(out, ent)
		}
	}
	return out
}

func (l *Linker) fastPath(name string, cands []string) bool {
	if len(cands) != 1 || l.cfg.AlwaysCalculateSimilarity {
		return false
	}
	if utf8.RuneCountInString(name) < l.cfg.DisambLengthLimit {
		return false
	}
	st := l.store.Status(name, cands[0])
	return st == concept_store.StatusPrimary || st == concept_store.StatusAutomatic
}

// Disambiguate scores every candidate of span and returns the best one with
// its boosted similarity.  No candidates yields ("", 0).
func (l *Linker) Disambiguate(tokens []clinical_ner.Token, span clinical_ner.Span, candidates []string) (string, float64) {
	if len(candidates) == 0 {
		return "", 0
	}
	return l.pick(span.Name, candidates, l.model.ContextVectors(tokens, span, ""))
}

func (l *Linker) pick(name string, candidates []string, ctx map[string]common.Vector) (string, float64) {
	cands := append([]string(nil), candidates...)
	sort.Strings(cands)

	sims := make([]float64, len(cands))
	for i, cui := range cands {
		sims[i] = l.model.Similarity(cui, ctx)
	}

	if l.cfg.PreferPrimaryName > 0 {
		for i, cui := range cands {
			if sims[i] > 0 && l.store.Status(name, cui).IsPrimary() {
				sims[i] = math.Min(maxBoosted, sims[i]*(1+l.cfg.PreferPrimaryName))
			}
		}
	}

	if l.cfg.PreferFrequentConcepts > 0 {
		minCount := uint64(math.MaxUint64)
		for _, cui := range cands {
			if c := l.store.TrainCount(cui); c < minCount {
				minCount = c
			}
		}
		if minCount == 0 {
			minCount = 1
		}
		for i, cui := range cands {
			cnt := l.store.TrainCount(cui)
			scale := 0.0
			if cnt > frequentConceptMinCount {
				scale = math.Log10(float64(cnt)/float64(minCount)) * l.cfg.PreferFrequentConcepts
			}
			sims[i] = math.Min(maxBoosted, sims[i]*(1+scale))
		}
	}

	best := 0
	for i := 1; i < len(sims); i++ {
		if sims[i] > sims[best] {
			best = i
		}
	}
	return cands[best], sims[best]
}

func (l *Linker) threshold(cui string, sim float64) Outcome {
	switch l.cfg.SimilarityThresholdType {
	case config.ThresholdStatic:
		if sim >= l.cfg.SimilarityThreshold {
			return OutcomeAccepted
		}
	case config.ThresholdDynamic:
		if sim >= l.store.AvgConfidence(cui)*l.cfg.SimilarityThreshold {
			return OutcomeAccepted
		}
	default:
		l.logger.Warn("unknown similarity threshold type, rejecting entity",
			logging.String("type", l.cfg.SimilarityThresholdType),
			logging.ConceptID(cui))
		return OutcomeRejectedPolicy
	}
	return OutcomeRejectedThreshold
}
