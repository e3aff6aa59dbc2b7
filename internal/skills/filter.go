package skills

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/flowcanvas/flowrefine/internal/core"
)

// Scoring weights.
const (
	nameMatchScore        = 3
	descriptionMatchScore = 1
	nearNameMatchScore    = 1

	minTokenRunes  = 3
	maxNearLenDiff = 3
)

// FilterOptions bounds the filter output.
type FilterOptions struct {
	// MaxSkills caps the number of returned skills. Zero means 20.
	MaxSkills int
	// MinScore is the lowest score kept. Zero means 1.
	MinScore int
}

// ScoredSkill pairs a skill with its relevance score.
type ScoredSkill struct {
	Skill core.SkillReference
	Score int
}

// Filter ranks catalogue skills by lexical relevance to a user message.
// It performs no I/O and is deterministic for identical inputs.
type Filter struct {
	opts FilterOptions
}

// NewFilter creates a filter.
func NewFilter(opts FilterOptions) *Filter {
	if opts.MaxSkills <= 0 {
		opts.MaxSkills = 20
	}
	if opts.MinScore <= 0 {
		opts.MinScore = 1
	}
	return &Filter{opts: opts}
}

// Filter returns the relevant skills, most relevant first.
func (f *Filter) Filter(message string, catalogue core.SkillCatalogue) []core.SkillReference {
	scored := f.Score(message, catalogue)
	out := make([]core.SkillReference, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Skill)
	}
	return out
}

// Score returns the kept skills with their scores, most relevant first.
//
// Ties are broken by catalogue order (the position where the skill name
// first appears in catalogue.All()), then by preferring project scope over
// personal scope. The resolver prefers project scope the same way.
func (f *Filter) Score(message string, catalogue core.SkillCatalogue) []ScoredSkill {
	msgTokens := uniqueTokens(message)
	if len(msgTokens) == 0 {
		return nil
	}

	all := catalogue.All()
	firstIndex := make(map[string]int, len(all))
	for i, skill := range all {
		if _, seen := firstIndex[skill.Name]; !seen {
			firstIndex[skill.Name] = i
		}
	}

	type candidate struct {
		ScoredSkill
		order int
	}
	candidates := make([]candidate, 0, len(all))
	for i, skill := range all {
		score := scoreSkill(msgTokens, skill)
		if score < f.opts.MinScore {
			continue
		}
		candidates = append(candidates, candidate{
			ScoredSkill: ScoredSkill{Skill: skill, Score: score},
			order:       i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ai, bi := firstIndex[a.Skill.Name], firstIndex[b.Skill.Name]
		if ai != bi {
			return ai < bi
		}
		if scopeRank(a.Skill.Scope) != scopeRank(b.Skill.Scope) {
			return scopeRank(a.Skill.Scope) < scopeRank(b.Skill.Scope)
		}
		return a.order < b.order
	})

	if len(candidates) > f.opts.MaxSkills {
		candidates = candidates[:f.opts.MaxSkills]
	}
	out := make([]ScoredSkill, len(candidates))
	for i, c := range candidates {
		out[i] = c.ScoredSkill
	}
	return out
}

func scopeRank(s core.SkillScope) int {
	if s == core.SkillScopeProject {
		return 0
	}
	return 1
}

func scoreSkill(msgTokens []string, skill core.SkillReference) int {
	nameTokens := uniqueTokens(skill.Name)
	nameSet := toSet(nameTokens)
	descSet := toSet(uniqueTokens(skill.Description))

	score := 0
	for _, tok := range msgTokens {
		if nameSet[tok] {
			score += nameMatchScore
		} else if nearMatch(tok, nameTokens) {
			score += nearNameMatchScore
		}
		if descSet[tok] {
			score += descriptionMatchScore
		}
	}
	return score
}

// nearMatch reports whether the shorter of tok and some name token is a
// subsequence of the longer one anchored at its first character, with a
// length gap of at most maxNearLenDiff ("extracting" vs "extract", "cmmit"
// vs "commit").
func nearMatch(tok string, nameTokens []string) bool {
	for _, name := range nameTokens {
		short, long := tok, name
		if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
			short, long = long, short
		}
		diff := utf8.RuneCountInString(long) - utf8.RuneCountInString(short)
		if diff == 0 || diff > maxNearLenDiff {
			continue
		}
		matches := fuzzy.Find(short, []string{long})
		if len(matches) == 0 {
			continue
		}
		if idx := matches[0].MatchedIndexes; len(idx) > 0 && idx[0] == 0 {
			return true
		}
	}
	return false
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "then": true, "than": true, "have": true, "has": true,
	"are": true, "was": true, "were": true, "will": true, "would": true, "should": true,
	"could": true, "can": true, "you": true, "your": true, "our": true, "its": true,
	"add": true, "use": true, "using": true, "make": true, "want": true, "need": true,
	"please": true, "node": true, "nodes": true, "workflow": true, "step": true,
	"after": true, "before": true, "when": true, "what": true, "which": true, "all": true,
}

// tokenize lowercases s, splits on anything that is not a letter or digit,
// and drops stop words and short tokens.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenRunes || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func uniqueTokens(s string) []string {
	tokens := tokenize(s)
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
