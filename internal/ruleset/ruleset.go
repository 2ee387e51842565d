package ruleset

import (
	"fmt"
	"strings"
	"unicode"
)

// EducationLevel orders recognized degrees from none to doctorate.
type EducationLevel int

const (
	EducationNone EducationLevel = iota
	EducationAssociate
	EducationBachelor
	EducationMaster
	EducationDoctorate
)

var educationNames = map[EducationLevel]string{
	EducationNone:      "none",
	EducationAssociate: "associate",
	EducationBachelor:  "bachelor",
	EducationMaster:    "master",
	EducationDoctorate: "doctorate",
}

var educationLevels = map[string]EducationLevel{
	"associate": EducationAssociate,
	"bachelor":  EducationBachelor,
	"master":    EducationMaster,
	"doctorate": EducationDoctorate,
}

func (l EducationLevel) String() string {
	if name, ok := educationNames[l]; ok {
		return name
	}
	return "none"
}

// Config is the YAML shape of a ruleset file.
type Config struct {
	Version   string              `yaml:"version"`
	Skills    []SkillEntry        `yaml:"skills"`
	Titles    []TitleEntry        `yaml:"titles"`
	Education map[string][]string `yaml:"education"`
}

// SkillEntry maps a canonical skill name to its accepted synonyms.
type SkillEntry struct {
	Name     string   `yaml:"name"`
	Synonyms []string `yaml:"synonyms"`
}

// TitleEntry maps a recognized title to titles considered adjacent to it.
type TitleEntry struct {
	Name     string   `yaml:"name"`
	Adjacent []string `yaml:"adjacent"`
}

// Ruleset is a compiled, immutable scoring vocabulary. A ranking pass
// captures one Ruleset pointer at start so the whole batch is scored
// against a single consistent version.
type Ruleset struct {
	version string

	skillPhrases  map[string]string
	titlePhrases  map[string]string
	adjacency     map[string]map[string]bool
	degreePhrases map[string]EducationLevel
	maxPhraseLen  int
}

// New compiles a Config into lookup tables.
func New(cfg Config) (*Ruleset, error) {
	if cfg.Version == "" {
		return nil, fmt.Errorf("ruleset: version is required")
	}
	if len(cfg.Skills) == 0 {
		return nil, fmt.Errorf("ruleset: at least one skill is required")
	}

	rs := &Ruleset{
		version:       cfg.Version,
		skillPhrases:  make(map[string]string),
		titlePhrases:  make(map[string]string),
		adjacency:     make(map[string]map[string]bool),
		degreePhrases: make(map[string]EducationLevel),
	}

	for _, skill := range cfg.Skills {
		if skill.Name == "" {
			return nil, fmt.Errorf("ruleset: skill with empty name")
		}
		phrases := append([]string{skill.Name}, skill.Synonyms...)
		for _, phrase := range phrases {
			key := NormalizePhrase(phrase)
			if key == "" {
				return nil, fmt.Errorf("ruleset: skill %q has an empty synonym", skill.Name)
			}
			if existing, ok := rs.skillPhrases[key]; ok && existing != skill.Name {
				return nil, fmt.Errorf("ruleset: synonym %q maps to both %q and %q", phrase, existing, skill.Name)
			}
			rs.skillPhrases[key] = skill.Name
			rs.trackPhraseLen(key)
		}
	}

	for _, title := range cfg.Titles {
		if title.Name == "" {
			return nil, fmt.Errorf("ruleset: title with empty name")
		}
		key := NormalizePhrase(title.Name)
		rs.titlePhrases[key] = title.Name
		rs.trackPhraseLen(key)

		adjacent := make(map[string]bool, len(title.Adjacent))
		for _, adj := range title.Adjacent {
			adjacent[adj] = true
			adjKey := NormalizePhrase(adj)
			if _, ok := rs.titlePhrases[adjKey]; !ok {
				rs.titlePhrases[adjKey] = adj
				rs.trackPhraseLen(adjKey)
			}
		}
		rs.adjacency[title.Name] = adjacent
	}

	for levelName, phrases := range cfg.Education {
		level, ok := educationLevels[levelName]
		if !ok {
			return nil, fmt.Errorf("ruleset: unknown education level %q", levelName)
		}
		for _, phrase := range phrases {
			key := NormalizePhrase(phrase)
			if key == "" {
				return nil, fmt.Errorf("ruleset: education level %q has an empty pattern", levelName)
			}
			rs.degreePhrases[key] = level
			rs.trackPhraseLen(key)
		}
	}

	return rs, nil
}

func (r *Ruleset) trackPhraseLen(key string) {
	if n := len(strings.Fields(key)); n > r.maxPhraseLen {
		r.maxPhraseLen = n
	}
}

func (r *Ruleset) Version() string { return r.version }

// MaxPhraseLen is the longest vocabulary entry in tokens; the normalizer
// never needs to scan n-grams beyond it.
func (r *Ruleset) MaxPhraseLen() int { return r.maxPhraseLen }

// LookupSkill resolves a normalized phrase to its canonical skill name.
func (r *Ruleset) LookupSkill(phrase string) (string, bool) {
	name, ok := r.skillPhrases[phrase]
	return name, ok
}

// LookupTitle resolves a normalized phrase to a recognized title.
func (r *Ruleset) LookupTitle(phrase string) (string, bool) {
	name, ok := r.titlePhrases[phrase]
	return name, ok
}

// LookupDegree resolves a normalized phrase to an education level.
func (r *Ruleset) LookupDegree(phrase string) (EducationLevel, bool) {
	level, ok := r.degreePhrases[phrase]
	return level, ok
}

// TitleAdjacent reports whether candidate is configured as adjacent to
// the required title. Exact matches are not adjacency.
func (r *Ruleset) TitleAdjacent(required, candidate string) bool {
	return r.adjacency[required][candidate]
}

// Tokenize lowercases text and splits it into vocabulary tokens. Runes
// that appear inside tech terms (c++, c#, node.js) count as word
// characters; trailing dots are trimmed so "B.S." and "b.s" agree.
func Tokenize(text string) []string {
	var tokens []string
	var word strings.Builder

	flush := func() {
		w := strings.TrimRight(word.String(), ".")
		word.Reset()
		if w != "" {
			tokens = append(tokens, w)
		}
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// NormalizePhrase reduces a phrase to the normal form used as a lookup
// key: tokenized and space-joined.
func NormalizePhrase(phrase string) string {
	return strings.Join(Tokenize(phrase), " ")
}
