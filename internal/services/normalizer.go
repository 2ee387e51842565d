package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	cvintelErrors "cvintel/internal/errors"
	"cvintel/internal/ruleset"
)

// FeatureSet is the canonical, comparable representation of a document.
// Produced for both resumes and job descriptions; for a job description
// ExperienceYears is the required experience.
type FeatureSet struct {
	Skills map[string]bool
	// Recognized titles in order of first appearance. Resumes list the
	// current role first, which stands in for most-recent-first without
	// date parsing.
	Titles          []string
	ExperienceYears int
	// False when no experience evidence was found. Callers must treat
	// that as unknown, not as zero years.
	ExperienceKnown bool
	Education       ruleset.EducationLevel
}

// SortedSkills returns the skill set as a deterministic slice.
func (f FeatureSet) SortedSkills() []string {
	skills := make([]string, 0, len(f.Skills))
	for skill := range f.Skills {
		skills = append(skills, skill)
	}
	sort.Strings(skills)
	return skills
}

// Spans longer than a working lifetime are treated as noise from partial
// text capture, not as experience.
const maxPlausibleYears = 60

var (
	yearsPhraseRe = regexp.MustCompile(`(\d{1,2})\s*\+?\s*(?:years?|yrs?)\b`)
	yearRangeRe   = regexp.MustCompile(`\b((?:19|20)\d{2})\s*(?:-|–|—|to|until)\s*((?:19|20)\d{2}|present|current|now|today)\b`)
	explicitYearRe = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// Normalizer converts raw extracted text into a FeatureSet against one
// ruleset version. Pure and deterministic: same text, same ruleset,
// same result.
type Normalizer struct {
	rules    *ruleset.Ruleset
	minChars int
}

func NewNormalizer(rules *ruleset.Ruleset, minChars int) *Normalizer {
	return &Normalizer{rules: rules, minChars: minChars}
}

// Normalize extracts skills, titles, experience and education from raw
// text. Returns an insufficient-text error for empty or too-short input.
func (n *Normalizer) Normalize(raw string) (FeatureSet, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < n.minChars {
		return FeatureSet{}, cvintelErrors.NewInsufficientText(
			fmt.Sprintf("document has %d characters, minimum is %d", len(trimmed), n.minChars))
	}

	tokens := ruleset.Tokenize(trimmed)

	years, known := extractExperienceYears(strings.ToLower(trimmed))

	return FeatureSet{
		Skills:          n.extractSkills(tokens),
		Titles:          n.extractTitles(tokens),
		ExperienceYears: years,
		ExperienceKnown: known,
		Education:       n.extractEducation(tokens),
	}, nil
}

// extractSkills scans token n-grams against the closed vocabulary,
// longest phrase first. Tokens outside the vocabulary are discarded.
func (n *Normalizer) extractSkills(tokens []string) map[string]bool {
	skills := make(map[string]bool)
	n.scanPhrases(tokens, func(phrase string) bool {
		if name, ok := n.rules.LookupSkill(phrase); ok {
			skills[name] = true
			return true
		}
		return false
	})
	return skills
}

func (n *Normalizer) extractTitles(tokens []string) []string {
	var titles []string
	seen := make(map[string]bool)
	n.scanPhrases(tokens, func(phrase string) bool {
		name, ok := n.rules.LookupTitle(phrase)
		if !ok {
			return false
		}
		if !seen[name] {
			seen[name] = true
			titles = append(titles, name)
		}
		return true
	})
	return titles
}

func (n *Normalizer) extractEducation(tokens []string) ruleset.EducationLevel {
	level := ruleset.EducationNone
	n.scanPhrases(tokens, func(phrase string) bool {
		found, ok := n.rules.LookupDegree(phrase)
		if !ok {
			return false
		}
		if found > level {
			level = found
		}
		return true
	})
	return level
}

// scanPhrases walks the token stream and offers n-grams to match,
// longest first. A match consumes its tokens.
func (n *Normalizer) scanPhrases(tokens []string, match func(phrase string) bool) {
	maxLen := n.rules.MaxPhraseLen()
	for i := 0; i < len(tokens); {
		matched := false
		limit := maxLen
		if rest := len(tokens) - i; rest < limit {
			limit = rest
		}
		for j := limit; j >= 1; j-- {
			if match(strings.Join(tokens[i:i+j], " ")) {
				i += j
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
}

// extractExperienceYears finds cumulative-duration phrases ("7 years",
// "5+ yrs") and year ranges ("2015-2020", "2019 - present") and keeps
// the maximum plausible value, which reduces false negatives from
// partial text capture. "present" resolves against the latest explicit
// year in the same document, never the wall clock.
func extractExperienceYears(lower string) (int, bool) {
	best := 0
	found := false

	for _, m := range yearsPhraseRe.FindAllStringSubmatch(lower, -1) {
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 || v > maxPlausibleYears {
			continue
		}
		found = true
		if v > best {
			best = v
		}
	}

	latestYear := 0
	for _, y := range explicitYearRe.FindAllString(lower, -1) {
		if v, err := strconv.Atoi(y); err == nil && v > latestYear {
			latestYear = v
		}
	}

	for _, m := range yearRangeRe.FindAllStringSubmatch(lower, -1) {
		start, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		end := latestYear
		if v, err := strconv.Atoi(m[2]); err == nil {
			end = v
		}
		span := end - start
		if span <= 0 || span > maxPlausibleYears {
			continue
		}
		found = true
		if span > best {
			best = span
		}
	}

	return best, found
}
