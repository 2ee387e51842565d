package services

import (
	"sort"

	"cvintel/internal/ruleset"
)

// MatchResult is the un-weighted per-dimension comparison between one
// candidate and one job description. Recomputed on every pass, never
// mutated.
type MatchResult struct {
	SkillScore      float64
	ExperienceScore float64
	TitleScore      float64

	// ExperienceExcluded is set when the candidate's experience is
	// unknown but the job does require some: the dimension is then left
	// out of the final score instead of being scored as zero years.
	ExperienceExcluded bool
	// TitleExcluded is set when the job names no recognized titles, so
	// the dimension constrains nothing.
	TitleExcluded bool

	MatchedSkills []string
	MissingSkills []string
}

const (
	titleScoreExact    = 100
	titleScoreAdjacent = 70
)

// Match compares a candidate's features against a job's. Skill score
// measures coverage of the job's requirements, not candidate breadth:
// extra skills earn no bonus.
func Match(rules *ruleset.Ruleset, candidate, job FeatureSet) MatchResult {
	m := MatchResult{
		MatchedSkills: []string{},
		MissingSkills: []string{},
	}

	for skill := range job.Skills {
		if candidate.Skills[skill] {
			m.MatchedSkills = append(m.MatchedSkills, skill)
		} else {
			m.MissingSkills = append(m.MissingSkills, skill)
		}
	}
	sort.Strings(m.MatchedSkills)
	sort.Strings(m.MissingSkills)

	denom := len(job.Skills)
	if denom < 1 {
		denom = 1
	}
	m.SkillScore = 100 * float64(len(m.MatchedSkills)) / float64(denom)

	m.ExperienceScore, m.ExperienceExcluded = experienceFit(candidate, job)
	m.TitleScore, m.TitleExcluded = titleFit(rules, candidate, job)

	return m
}

// experienceFit is 100 at or above the requirement with a linear
// falloff below it. A job with no requirement imposes no penalty.
func experienceFit(candidate, job FeatureSet) (score float64, excluded bool) {
	required := 0
	if job.ExperienceKnown {
		required = job.ExperienceYears
	}
	if required == 0 {
		return 100, false
	}
	if !candidate.ExperienceKnown {
		return 0, true
	}
	if candidate.ExperienceYears >= required {
		return 100, false
	}
	score = 100 * float64(candidate.ExperienceYears) / float64(required)
	if score < 0 {
		score = 0
	}
	return score, false
}

func titleFit(rules *ruleset.Ruleset, candidate, job FeatureSet) (score float64, excluded bool) {
	if len(job.Titles) == 0 {
		return 0, true
	}
	for _, required := range job.Titles {
		for _, have := range candidate.Titles {
			if have == required {
				return titleScoreExact, false
			}
		}
	}
	for _, required := range job.Titles {
		for _, have := range candidate.Titles {
			if rules.TitleAdjacent(required, have) {
				return titleScoreAdjacent, false
			}
		}
	}
	return 0, false
}
