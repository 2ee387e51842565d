package services

import (
	"fmt"
	"math"

	cvintelErrors "cvintel/internal/errors"
)

// Score weights. Tunable without touching the matcher; when a dimension
// is excluded the remaining weights are renormalized so the final score
// still spans [0,100].
const (
	WeightSkills     = 0.5
	WeightExperience = 0.3
	WeightTitle      = 0.2
)

// ComputeFinalScore combines sub-scores into the 0-100 final score:
// weighted sum over the included dimensions, round half up, clamped.
// Sub-scores outside [0,100] are a bug upstream and are rejected, never
// silently corrected.
func ComputeFinalScore(m MatchResult) (int, error) {
	if err := checkBounds("skill", m.SkillScore); err != nil {
		return 0, err
	}
	if err := checkBounds("experience", m.ExperienceScore); err != nil {
		return 0, err
	}
	if err := checkBounds("title", m.TitleScore); err != nil {
		return 0, err
	}

	sum := WeightSkills * m.SkillScore
	weight := WeightSkills

	if !m.ExperienceExcluded {
		sum += WeightExperience * m.ExperienceScore
		weight += WeightExperience
	}
	if !m.TitleExcluded {
		sum += WeightTitle * m.TitleScore
		weight += WeightTitle
	}

	final := int(math.Floor(sum/weight + 0.5))

	// Defensive clamp; unreachable given the bounds checks above.
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}

	return final, nil
}

func checkBounds(dimension string, score float64) error {
	if score < 0 || score > 100 || math.IsNaN(score) {
		return cvintelErrors.NewScoringOverflow(
			fmt.Sprintf("%s score %v is outside [0,100]", dimension, score))
	}
	return nil
}
