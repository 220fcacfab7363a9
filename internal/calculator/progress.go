package calculator

import (
	"math"

	"github.com/mmynk/referralnet/internal/models"
)

// Progress is one evaluation of a user's snapshot against a reward program.
type Progress struct {
	// AchievementPercentage is the minimum over the program's defined
	// thresholds, clamped to [0, 100]. Zero when no threshold is defined.
	AchievementPercentage float64

	// CappedBusiness is the weighted leg business measured against the
	// program's business threshold.
	CappedBusiness float64

	// Per-threshold percentages; nil when the program does not define that threshold.
	BusinessPercentage        *float64
	TeamSizePercentage        *float64
	DirectReferralsPercentage *float64

	// Eligible is true once every defined threshold is met.
	Eligible bool
}

// completionEpsilon absorbs float drift when capped legs are summed, so a
// snapshot with every leg at its target reads as complete.
const completionEpsilon = 1e-9

// EvaluateProgress measures a snapshot against a program.
//
// Business progress uses the capped leg total with the program's business
// threshold as target, so one dominant leg cannot satisfy a balanced plan.
// Every threshold the program defines must be met for eligibility.
//
// The achievement percentage is the minimum over the thresholds the program
// defines (those > 0). A program with a zero business threshold but a team
// size or direct referrals threshold therefore reports that threshold's
// percentage, not 0. Only a program with no thresholds at all reports 0.
func EvaluateProgress(snapshot models.BusinessSnapshot, program models.RewardProgram) Progress {
	capped := ApplyTarget(snapshot, program.BusinessThreshold)

	var p Progress
	p.CappedBusiness = capped.CappedLegBusiness

	var parts []float64
	if program.BusinessThreshold > 0 {
		v := percentOf(capped.CappedLegBusiness, program.BusinessThreshold)
		p.BusinessPercentage = &v
		parts = append(parts, v)
	}
	if program.TeamSizeThreshold > 0 {
		v := percentOf(float64(snapshot.TeamSize), float64(program.TeamSizeThreshold))
		p.TeamSizePercentage = &v
		parts = append(parts, v)
	}
	if program.DirectReferralsThreshold > 0 {
		v := percentOf(float64(snapshot.DirectReferrals), float64(program.DirectReferralsThreshold))
		p.DirectReferralsPercentage = &v
		parts = append(parts, v)
	}

	if len(parts) == 0 {
		return p
	}
	p.AchievementPercentage = parts[0]
	for _, v := range parts[1:] {
		p.AchievementPercentage = math.Min(p.AchievementPercentage, v)
	}
	p.Eligible = p.AchievementPercentage >= 100
	return p
}

// percentOf returns value/threshold as a percentage clamped to [0, 100].
// A non-positive threshold yields 0.
func percentOf(value, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	pct := value / threshold * 100
	switch {
	case math.IsNaN(pct) || pct < 0:
		return 0
	case pct >= 100-completionEpsilon:
		return 100
	}
	return pct
}
