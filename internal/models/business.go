package models

// DistributionMode selects how leg ratios are resolved.
type DistributionMode string

const (
	// DistributionFixed uses configured ratios, which must sum to 100.
	DistributionFixed DistributionMode = "fixed"

	// DistributionAuto derives each leg's ratio from its member count.
	DistributionAuto DistributionMode = "auto"
)

// RatioConfig configures leg segmentation and ratio resolution.
type RatioConfig struct {
	// Mode is fixed or auto.
	Mode DistributionMode `json:"mode" yaml:"mode"`

	// Ratios are the fixed-mode percentages for leg_1, leg_2, ... in order.
	Ratios []float64 `json:"ratios,omitempty" yaml:"ratios"`

	// LegCount fixes the number of legs (2 for a binary plan).
	// Zero means one leg per direct referral; in fixed mode it defaults to len(Ratios).
	LegCount int `json:"leg_count,omitempty" yaml:"leg_count"`

	// Target is the business target the legs are capped against.
	Target float64 `json:"target,omitempty" yaml:"target"`
}

// Leg is one branch of the root's downline.
type Leg struct {
	LegKey string `json:"legKey"`

	// Ratio is the leg's share of the target, 0 to 100.
	Ratio float64 `json:"ratio"`

	// Business is the leg's uncapped team business.
	Business float64 `json:"business"`

	// LegTarget is target * Ratio / sum of all leg ratios.
	LegTarget float64 `json:"target"`

	// WeightedBusiness is Business capped at LegTarget.
	WeightedBusiness float64 `json:"weightedBusiness"`

	// Members are the user ids in the leg, leg root first.
	Members []string `json:"members"`
}

// BusinessSnapshot is the immutable result of one aggregation run for one
// root user.
type BusinessSnapshot struct {
	RootID string `json:"root_id"`

	PersonalBusiness float64 `json:"personalBusiness"`

	// DirectBusiness is the sum of team business over the root's direct referrals.
	DirectBusiness float64 `json:"directBusiness"`

	// TeamBusiness is the root's personal business plus DirectBusiness.
	TeamBusiness float64 `json:"teamBusiness"`

	// TotalLegBusiness is the uncapped sum of leg business. Informational only.
	TotalLegBusiness float64 `json:"totalLegBusiness"`

	// CappedLegBusiness is the sum of weighted leg business, used for eligibility.
	CappedLegBusiness float64 `json:"cappedLegBusiness"`

	Target           float64          `json:"target"`
	DistributionMode DistributionMode `json:"distributionMode"`
	Legs             []Leg            `json:"legs"`

	// Root node statistics, carried so reward evaluation needs only the snapshot.
	TeamSize        int `json:"teamSize"`
	ActiveTeamSize  int `json:"activeTeamSize"`
	DirectReferrals int `json:"directReferrals"`
}

// BusinessBreakdown is the business-breakdown payload consumed by the
// dashboard.
type BusinessBreakdown struct {
	Legs             []Leg              `json:"legs"`
	TotalLegBusiness float64            `json:"totalLegBusiness"`
	Ratios           map[string]float64 `json:"ratios"`
	DistributionMode DistributionMode   `json:"distributionMode"`
}

// Breakdown returns the dashboard view of the snapshot.
func (s BusinessSnapshot) Breakdown() BusinessBreakdown {
	ratios := make(map[string]float64, len(s.Legs))
	for _, leg := range s.Legs {
		ratios[leg.LegKey] = leg.Ratio
	}
	return BusinessBreakdown{
		Legs:             s.Legs,
		TotalLegBusiness: s.TotalLegBusiness,
		Ratios:           ratios,
		DistributionMode: s.DistributionMode,
	}
}
