package calculator

import (
	"fmt"
	"math"

	"github.com/mmynk/referralnet/internal/models"
)

// TeamBusiness returns every placed member's team business: their personal
// business plus the team business of each child. Computed bottom-up in O(n).
func TeamBusiness(t *Tree) map[string]float64 {
	team := teamBusiness(t)
	out := make(map[string]float64, len(team))
	for i, n := range t.Nodes {
		out[n.ID] = team[i]
	}
	return out
}

func teamBusiness(t *Tree) []float64 {
	team := make([]float64, len(t.Nodes))
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		team[i] += t.Nodes[i].PersonalBusiness
		if p := t.parents[i]; p >= 0 {
			team[p] += team[i]
		}
	}
	return team
}

// ValidateRatioConfig checks a ratio configuration without a tree.
// Fixed ratios must each lie in [0, 100] and sum to 100 within RatioTolerance.
func ValidateRatioConfig(cfg models.RatioConfig) error {
	if cfg.LegCount < 0 {
		return &InvalidRatioConfigError{Reason: fmt.Sprintf("leg count %d is negative", cfg.LegCount)}
	}
	if cfg.Target < 0 || math.IsNaN(cfg.Target) || math.IsInf(cfg.Target, 0) {
		return &InvalidRatioConfigError{Reason: "target must be a finite, non-negative number"}
	}

	switch cfg.Mode {
	case models.DistributionAuto, "":
		return nil
	case models.DistributionFixed:
	default:
		return &InvalidRatioConfigError{Reason: fmt.Sprintf("unknown distribution mode %q", cfg.Mode)}
	}

	if len(cfg.Ratios) == 0 {
		return &InvalidRatioConfigError{Reason: "fixed mode requires ratios"}
	}
	if cfg.LegCount > 0 && cfg.LegCount != len(cfg.Ratios) {
		return &InvalidRatioConfigError{Reason: fmt.Sprintf("leg count %d does not match %d ratios", cfg.LegCount, len(cfg.Ratios))}
	}
	sum := 0.0
	for i, r := range cfg.Ratios {
		if r < 0 || r > 100 || math.IsNaN(r) {
			return &InvalidRatioConfigError{Reason: fmt.Sprintf("ratio for leg_%d is %v, want 0..100", i+1, r)}
		}
		sum += r
	}
	if math.Abs(sum-100) > RatioTolerance {
		return &InvalidRatioConfigError{Sum: sum}
	}
	return nil
}

// Aggregate computes the business snapshot for the tree's root.
//
// Legs are the root's direct referrals in tree order, keyed leg_1..leg_n.
// When cfg.LegCount is set, referrals past the last leg fold into it and
// missing legs are padded empty. Each leg is capped at its ratio share of
// cfg.Target; see ApplyTarget.
func Aggregate(t *Tree, cfg models.RatioConfig) (models.BusinessSnapshot, error) {
	if err := ValidateRatioConfig(cfg); err != nil {
		return models.BusinessSnapshot{}, err
	}
	mode := cfg.Mode
	if mode == "" {
		mode = models.DistributionAuto
	}
	legCount := cfg.LegCount
	if mode == models.DistributionFixed && legCount == 0 {
		legCount = len(cfg.Ratios)
	}

	team := teamBusiness(t)
	rootKids := t.children[0]
	if legCount == 0 {
		legCount = len(rootKids)
	}

	legs := make([]models.Leg, legCount)
	for j := range legs {
		legs[j] = models.Leg{LegKey: fmt.Sprintf("leg_%d", j+1), Members: []string{}}
	}
	for j, c := range rootKids {
		g := min(j, legCount-1)
		legs[g].Business += team[c]
		for _, m := range t.subtree(c) {
			legs[g].Members = append(legs[g].Members, t.Nodes[m].ID)
		}
	}

	totalMembers := 0
	for _, leg := range legs {
		totalMembers += len(leg.Members)
	}
	for j := range legs {
		switch {
		case mode == models.DistributionFixed:
			legs[j].Ratio = cfg.Ratios[j]
		case totalMembers == 0:
			legs[j].Ratio = 0
		default:
			legs[j].Ratio = 100 * float64(len(legs[j].Members)) / float64(totalMembers)
		}
	}

	root := t.Nodes[0]
	snapshot := models.BusinessSnapshot{
		RootID:           root.ID,
		PersonalBusiness: root.PersonalBusiness,
		TeamBusiness:     team[0],
		DistributionMode: mode,
		Legs:             legs,
		TeamSize:         root.TotalTeamSize,
		ActiveTeamSize:   root.ActiveTeamSize,
		DirectReferrals:  root.DirectReferrals,
	}
	for _, c := range rootKids {
		snapshot.DirectBusiness += team[c]
	}
	for _, leg := range legs {
		snapshot.TotalLegBusiness += leg.Business
	}

	return ApplyTarget(snapshot, cfg.Target), nil
}

// ApplyTarget returns a copy of the snapshot with every leg capped at its
// ratio share of target:
//
//	leg.LegTarget        = target * leg.Ratio / sum(ratios)
//	leg.WeightedBusiness = min(leg.Business, leg.LegTarget)
//
// Ratios are normalized by their actual sum, so legs that all meet their
// targets add up to target even when the ratios are only within
// RatioTolerance of 100. A non-positive target gives every leg a zero target.
func ApplyTarget(s models.BusinessSnapshot, target float64) models.BusinessSnapshot {
	if target < 0 || math.IsNaN(target) {
		target = 0
	}
	ratioSum := 0.0
	for _, leg := range s.Legs {
		ratioSum += leg.Ratio
	}
	if ratioSum <= 0 {
		ratioSum = 100
	}
	legs := make([]models.Leg, len(s.Legs))
	capped := 0.0
	for j, leg := range s.Legs {
		leg.LegTarget = target * leg.Ratio / ratioSum
		leg.WeightedBusiness = math.Min(leg.Business, leg.LegTarget)
		capped += leg.WeightedBusiness
		legs[j] = leg
	}
	s.Legs = legs
	s.Target = target
	s.CappedLegBusiness = capped
	return s
}
