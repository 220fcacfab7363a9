package calculator

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/referralnet/internal/models"
)

// CurrencyPlaces is the precision commission amounts are rounded to.
const CurrencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// ComputeBreakdown computes the commission each ancestor earns from one
// transaction of onAmount made by triggerUser.
//
// upline is ordered root-ward starting at triggerUser's sponsor. The ancestor
// at position L (1-indexed) earns at level L if that level is configured and
// active; otherwise the level is skipped. At most maxLevels ancestors are
// considered (maxLevels <= 0 means the whole chain).
//
// Each row is rounded to CurrencyPlaces once, and the summary total is the
// exact sum of the rounded rows.
func ComputeBreakdown(triggerUser string, onAmount float64, levels []models.CommissionLevel, upline []string, maxLevels int, now time.Time) (models.CommissionBreakdown, error) {
	if onAmount < 0 || math.IsNaN(onAmount) || math.IsInf(onAmount, 0) {
		return models.CommissionBreakdown{}, ErrInvalidAmount
	}
	if err := checkUpline(triggerUser, upline); err != nil {
		return models.CommissionBreakdown{}, err
	}

	eligible := len(upline)
	if maxLevels > 0 && maxLevels < eligible {
		eligible = maxLevels
	}

	rates := make(map[int]models.CommissionLevel, len(levels))
	for _, lvl := range levels {
		if !lvl.Active {
			continue
		}
		if _, dup := rates[lvl.LevelNumber]; !dup {
			rates[lvl.LevelNumber] = lvl
		}
	}

	out := models.CommissionBreakdown{
		CommissionBreakdown: []models.CommissionBreakdownEntry{},
		Summary: models.CommissionSummary{
			LevelsEarnedFrom: []int{},
			MaxLevelEligible: eligible,
		},
		UserInfo: models.CommissionUserInfo{
			UserID:      triggerUser,
			UplineDepth: len(upline),
		},
	}

	amount := decimal.NewFromFloat(onAmount)
	total := decimal.Zero
	for pos := 1; pos <= eligible; pos++ {
		lvl, ok := rates[pos]
		if !ok {
			continue
		}
		commission := amount.Mul(decimal.NewFromFloat(lvl.CommissionPercentage)).
			Div(hundred).
			Round(CurrencyPlaces)
		total = total.Add(commission)

		out.CommissionBreakdown = append(out.CommissionBreakdown, models.CommissionBreakdownEntry{
			Level:                pos,
			UserID:               upline[pos-1],
			ReferralUser:         triggerUser,
			OnAmount:             onAmount,
			CommissionPercentage: lvl.CommissionPercentage,
			CommissionAmount:     commission.InexactFloat64(),
			Timestamp:            now,
		})
		if !commission.IsZero() {
			out.Summary.LevelsEarnedFrom = append(out.Summary.LevelsEarnedFrom, pos)
		}
	}
	out.Summary.TotalCommission = total.InexactFloat64()

	return out, nil
}

// checkUpline rejects a chain that revisits a member, which only happens when
// sponsor links loop.
func checkUpline(triggerUser string, upline []string) error {
	seen := make(map[string]bool, len(upline)+1)
	seen[triggerUser] = true
	for _, id := range upline {
		if seen[id] {
			return &TreeIntegrityError{CycleAt: id}
		}
		seen[id] = true
	}
	return nil
}

// LevelCommission returns the active level row for levelNumber.
func LevelCommission(levels []models.CommissionLevel, levelNumber int) (models.CommissionLevel, bool) {
	for _, lvl := range levels {
		if lvl.LevelNumber == levelNumber && lvl.Active {
			return lvl, true
		}
	}
	return models.CommissionLevel{}, false
}
