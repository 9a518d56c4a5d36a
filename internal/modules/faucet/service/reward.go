package service

import (
	"math"
	"strings"
)

// RewardRules turns a faucet claim into an xp bonus.
type RewardRules struct {
	Base        float64
	Cap         float64
	Multipliers map[string]float64
}

func DefaultRewardRules() RewardRules {
	return RewardRules{
		Base: 10,
		Cap:  100,
		Multipliers: map[string]float64{
			"HLS": 2,
			"ETH": 1.5,
		},
	}
}

// Reward is round(base × multiplier(token) × min(amount, cap)). Unlisted
// tokens use multiplier 1.
func (r RewardRules) Reward(amount float64, token string) int {
	multiplier, ok := r.Multipliers[strings.ToUpper(token)]
	if !ok {
		multiplier = 1
	}
	return int(math.Round(r.Base * multiplier * math.Min(amount, r.Cap)))
}

// Multiplier reports the multiplier applied to token.
func (r RewardRules) Multiplier(token string) float64 {
	if m, ok := r.Multipliers[strings.ToUpper(token)]; ok {
		return m
	}
	return 1
}

// CalculateFaucetReward applies the default rules.
func CalculateFaucetReward(amount float64, token string) int {
	return DefaultRewardRules().Reward(amount, token)
}
