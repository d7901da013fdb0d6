package game

import (
	"time"

	"mathrush/internal/domain"
)

// Rules carries the gameplay tuning knobs. Zero value is not usable; start
// from DefaultRules and override from config.
type Rules struct {
	BasePoints      int
	BaseTimeSeconds int
	MinTimeSeconds  int
	SettleDelay     time.Duration
	FreezeWindow    time.Duration
	MaxProximity    int
}

// DefaultRules returns the reference tuning.
func DefaultRules() Rules {
	return Rules{
		BasePoints:      10,
		BaseTimeSeconds: 12,
		MinTimeSeconds:  8,
		SettleDelay:     time.Second,
		FreezeWindow:    5 * time.Second,
		MaxProximity:    domain.MaxProximity,
	}
}

// Points computes the award for a correct answer: base plus twice the seconds
// remaining, scaled by the difficulty multiplier. Pure and deterministic.
func (r Rules) Points(timeLeft int, d domain.Difficulty) int {
	return r.BasePoints + timeLeft*2*int(d)
}

// TimeLimit returns the countdown duration for a difficulty tier. Higher
// tiers get less time, but never below MinTimeSeconds.
func (r Rules) TimeLimit(d domain.Difficulty) int {
	cut := int(d) / 2
	if cut > 4 {
		cut = 4
	}
	limit := r.BaseTimeSeconds - cut
	if limit < r.MinTimeSeconds {
		limit = r.MinTimeSeconds
	}
	return limit
}

// milestone is a streak threshold granting a one-time cosmetic reward plus a
// powerup charge. Grants are deduplicated against the persisted gear list.
type milestone struct {
	streak int
	reward string
	kind   domain.PowerupKind
}

var milestones = []milestone{
	{streak: 3, reward: "frost_crown", kind: domain.TimeFreeze},
	{streak: 5, reward: "lucky_horseshoe", kind: domain.FiftyFifty},
	{streak: 10, reward: "phantom_cape", kind: domain.Repellent},
}
