package domain

import "fmt"

// MaxProximity is the danger-meter ceiling; a round ends when proximity reaches it.
const MaxProximity = 5

// Difficulty scales scoring and shortens the per-question countdown.
type Difficulty int

const (
	Easy   Difficulty = 1
	Medium Difficulty = 2
	Hard   Difficulty = 3
)

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	}
	return "unknown"
}

// DifficultyForStreak derives the difficulty tier from the current streak.
func DifficultyForStreak(streak int) Difficulty {
	switch {
	case streak >= 10:
		return Hard
	case streak >= 5:
		return Medium
	default:
		return Easy
	}
}

// PowerupKind identifies a consumable powerup.
type PowerupKind string

const (
	TimeFreeze PowerupKind = "timeFreeze"
	FiftyFifty PowerupKind = "fiftyFifty"
	Repellent  PowerupKind = "repellent"
)

// Valid reports whether the kind is one of the known powerups.
func (k PowerupKind) Valid() bool {
	switch k {
	case TimeFreeze, FiftyFifty, Repellent:
		return true
	}
	return false
}

// Charges holds the per-kind powerup counters. A struct rather than a map so
// adding a new kind is a compile-time-checked change everywhere it is consumed.
type Charges struct {
	TimeFreeze int `json:"timeFreeze"`
	FiftyFifty int `json:"fiftyFifty"`
	Repellent  int `json:"repellent"`
}

// Get returns the counter for a kind.
func (c Charges) Get(kind PowerupKind) int {
	switch kind {
	case TimeFreeze:
		return c.TimeFreeze
	case FiftyFifty:
		return c.FiftyFifty
	case Repellent:
		return c.Repellent
	}
	return 0
}

// Add adjusts the counter for a kind by delta, flooring at zero.
func (c *Charges) Add(kind PowerupKind, delta int) {
	switch kind {
	case TimeFreeze:
		c.TimeFreeze = maxInt(0, c.TimeFreeze+delta)
	case FiftyFifty:
		c.FiftyFifty = maxInt(0, c.FiftyFifty+delta)
	case Repellent:
		c.Repellent = maxInt(0, c.Repellent+delta)
	}
}

// Choice is one selectable answer. Key is stable and unique within a question;
// display order follows slice order.
type Choice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question is an immutable multiple-choice record. Answer must match the Key of
// one of Choices.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Choices []Choice `json:"choices"`
	Answer  string   `json:"answer"`
}

// Validate checks structural integrity; failures are configuration errors.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedQuestion)
	}
	if len(q.Choices) == 0 {
		return fmt.Errorf("%w: question %s has no choices", ErrMalformedQuestion, q.ID)
	}
	seen := make(map[string]struct{}, len(q.Choices))
	for _, c := range q.Choices {
		if _, dup := seen[c.Key]; dup {
			return fmt.Errorf("%w: question %s duplicates choice key %q", ErrMalformedQuestion, q.ID, c.Key)
		}
		seen[c.Key] = struct{}{}
	}
	if _, ok := seen[q.Answer]; !ok {
		return fmt.Errorf("%w: question %s answer %q not among choices", ErrMalformedQuestion, q.ID, q.Answer)
	}
	return nil
}

// Profile is the persisted per-user document. Absent fields default rather than
// error; see DefaultProfile.
type Profile struct {
	Score           int      `json:"score"`
	HighScore       int      `json:"highScore"`
	Streak          int      `json:"streak"`
	Proximity       int      `json:"proximity"`
	Gear            []string `json:"gear"`
	Powerups        Charges  `json:"powerups"`
	HasSeenTutorial bool     `json:"hasSeenTutorial"`
	Nickname        string   `json:"nickname"`
	Avatar          string   `json:"avatar"`
	Accessory       string   `json:"accessory"`
}

// DefaultProfile is the document used when a user has no stored profile.
func DefaultProfile() Profile {
	return Profile{
		Powerups: Charges{TimeFreeze: 2, FiftyFifty: 1, Repellent: 1},
	}
}

// HasGear reports whether the append-only gear list already holds name.
func (p Profile) HasGear(name string) bool {
	for _, g := range p.Gear {
		if g == name {
			return true
		}
	}
	return false
}

// Progress is the gameplay slice of the profile written after every answer.
// All fields are absolute values so repeated or reordered writes converge.
type Progress struct {
	Score     int
	HighScore int
	Streak    int
	Proximity int
}

// LeaderboardEntry is one row of the high-score board.
type LeaderboardEntry struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
