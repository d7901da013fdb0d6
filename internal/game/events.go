package game

import "mathrush/internal/domain"

// Phase names the round state machine states.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePlaying  Phase = "playing"
	PhaseGameOver Phase = "gameOver"
)

// EventKind tags engine notifications.
type EventKind string

const (
	EventState    EventKind = "state"
	EventAnswer   EventKind = "answerResult"
	EventReward   EventKind = "rewardUnlocked"
	EventGameOver EventKind = "gameOver"
)

// Snapshot is the engine's full observable state at one point in time.
type Snapshot struct {
	Phase          Phase             `json:"phase"`
	Score          int               `json:"score"`
	HighScore      int               `json:"highScore"`
	Streak         int               `json:"streak"`
	Proximity      int               `json:"proximity"`
	Difficulty     domain.Difficulty `json:"difficulty"`
	TimeLeft       int               `json:"timeLeft"`
	TimeLimit      int               `json:"timeLimit"`
	TotalQuestions int               `json:"totalQuestions"`
	CorrectAnswers int               `json:"correctAnswers"`
	Charges        domain.Charges    `json:"powerups"`
	Eliminated     []string          `json:"eliminatedChoices"`
	Locked         bool              `json:"locked"`
	TimerPaused    bool              `json:"timerPaused"`
	Question       *domain.Question  `json:"question,omitempty"`
}

// AnswerOutcome reports how one submission was judged.
type AnswerOutcome struct {
	QuestionID string `json:"questionId"`
	Submitted  string `json:"submitted"`
	CorrectKey string `json:"correctKey"`
	Correct    bool   `json:"correct"`
	TimedOut   bool   `json:"timedOut"`
	Awarded    int    `json:"awarded"`
}

// RewardUnlock announces a milestone grant.
type RewardUnlock struct {
	Reward string             `json:"reward"`
	Kind   domain.PowerupKind `json:"powerup"`
	Streak int                `json:"streak"`
}

// RoundSummary carries the final stats emitted on game over.
type RoundSummary struct {
	RoundID        string  `json:"roundId"`
	Score          int     `json:"score"`
	HighScore      int     `json:"highScore"`
	TotalQuestions int     `json:"totalQuestions"`
	CorrectAnswers int     `json:"correctAnswers"`
	Accuracy       float64 `json:"accuracy"`
}

// Event is the union delivered to subscribers. Snapshot is always populated;
// the pointer fields are set according to Kind.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Snapshot Snapshot       `json:"snapshot"`
	Answer   *AnswerOutcome `json:"answer,omitempty"`
	Reward   *RewardUnlock  `json:"reward,omitempty"`
	Summary  *RoundSummary  `json:"summary,omitempty"`
}
