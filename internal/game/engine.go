package game

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"mathrush/internal/domain"
)

// ProfileRepository abstracts the per-user profile document store. Absence of
// a stored profile is not an error; implementations return DefaultProfile.
type ProfileRepository interface {
	Load(ctx context.Context, userID string) (domain.Profile, error)
	SaveProgress(ctx context.Context, userID string, p domain.Progress) error
	AddGear(ctx context.Context, userID, name string) error
	AdjustCharges(ctx context.Context, userID string, kind domain.PowerupKind, delta int) error
}

// ScoreBoard records high scores and serves the ranked leaderboard.
type ScoreBoard interface {
	Record(ctx context.Context, userID string, score int) error
	Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

// EngineConfig wires an Engine. UserID, Profiles, Board and Bank are required;
// the rest default.
type EngineConfig struct {
	UserID   string
	Profiles ProfileRepository
	Board    ScoreBoard
	Bank     *Bank
	Rules    Rules
	Clock    clockwork.Clock
	Logger   zerolog.Logger
	Rand     *rand.Rand
}

// Engine is the round session state machine. It owns all gameplay bookkeeping
// for a single user's play-through: question progression, scoring, streak,
// proximity, powerups and round termination. All identity and storage arrives
// through the config; the engine reads no ambient state.
type Engine struct {
	userID   string
	profiles ProfileRepository
	board    ScoreBoard
	bank     *Bank
	rules    Rules
	clock    clockwork.Clock
	log      zerolog.Logger
	rnd      *rand.Rand

	mu             sync.Mutex
	phase          Phase
	roundID        uuid.UUID
	score          int
	highScore      int
	streak         int
	proximity      int
	totalQuestions int
	correctAnswers int
	charges        domain.Charges
	gear           []string
	eliminated     map[string]struct{}
	locked         bool
	frozen         bool
	askDifficulty  domain.Difficulty
	timer          *Countdown
	subscribers    map[chan Event]struct{}

	persistWG sync.WaitGroup
}

// NewEngine builds an idle engine. Call StartRound to begin play and Close
// when the session ends.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Rules == (Rules{}) {
		cfg.Rules = DefaultRules()
	}
	e := &Engine{
		userID:      cfg.UserID,
		profiles:    cfg.Profiles,
		board:       cfg.Board,
		bank:        cfg.Bank,
		rules:       cfg.Rules,
		clock:       cfg.Clock,
		log:         cfg.Logger.With().Str("user_id", cfg.UserID).Logger(),
		rnd:         cfg.Rand,
		phase:       PhaseIdle,
		eliminated:  make(map[string]struct{}),
		subscribers: make(map[chan Event]struct{}),
	}
	e.timer = NewCountdown(cfg.Clock, e.timeout)
	return e
}

// StartRound transitions Idle -> Playing, seeding session state from the
// stored profile. A failed profile read logs and falls back to defaults; the
// round still starts (last-known state beats a frozen screen).
func (e *Engine) StartRound(ctx context.Context) error {
	profile, err := e.profiles.Load(ctx, e.userID)
	if err != nil {
		e.log.Error().Err(err).Msg("profile load failed, starting with defaults")
		profile = domain.DefaultProfile()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhasePlaying {
		return domain.ErrRoundInProgress
	}
	e.roundID = uuid.New()
	e.score = profile.Score
	e.highScore = profile.HighScore
	e.streak = profile.Streak
	e.proximity = profile.Proximity
	e.charges = profile.Powerups
	e.gear = append([]string(nil), profile.Gear...)
	e.totalQuestions = 0
	e.correctAnswers = 0
	e.bank.Shuffle()
	e.phase = PhasePlaying
	e.presentLocked()
	e.log.Info().Str("round_id", e.roundID.String()).Int("bank_size", e.bank.Len()).Msg("round started")
	e.broadcastLocked(Event{Kind: EventState, Snapshot: e.snapshotLocked()})
	return nil
}

// SubmitAnswer judges a choice against the current question. An empty key is
// the timeout submission and always counts as incorrect. The call is silently
// dropped while a previous answer is still settling; the locked flag is set
// before any persistence work so a racing timer expiry and user click resolve
// to exactly one processed answer.
func (e *Engine) SubmitAnswer(ctx context.Context, choiceKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhasePlaying || e.locked {
		return
	}
	e.locked = true
	e.timer.Pause()

	q := e.bank.Current()
	timeLeft := e.timer.TimeLeft()
	timedOut := choiceKey == ""
	correct := !timedOut && choiceKey == q.Answer

	outcome := AnswerOutcome{
		QuestionID: q.ID,
		Submitted:  choiceKey,
		CorrectKey: q.Answer,
		Correct:    correct,
		TimedOut:   timedOut,
	}

	e.totalQuestions++
	if correct {
		e.streak++
		outcome.Awarded = e.rules.Points(timeLeft, e.askDifficulty)
		e.score += outcome.Awarded
		e.correctAnswers++
		if e.proximity > 0 {
			e.proximity--
		}
		if e.score > e.highScore {
			e.highScore = e.score
		}
		e.grantMilestoneLocked(ctx)
	} else {
		e.streak = 0
		e.proximity++
	}
	e.eliminated = make(map[string]struct{})

	over := e.proximity >= e.rules.MaxProximity
	progress := domain.Progress{
		Score:     e.score,
		HighScore: e.highScore,
		Streak:    e.streak,
		Proximity: e.proximity,
	}
	if over {
		// Fresh start for the next round: the store never sees a maxed meter.
		progress.Proximity = 0
	}
	e.persistProgress(ctx, progress)

	e.broadcastLocked(Event{Kind: EventAnswer, Snapshot: e.snapshotLocked(), Answer: &outcome})

	if over {
		e.gameOverLocked(ctx)
		return
	}
	e.clock.AfterFunc(e.rules.SettleDelay, e.advance)
}

// ActivatePowerup spends one charge of kind. Activations that cannot help
// (no charge, FiftyFifty with eliminations pending, Repellent at zero
// proximity) are charge-free no-ops.
func (e *Engine) ActivatePowerup(ctx context.Context, kind domain.PowerupKind) error {
	if !kind.Valid() {
		return domain.ErrUnknownPowerup
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhasePlaying || e.locked {
		return nil
	}
	if e.charges.Get(kind) <= 0 {
		return nil
	}

	switch kind {
	case domain.TimeFreeze:
		e.frozen = true
		e.timer.Pause()
		e.clock.AfterFunc(e.rules.FreezeWindow, e.unfreeze)
	case domain.FiftyFifty:
		if len(e.eliminated) > 0 {
			return nil
		}
		q := e.bank.Current()
		var wrong []string
		for _, c := range q.Choices {
			if c.Key != q.Answer {
				wrong = append(wrong, c.Key)
			}
		}
		drop := 2
		if len(wrong) < drop {
			drop = len(wrong)
		}
		for _, i := range e.rnd.Perm(len(wrong))[:drop] {
			e.eliminated[wrong[i]] = struct{}{}
		}
	case domain.Repellent:
		if e.proximity == 0 {
			// No benefit, no cost.
			return nil
		}
		e.proximity -= 2
		if e.proximity < 0 {
			e.proximity = 0
		}
		e.persistProgress(ctx, domain.Progress{
			Score:     e.score,
			HighScore: e.highScore,
			Streak:    e.streak,
			Proximity: e.proximity,
		})
	}

	e.charges.Add(kind, -1)
	e.persistAsync(func(ctx context.Context) error {
		return e.profiles.AdjustCharges(ctx, e.userID, kind, -1)
	})
	e.broadcastLocked(Event{Kind: EventState, Snapshot: e.snapshotLocked()})
	return nil
}

// Restart transitions GameOver -> Playing with zeroed counters and a fresh
// shuffle. High score, gear and remaining charges carry over.
func (e *Engine) Restart(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseGameOver {
		return domain.ErrRoundNotActive
	}
	e.roundID = uuid.New()
	e.score = 0
	e.streak = 0
	e.proximity = 0
	e.totalQuestions = 0
	e.correctAnswers = 0
	e.eliminated = make(map[string]struct{})
	e.bank.Shuffle()
	e.phase = PhasePlaying
	e.presentLocked()
	e.persistProgress(ctx, domain.Progress{HighScore: e.highScore})
	e.log.Info().Str("round_id", e.roundID.String()).Msg("round restarted")
	e.broadcastLocked(Event{Kind: EventState, Snapshot: e.snapshotLocked()})
	return nil
}

// Snapshot returns the current observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel of engine events, primed with the current
// state. The caller must invoke cancel to avoid leaks.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	initial := Event{Kind: EventState, Snapshot: e.snapshotLocked()}
	e.mu.Unlock()

	ch <- initial

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// WaitPersist blocks until all outstanding profile writes have completed.
// Gameplay never waits on this; it exists for shutdown and tests.
func (e *Engine) WaitPersist() {
	e.persistWG.Wait()
}

// Close stops the countdown loop and detaches all subscribers. In-flight
// persistence is allowed to land (writes are absolute, last-write-wins).
func (e *Engine) Close() {
	e.timer.Stop()
	e.mu.Lock()
	e.phase = PhaseIdle
	for ch := range e.subscribers {
		delete(e.subscribers, ch)
		close(ch)
	}
	e.mu.Unlock()
}

// timeout is the countdown expiry path; it races user submissions and loses
// to them (or wins) via the locked guard inside SubmitAnswer.
func (e *Engine) timeout() {
	e.SubmitAnswer(context.Background(), "")
}

// advance loads the next question after the settle delay.
func (e *Engine) advance() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhasePlaying {
		return
	}
	e.bank.Advance()
	e.eliminated = make(map[string]struct{})
	e.locked = false
	e.presentLocked()
	e.broadcastLocked(Event{Kind: EventState, Snapshot: e.snapshotLocked()})
}

// presentLocked arms the timer for the current question at the difficulty
// derived from the streak. That difficulty also prices the answer, so a
// question is always scored at the tier it was asked at.
func (e *Engine) presentLocked() {
	e.askDifficulty = domain.DifficultyForStreak(e.streak)
	e.frozen = false
	e.locked = false
	e.timer.Reset(e.rules.TimeLimit(e.askDifficulty))
}

func (e *Engine) unfreeze() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.frozen {
		return
	}
	e.frozen = false
	if e.phase == PhasePlaying && !e.locked {
		e.timer.Resume()
	}
	e.broadcastLocked(Event{Kind: EventState, Snapshot: e.snapshotLocked()})
}

// grantMilestoneLocked awards the streak milestone once per reward name,
// checked against the persisted gear list.
func (e *Engine) grantMilestoneLocked(ctx context.Context) {
	for _, m := range milestones {
		if e.streak != m.streak {
			continue
		}
		already := false
		for _, g := range e.gear {
			if g == m.reward {
				already = true
				break
			}
		}
		if already {
			return
		}
		e.gear = append(e.gear, m.reward)
		e.charges.Add(m.kind, 1)
		kind := m.kind
		reward := m.reward
		e.persistAsync(func(ctx context.Context) error {
			if err := e.profiles.AddGear(ctx, e.userID, reward); err != nil {
				return err
			}
			return e.profiles.AdjustCharges(ctx, e.userID, kind, 1)
		})
		e.broadcastLocked(Event{
			Kind:     EventReward,
			Snapshot: e.snapshotLocked(),
			Reward:   &RewardUnlock{Reward: m.reward, Kind: m.kind, Streak: m.streak},
		})
		return
	}
}

func (e *Engine) gameOverLocked(ctx context.Context) {
	e.phase = PhaseGameOver
	e.timer.Pause()
	summary := &RoundSummary{
		RoundID:        e.roundID.String(),
		Score:          e.score,
		HighScore:      e.highScore,
		TotalQuestions: e.totalQuestions,
		CorrectAnswers: e.correctAnswers,
	}
	if e.totalQuestions > 0 {
		summary.Accuracy = float64(e.correctAnswers) / float64(e.totalQuestions)
	}
	if e.board != nil {
		high := e.highScore
		e.persistAsync(func(ctx context.Context) error {
			return e.board.Record(ctx, e.userID, high)
		})
	}
	e.log.Info().
		Str("round_id", summary.RoundID).
		Int("score", summary.Score).
		Int("questions", summary.TotalQuestions).
		Msg("game over")
	e.broadcastLocked(Event{Kind: EventGameOver, Snapshot: e.snapshotLocked(), Summary: summary})
}

// persistProgress writes the absolute gameplay fields without blocking the
// round. Failures are logged and the in-memory state stands; at-most-once,
// no rollback.
func (e *Engine) persistProgress(ctx context.Context, p domain.Progress) {
	e.persistAsync(func(ctx context.Context) error {
		return e.profiles.SaveProgress(ctx, e.userID, p)
	})
}

func (e *Engine) persistAsync(fn func(context.Context) error) {
	e.persistWG.Add(1)
	go func() {
		defer e.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.log.Error().Err(err).Msg("profile write failed, continuing with in-memory state")
		}
	}()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:          e.phase,
		Score:          e.score,
		HighScore:      e.highScore,
		Streak:         e.streak,
		Proximity:      e.proximity,
		Difficulty:     e.askDifficulty,
		TimeLeft:       e.timer.TimeLeft(),
		TimeLimit:      e.rules.TimeLimit(e.askDifficulty),
		TotalQuestions: e.totalQuestions,
		CorrectAnswers: e.correctAnswers,
		Charges:        e.charges,
		Locked:         e.locked,
		TimerPaused:    e.frozen,
	}
	if len(e.eliminated) > 0 {
		snap.Eliminated = make([]string, 0, len(e.eliminated))
		for k := range e.eliminated {
			snap.Eliminated = append(snap.Eliminated, k)
		}
		sort.Strings(snap.Eliminated)
	}
	if e.phase != PhaseIdle {
		q := e.bank.Current()
		snap.Question = &q
	}
	return snap
}

func (e *Engine) broadcastLocked(ev Event) {
	for ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest update so a slow consumer never blocks play.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
