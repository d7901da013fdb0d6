package game_test

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"mathrush/internal/domain"
	"mathrush/internal/game"
	"mathrush/internal/infra/memory"
)

// fakeClock is the slice of clockwork's fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type session struct {
	engine *game.Engine
	store  *memory.Store
	bank   *game.Bank
	clock  fakeClock
	rules  game.Rules
}

func startSession(t *testing.T, store *memory.Store) *session {
	t.Helper()
	fc := clockwork.NewFakeClock()
	bank, err := game.NewBank(testQuestions(), rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	rules := game.DefaultRules()
	engine := game.NewEngine(game.EngineConfig{
		UserID:   "u1",
		Profiles: store,
		Board:    store,
		Bank:     bank,
		Rules:    rules,
		Clock:    fc,
		Logger:   zerolog.Nop(),
		Rand:     rand.New(rand.NewSource(7)),
	})
	t.Cleanup(engine.Close)
	if err := engine.StartRound(context.Background()); err != nil {
		t.Fatalf("start round: %v", err)
	}
	return &session{engine: engine, store: store, bank: bank, clock: fc, rules: rules}
}

// answer submits a key and settles through to the next question.
func (s *session) answer(t *testing.T, key string) {
	t.Helper()
	s.engine.SubmitAnswer(context.Background(), key)
	s.clock.Advance(s.rules.SettleDelay)
	waitFor(t, func() bool { return !s.engine.Snapshot().Locked })
}

func (s *session) answerCorrect(t *testing.T) {
	t.Helper()
	s.answer(t, s.engine.Snapshot().Question.Answer)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func testQuestions() []domain.Question {
	ids := []string{"q1", "q2", "q3", "q4"}
	questions := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		questions = append(questions, domain.Question{
			ID:     id,
			Prompt: "What is 6 x 7?",
			Choices: []domain.Choice{
				{Key: "a", Text: "36"},
				{Key: "b", Text: "42"},
				{Key: "c", Text: "48"},
			},
			Answer: "b",
		})
	}
	return questions
}

func TestStartRoundSeedsDefaults(t *testing.T) {
	s := startSession(t, memory.NewStore())

	snap := s.engine.Snapshot()
	if snap.Phase != game.PhasePlaying {
		t.Fatalf("expected playing, got %v", snap.Phase)
	}
	if snap.Score != 0 || snap.Streak != 0 || snap.Proximity != 0 {
		t.Fatalf("expected zeroed counters, got %+v", snap)
	}
	if snap.Charges != (domain.Charges{TimeFreeze: 2, FiftyFifty: 1, Repellent: 1}) {
		t.Fatalf("expected default charges, got %+v", snap.Charges)
	}
	if snap.Question == nil {
		t.Fatal("expected a current question")
	}
	if snap.TimeLeft != 12 {
		t.Fatalf("expected easy time limit 12, got %d", snap.TimeLeft)
	}
}

func TestCorrectAnswerScoresAndAdvances(t *testing.T) {
	s := startSession(t, memory.NewStore())
	first := s.engine.Snapshot().Question.ID

	s.answerCorrect(t)

	snap := s.engine.Snapshot()
	// Easy tier, full 12 seconds left: 10 + 12*2*1.
	if snap.Score != 34 {
		t.Fatalf("expected score 34, got %d", snap.Score)
	}
	if snap.Streak != 1 || snap.CorrectAnswers != 1 || snap.TotalQuestions != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.HighScore != 34 {
		t.Fatalf("expected high score to track score, got %d", snap.HighScore)
	}
	if snap.Question.ID == first {
		t.Fatalf("expected next question after settle, still on %s", first)
	}
}

func TestWrongAnswerResetsStreakAndRaisesProximity(t *testing.T) {
	s := startSession(t, memory.NewStore())
	s.answerCorrect(t)
	s.answerCorrect(t)

	s.answer(t, "a") // wrong: answers are always "b"

	snap := s.engine.Snapshot()
	if snap.Streak != 0 {
		t.Fatalf("expected streak reset, got %d", snap.Streak)
	}
	if snap.Proximity != 1 {
		t.Fatalf("expected proximity 1, got %d", snap.Proximity)
	}
	if snap.Score != 68 {
		t.Fatalf("expected score untouched by wrong answer, got %d", snap.Score)
	}
}

func TestTimeoutSubmissionCountsIncorrect(t *testing.T) {
	s := startSession(t, memory.NewStore())

	s.answer(t, "")

	snap := s.engine.Snapshot()
	if snap.TotalQuestions != 1 || snap.Streak != 0 || snap.Proximity != 1 {
		t.Fatalf("expected timeout to count as a miss, got %+v", snap)
	}
}

func TestLockedGuardDropsReentrantSubmit(t *testing.T) {
	s := startSession(t, memory.NewStore())
	key := s.engine.Snapshot().Question.Answer

	s.engine.SubmitAnswer(context.Background(), key)
	before := s.engine.Snapshot()
	if !before.Locked {
		t.Fatal("expected session locked while settling")
	}

	// A racing timeout or double click must be dropped wholesale.
	s.engine.SubmitAnswer(context.Background(), key)
	s.engine.SubmitAnswer(context.Background(), "")

	after := s.engine.Snapshot()
	if after.Score != before.Score || after.TotalQuestions != before.TotalQuestions || after.Streak != before.Streak {
		t.Fatalf("locked submit changed state: %+v vs %+v", before, after)
	}
}

func TestProximityAndStreakStayInBounds(t *testing.T) {
	s := startSession(t, memory.NewStore())

	moves := []bool{false, true, false, false, true, true, false, true, false, false}
	for _, correct := range moves {
		snap := s.engine.Snapshot()
		if snap.Phase != game.PhasePlaying {
			break
		}
		if correct {
			s.answerCorrect(t)
		} else {
			s.answer(t, "a")
		}
		snap = s.engine.Snapshot()
		if snap.Proximity < 0 || snap.Proximity > domain.MaxProximity {
			t.Fatalf("proximity out of bounds: %d", snap.Proximity)
		}
		if snap.Streak < 0 {
			t.Fatalf("negative streak: %d", snap.Streak)
		}
	}
}

func TestGameOverAtMaxProximity(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	if err := store.SaveProgress(ctx, "u1", domain.Progress{Score: 50, HighScore: 90, Proximity: 4}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	s := startSession(t, store)

	s.engine.SubmitAnswer(ctx, "a") // wrong, proximity 4 -> 5

	snap := s.engine.Snapshot()
	if snap.Phase != game.PhaseGameOver {
		t.Fatalf("expected game over, got %v", snap.Phase)
	}

	s.engine.WaitPersist()
	persisted, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if persisted.Proximity != 0 {
		t.Fatalf("expected persisted proximity reset to 0, got %d", persisted.Proximity)
	}
	if persisted.HighScore != 90 {
		t.Fatalf("expected high score kept, got %d", persisted.HighScore)
	}

	top, err := store.Top(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 1 || top[0].Score != 90 {
		t.Fatalf("expected high score on the board, got %+v", top)
	}
}

func TestMilestoneGrantedOncePerGear(t *testing.T) {
	store := memory.NewStore()
	s := startSession(t, store)
	ctx := context.Background()

	s.answerCorrect(t)
	s.answerCorrect(t)
	s.answerCorrect(t)

	snap := s.engine.Snapshot()
	if snap.Charges.TimeFreeze != 3 {
		t.Fatalf("expected milestone charge 2+1, got %d", snap.Charges.TimeFreeze)
	}
	s.engine.WaitPersist()
	profile, _ := store.Load(ctx, "u1")
	if !profile.HasGear("frost_crown") {
		t.Fatalf("expected frost_crown in gear, got %v", profile.Gear)
	}
	if profile.Powerups.TimeFreeze != 3 {
		t.Fatalf("expected persisted charge 3, got %d", profile.Powerups.TimeFreeze)
	}

	// Break the streak, climb back to 3: no second grant.
	s.answer(t, "a")
	s.answerCorrect(t)
	s.answerCorrect(t)
	s.answerCorrect(t)

	snap = s.engine.Snapshot()
	if snap.Charges.TimeFreeze != 3 {
		t.Fatalf("expected no re-grant, got %d charges", snap.Charges.TimeFreeze)
	}
	s.engine.WaitPersist()
	profile, _ = store.Load(ctx, "u1")
	if len(profile.Gear) != 1 {
		t.Fatalf("expected single gear entry, got %v", profile.Gear)
	}
}

func TestFiftyFiftyEliminatesWrongKeysOnce(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	// Two charges so the idempotency guard, not charge exhaustion, blocks reuse.
	if err := store.AdjustCharges(ctx, "u1", domain.FiftyFifty, 1); err != nil {
		t.Fatalf("seed charges: %v", err)
	}
	s := startSession(t, store)

	if err := s.engine.ActivatePowerup(ctx, domain.FiftyFifty); err != nil {
		t.Fatalf("activate: %v", err)
	}
	snap := s.engine.Snapshot()
	want := []string{"a", "c"} // every wrong key of a 3-choice question
	if len(snap.Eliminated) != 2 || snap.Eliminated[0] != want[0] || snap.Eliminated[1] != want[1] {
		t.Fatalf("expected eliminated %v, got %v", want, snap.Eliminated)
	}
	if snap.Charges.FiftyFifty != 1 {
		t.Fatalf("expected one charge spent, got %d", snap.Charges.FiftyFifty)
	}

	if err := s.engine.ActivatePowerup(ctx, domain.FiftyFifty); err != nil {
		t.Fatalf("activate again: %v", err)
	}
	snap = s.engine.Snapshot()
	if snap.Charges.FiftyFifty != 1 || len(snap.Eliminated) != 2 {
		t.Fatalf("expected charge-free no-op, got %+v", snap)
	}

	// Eliminations clear on the next question.
	s.answerCorrect(t)
	if snap = s.engine.Snapshot(); len(snap.Eliminated) != 0 {
		t.Fatalf("expected eliminations cleared, got %v", snap.Eliminated)
	}
}

func TestTimeFreezePausesAndAutoResumes(t *testing.T) {
	s := startSession(t, memory.NewStore())
	ctx := context.Background()

	if err := s.engine.ActivatePowerup(ctx, domain.TimeFreeze); err != nil {
		t.Fatalf("activate: %v", err)
	}
	snap := s.engine.Snapshot()
	if !snap.TimerPaused {
		t.Fatal("expected timer paused")
	}
	if snap.Charges.TimeFreeze != 1 {
		t.Fatalf("expected charge spent immediately, got %d", snap.Charges.TimeFreeze)
	}

	s.clock.Advance(s.rules.FreezeWindow)
	waitFor(t, func() bool { return !s.engine.Snapshot().TimerPaused })
}

func TestRepellentNoopAtZeroProximityKeepsCharge(t *testing.T) {
	s := startSession(t, memory.NewStore())
	ctx := context.Background()

	if err := s.engine.ActivatePowerup(ctx, domain.Repellent); err != nil {
		t.Fatalf("activate: %v", err)
	}
	snap := s.engine.Snapshot()
	if snap.Charges.Repellent != 1 {
		t.Fatalf("expected charge kept at zero proximity, got %d", snap.Charges.Repellent)
	}
	if snap.Proximity != 0 {
		t.Fatalf("expected proximity unchanged, got %d", snap.Proximity)
	}
}

func TestRepellentReducesProximity(t *testing.T) {
	s := startSession(t, memory.NewStore())
	ctx := context.Background()
	s.answer(t, "a")
	s.answer(t, "a")

	if err := s.engine.ActivatePowerup(ctx, domain.Repellent); err != nil {
		t.Fatalf("activate: %v", err)
	}
	snap := s.engine.Snapshot()
	if snap.Proximity != 0 {
		t.Fatalf("expected proximity 2-2=0, got %d", snap.Proximity)
	}
	if snap.Charges.Repellent != 0 {
		t.Fatalf("expected charge consumed, got %d", snap.Charges.Repellent)
	}
}

func TestRestartAfterGameOver(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	if err := store.SaveProgress(ctx, "u1", domain.Progress{HighScore: 120, Proximity: 4}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	s := startSession(t, store)
	s.engine.SubmitAnswer(ctx, "a")
	if s.engine.Snapshot().Phase != game.PhaseGameOver {
		t.Fatal("expected game over")
	}

	if err := s.engine.Restart(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	snap := s.engine.Snapshot()
	if snap.Phase != game.PhasePlaying {
		t.Fatalf("expected playing, got %v", snap.Phase)
	}
	if snap.Score != 0 || snap.Streak != 0 || snap.Proximity != 0 || snap.TotalQuestions != 0 || snap.CorrectAnswers != 0 {
		t.Fatalf("expected zeroed session, got %+v", snap)
	}
	if snap.HighScore != 120 {
		t.Fatalf("expected high score carried over, got %d", snap.HighScore)
	}

	ids := append([]string(nil), s.bank.OrderIDs()...)
	sort.Strings(ids)
	if len(ids) != 4 || ids[0] != "q1" || ids[3] != "q4" {
		t.Fatalf("expected reshuffled permutation of the same set, got %v", ids)
	}
}

func TestRestartRequiresGameOver(t *testing.T) {
	s := startSession(t, memory.NewStore())
	if err := s.engine.Restart(context.Background()); err != domain.ErrRoundNotActive {
		t.Fatalf("expected ErrRoundNotActive, got %v", err)
	}
}

func TestSubscribeReceivesAnswerEvents(t *testing.T) {
	s := startSession(t, memory.NewStore())
	events, cancel := s.engine.Subscribe()
	defer cancel()

	<-events // initial snapshot

	key := s.engine.Snapshot().Question.Answer
	s.engine.SubmitAnswer(context.Background(), key)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind != game.EventAnswer {
				continue
			}
			if ev.Answer == nil || !ev.Answer.Correct {
				t.Fatalf("expected correct answer outcome, got %+v", ev.Answer)
			}
			return
		case <-deadline:
			t.Fatal("expected answer event")
		}
	}
}
