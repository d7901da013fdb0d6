package game

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"mathrush/internal/domain"
)

func TestNewBankRejectsEmptySet(t *testing.T) {
	if _, err := NewBank(nil, nil); !errors.Is(err, domain.ErrEmptyBank) {
		t.Fatalf("expected ErrEmptyBank, got %v", err)
	}
}

func TestNewBankRejectsMalformedQuestion(t *testing.T) {
	questions := []domain.Question{
		{
			ID:     "q1",
			Prompt: "What is 1 + 1?",
			Choices: []domain.Choice{
				{Key: "a", Text: "2"},
				{Key: "b", Text: "3"},
			},
			Answer: "z", // not a choice key
		},
	}
	if _, err := NewBank(questions, nil); !errors.Is(err, domain.ErrMalformedQuestion) {
		t.Fatalf("expected ErrMalformedQuestion, got %v", err)
	}
}

func TestShufflePermutesSameSet(t *testing.T) {
	bank := testBank(t, 8)
	before := bank.OrderIDs()

	bank.Shuffle()
	after := bank.OrderIDs()

	if len(before) != len(after) {
		t.Fatalf("shuffle changed size: %d -> %d", len(before), len(after))
	}
	sortedBefore := append([]string(nil), before...)
	sortedAfter := append([]string(nil), after...)
	sort.Strings(sortedBefore)
	sort.Strings(sortedAfter)
	for i := range sortedBefore {
		if sortedBefore[i] != sortedAfter[i] {
			t.Fatalf("shuffle is not a permutation: %v vs %v", before, after)
		}
	}
}

func TestAdvanceWrapsWithoutReshuffle(t *testing.T) {
	bank := testBank(t, 4)
	bank.Shuffle()
	order := bank.OrderIDs()

	seen := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		seen = append(seen, bank.Current().ID)
		bank.Advance()
	}

	for i := 0; i < 4; i++ {
		if seen[i] != order[i] {
			t.Fatalf("expected order %v, walked %v", order, seen)
		}
	}
	if seen[4] != order[0] {
		t.Fatalf("expected wrap to first question %s, got %s", order[0], seen[4])
	}
}

func testBank(t *testing.T, n int) *Bank {
	t.Helper()
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			ID:     string(rune('a' + i)),
			Prompt: "What is 1 + 1?",
			Choices: []domain.Choice{
				{Key: "a", Text: "2"},
				{Key: "b", Text: "3"},
			},
			Answer: "a",
		})
	}
	bank, err := NewBank(questions, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	return bank
}
