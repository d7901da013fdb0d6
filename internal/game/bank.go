package game

import (
	"math/rand"
	"time"

	"mathrush/internal/domain"
)

// Bank holds an immutable question set and serves it through a shuffled
// working order. Advancing past the last question wraps to index 0 in the
// same order; the order only changes on Shuffle.
type Bank struct {
	questions []domain.Question
	order     []int
	idx       int
	rnd       *rand.Rand
}

// NewBank validates the question set and builds a bank over it. An empty set
// or a malformed record is a configuration error.
func NewBank(questions []domain.Question, rnd *rand.Rand) (*Bank, error) {
	if len(questions) == 0 {
		return nil, domain.ErrEmptyBank
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b := &Bank{
		questions: append([]domain.Question(nil), questions...),
		order:     make([]int, len(questions)),
		rnd:       rnd,
	}
	for i := range b.order {
		b.order[i] = i
	}
	return b, nil
}

// Shuffle re-permutes the working order (Fisher-Yates) and rewinds to the
// first question.
func (b *Bank) Shuffle() {
	for i := len(b.order) - 1; i > 0; i-- {
		j := b.rnd.Intn(i + 1)
		b.order[i], b.order[j] = b.order[j], b.order[i]
	}
	b.idx = 0
}

// Current returns the question at the working position.
func (b *Bank) Current() domain.Question {
	return b.questions[b.order[b.idx]]
}

// Advance moves to the next question, wrapping to the start of the same
// shuffled order after the last one.
func (b *Bank) Advance() {
	b.idx = (b.idx + 1) % len(b.order)
}

// Len returns the number of questions in the bank.
func (b *Bank) Len() int {
	return len(b.questions)
}

// OrderIDs returns question IDs in the current working order. Useful for
// verifying shuffles preserve the set.
func (b *Bank) OrderIDs() []string {
	ids := make([]string, len(b.order))
	for i, n := range b.order {
		ids[i] = b.questions[n].ID
	}
	return ids
}
