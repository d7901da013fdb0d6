package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mathrush/internal/domain"
)

// PackLoader fetches a question pack from a backing store (e.g. Postgres).
type PackLoader interface {
	LoadPack(ctx context.Context, packID string) ([]domain.Question, error)
}

// PackRepository caches validated question packs with a TTL so every new
// connection does not hit the backing store. Concurrent cold loads for the
// same pack collapse into one.
type PackRepository struct {
	loader PackLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedPack
}

type cachedPack struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewPackRepository(loader PackLoader, ttl time.Duration) *PackRepository {
	return &PackRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPack),
	}
}

// GetPack returns the validated question set for a pack. A pack that is empty
// or holds a malformed record is rejected here, at load time.
func (r *PackRepository) GetPack(ctx context.Context, packID string) ([]domain.Question, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[packID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(packID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[packID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.questions, nil
		}
		r.mu.RUnlock()

		questions, err := r.loader.LoadPack(ctx, packID)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return nil, fmt.Errorf("pack %s: %w", packID, domain.ErrEmptyBank)
		}
		for _, q := range questions {
			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf("pack %s: %w", packID, err)
			}
		}

		r.mu.Lock()
		r.cache[packID] = cachedPack{
			questions: questions,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// StaticPackLoader serves packs from an in-memory map (demos and tests).
type StaticPackLoader struct {
	packs map[string][]domain.Question
}

func NewStaticPackLoader(packs map[string][]domain.Question) *StaticPackLoader {
	return &StaticPackLoader{packs: packs}
}

func (l *StaticPackLoader) LoadPack(_ context.Context, packID string) ([]domain.Question, error) {
	if questions, ok := l.packs[packID]; ok {
		return questions, nil
	}
	return nil, fmt.Errorf("pack %s: %w", packID, domain.ErrEmptyBank)
}

func (r *PackRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
