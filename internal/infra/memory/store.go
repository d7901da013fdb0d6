package memory

import (
	"context"
	"sort"
	"sync"

	"mathrush/internal/domain"
)

// Store is an in-memory profile store and score board, used when Redis is not
// configured and throughout the unit tests.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
	best     map[string]int
}

func NewStore() *Store {
	return &Store{
		profiles: make(map[string]*domain.Profile),
		best:     make(map[string]int),
	}
}

// Load returns the stored profile, or the documented defaults when the user
// has none. Absence is not an error.
func (s *Store) Load(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok {
		out := *p
		out.Gear = append([]string(nil), p.Gear...)
		return out, nil
	}
	return domain.DefaultProfile(), nil
}

// SaveProgress overwrites the absolute gameplay fields.
func (s *Store) SaveProgress(_ context.Context, userID string, prog domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrSeedLocked(userID)
	p.Score = prog.Score
	p.HighScore = prog.HighScore
	p.Streak = prog.Streak
	p.Proximity = prog.Proximity
	return nil
}

// AddGear appends a reward name to the gear list if not already present.
func (s *Store) AddGear(_ context.Context, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrSeedLocked(userID)
	if !p.HasGear(name) {
		p.Gear = append(p.Gear, name)
	}
	return nil
}

// AdjustCharges applies a relative increment to a powerup counter.
func (s *Store) AdjustCharges(_ context.Context, userID string, kind domain.PowerupKind, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrSeedLocked(userID)
	p.Powerups.Add(kind, delta)
	return nil
}

// SetNickname stores the display name used on the leaderboard.
func (s *Store) SetNickname(_ context.Context, userID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrSeedLocked(userID).Nickname = nickname
	return nil
}

// MarkTutorialSeen flips the one-way tutorial flag.
func (s *Store) MarkTutorialSeen(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrSeedLocked(userID).HasSeenTutorial = true
	return nil
}

// Equip stores cosmetic selections. Empty strings leave the field unchanged.
func (s *Store) Equip(_ context.Context, userID, avatar, accessory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrSeedLocked(userID)
	if avatar != "" {
		p.Avatar = avatar
	}
	if accessory != "" {
		p.Accessory = accessory
	}
	return nil
}

// Record keeps the best score per user.
func (s *Store) Record(_ context.Context, userID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if score > s.best[userID] {
		s.best[userID] = score
	}
	return nil
}

// Top returns up to n users ordered by best score descending, ties broken by
// user ID for a stable order.
func (s *Store) Top(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.best))
	for userID, score := range s.best {
		entry := domain.LeaderboardEntry{UserID: userID, Score: score}
		if p, ok := s.profiles[userID]; ok {
			entry.Nickname = p.Nickname
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (s *Store) getOrSeedLocked(userID string) *domain.Profile {
	if p, ok := s.profiles[userID]; ok {
		return p
	}
	seed := domain.DefaultProfile()
	s.profiles[userID] = &seed
	return &seed
}
