package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"mathrush/internal/domain"
)

// ProfileStore persists profile documents in Redis: one hash per user for the
// scalar fields, a set for the append-only gear list. Powerup counters are
// hash fields updated with HINCRBY so grants and spends are relative
// increments, matching the store contract.
type ProfileStore struct {
	client *redis.Client
}

func NewProfileStore(client *redis.Client) *ProfileStore {
	return &ProfileStore{client: client}
}

const (
	fieldScore      = "score"
	fieldHighScore  = "high_score"
	fieldStreak     = "streak"
	fieldProximity  = "proximity"
	fieldTutorial   = "tutorial_seen"
	fieldNickname   = "nickname"
	fieldAvatar     = "avatar"
	fieldAccessory  = "accessory"
	fieldTimeFreeze = "pu_time_freeze"
	fieldFiftyFifty = "pu_fifty_fifty"
	fieldRepellent  = "pu_repellent"
)

// Load reads the profile document, treating an absent document or absent
// fields as the documented defaults. On first contact the default powerup
// counters are seeded into the hash so later relative increments start from
// the right base.
func (s *ProfileStore) Load(ctx context.Context, userID string) (domain.Profile, error) {
	key := s.key(userID)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	defaults := domain.DefaultProfile()
	if len(fields) == 0 {
		pipe := s.client.Pipeline()
		pipe.HSetNX(ctx, key, fieldTimeFreeze, defaults.Powerups.TimeFreeze)
		pipe.HSetNX(ctx, key, fieldFiftyFifty, defaults.Powerups.FiftyFifty)
		pipe.HSetNX(ctx, key, fieldRepellent, defaults.Powerups.Repellent)
		if _, err := pipe.Exec(ctx); err != nil {
			return domain.Profile{}, fmt.Errorf("seed profile: %w", err)
		}
	}

	gear, err := s.client.SMembers(ctx, s.gearKey(userID)).Result()
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load gear: %w", err)
	}

	p := domain.Profile{
		Score:           intField(fields, fieldScore, 0),
		HighScore:       intField(fields, fieldHighScore, 0),
		Streak:          intField(fields, fieldStreak, 0),
		Proximity:       intField(fields, fieldProximity, 0),
		Gear:            gear,
		HasSeenTutorial: fields[fieldTutorial] == "1",
		Nickname:        fields[fieldNickname],
		Avatar:          fields[fieldAvatar],
		Accessory:       fields[fieldAccessory],
		Powerups: domain.Charges{
			TimeFreeze: intField(fields, fieldTimeFreeze, defaults.Powerups.TimeFreeze),
			FiftyFifty: intField(fields, fieldFiftyFifty, defaults.Powerups.FiftyFifty),
			Repellent:  intField(fields, fieldRepellent, defaults.Powerups.Repellent),
		},
	}
	return p, nil
}

// SaveProgress writes the absolute gameplay fields in one HSET.
func (s *ProfileStore) SaveProgress(ctx context.Context, userID string, p domain.Progress) error {
	err := s.client.HSet(ctx, s.key(userID),
		fieldScore, p.Score,
		fieldHighScore, p.HighScore,
		fieldStreak, p.Streak,
		fieldProximity, p.Proximity,
	).Err()
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// AddGear appends a reward name; the set makes the list naturally idempotent.
func (s *ProfileStore) AddGear(ctx context.Context, userID, name string) error {
	if err := s.client.SAdd(ctx, s.gearKey(userID), name).Err(); err != nil {
		return fmt.Errorf("add gear: %w", err)
	}
	return nil
}

// AdjustCharges applies a relative increment to a powerup counter, flooring
// the stored value at zero.
func (s *ProfileStore) AdjustCharges(ctx context.Context, userID string, kind domain.PowerupKind, delta int) error {
	field, err := chargeField(kind)
	if err != nil {
		return err
	}
	key := s.key(userID)
	val, err := s.client.HIncrBy(ctx, key, field, int64(delta)).Result()
	if err != nil {
		return fmt.Errorf("adjust charges: %w", err)
	}
	if val < 0 {
		if err := s.client.HSet(ctx, key, field, 0).Err(); err != nil {
			return fmt.Errorf("floor charges: %w", err)
		}
	}
	return nil
}

// SetNickname stores the leaderboard display name.
func (s *ProfileStore) SetNickname(ctx context.Context, userID, nickname string) error {
	if err := s.client.HSet(ctx, s.key(userID), fieldNickname, nickname).Err(); err != nil {
		return fmt.Errorf("set nickname: %w", err)
	}
	return nil
}

// MarkTutorialSeen flips the one-way tutorial flag.
func (s *ProfileStore) MarkTutorialSeen(ctx context.Context, userID string) error {
	if err := s.client.HSet(ctx, s.key(userID), fieldTutorial, "1").Err(); err != nil {
		return fmt.Errorf("mark tutorial: %w", err)
	}
	return nil
}

// Equip stores cosmetic selections. Empty strings leave the field unchanged.
func (s *ProfileStore) Equip(ctx context.Context, userID, avatar, accessory string) error {
	pairs := make([]interface{}, 0, 4)
	if avatar != "" {
		pairs = append(pairs, fieldAvatar, avatar)
	}
	if accessory != "" {
		pairs = append(pairs, fieldAccessory, accessory)
	}
	if len(pairs) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.key(userID), pairs...).Err(); err != nil {
		return fmt.Errorf("equip: %w", err)
	}
	return nil
}

func (s *ProfileStore) key(userID string) string {
	return "profile:" + userID
}

func (s *ProfileStore) gearKey(userID string) string {
	return "profile:" + userID + ":gear"
}

func chargeField(kind domain.PowerupKind) (string, error) {
	switch kind {
	case domain.TimeFreeze:
		return fieldTimeFreeze, nil
	case domain.FiftyFifty:
		return fieldFiftyFifty, nil
	case domain.Repellent:
		return fieldRepellent, nil
	}
	return "", domain.ErrUnknownPowerup
}

func intField(fields map[string]string, name string, fallback int) int {
	raw, ok := fields[name]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
