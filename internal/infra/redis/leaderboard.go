package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mathrush/internal/domain"
)

// Leaderboard keeps the global high-score board in a sorted set. Scores only
// ever move up (ZADD GT), so late or reordered writes cannot lower a rank.
type Leaderboard struct {
	client *redis.Client
	key    string
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client, key: "leaderboard"}
}

// Record submits a score for a user; lower scores than the stored one are ignored.
func (l *Leaderboard) Record(ctx context.Context, userID string, score int) error {
	err := l.client.ZAddGT(ctx, l.key, redis.Z{Score: float64(score), Member: userID}).Err()
	if err != nil {
		return fmt.Errorf("record score: %w", err)
	}
	return nil
}

// Top returns the n best scores, resolving nicknames from the profile hashes.
func (l *Leaderboard) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = 10
	}
	ranked, err := l.client.ZRevRangeWithScores(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard range: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	pipe := l.client.Pipeline()
	names := make([]*redis.StringCmd, len(ranked))
	for i, z := range ranked {
		names[i] = pipe.HGet(ctx, "profile:"+z.Member.(string), fieldNickname)
	}
	_, _ = pipe.Exec(ctx) // missing nicknames are fine

	for i, z := range ranked {
		entry := domain.LeaderboardEntry{
			UserID: z.Member.(string),
			Score:  int(z.Score),
		}
		if nick, err := names[i].Result(); err == nil {
			entry.Nickname = nick
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
