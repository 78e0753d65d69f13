package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wikigate/moderation-backend/internal/repository"
)

const (
	pendingTSKey  = "moderation:pending-ts"
	seenKeyPrefix = "moderation:seen:"
	noneSentinel  = "none"

	pendingTTL = 24 * time.Hour
	seenTTL    = 7 * 24 * time.Hour
)

// NotifyService answers "is there a pending change newer than the last
// time this reviewer looked", through a Redis read-through cache.
// A nil Redis client degrades to hitting the queue store directly.
type NotifyService struct {
	rdb  *redis.Client
	repo repository.QueueRepository
	log  zerolog.Logger
}

// NewNotifyService creates a new NotifyService
func NewNotifyService(rdb *redis.Client, repo repository.QueueRepository, log zerolog.Logger) *NotifyService {
	return &NotifyService{rdb: rdb, repo: repo, log: log}
}

// LatestPending returns the newest pending submission timestamp, nil if
// the queue is empty. Cached for 24 hours; Invalidate drops the cache.
func (s *NotifyService) LatestPending(ctx context.Context) (*time.Time, error) {
	if s.rdb == nil {
		return s.repo.LatestPendingTimestamp(ctx)
	}
	val, err := s.rdb.Get(ctx, pendingTSKey).Result()
	switch {
	case err == nil:
		if val == noneSentinel {
			return nil, nil
		}
		ts, perr := time.Parse(time.RFC3339Nano, val)
		if perr != nil {
			// Unreadable cache entry; fall through to a refill.
			break
		}
		return &ts, nil
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Msg("pending-ts cache read failed")
		return s.repo.LatestPendingTimestamp(ctx)
	}

	ts, err := s.repo.LatestPendingTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	stored := noneSentinel
	if ts != nil {
		stored = ts.Format(time.RFC3339Nano)
	}
	if err := s.rdb.Set(ctx, pendingTSKey, stored, pendingTTL).Err(); err != nil {
		s.log.Warn().Err(err).Msg("pending-ts cache write failed")
	}
	return ts, nil
}

// Invalidate drops the cached latest-pending timestamp. Called whenever
// a row's terminal status changes or a new row's timestamp could be the
// new maximum. Implements consequence.PendingCache.
func (s *NotifyService) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, pendingTSKey).Err()
}

// LastSeen returns when the reviewer last looked at the queue, nil if
// unknown or expired.
func (s *NotifyService) LastSeen(ctx context.Context, reviewer string) (*time.Time, error) {
	if s.rdb == nil {
		return nil, nil
	}
	val, err := s.rdb.Get(ctx, seenKeyPrefix+reviewer).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return nil, nil
	}
	return &ts, nil
}

// SetLastSeen records that the reviewer looked at the queue at ts.
func (s *NotifyService) SetLastSeen(ctx context.Context, reviewer string, ts time.Time) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Set(ctx, seenKeyPrefix+reviewer, ts.Format(time.RFC3339Nano), seenTTL).Err()
}

// ShowBanner reports whether the "new pending changes" banner should be
// shown: a pending timestamp exists and is newer than the reviewer's
// last-seen value, or last-seen is absent.
func (s *NotifyService) ShowBanner(ctx context.Context, reviewer string) (bool, error) {
	pending, err := s.LatestPending(ctx)
	if err != nil {
		return false, err
	}
	if pending == nil {
		return false, nil
	}
	seen, err := s.LastSeen(ctx, reviewer)
	if err != nil {
		return false, err
	}
	return seen == nil || pending.After(*seen), nil
}
