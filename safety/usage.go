package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"leadpilot/models"
)

// UsageStore is the single authoritative per-channel send counter. Reserve
// is an atomic compare-and-increment: two concurrent workers can never both
// claim the last slot under the limit.
type UsageStore interface {
	Count(ctx context.Context, campaignID uint, channel, bucket string) (int, error)
	Reserve(ctx context.Context, campaignID uint, channel, bucket string, limit int) (bool, error)
}

// ---------- GORM-backed counters ----------

// GormUsageStore keeps counters in the channel_usages table and reserves
// slots with a conditional UPDATE, so the database serializes concurrent
// increments.
type GormUsageStore struct {
	db *gorm.DB
}

func NewGormUsageStore(db *gorm.DB) *GormUsageStore {
	return &GormUsageStore{db: db}
}

func (s *GormUsageStore) Count(ctx context.Context, campaignID uint, channel, bucket string) (int, error) {
	var usage models.ChannelUsage
	err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND channel = ? AND day = ?", campaignID, channel, bucket).
		First(&usage).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return usage.SentCount, nil
}

func (s *GormUsageStore) Reserve(ctx context.Context, campaignID uint, channel, bucket string, limit int) (bool, error) {
	// Ensure the counter row exists; a concurrent insert losing the race is
	// fine, the conditional update below settles it.
	s.db.WithContext(ctx).
		Where(models.ChannelUsage{CampaignID: campaignID, Channel: channel, Day: bucket}).
		FirstOrCreate(&models.ChannelUsage{CampaignID: campaignID, Channel: channel, Day: bucket})

	res := s.db.WithContext(ctx).Model(&models.ChannelUsage{}).
		Where("campaign_id = ? AND channel = ? AND day = ? AND sent_count < ?",
			campaignID, channel, bucket, limit).
		Update("sent_count", gorm.Expr("sent_count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ---------- Redis-backed counters ----------

// RedisUsageStore keeps counters in Redis. INCR is atomic; a reservation
// that overshoots the limit is rolled back with DECR.
type RedisUsageStore struct {
	client *redis.Client
}

func NewRedisUsageStore(client *redis.Client) *RedisUsageStore {
	return &RedisUsageStore{client: client}
}

func usageKey(campaignID uint, channel, bucket string) string {
	return fmt.Sprintf("usage:%d:%s:%s", campaignID, channel, bucket)
}

func (s *RedisUsageStore) Count(ctx context.Context, campaignID uint, channel, bucket string) (int, error) {
	n, err := s.client.Get(ctx, usageKey(campaignID, channel, bucket)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisUsageStore) Reserve(ctx context.Context, campaignID uint, channel, bucket string, limit int) (bool, error) {
	key := usageKey(campaignID, channel, bucket)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		// Buckets carry the date, so a generous TTL is enough to reap them.
		s.client.Expire(ctx, key, 48*time.Hour)
	}
	if int(n) > limit {
		s.client.Decr(ctx, key)
		return false, nil
	}
	return true, nil
}

// ---------- In-memory counters (tests, simulation) ----------

type MemoryUsageStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{counts: map[string]int{}}
}

func (s *MemoryUsageStore) Count(ctx context.Context, campaignID uint, channel, bucket string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[usageKey(campaignID, channel, bucket)], nil
}

func (s *MemoryUsageStore) Reserve(ctx context.Context, campaignID uint, channel, bucket string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := usageKey(campaignID, channel, bucket)
	if s.counts[key] >= limit {
		return false, nil
	}
	s.counts[key]++
	return true, nil
}
