package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

// CacheService wraps Redis for verified LLM answers, live intent counters and
// snapshot invalidation between instances.
type CacheService struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

type CacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func NewCacheService(cfg CacheConfig, logger *zap.Logger) (*CacheService, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), constants.RedisConfig.ReadyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, apperrors.NewCacheError("failed to connect to Redis", "ping", "", err)
	}

	logger.Info("Redis connected",
		zap.String("addr", addr),
		zap.Int("db", cfg.DB),
	)

	return &CacheService{
		client: client,
		logger: logger,
		prefix: constants.RedisConfig.KeyPrefix,
	}, nil
}

// Get decodes the JSON value at key into dest. found is false when the key is absent.
func (c *CacheService) Get(ctx context.Context, key string, dest any) (bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.logger.Error("Cache get failed", zap.String("key", key), zap.Error(err))
		return false, apperrors.NewCacheError("get failed", "get", key, err)
	}

	if err := json.Unmarshal(value, dest); err != nil {
		c.logger.Error("Cache unmarshal failed", zap.String("key", key), zap.Error(err))
		return false, apperrors.NewCacheError("unmarshal failed", "get", key, err)
	}
	return true, nil
}

func (c *CacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return apperrors.NewCacheError("marshal failed", "set", key, err)
	}

	if err := c.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		c.logger.Error("Cache set failed", zap.String("key", key), zap.Error(err))
		return apperrors.NewCacheError("set failed", "set", key, err)
	}
	return nil
}

func (c *CacheService) Del(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Cache delete failed", zap.String("key", key), zap.Error(err))
		return apperrors.NewCacheError("delete failed", "del", key, err)
	}
	return nil
}

// VerifiedResponseKey scopes a cached answer to one snapshot and one exact prompt, so an
// intent edit never serves an answer built from old data.
func VerifiedResponseKey(prefix, snapshotID, intentID, system, user string) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(user))
	return fmt.Sprintf("%sverified:%s:%s:%s", prefix, snapshotID, intentID, hex.EncodeToString(h.Sum(nil))[:32])
}

// GetVerifiedResponse returns a guard-approved answer cached for this prompt.
func (c *CacheService) GetVerifiedResponse(ctx context.Context, snapshotID, intentID, system, user string) (string, bool, error) {
	var text string
	found, err := c.Get(ctx, VerifiedResponseKey(c.prefix, snapshotID, intentID, system, user), &text)
	return text, found, err
}

// SetVerifiedResponse stores an answer that already passed the guard.
func (c *CacheService) SetVerifiedResponse(ctx context.Context, snapshotID, intentID, system, user, text string) error {
	key := VerifiedResponseKey(c.prefix, snapshotID, intentID, system, user)
	return c.Set(ctx, key, text, constants.CacheTTL.VerifiedResponse)
}

// IntentCounterKey is the per-day hash of matched intent counts.
func IntentCounterKey(prefix, day string) string {
	return prefix + "hits:" + day
}

// IncrementIntentHit bumps today's live counter for an intent or source label.
func (c *CacheService) IncrementIntentHit(ctx context.Context, day, label string) error {
	key := IntentCounterKey(c.prefix, day)
	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, key, label, 1)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewCacheError("hincrby failed", "hincrby", key, err)
	}
	return nil
}

// IntentHits returns the live counters of one day.
func (c *CacheService) IntentHits(ctx context.Context, day string) (map[string]int64, error) {
	key := IntentCounterKey(c.prefix, day)
	values, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, apperrors.NewCacheError("hgetall failed", "hgetall", key, err)
	}
	hits := make(map[string]int64, len(values))
	for label, raw := range values {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			hits[label] = n
		}
	}
	return hits, nil
}

// PublishInvalidation tells every instance to rebuild its snapshot.
func (c *CacheService) PublishInvalidation(ctx context.Context, reason string) error {
	channel := constants.RedisConfig.InvalidationChannel
	if err := c.client.Publish(ctx, channel, reason).Err(); err != nil {
		return apperrors.NewCacheError("publish failed", "publish", channel, err)
	}
	return nil
}

// SubscribeInvalidations calls onMessage for every invalidation until ctx is done.
func (c *CacheService) SubscribeInvalidations(ctx context.Context, onMessage func(reason string)) error {
	pubsub := c.client.Subscribe(ctx, constants.RedisConfig.InvalidationChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return apperrors.NewCacheError("subscribe failed", "subscribe", constants.RedisConfig.InvalidationChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.logger.Debug("Snapshot invalidation received", zap.String("reason", msg.Payload))
			onMessage(msg.Payload)
		}
	}
}

func (c *CacheService) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", zap.Error(err))
		return err
	}
	c.logger.Info("Redis disconnected")
	return nil
}

func (c *CacheService) IsConnected(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

func (c *CacheService) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsConnected(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for Redis to be ready")
		case <-ticker.C:
		}
	}
}
