// Package presence tracks device liveness in Redis. Every inbound MQTT
// message refreshes a per-device key with a TTL; a device whose key has
// expired is considered offline.
package presence

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
)

const keyPrefix = "presence:device:"

type Tracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTracker(client *redis.Client, ttl time.Duration) *Tracker {
	return &Tracker{client: client, ttl: ttl}
}

// NewRedisClient builds the Redis connection from config.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Touch refreshes the device's last-seen marker and its TTL.
func (t *Tracker) Touch(ctx context.Context, deviceID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return t.client.Set(ctx, keyPrefix+deviceID, now, t.ttl).Err()
}

// IsOnline reports whether the device's presence key is still alive.
func (t *Tracker) IsOnline(ctx context.Context, deviceID string) (bool, error) {
	n, err := t.client.Exists(ctx, keyPrefix+deviceID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LastSeen returns the last recorded touch time, or the zero time when the
// device has never been seen or its key has expired.
func (t *Tracker) LastSeen(ctx context.Context, deviceID string) (time.Time, error) {
	val, err := t.client.Get(ctx, keyPrefix+deviceID).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, val)
}

// MarkOffline drops the device's presence key immediately, used when the
// broker reports a clean disconnect.
func (t *Tracker) MarkOffline(ctx context.Context, deviceID string) error {
	return t.client.Del(ctx, keyPrefix+deviceID).Err()
}
