package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// BrokerStatus reports whether the bridge currently holds a broker
// connection.
type BrokerStatus interface {
	IsConnected() bool
}

// HealthChecker probes every backing service the platform depends on.
type HealthChecker struct {
	db     *sql.DB
	mongo  *mongo.Client
	redis  *redis.Client
	broker BrokerStatus
}

// NewHealthChecker creates a health checker. Any dependency may be nil; nil
// dependencies are skipped.
func NewHealthChecker(db *sql.DB, mongoClient *mongo.Client, redisClient *redis.Client, broker BrokerStatus) *HealthChecker {
	return &HealthChecker{db: db, mongo: mongoClient, redis: redisClient, broker: broker}
}

// PingPostgres checks if the PostgreSQL connection is healthy.
func (h *HealthChecker) PingPostgres(ctx context.Context) error {
	if h.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if err := h.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}
	return nil
}

// PingMongo checks if the MongoDB connection is healthy.
func (h *HealthChecker) PingMongo(ctx context.Context) error {
	if h.mongo == nil {
		return fmt.Errorf("mongo client is nil")
	}
	if err := h.mongo.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping failed: %w", err)
	}
	return nil
}

// PingRedis checks if the Redis connection is healthy.
func (h *HealthChecker) PingRedis(ctx context.Context) error {
	if h.redis == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// GetHealthStatus returns the current health status of every dependency.
func (h *HealthChecker) GetHealthStatus(ctx context.Context) map[string]interface{} {
	checks := make(map[string]interface{})
	overall := "ok"

	record := func(name string, err error) {
		if err != nil {
			checks[name] = map[string]interface{}{"status": "error", "error": err.Error()}
			overall = "degraded"
			return
		}
		checks[name] = map[string]interface{}{"status": "ok"}
	}

	if h.db != nil {
		record("postgres", h.PingPostgres(ctx))
	}
	if h.mongo != nil {
		record("mongo", h.PingMongo(ctx))
	}
	if h.redis != nil {
		record("redis", h.PingRedis(ctx))
	}
	if h.broker != nil {
		if h.broker.IsConnected() {
			checks["mqtt"] = map[string]interface{}{"status": "ok"}
		} else {
			checks["mqtt"] = map[string]interface{}{"status": "error", "error": "broker disconnected"}
			overall = "degraded"
		}
	}

	return map[string]interface{}{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}
}
