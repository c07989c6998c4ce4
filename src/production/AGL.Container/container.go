package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"

	config "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Config"
	logger "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Logger"
	presence "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Presence"
	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Startup/health"
)

// Container manages dependencies and their lifecycle.
type Container struct {
	config *config.Config
	logger *logger.Logger

	mu          sync.Mutex
	db          *sql.DB
	mongoClient *mongo.Client
	redisClient *redis.Client

	cleanupFuncs []func() error
}

// NewContainer creates a new dependency injection container.
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(&cfg.Logging)

	return &Container{
		config: cfg,
		logger: log,
	}, nil
}

// GetConfig returns the configuration.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger.
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetDatabase returns the relational store connection, opening it on first
// use.
func (c *Container) GetDatabase() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		db, err := health.ConnectPostgres(c.config, 20*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.db = db
		c.cleanupFuncs = append(c.cleanupFuncs, db.Close)
	}

	return c.db, nil
}

// GetMongoClient returns the raw sample store client, connecting on first
// use.
func (c *Container) GetMongoClient() (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mongoClient == nil {
		client, err := health.ConnectMongo(&c.config.Mongo, 20*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		c.mongoClient = client
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
	}

	return c.mongoClient, nil
}

// GetSensorDataCollection returns the configured raw sample collection.
func (c *Container) GetSensorDataCollection() (*mongo.Collection, error) {
	client, err := c.GetMongoClient()
	if err != nil {
		return nil, err
	}
	return health.SensorDataCollection(client, &c.config.Mongo), nil
}

// GetRedisClient returns the presence store client, connecting on first use.
func (c *Container) GetRedisClient() (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.redisClient == nil {
		client := presence.NewRedisClient(&c.config.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.redisClient = client
		c.cleanupFuncs = append(c.cleanupFuncs, client.Close)
	}

	return c.redisClient, nil
}

// InitializeDatabase creates the relational tables if they don't exist.
func (c *Container) InitializeDatabase(ctx context.Context) error {
	db, err := c.GetDatabase()
	if err != nil {
		return err
	}

	if err := health.CreateTables(ctx, db); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	c.logger.Info("Database initialized successfully")
	return nil
}

// NewHealthChecker builds a checker over every connection the container has
// opened so far.
func (c *Container) NewHealthChecker(broker health.BrokerStatus) *health.HealthChecker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return health.NewHealthChecker(c.db, c.mongoClient, c.redisClient, broker)
}

// AddCleanupFunc adds a cleanup function run during Shutdown.
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies.
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	// Execute cleanup functions in reverse order.
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}
