package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database"`

	// Mongo configuration (raw telemetry samples)
	Mongo MongoConfig `json:"mongo"`

	// Redis configuration (device presence)
	Redis RedisConfig `json:"redis"`

	// MQTT configuration
	MQTT MQTTConfig `json:"mqtt"`

	// EMQX management API configuration
	Emqx EmqxConfig `json:"emqx"`

	// Auth configuration
	Auth AuthConfig `json:"auth"`

	// Threshold engine configuration
	Threshold ThresholdConfig `json:"threshold"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// CORS configuration
	CORS CORSConfig `json:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// MongoConfig holds the connection settings for the raw sample store
type MongoConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// RedisConfig holds the connection settings for the presence store
type RedisConfig struct {
	Addr        string        `json:"addr"`
	Password    string        `json:"password"`
	DB          int           `json:"db"`
	PresenceTTL time.Duration `json:"presence_ttl"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost     string        `json:"broker_host"`
	BrokerPort     int           `json:"broker_port"`
	BrokerUser     string        `json:"broker_user"`
	BrokerPass     string        `json:"broker_pass"`
	UseTLS         bool          `json:"use_tls"`
	CACertPath     string        `json:"ca_cert_path"`
	ClientID       string        `json:"client_id"`
	KeepAlive      time.Duration `json:"keep_alive"`
	PingTimeout    time.Duration `json:"ping_timeout"`
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	PublishTimeout time.Duration `json:"publish_timeout"`
}

// EmqxConfig holds the EMQX management API settings
type EmqxConfig struct {
	APIBaseURL string        `json:"api_base_url"`
	APIKey     string        `json:"api_key"`
	APISecret  string        `json:"api_secret"`
	Timeout    time.Duration `json:"timeout"`
}

// AuthConfig holds auth-related configuration
type AuthConfig struct {
	JWTSecretKey         string        `json:"jwt_secret_key"`
	JWTIssuer            string        `json:"jwt_issuer"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	PasswordMinLength    int           `json:"password_min_length"`
}

// ThresholdConfig holds the threshold engine tunables
type ThresholdConfig struct {
	Cooldown        time.Duration `json:"cooldown"`
	ConfigCacheTTL  time.Duration `json:"config_cache_ttl"`
	PairingTokenTTL time.Duration `json:"pairing_token_ttl"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"`
	Output       string `json:"output"`
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// Load loads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	if err := godotenv.Load(); err != nil {
		// Environment variables can also be set directly
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getRequiredEnv("POSTGRES_USER"),
			Password: getRequiredEnv("POSTGRES_PASSWORD"),
			DBName:   getEnv("POSTGRES_DB", "agrilink"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getInt("POSTGRES_MAX_CONNS", 25),
			MinConns: getInt("POSTGRES_MIN_CONNS", 5),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGODB_DB", "agrilink"),
			Collection: getEnv("MONGODB_SENSOR_COLLECTION", "sensor_data"),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getInt("REDIS_DB", 0),
			PresenceTTL: getDuration("PRESENCE_TTL", 90*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerHost:     getEnv("BROKER_HOST", "localhost"),
			BrokerPort:     getInt("BROKER_PORT", 1883),
			BrokerUser:     getEnv("BROKER_USER", ""),
			BrokerPass:     getEnv("BROKER_PASS", ""),
			UseTLS:         getBool("BROKER_TLS", false),
			CACertPath:     getEnv("BROKER_CA_FILE", ""),
			ClientID:       getEnv("MQTT_CLIENT_ID", "farm-server"),
			KeepAlive:      getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout:    getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
			ReconnectDelay: getDuration("MQTT_RECONNECT_DELAY", 5*time.Second),
			PublishTimeout: getDuration("MQTT_PUBLISH_TIMEOUT", 10*time.Second),
		},
		Emqx: EmqxConfig{
			APIBaseURL: getEnv("EMQX_API_URL", ""),
			APIKey:     getEnv("EMQX_API_KEY", ""),
			APISecret:  getEnv("EMQX_API_SECRET", ""),
			Timeout:    getDuration("EMQX_API_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecretKey:         getEnv("JWT_SECRET_KEY", "change-this-secret-in-production"),
			JWTIssuer:            getEnv("JWT_ISSUER", "agl-farm-server"),
			AccessTokenDuration:  getDuration("JWT_ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getDuration("JWT_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			PasswordMinLength:    getInt("PASSWORD_MIN_LENGTH", 8),
		},
		Threshold: ThresholdConfig{
			Cooldown:        getDuration("THRESHOLD_COOLDOWN", 30*time.Second),
			ConfigCacheTTL:  getDuration("SENSOR_CONFIG_CACHE_TTL", 60*time.Second),
			PairingTokenTTL: getDuration("PAIRING_TOKEN_TTL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			Format:       getEnv("LOG_FORMAT", "text"),
			Output:       getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: getBool("LOG_ENABLE_CALLER", false),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "token"}),
			ExposedHeaders:   getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length"}),
			AllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getInt("CORS_MAX_AGE", 43200),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if c.Auth.JWTSecretKey == "change-this-secret-in-production" {
		log.Println("WARNING: Using default JWT secret key. Change JWT_SECRET_KEY in production!")
	}
	if c.Auth.PasswordMinLength < 6 {
		return fmt.Errorf("password minimum length must be at least 6")
	}
	if c.Threshold.Cooldown <= 0 {
		return fmt.Errorf("THRESHOLD_COOLDOWN must be positive")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("missing required environment variable: %s", key)
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return defaultValue
	}
	return parts
}
