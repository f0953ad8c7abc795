package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Port             string
	AllowedOrigins   []string
	AllowCredentials bool
	Environment      string

	DatabasePath string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	KafkaBrokers []string
	KafkaGroupID string

	// InstanceID tags relayed events so this instance skips its own echoes.
	InstanceID string

	// HeartbeatTimeout bounds how long a connection may stay silent before
	// it is judged dead and its session released.
	HeartbeatTimeout time.Duration

	// Simulated delivery-status windows.
	DeliveredDelayMin time.Duration
	DeliveredDelayMax time.Duration
	ReadDelayMin      time.Duration
	ReadDelayMax      time.Duration
}

func LoadConfig() *Config {
	allowedOrigins := []string{"*"}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		allowedOrigins = strings.Split(origins, ",")
		for i, origin := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(origin)
		}
	}

	kafkaBrokers := []string{"localhost:9092"}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafkaBrokers = strings.Split(brokers, ",")
		for i, broker := range kafkaBrokers {
			kafkaBrokers[i] = strings.TrimSpace(broker)
		}
	}

	return &Config{
		Port:              getEnv("PORT", "8082"),
		AllowedOrigins:    allowedOrigins,
		AllowCredentials:  getEnv("ALLOW_CREDENTIALS", "false") == "true",
		Environment:       getEnv("ENVIRONMENT", "development"),
		DatabasePath:      getEnv("DATABASE_PATH", "messenger.db"),
		RedisHost:         getEnv("REDIS_HOST", "localhost"),
		RedisPort:         getEnv("REDIS_PORT", "6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:      kafkaBrokers,
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "messenger-ws-group"),
		InstanceID:        getEnv("INSTANCE_ID", uuid.NewString()),
		HeartbeatTimeout:  getEnvDuration("HEARTBEAT_TIMEOUT", 60*time.Second),
		DeliveredDelayMin: getEnvDuration("DELIVERED_DELAY_MIN", 500*time.Millisecond),
		DeliveredDelayMax: getEnvDuration("DELIVERED_DELAY_MAX", 1500*time.Millisecond),
		ReadDelayMin:      getEnvDuration("READ_DELAY_MIN", 2*time.Second),
		ReadDelayMax:      getEnvDuration("READ_DELAY_MAX", 5*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare numbers are taken as milliseconds.
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// GetCORSOrigins returns CORS origins as a comma-separated string.
func (c *Config) GetCORSOrigins() string {
	if c.Environment == "production" && len(c.AllowedOrigins) > 0 && c.AllowedOrigins[0] != "*" {
		return strings.Join(c.AllowedOrigins, ",")
	}
	return "*"
}

// IsDevelopment returns true if environment is development.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
