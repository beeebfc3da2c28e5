package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDev        = "dev"
	EnvProduction = "production"

	defaultTokenTTLHours = 24 * 30
)

type Config struct {
	Env        string
	ServerPort int
	LogLevel   string
	Database   DatabaseConfig
	Auth       AuthConfig
	Storage    StorageConfig
	MQ         MQConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// RatePerMinute bounds signup/login attempts per client IP.
	RatePerMinute int
}

type StorageConfig struct {
	// Backend is "minio" or "gcs".
	Backend string
	// PublicBaseURL prefixes object keys to build image references.
	PublicBaseURL string
	Minio         MinioConfig
	GCS           GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type MQConfig struct {
	// Backend is "none", "rabbitmq" or "pubsub".
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

func LoadConfig() Config {
	env := getEnv("ENV", EnvProduction)
	if env == EnvDev {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "ewaste"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "ewaste_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	authConfig := AuthConfig{
		JWTSecret:     strings.TrimSpace(os.Getenv("JWT_SECRET")),
		TokenTTL:      time.Duration(getEnvInt("JWT_TTL_HOURS", defaultTokenTTLHours)) * time.Hour,
		RatePerMinute: getEnvInt("AUTH_RATE_PER_MINUTE", 10),
	}

	storageConfig := StorageConfig{
		Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", "minio")),
		PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "ewaste-images"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	mqConfig := MQConfig{
		Backend: strings.ToLower(getEnv("MQ_BACKEND", "none")),
		Channel: getEnv("EVENTS_CHANNEL", "listing-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		Env:        env,
		ServerPort: getEnvInt("SERVER_PORT", 5000),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Database:   dbConfig,
		Auth:       authConfig,
		Storage:    storageConfig,
		MQ:         mqConfig,
	}
}

// IsDevelopment reports whether the process runs in the dev posture.
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDev
}

// Validate checks settings the server cannot start without. In dev an unset
// JWT secret is replaced by a random per-process secret, so tokens never
// survive a restart and no well-known key is ever accepted.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		if !c.IsDevelopment() {
			return errors.New("JWT_SECRET is required")
		}
		secret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generate dev jwt secret: %w", err)
		}
		c.Auth.JWTSecret = secret
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("JWT_TTL_HOURS must be positive")
	}

	switch c.Storage.Backend {
	case "minio", "gcs":
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.MQ.Backend {
	case "none", "rabbitmq", "pubsub":
	default:
		return fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}
	return nil
}

func randomSecret() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
