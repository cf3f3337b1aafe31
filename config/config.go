package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"
)

type Config struct {
	AppPort         string
	AppMode         string
	ClientOrigin    string
	ShutdownTimeout time.Duration

	StoreDriver string
	BadgerPath  string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string

	JWTSecret  string
	AuthCookie string

	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	MessageRateLimit int
	UserCacheTTL     time.Duration

	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Endpoint    string
	S3PublicBase  string
	MaxImageBytes int
	MaxBodyBytes  int
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:         getEnv("APP_PORT", "5001"),
		AppMode:         getEnv("APP_MODE", "debug"),
		ClientOrigin:    getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		BadgerPath:  getEnv("BADGER_PATH", "data/messages"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "duet_chat"),
		DBPort:      getEnv("DB_PORT", "5432"),

		JWTSecret:  getEnv("JWT_SECRET", "change-me"),
		AuthCookie: getEnv("AUTH_COOKIE", "jwt"),

		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),
		MessageRateLimit: getEnvAsInt("MESSAGE_RATE_LIMIT", 60),
		UserCacheTTL:     getEnvAsDuration("USER_CACHE_TTL", 5*time.Minute),

		S3Region:      getEnv("S3_REGION", ""),
		S3Bucket:      getEnv("S3_BUCKET", ""),
		S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3PublicBase:  getEnv("S3_PUBLIC_BASE", ""),
		MaxImageBytes: getEnvAsInt("MAX_IMAGE_BYTES", 5<<20),
		MaxBodyBytes:  getEnvAsInt("MAX_BODY_BYTES", 10<<20),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
