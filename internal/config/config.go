package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	Port            string
	MongoURI        string
	DBName          string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CORSOrigins     []string
	UploadDir       string
	PublicBaseURL   string

	Orders OrderPolicy
	Mail   Mail
	Notify Notify

	RabbitMQURL  string
	KafkaBrokers string
	KafkaTopic   string
	RedisURL     string
}

// OrderPolicy carries the knobs of the checkout workflow.
type OrderPolicy struct {
	TrustClientTotal   bool
	AllowNegativeStock bool
	Consistency        string
}

type Mail struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromName     string
	FromEmail    string
}

type Notify struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	QueueName   string
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() Config {
	return Config{
		Port:            getEnvOrDefault("PORT", "5000"),
		MongoURI:        getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		DBName:          getEnvOrDefault("DB_NAME", "purevit"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 60*24, time.Minute),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 30, 24*time.Hour),
		CORSOrigins:     getListEnv("CORS_ORIGINS", []string{"http://localhost:5173"}),
		UploadDir:       getEnvOrDefault("UPLOAD_DIR", "./uploads"),
		PublicBaseURL:   getEnvOrDefault("PUBLIC_BASE_URL", ""),
		Orders: OrderPolicy{
			TrustClientTotal:   getBoolEnv("TRUST_CLIENT_TOTAL", false),
			AllowNegativeStock: getBoolEnv("ALLOW_NEGATIVE_STOCK", true),
			Consistency:        getEnvOrDefault("STOCK_CONSISTENCY", "transaction"),
		},
		Mail: Mail{
			SMTPHost:     getEnvOrDefault("SMTP_HOST", ""),
			SMTPPort:     getIntEnv("SMTP_PORT", 587),
			SMTPUser:     getEnvOrDefault("SMTP_EMAIL", ""),
			SMTPPassword: getEnvOrDefault("SMTP_PASSWORD", ""),
			FromName:     getEnvOrDefault("FROM_NAME", "Purevit"),
			FromEmail:    getEnvOrDefault("FROM_EMAIL", "noreply@purevit.com"),
		},
		Notify: Notify{
			Workers:     getIntEnv("NOTIFY_WORKERS", 2),
			QueueSize:   getIntEnv("NOTIFY_QUEUE_SIZE", 256),
			MaxAttempts: getIntEnv("NOTIFY_MAX_ATTEMPTS", 5),
			QueueName:   getEnvOrDefault("NOTIFY_QUEUE", "notifications"),
		},
		RabbitMQURL:  getEnvOrDefault("RABBITMQ_URL", ""),
		KafkaBrokers: getEnvOrDefault("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnvOrDefault("KAFKA_TOPIC", "storefront.orders"),
		RedisURL:     getEnvOrDefault("REDIS_URL", ""),
	}
}
