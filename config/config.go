package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds the project config values
type Config struct {
	Port    string
	BaseURL string
	Env     string

	DBDriver string
	DBDSN    string

	MongoURI    string
	MongoDBName string

	JWTSecret     string
	JWTIssuer     string
	TokenCacheTTL time.Duration

	RedisAddr       string
	RedisPassword   string
	SendRateLimit   int
	SendRateWindow  time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	NotifyWorkers   int
	NotifyQueueSize int

	NotifySinkTimeout     time.Duration
	NotifyBreakerFailures uint32
	NotifyBreakerOpen     time.Duration

	WSHeartbeat     time.Duration
	WSIdleTimeout   time.Duration
	WSMaxFrameBytes int64
	WSSendBuffer    int

	NotificationRetention time.Duration
	RequestTimeout        time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "sleeprism-chat.db")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DB_NAME", "sleeprism")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("JWT_ISSUER", "sleeprism")
	v.SetDefault("TOKEN_CACHE_TTL", 5*time.Minute)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("SEND_RATE_LIMIT", 30)
	v.SetDefault("SEND_RATE_WINDOW", 10*time.Second)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "chat.notifications")
	v.SetDefault("NOTIFY_WORKERS", 4)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 1024)
	v.SetDefault("NOTIFY_SINK_TIMEOUT", 5*time.Second)
	v.SetDefault("NOTIFY_BREAKER_FAILURES", 5)
	v.SetDefault("NOTIFY_BREAKER_OPEN", 30*time.Second)
	v.SetDefault("WS_HEARTBEAT", 10*time.Second)
	v.SetDefault("WS_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("WS_MAX_FRAME_BYTES", 64*1024)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("NOTIFICATION_RETENTION", 30*24*time.Hour)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
}

// New sets up all config related services
func New() *Config {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	env := v.GetString("APP_ENV")
	logger, err := setLogger(env, v.GetString("LOG_LEVEL"))
	if err == nil {
		_ = zap.ReplaceGlobals(logger)
	}

	return &Config{
		Port:                  v.GetString("PORT"),
		BaseURL:               v.GetString("BASE_URL"),
		Env:                   env,
		DBDriver:              v.GetString("DB_DRIVER"),
		DBDSN:                 v.GetString("DB_DSN"),
		MongoURI:              v.GetString("MONGO_URI"),
		MongoDBName:           v.GetString("MONGO_DB_NAME"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		JWTIssuer:             v.GetString("JWT_ISSUER"),
		TokenCacheTTL:         v.GetDuration("TOKEN_CACHE_TTL"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		SendRateLimit:         v.GetInt("SEND_RATE_LIMIT"),
		SendRateWindow:        v.GetDuration("SEND_RATE_WINDOW"),
		KafkaBrokers:          splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:            v.GetString("KAFKA_NOTIFICATION_TOPIC"),
		NotifyWorkers:         v.GetInt("NOTIFY_WORKERS"),
		NotifyQueueSize:       v.GetInt("NOTIFY_QUEUE_SIZE"),
		NotifySinkTimeout:     v.GetDuration("NOTIFY_SINK_TIMEOUT"),
		NotifyBreakerFailures: v.GetUint32("NOTIFY_BREAKER_FAILURES"),
		NotifyBreakerOpen:     v.GetDuration("NOTIFY_BREAKER_OPEN"),
		WSHeartbeat:           v.GetDuration("WS_HEARTBEAT"),
		WSIdleTimeout:         v.GetDuration("WS_IDLE_TIMEOUT"),
		WSMaxFrameBytes:       v.GetInt64("WS_MAX_FRAME_BYTES"),
		WSSendBuffer:          v.GetInt("WS_SEND_BUFFER"),
		NotificationRetention: v.GetDuration("NOTIFICATION_RETENTION"),
		RequestTimeout:        v.GetDuration("REQUEST_TIMEOUT"),
	}
}

// splitList turns "a, b,,c" into [a b c]
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
