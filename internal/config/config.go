package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	// Backend the cart is synchronized against.
	RegistryAPIURL string

	// Durable slot for the local cart snapshot.
	CacheBackend string // "sqlite" or "redis"
	CachePath    string // sqlite file
	RedisAddr    string
	RedisDB      int

	// Notification sink. Empty broker list falls back to log output.
	KafkaBrokers []string
	NotifyTopic  string

	JWTSecret []byte

	// Pix key shown to the guest after a pix checkout.
	PixKey string
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env not found, using system environment: %v", err)
	}

	return &Config{
		ServiceName: EnvDefault("SERVICE_NAME", "cartsyncd"),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		RegistryAPIURL: must(os.Getenv("REGISTRY_API_URL"), "REGISTRY_API_URL"),

		CacheBackend: EnvDefault("CART_CACHE_BACKEND", "sqlite"),
		CachePath:    EnvDefault("CART_CACHE_PATH", "cart_cache.db"),
		RedisAddr:    EnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:      EnvIntDefault("REDIS_DB", 0),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		NotifyTopic:  EnvDefault("NOTIFY_TOPIC", "cart_notifications"),

		JWTSecret: []byte(must(os.Getenv("JWT_HS256_SECRET"), "JWT_HS256_SECRET")),

		PixKey: os.Getenv("PIX_KEY"),
	}
}

func must(v string, name string) string {
	if v == "" {
		log.Fatalf("missing required env %s", name)
	}
	return v
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
