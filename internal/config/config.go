package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	ServerPort string
	JWTSecret  string
	JWTTTL     time.Duration

	// RedisAddr enables cross-instance fan-out when set.
	RedisAddr    string
	RedisChannel string

	LogLevel string
	LogJSON  bool

	APIBaseURL          string
	WSURL               string
	WSReconnectAttempts int
	WSReconnectDelay    time.Duration
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Debug("no .env file found, using system environment variables")
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "taskboard"),
		DBPassword: getEnv("DB_PASSWORD", "taskboard"),
		DBName:     getEnv("DB_NAME", "taskboard"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		JWTSecret:  getEnv("JWT_SECRET", "supersecretkey"),
		JWTTTL:     time.Duration(getInt("JWT_TTL_HOURS", 72)) * time.Hour,

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "taskboard:board-updates"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getBool("LOG_JSON", false),

		APIBaseURL:          getEnv("API_BASE_URL", "http://localhost:8080"),
		WSURL:               getEnv("WS_URL", "ws://localhost:8080/ws"),
		WSReconnectAttempts: getInt("WS_RECONNECT_ATTEMPTS", 5),
		WSReconnectDelay:    time.Duration(getInt("WS_RECONNECT_DELAY", 1000)) * time.Millisecond,
	}
}

// DSN is the gorm connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// MigrateURL is the golang-migrate database URL for the pgx/v5 driver.
func (c *Config) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return v
}

func getBool(key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return v
}
