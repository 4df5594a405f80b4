package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	AMQP     AMQPConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// AMQPConfig is optional; an empty URL disables the broker publisher.
type AMQPConfig struct {
	URL string
}

type EngineConfig struct {
	ClaimTimeout   time.Duration
	RateLimit      int
	RateWindow     time.Duration
	RefreshSpec    string
	IdempotencyTTL time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPortStr := os.Getenv("POSTGRES_PORT")
	if postgresPortStr == "" {
		postgresPortStr = "5432"
	}

	postgresPort, err := strconv.Atoi(postgresPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	amqpCfg := AMQPConfig{
		URL: os.Getenv("AMQP_URL"),
	}

	claimTimeoutStr := os.Getenv("CLAIM_TIMEOUT_MS")
	if claimTimeoutStr == "" {
		claimTimeoutStr = "3000"
	}

	claimTimeoutMs, err := strconv.Atoi(claimTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid CLAIM_TIMEOUT_MS: %w", op, err)
	}

	rateLimitStr := os.Getenv("RATE_LIMIT")
	if rateLimitStr == "" {
		rateLimitStr = "10"
	}

	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid RATE_LIMIT: %w", op, err)
	}

	rateWindowStr := os.Getenv("RATE_WINDOW_SEC")
	if rateWindowStr == "" {
		rateWindowStr = "60"
	}

	rateWindowSec, err := strconv.Atoi(rateWindowStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid RATE_WINDOW_SEC: %w", op, err)
	}

	refreshSpec := os.Getenv("CATALOG_REFRESH_SPEC")
	if refreshSpec == "" {
		refreshSpec = "@every 5m"
	}

	engineCfg := EngineConfig{
		ClaimTimeout:   time.Duration(claimTimeoutMs) * time.Millisecond,
		RateLimit:      rateLimit,
		RateWindow:     time.Duration(rateWindowSec) * time.Second,
		RefreshSpec:    refreshSpec,
		IdempotencyTTL: 2 * time.Hour,
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		AMQP:     amqpCfg,
		Engine:   engineCfg,
	}, nil
}
