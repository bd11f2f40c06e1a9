package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string        `env:"DATABASE_DSN,required=true"`
	RabbitMQURL       string        `env:"RABBITMQ_URL,required=true"`
	RedisURL          string        `env:"REDIS_URL,required=true"`
	PushGatewayURL    string        `env:"PUSH_GATEWAY_URL,required=true"`
	SMSGatewayURL     string        `env:"SMS_GATEWAY_URL,required=true"`
	DirectoryURL      string        `env:"DIRECTORY_URL,required=true"`
	RealtimeToken     string        `env:"REALTIME_TOKEN,required=true"`
	APIPort           int           `env:"API_PORT,default=8080"`
	RealtimePort      int           `env:"REALTIME_PORT,default=8081"`
	RateLimitPerSec   int           `env:"RATE_LIMIT_PER_SEC,default=100"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY,default=16"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	ReplayCapacity    int           `env:"REPLAY_CAPACITY,default=1024"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
