package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	aws_pkg "github.com/storesphere/checkout-service/pkg/aws"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Port string

	DDBCartTable    string
	DDBProductTable string

	SNSTopicARN string
	SenderEmail string
	EmailDriver string // "ses" or "smtp"

	RedisURL     string // optional; enables the idempotency guard
	KafkaBrokers string // optional; enables settled events
	KafkaTopic   string
}

// LoadConfig loads environment variables into a Config struct. When
// AWS_USE_SECRETS=true the Postgres credentials are overlaid from Secrets
// Manager before the database package reads them.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "8089"),
		DDBCartTable:    getEnv("DDB_TABLE_CART", "user_cart"),
		DDBProductTable: getEnv("DDB_TABLE_PRODUCTS", "products"),
		SNSTopicARN:     os.Getenv("SNS_TOPIC_ARN"),
		SenderEmail:     os.Getenv("SENDER_EMAIL"),
		EmailDriver:     getEnv("EMAIL_DRIVER", "ses"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "checkout.settled"),
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			sm := aws_pkg.NewSecretsClient(awsCfg)

			if dbjson, err := sm.GetSecret(context.Background(), "checkout/DB_CREDENTIALS"); err == nil && dbjson != "" {
				var m map[string]string
				if err := json.Unmarshal([]byte(dbjson), &m); err == nil {
					for _, k := range []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT"} {
						if v, ok := m[k]; ok && v != "" {
							os.Setenv(k, v)
						}
					}
				}
			}
		}
	}

	if cfg.SNSTopicARN == "" {
		return nil, fmt.Errorf("SNS_TOPIC_ARN is required")
	}
	if cfg.EmailDriver == "ses" && cfg.SenderEmail == "" {
		return nil, fmt.Errorf("SENDER_EMAIL is required when EMAIL_DRIVER=ses")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
