package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
)

// DefaultFile is read when present in the working directory.
const DefaultFile = "order-service.yaml"

const (
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
)

type Config struct {
	Port           string        `env:"PORT" yaml:"port" default:"3000"`
	RabbitMQURL    string        `env:"RABBITMQ_URL" yaml:"rabbitmq_url"`
	QueueName      string        `env:"QUEUE_NAME" yaml:"queue_name" default:"order_queue"`
	Broker         string        `env:"BROKER" yaml:"broker" default:"rabbitmq"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" yaml:"kafka_brokers"`
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" yaml:"publish_timeout" default:"10s"`
	DialTimeout    time.Duration `env:"DIAL_TIMEOUT" yaml:"dial_timeout" default:"10s"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" yaml:"max_body_bytes" default:"102400"`
	RedisAddr      string        `env:"REDIS_ADDR" yaml:"redis_addr"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" yaml:"idempotency_ttl" default:"24h"`
	ConsulAddr     string        `env:"CONSUL_ADDR" yaml:"consul_addr"`
	ServiceName    string        `env:"SERVICE_NAME" yaml:"service_name" default:"order-service"`
	ServiceID      string        `env:"SERVICE_ID" yaml:"service_id"`
	LogLevel       string        `env:"LOG_LEVEL" yaml:"log_level" default:"info"`
}

// Load reads defaults, then the given YAML files, then the environment.
// Missing files are ignored.
func Load(files ...string) (Config, error) {
	var cfg Config

	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
			".yml":  aconfigyaml.New(),
		},
	})

	if err := loader.Load(); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.ServiceID == "" {
		cfg.ServiceID = cfg.ServiceName
		if host, err := os.Hostname(); err == nil && host != "" {
			cfg.ServiceID = cfg.ServiceName + "-" + host
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks values that would make the service unusable. An unset
// broker address is allowed; it is reported per request instead.
func (c Config) Validate() error {
	switch c.Broker {
	case BrokerRabbitMQ, BrokerKafka:
	default:
		return fmt.Errorf("invalid BROKER %q: expected %q or %q", c.Broker, BrokerRabbitMQ, BrokerKafka)
	}

	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid MAX_BODY_BYTES %d: must be positive", c.MaxBodyBytes)
	}

	if c.QueueName == "" {
		return errors.New("QUEUE_NAME must not be empty")
	}

	return nil
}

var credentialsPattern = regexp.MustCompile(`//([^:/@]+):([^@]+)@`)

// MaskCredentials replaces the password of every URL found in s with ***.
func MaskCredentials(s string) string {
	return credentialsPattern.ReplaceAllString(s, "//$1:***@")
}

// MaskedRabbitMQURL returns the broker URL safe for display, or nil when unset.
func (c Config) MaskedRabbitMQURL() *string {
	if c.RabbitMQURL == "" {
		return nil
	}

	masked := MaskCredentials(c.RabbitMQURL)
	return &masked
}
