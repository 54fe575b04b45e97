package messaging

import (
	"context"
	"fmt"
)

// Broker publishes raw message bodies to a single destination.
type Broker interface {
	Publish(ctx context.Context, body []byte) error
	Destination() string
	Close() error
}

// ConfigError reports a broker setting that is required but unset.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not set", e.Key)
}
