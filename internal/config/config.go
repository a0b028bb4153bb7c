package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TransportKind selects the channel under the queues.
type TransportKind string

const (
	TransportPipe      TransportKind = "pipe"
	TransportWebSocket TransportKind = "websocket"
	TransportQUIC      TransportKind = "quic"
)

// Config is the root configuration of an ipcq process.
type Config struct {
	Log       LogConfig       `json:"log" yaml:"log"`
	Queue     QueueConfig     `json:"queue" yaml:"queue"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level    string `json:"level" yaml:"level"`
	Encoding string `json:"encoding" yaml:"encoding"`
}

// QueueConfig configures actors hosting queues.
type QueueConfig struct {
	// FlushDelay bounds how long BufferedAsync data may sit in the cache.
	FlushDelay time.Duration `json:"flush_delay" yaml:"flush_delay"`
	// MaxEnvelopeSize caps one serialized argument list.
	MaxEnvelopeSize int `json:"max_envelope_size" yaml:"max_envelope_size"`
	// MaxStoredBytes caps the inbound bytes an actor holds for a single queue.
	MaxStoredBytes int `json:"max_stored_bytes" yaml:"max_stored_bytes"`
	// MaxSharedBufferSize caps one out-of-band shared buffer.
	MaxSharedBufferSize int `json:"max_shared_buffer_size" yaml:"max_shared_buffer_size"`
}

// TransportConfig configures the channel.
type TransportConfig struct {
	Kind         TransportKind `json:"kind" yaml:"kind"`
	Address      string        `json:"address" yaml:"address"`
	Path         string        `json:"path,omitempty" yaml:"path,omitempty"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout,omitempty"`
	MaxFrameSize int           `json:"max_frame_size" yaml:"max_frame_size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Queue: QueueConfig{
			FlushDelay:          4 * time.Millisecond,
			MaxEnvelopeSize:     16 * 1024 * 1024, // 16MB
			MaxStoredBytes:      64 * 1024 * 1024, // 64MB
			MaxSharedBufferSize: 256 * 1024 * 1024,
		},
		Transport: TransportConfig{
			Kind:         TransportPipe,
			Address:      "127.0.0.1:7443",
			Path:         "/ipcq",
			WriteTimeout: 10 * time.Second,
			MaxFrameSize: 32 * 1024 * 1024, // 32MB
		},
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Queue.FlushDelay <= 0 {
		return fmt.Errorf("queue.flush_delay must be positive")
	}
	if c.Queue.MaxEnvelopeSize <= 0 {
		return fmt.Errorf("queue.max_envelope_size must be positive")
	}
	if c.Queue.MaxStoredBytes < c.Queue.MaxEnvelopeSize {
		return fmt.Errorf("queue.max_stored_bytes (%d) is below queue.max_envelope_size (%d)",
			c.Queue.MaxStoredBytes, c.Queue.MaxEnvelopeSize)
	}
	if c.Queue.MaxSharedBufferSize <= 0 {
		return fmt.Errorf("queue.max_shared_buffer_size must be positive")
	}

	switch c.Transport.Kind {
	case TransportPipe:
	case TransportWebSocket, TransportQUIC:
		if c.Transport.Address == "" {
			return fmt.Errorf("transport.address is required for %s", c.Transport.Kind)
		}
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	if c.Transport.MaxFrameSize < c.Queue.MaxEnvelopeSize {
		return fmt.Errorf("transport.max_frame_size (%d) is below queue.max_envelope_size (%d)",
			c.Transport.MaxFrameSize, c.Queue.MaxEnvelopeSize)
	}
	return nil
}
