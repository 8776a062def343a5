// Package config loads the broker's configuration file. It follows the
// same load-with-defaults-then-validate shape used elsewhere in the stack's
// configuration layer: a YAML document, unmarshalled with gopkg.in/yaml.v3,
// defaulted field by field, then validated with a single pass that returns
// a wrapped error describing the first problem found.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BrokerConfig controls the broker's resource bounds and ambient behavior.
type BrokerConfig struct {
	// QueueCapacity bounds the dispatch queue (C5). Default 1024, matching
	// the core's "sufficient for >= 1024 in-flight envelopes" guidance.
	QueueCapacity int `yaml:"queue_capacity"`

	// RingBufferCapacity is a default SPSC ring-buffer (C3) capacity
	// carried for callers. No constructor in this module reads it:
	// client.NewRingSubscriber and ringbuffer.New take their capacity as
	// an explicit argument.
	RingBufferCapacity int `yaml:"ring_buffer_capacity"`

	// EnableJSONCodec records whether the secondary application/json
	// codec is wanted alongside the primary msgpack codec. The broker
	// keeps no codec registry and does not read this flag; callers
	// construct codecs themselves.
	EnableJSONCodec bool `yaml:"enable_json_codec"`

	// LogVerbosity is the logr V-level the broker uses for non-error
	// activity (registration, unsubscription, publish rejection,
	// shutdown). Registry pruning logs at a fixed V(2).
	LogVerbosity int `yaml:"log_verbosity"`

	// PublishBlockTimeout bounds PublishBlocking when a caller does not
	// supply its own context deadline.
	PublishBlockTimeout time.Duration `yaml:"publish_block_timeout"`
}

// Default returns the configuration used when no file is loaded: a
// 1024-envelope queue, a 256-element ring buffer default, both codecs
// enabled, and verbosity 1.
func Default() BrokerConfig {
	return BrokerConfig{
		QueueCapacity:       1024,
		RingBufferCapacity:  256,
		EnableJSONCodec:     true,
		LogVerbosity:        1,
		PublishBlockTimeout: 5 * time.Second,
	}
}

// Load reads and parses a YAML configuration file over Default, so fields
// absent from the file keep their defaults; an explicit zero for
// queue_capacity, ring_buffer_capacity or publish_block_timeout is also
// replaced by its default. The result is then validated.
func Load(filename string) (BrokerConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return BrokerConfig{}, fmt.Errorf("config: reading %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return BrokerConfig{}, fmt.Errorf("config: parsing %s: %w", filename, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return BrokerConfig{}, fmt.Errorf("config: %s: %w", filename, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *BrokerConfig) {
	def := Default()
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.RingBufferCapacity == 0 {
		cfg.RingBufferCapacity = def.RingBufferCapacity
	}
	if cfg.PublishBlockTimeout == 0 {
		cfg.PublishBlockTimeout = def.PublishBlockTimeout
	}
}

// Validate reports the first configuration problem found, if any.
func (cfg BrokerConfig) Validate() error {
	if cfg.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be >= 1, got %d", cfg.QueueCapacity)
	}
	if cfg.RingBufferCapacity < 1 {
		return fmt.Errorf("ring_buffer_capacity must be >= 1, got %d", cfg.RingBufferCapacity)
	}
	if cfg.PublishBlockTimeout < 0 {
		return fmt.Errorf("publish_block_timeout must not be negative, got %s", cfg.PublishBlockTimeout)
	}
	return nil
}
