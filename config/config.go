package config

import (
	"fmt"

	"github.com/neuralnotes/neuralnotes/audio"
	"github.com/neuralnotes/neuralnotes/blob"
	"github.com/neuralnotes/neuralnotes/cache"
	"github.com/neuralnotes/neuralnotes/diarization/pyannote"
	embollama "github.com/neuralnotes/neuralnotes/embedding/ollama"
	"github.com/neuralnotes/neuralnotes/index"
	llmollama "github.com/neuralnotes/neuralnotes/llm/ollama"
	"github.com/neuralnotes/neuralnotes/logger"
	"github.com/neuralnotes/neuralnotes/notify"
	"github.com/neuralnotes/neuralnotes/observability"
	"github.com/neuralnotes/neuralnotes/pipeline"
	"github.com/neuralnotes/neuralnotes/provider"
	"github.com/neuralnotes/neuralnotes/query"
	"github.com/neuralnotes/neuralnotes/server"
	"github.com/neuralnotes/neuralnotes/store"
	"github.com/neuralnotes/neuralnotes/synthesis"
	"github.com/neuralnotes/neuralnotes/transcription/whisper"
)

// Config is the full application configuration.
type Config struct {
	Environment string        `mapstructure:"environment"`
	Logging     logger.Config `mapstructure:"logging"`

	Server        server.Config        `mapstructure:"server"`
	Database      store.DBConfig       `mapstructure:"database"`
	Blob          blob.Config          `mapstructure:"blob"`
	Redis         cache.RedisConfig    `mapstructure:"redis"`
	Kafka         notify.KafkaConfig   `mapstructure:"kafka"`
	Observability observability.Config `mapstructure:"observability"`

	Audio     audio.Config        `mapstructure:"audio"`
	Whisper   whisper.Config      `mapstructure:"whisper"`
	Pyannote  pyannote.Config     `mapstructure:"pyannote"`
	LLM       llmollama.Config    `mapstructure:"llm"`
	Embedding embollama.Config    `mapstructure:"embedding"`
	Synthesis synthesis.Config    `mapstructure:"synthesis"`
	Chunker   index.ChunkerConfig `mapstructure:"chunker"`
	Query     query.Config        `mapstructure:"query"`
	Pipeline  pipeline.Config     `mapstructure:"pipeline"`

	// Limits throttles every external capability (ASR, diarization,
	// language model, embedding), shared across all jobs.
	Limits provider.Limits `mapstructure:"provider_limits"`
}

// CacheEnabled reports whether a Redis artifact cache is configured.
// Without an address the pipeline falls back to the in-process cache.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}

// KafkaEnabled reports whether completion events go to Kafka.
// Without brokers completions are only logged.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// ApplyDefaults fills zero fields across all sections.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	c.Logging.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Blob.ApplyDefaults()
	if c.Observability.Environment == "" {
		c.Observability.Environment = c.Environment
	}
	c.Observability.ApplyDefaults()
	c.Audio.ApplyDefaults()
	c.Synthesis.ApplyDefaults()
	c.Chunker.ApplyDefaults()
	c.Query.ApplyDefaults()
	c.Pipeline.ApplyDefaults()
	c.Limits.ApplyDefaults()
}

// Validate rejects configurations the application cannot start with.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("environment must be one of [development, staging, production] (got: %s)", c.Environment)
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if err := c.Blob.Validate(); err != nil {
		return err
	}
	return nil
}
