package atclient

import (
	"time"

	"i4.energy/across/ubloxd/at"
	"i4.energy/across/ubloxd/port"
)

type Config struct {
	// Dialer opens the transport. Required.
	Dialer port.Dialer
	// CommandTimeout applies to Lock and every blocking response read
	// whose context carries no deadline of its own.
	CommandTimeout time.Duration
	// CommandTerminator is appended to every command sent.
	CommandTerminator string
	// ResponseTerminator delimits response lines coming back.
	ResponseTerminator string
	// Prompt is the data input prompt, empty to disable prompt
	// recognition.
	Prompt string
	// EchoSuppression discards one echo of each sent command. Enable it
	// for module profiles where echo cannot be turned off; with ATE0 in
	// effect it costs nothing.
	EchoSuppression bool
	// URCQueueSize bounds the event queue feeding URC handlers.
	URCQueueSize int
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 5 * time.Second
	}
	if c.CommandTerminator == "" {
		c.CommandTerminator = at.CommandTerminator
	}
	if c.ResponseTerminator == "" {
		c.ResponseTerminator = at.CRLF
	}
	if c.URCQueueSize == 0 {
		c.URCQueueSize = 32
	}
}

// ConfigBuilder assembles a Config fluently.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: Config{Prompt: at.Prompt},
	}
}

func (b *ConfigBuilder) WithDialer(d port.Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.CommandTimeout = d
	return b
}

// WithTerminators overrides the command and response line terminators.
func (b *ConfigBuilder) WithTerminators(command, response string) *ConfigBuilder {
	b.config.CommandTerminator = command
	b.config.ResponseTerminator = response
	return b
}

func (b *ConfigBuilder) WithPrompt(prompt string) *ConfigBuilder {
	b.config.Prompt = prompt
	return b
}

func (b *ConfigBuilder) WithEchoSuppression(on bool) *ConfigBuilder {
	b.config.EchoSuppression = on
	return b
}

func (b *ConfigBuilder) WithURCQueueSize(n int) *ConfigBuilder {
	b.config.URCQueueSize = n
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	b.config.setDefaults()
	return b.config, nil
}
