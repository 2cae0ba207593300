package protocol

import "time"

const (
	defaultUnbanEveryoneInterval = 5 * time.Minute
	defaultAskTimeout            = 10 * time.Second
	defaultRetryInterval         = 2 * time.Second
	defaultMaxPropagationRecords = 4096
	defaultMaxOperationBatch     = 1024
)

// Config carries the tunables of the protocol worker.
type Config struct {
	// UnbanEveryoneInterval is the period of the global unban sweep.
	UnbanEveryoneInterval time.Duration
	// AskTimeout bounds how long a single ask to one peer may stay
	// unanswered before the want is re-routed.
	AskTimeout time.Duration
	// RetryInterval is how often deferred wants are re-examined when no
	// eligible peer was available.
	RetryInterval time.Duration
	// MaxPropagationRecords caps the propagation tracker size.
	MaxPropagationRecords int
	// MaxOperationBatch caps the number of operations accepted in a
	// single message.
	MaxOperationBatch int
}

func (c Config) normalize() Config {
	if c.UnbanEveryoneInterval <= 0 {
		c.UnbanEveryoneInterval = defaultUnbanEveryoneInterval
	}
	if c.AskTimeout <= 0 {
		c.AskTimeout = defaultAskTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.MaxPropagationRecords <= 0 {
		c.MaxPropagationRecords = defaultMaxPropagationRecords
	}
	if c.MaxOperationBatch <= 0 {
		c.MaxOperationBatch = defaultMaxOperationBatch
	}
	return c
}
