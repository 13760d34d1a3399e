// Package worker runs workflows on demand: by name from the API and the CLI,
// and from trigger messages delivered over Pub/Sub or SQS.
package worker

import (
	"time"
)

// BatchConfig holds configuration for TriggerAll.
type BatchConfig struct {
	// Concurrency is the number of workflows run at once.
	// Default: 2
	Concurrency int

	// Timeout bounds the whole batch.
	// Default: 5 minutes
	Timeout time.Duration
}

// DefaultBatchConfig returns the default batch configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Concurrency: 2,
		Timeout:     5 * time.Minute,
	}
}

func (c BatchConfig) withDefaults() BatchConfig {
	def := DefaultBatchConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
