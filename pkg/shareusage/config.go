package shareusage

import (
	"fmt"
	"time"
)

// Config controls sampling, batching and shutdown of usage sharing.
// Field tags allow loading with pkg/config from SHARE_USAGE_* environment variables.
type Config struct {
	MinimumEntriesPerMessage int           `env:"SHARE_USAGE_MIN_ENTRIES" envDefault:"50"`      // Records buffered before a batch is sent
	MaximumQueueSize         int           `env:"SHARE_USAGE_MAX_QUEUE_SIZE" envDefault:"1000"` // Hard cap on buffered records; must exceed MinimumEntriesPerMessage
	SharePercentage          float64       `env:"SHARE_USAGE_PERCENTAGE" envDefault:"1"`        // Fraction of records shared, 0..1
	Endpoint                 string        `env:"SHARE_USAGE_URL"`                              // Passed to the sink, opaque to the core
	RepeatEvidenceInterval   time.Duration `env:"SHARE_USAGE_REPEAT_INTERVAL" envDefault:"20m"` // Identical evidence within this window is shared once; 0 disables
	BlockedHTTPHeaders       []string      `env:"SHARE_USAGE_BLOCKED_HEADERS" envDefault:"authorization,cookie" envSeparator:","`
	IncludedQueryParams      []string      `env:"SHARE_USAGE_QUERY_PARAMS" envSeparator:","`
	UsageFrom                string        `env:"SHARE_USAGE_FROM"`         // Added as header.usage-from to every shared record
	ShareAllEvidence         bool          `env:"SHARE_USAGE_ALL_EVIDENCE"` // Keep keys outside the header, cookie, query and server prefixes
	MaxConcurrentSends       int           `env:"SHARE_USAGE_MAX_CONCURRENT_SENDS" envDefault:"1"`
	SendTimeout              time.Duration `env:"SHARE_USAGE_SEND_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout          time.Duration `env:"SHARE_USAGE_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// DefaultConfig mirrors the envDefault values for callers that do not load from env.
func DefaultConfig() Config {
	return Config{
		MinimumEntriesPerMessage: 50,
		MaximumQueueSize:         1000,
		SharePercentage:          1,
		RepeatEvidenceInterval:   20 * time.Minute,
		BlockedHTTPHeaders:       []string{"authorization", "cookie"},
		MaxConcurrentSends:       1,
		SendTimeout:              30 * time.Second,
		ShutdownTimeout:          5 * time.Second,
	}
}

// Validate checks the batching invariants.
func (c Config) Validate() error {
	if c.MinimumEntriesPerMessage <= 0 {
		return fmt.Errorf("%w: minimum entries per message must be positive, got %d",
			ErrInvalidConfig, c.MinimumEntriesPerMessage)
	}
	if c.MaximumQueueSize <= c.MinimumEntriesPerMessage {
		return fmt.Errorf("%w: maximum queue size %d must exceed minimum entries per message %d",
			ErrInvalidConfig, c.MaximumQueueSize, c.MinimumEntriesPerMessage)
	}
	if c.SharePercentage < 0 || c.SharePercentage > 1 {
		return fmt.Errorf("%w: share percentage must be within [0,1], got %v",
			ErrInvalidConfig, c.SharePercentage)
	}
	if c.RepeatEvidenceInterval < 0 {
		return fmt.Errorf("%w: repeat evidence interval cannot be negative", ErrInvalidConfig)
	}
	if c.MaxConcurrentSends < 0 {
		return fmt.Errorf("%w: max concurrent sends cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// withDefaults fills zero-valued tuning fields that have no meaningful zero.
func (c Config) withDefaults() Config {
	if c.MaxConcurrentSends == 0 {
		c.MaxConcurrentSends = 1
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return c
}
