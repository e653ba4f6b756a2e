package redis

import "time"

// Config locates the Redis server that holds shared repeat-evidence fingerprints.
// An empty URL means Redis is not used.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`                                // redis://:password@localhost:6379/0
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`      // Connection attempts before giving up
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s"`     // Pause between attempts
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`   // Upper bound for the whole Connect call
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX" envDefault:"shareusage:seen:"`
}

// Enabled reports whether a connection URL is configured.
func (c Config) Enabled() bool { return c.ConnectionURL != "" }
