package coordinator

import "time"

// Config holds the coordinator's configuration surface.
type Config struct {
	Host string
	Port int

	LogPath string // durable idempotency-registry log

	Timeout2PC       time.Duration // deadline for the whole prepare phase
	TokenTTL         time.Duration // validity of an issued token
	CommitRetryMax   int           // 0 = unbounded, capped by CommitBackoffCap
	CommitBackoffCap time.Duration

	MaxRequestSize int64
}

// DefaultConfig returns a coordinator's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:             "localhost",
		Port:             9000,
		LogPath:          "./data/coordinator.log",
		Timeout2PC:       5 * time.Second,
		TokenTTL:         time.Hour,
		CommitRetryMax:   0,
		CommitBackoffCap: 30 * time.Second,
		MaxRequestSize:   1 << 20,
	}
}
