package equipment

import (
	"fmt"
	"sync"
	"time"

	"github.com/vulturelab/visavulture/logger"
	"github.com/vulturelab/visavulture/plan"
)

// Config represents the configuration parameters for an equipment Coordinator.
type Config struct {
	mu sync.RWMutex

	// maxWorkers bounds the number of concurrently in-flight background tasks.
	// Defaults to 4.
	maxWorkers int

	// connectTimeout bounds the instrument connect and identity query. It should be
	// between 1 and 120 seconds. Defaults to 5 seconds.
	connectTimeout time.Duration

	// pausePollInterval is the interval at which the executor re-checks the pause flag
	// while paused, and the chunk size of its pacing waits. Defaults to 100ms.
	pausePollInterval time.Duration

	// sampleInterval is the interval at which progress samples are emitted during a
	// step's pacing wait. Defaults to 1 second.
	sampleInterval time.Duration

	// shutdownGrace bounds how long Close waits for in-flight tasks before discarding
	// them. Defaults to 3 seconds.
	shutdownGrace time.Duration

	// safeStateOnFault, when true, makes the executor command the instrument output
	// off after a step-level command failure, before the fault escalates. Defaults to
	// false: already-applied setpoints stand.
	safeStateOnFault bool

	// limits holds the soft validation limits checked when a plan is loaded.
	limits plan.Limits

	// logger provides a logger instance for coordinator events and errors.
	logger logger.Logger
}

// NewConfig creates a coordinator configuration with default values, then applies the
// provided options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		maxWorkers:        4,
		connectTimeout:    5 * time.Second,
		pausePollInterval: 100 * time.Millisecond,
		sampleInterval:    time.Second,
		shutdownGrace:     3 * time.Second,
		safeStateOnFault:  false,
		limits:            plan.DefaultLimits(),
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

func (cfg *Config) MaxWorkers() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.maxWorkers
}

func (cfg *Config) ConnectTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.connectTimeout
}

func (cfg *Config) PausePollInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.pausePollInterval
}

func (cfg *Config) SampleInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.sampleInterval
}

func (cfg *Config) ShutdownGrace() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.shutdownGrace
}

func (cfg *Config) SafeStateOnFault() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.safeStateOnFault
}

func (cfg *Config) Limits() plan.Limits {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.limits
}

func (cfg *Config) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// Option configures a Config.
type Option interface {
	apply(cfg *Config) error
}

type optionFunc func(cfg *Config) error

func (f optionFunc) apply(cfg *Config) error {
	return f(cfg)
}

// WithMaxWorkers sets the maximum number of concurrently in-flight background tasks.
// It should be between 1 and 64.
func WithMaxWorkers(n int) Option {
	return optionFunc(func(cfg *Config) error {
		if n < 1 || n > 64 {
			return fmt.Errorf("max workers should be between 1 and 64, got %d", n)
		}
		cfg.mu.Lock()
		defer cfg.mu.Unlock()
		cfg.maxWorkers = n
		return nil
	})
}

// WithConnectTimeout sets the connect timeout. It should be between 1 and 120 seconds.
func WithConnectTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *Config) error {
		if d < time.Second || d > 120*time.Second {
			return fmt.Errorf("connect timeout should be between 1 and 120 seconds, got %v", d)
		}
		cfg.mu.Lock()
		defer cfg.mu.Unlock()
		cfg.connectTimeout = d
		return nil
	})
}

// WithPausePollInterval sets the executor's pause re-check interval and pacing chunk.
func WithPausePollInterval(d time.Duration) Option {
	return optionFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("pause poll interval should be positive, got %v", d)
		}
		cfg.mu.Lock()
		defer cfg.mu.Unlock()
		cfg.pausePollInterval = d
		return nil
	})
}

// WithSampleInterval sets the progress sample emission interval.
func WithSampleInterval(d time.Duration) Option {
	return optionFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("sample interval should be positive, got %v", d)
		}
		cfg.mu.Lock()
		defer cfg.mu.Unlock()
		cfg.sampleInterval = d
		return nil
	})
}

// WithShutdownGrace sets the Close grace period for in-flight tasks.
func WithShutdownGrace(d time.Duration) Option {
	return optionFunc(func(cfg *Config) error {
		if d < 0 {
			return fmt.Errorf("shutdown grace should not be negative, got %v", d)
		}
		cfg.mu.Lock()
		defer cfg.mu.Unlock()
		cfg.shutdownGrace = d
		return nil
	})
}

// WithSafeStateOnFault sets whether the executor commands the instrument output off
// after a step-level command failure.
func WithSafeStateOnFault(enabled bool) Option {
	return optionFunc(func(cfg *Config) error {
		cfg.mu.Lock()
		defer cfg.mu.Unlock()
		cfg.safeStateOnFault = enabled
		return nil
	})
}

// WithLimits sets the soft validation limits checked when a plan is loaded.
func WithLimits(l plan.Limits) Option {
	return optionFunc(func(cfg *Config) error {
		cfg.mu.Lock()
		defer cfg.mu.Unlock()
		cfg.limits = l
		return nil
	})
}

// WithLogger sets the logger instance.
func WithLogger(l logger.Logger) Option {
	return optionFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("logger should not be nil")
		}
		cfg.mu.Lock()
		defer cfg.mu.Unlock()
		cfg.logger = l
		return nil
	})
}
