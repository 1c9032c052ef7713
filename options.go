package evcore

import "time"

// Config holds resolved reactor configuration, built by applying Options
// in New.
type Config struct {
	avoidMethods     map[string]bool
	requireFeatures  backendFeature
	nolock           bool
	ignoreEnv        bool
	noCacheTime      bool
	epollChangelist  bool
	preciseTimer     bool
	maxDispatchCB    int
	maxDispatchTime  time.Duration
	limitAfterPrio   int
	nCPUsHint        int
	logger           Logger
	noExitOnEmptyDef bool
}

// Option configures a Reactor at construction, following a
// functional-option-via-small-interface shape (cf. eventloop's LoopOption).
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// AvoidMethod excludes a backend from selection by name ("epoll", "kqueue").
func AvoidMethod(name string) Option {
	return optionFunc(func(c *Config) {
		if c.avoidMethods == nil {
			c.avoidMethods = make(map[string]bool)
		}
		c.avoidMethods[name] = true
	})
}

// RequireFeatures restricts backend selection to those whose feature mask
// is a superset of the given mask.
func RequireFeatures(mask backendFeature) Option {
	return optionFunc(func(c *Config) { c.requireFeatures = mask })
}

// WithNoLock disables the reactor's internal mutex allocation path for
// single-threaded-only use. The mutex is still held (Go has no way to
// "not allocate" a zero-value sync.Mutex that matters), but cross-thread
// notify() calls are skipped, matching the intent of the original's
// EVENT_BASE_FLAG_NOLOCK: callers assert single-thread usage themselves.
func WithNoLock() Option {
	return optionFunc(func(c *Config) { c.nolock = true })
}

// WithIgnoreEnv disables consulting EVCORE_* environment variables.
func WithIgnoreEnv() Option {
	return optionFunc(func(c *Config) { c.ignoreEnv = true })
}

// WithNoCacheTime disables the cached-"now" optimization: every callback
// otherwise observes the same timestamp for the duration of one Dispatch
// iteration.
func WithNoCacheTime() Option {
	return optionFunc(func(c *Config) { c.noCacheTime = true })
}

// WithEpollChangelist enables coalescing of epoll_ctl syscalls via a
// changelist, applied only by backend_epoll_linux.go.
func WithEpollChangelist() Option {
	return optionFunc(func(c *Config) { c.epollChangelist = true })
}

// WithPreciseTimer records a request for a higher-resolution monotonic
// clock source. The reactor's clock always uses time.Now, so the flag does
// not change timing on any platform.
func WithPreciseTimer() Option {
	return optionFunc(func(c *Config) { c.preciseTimer = true })
}

// WithMaxDispatchInterval sets the active-dispatcher pacing limits: once
// minPriority is reached, stop the tick after maxCB callbacks or d
// wall-time, whichever comes first.
func WithMaxDispatchInterval(d time.Duration, maxCB int, minPriority int) Option {
	return optionFunc(func(c *Config) {
		c.maxDispatchTime = d
		c.maxDispatchCB = maxCB
		c.limitAfterPrio = minPriority
	})
}

// WithCPUsHint is accepted for interface parity with n_cpus_hint-style
// configuration tables; it has no effect outside a Windows IOCP backend
// this module doesn't implement; the value is stored in Config and not
// read anywhere.
func WithCPUsHint(n int) Option {
	return optionFunc(func(c *Config) { c.nCPUsHint = n })
}

// WithLogger overrides the reactor's logger; nil falls back to the
// package-level default registered via SetStructuredLogger.
func WithLogger(l Logger) Option {
	return optionFunc(func(c *Config) { c.logger = l })
}

func resolveConfig(opts []Option) *Config {
	cfg := &Config{
		limitAfterPrio: -1, // no pacing unless configured
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(cfg)
	}
	return cfg
}
