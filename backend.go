package evcore

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// backendFeature advertises capabilities of a backend implementation.
type backendFeature uint8

const (
	featureEdgeTriggered backendFeature = 1 << iota
	featureO1
	featureCloseNotify
)

// readyFD is one (fd, fired-mask) pair reported by a backend's dispatch
// call; Dispatch hands each pair to evmapIOActiveLocked.
type readyFD struct {
	fd   int
	mask EventMask
}

// backend abstracts a single kernel readiness primitive.
// add/del are called only when the aggregate interest mask for fd
// changes; the reactor computes the old/new masks by OR-ing every
// registered event's mask on that fd before calling either method.
type backend interface {
	name() string
	init() error
	add(fd int, oldMask, newMask EventMask) error
	del(fd int, oldMask, newMask EventMask) error
	dispatch(timeout time.Duration) ([]readyFD, error)
	dealloc() error
	needReinit() bool
	features() backendFeature
}

// backendConfigurable is implemented by backends that react to options
// beyond the common Config fields newBackend already checks (avoid-list,
// required features). backend_epoll_linux.go uses it for
// WithEpollChangelist.
type backendConfigurable interface {
	configure(cfg *Config)
}

// backendFactory constructs a backend by name, used by the preference-
// ordered selection in newBackend.
type backendFactory struct {
	name string
	new  func() backend
}

// preferenceOrder lists backend constructors from most to least scalable:
// tried in a fixed preference order, the most scalable kernel primitive
// first. Platform build tags make exactly one of these compile in on a
// given OS (the always-failing placeholder of backend_unsupported.go on
// platforms without epoll or kqueue).
var preferenceOrder []backendFactory

func registerBackend(name string, ctor func() backend) {
	preferenceOrder = append(preferenceOrder, backendFactory{name: name, new: ctor})
}

// newBackend selects and initializes the first backend that survives the
// config's avoid-list, required-feature mask, and (unless ignored) the
// EVCORE_NO<NAME> environment blacklist.
func newBackend(cfg *Config) (backend, error) {
	ignoreEnv := cfg.ignoreEnv || isSetuidProcess()
	for _, f := range preferenceOrder {
		if cfg.avoidMethods[f.name] {
			continue
		}
		if !ignoreEnv && envDisablesBackend(f.name) {
			continue
		}
		b := f.new()
		if cfg.requireFeatures != 0 && b.features()&cfg.requireFeatures != cfg.requireFeatures {
			continue
		}
		if bc, ok := b.(backendConfigurable); ok {
			bc.configure(cfg)
		}
		if err := b.init(); err != nil {
			continue
		}
		if !ignoreEnv && os.Getenv("EVCORE_SHOW_METHOD") != "" {
			fmt.Fprintf(os.Stderr, "evcore: using %q backend\n", f.name)
		}
		return b, nil
	}
	return nil, WrapBackendError("none", "select", fmt.Errorf("no suitable backend available (tried %d)", len(preferenceOrder)))
}

func envDisablesBackend(name string) bool {
	return os.Getenv("EVCORE_NO"+strings.ToUpper(name)) != ""
}

// isSetuidProcess implements an "ignored if the process is setuid" rule.
// Go programs rarely run setuid (the runtime actively
// resists it), so this is a conservative best-effort check via the
// portable os.Getuid/os.Geteuid comparison, the same approach the
// standard library's os/exec documents for detecting privilege
// elevation.
func isSetuidProcess() bool {
	return os.Getuid() != os.Geteuid() || os.Getgid() != os.Getegid()
}
