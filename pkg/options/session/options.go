// Package sessionopts provides options for conversation session storage.
package sessionopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/onboard/pkg/options"
)

// Supported session store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var _ options.IOptions = (*Options)(nil)

// Options contains session store configuration.
type Options struct {
	// Backend selects the session store implementation (memory or redis).
	Backend string `json:"backend" mapstructure:"backend"`

	// TTL is how long an idle session is kept before eviction.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Backend: BackendMemory,
		TTL:     30 * time.Minute,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"session.backend", o.Backend, "Session store backend (memory or redis).")
	fs.DurationVar(&o.TTL, options.Join(prefixes...)+"session.ttl", o.TTL, "Idle session time to live.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Backend != BackendMemory && o.Backend != BackendRedis {
		errs = append(errs, fmt.Errorf("unknown session backend %q", o.Backend))
	}
	if o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session ttl must be positive"))
	}
	return errs
}
