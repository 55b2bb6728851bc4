// Package sqliteopts provides options for the embedded SQLite database.
package sqliteopts

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/onboard/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains SQLite database configuration.
type Options struct {
	// Path is the database file path. ":memory:" keeps the database
	// in process memory only.
	Path string `json:"path" mapstructure:"path"`

	// MaxOpenConns limits the number of open connections.
	MaxOpenConns int `json:"max-open-conns" mapstructure:"max-open-conns"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Path:         "_output/onboard.db",
		MaxOpenConns: 1,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, options.Join(prefixes...)+"sqlite.path", o.Path, "SQLite database file path.")
	fs.IntVar(&o.MaxOpenConns, options.Join(prefixes...)+"sqlite.max-open-conns", o.MaxOpenConns, "Maximum number of open connections.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Path == "" {
		errs = append(errs, fmt.Errorf("sqlite path is required"))
	}
	if o.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("sqlite max-open-conns must be positive"))
	}
	return errs
}
