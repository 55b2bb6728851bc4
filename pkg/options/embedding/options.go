// Package embeddingopts provides options for embedding provider configuration.
package embeddingopts

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/onboard/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains embedding provider configuration.
type Options struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL is the provider API base URL.
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// Model is the model used for generating embeddings.
	Model string `json:"model" mapstructure:"model"`

	// Timeout for API requests.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Provider: "ollama",
		BaseURL:  "http://localhost:11434",
		Model:    "nomic-embed-text",
		Timeout:  120 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Provider, options.Join(prefixes...)+"embedding.provider", o.Provider, "Embedding provider name.")
	fs.StringVar(&o.BaseURL, options.Join(prefixes...)+"embedding.base-url", o.BaseURL, "Embedding provider API base URL.")
	fs.StringVar(&o.Model, options.Join(prefixes...)+"embedding.model", o.Model, "Model for generating embeddings.")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"embedding.timeout", o.Timeout, "Request timeout.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("embedding provider is required"))
	}
	if o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("embedding base-url is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("embedding model is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("embedding timeout must be positive"))
	}
	return errs
}
