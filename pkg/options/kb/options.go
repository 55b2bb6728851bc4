// Package kbopts provides options for the knowledge base index and retriever.
package kbopts

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/onboard/pkg/options"
)

// Supported knowledge base backends.
const (
	BackendFlat   = "flat"
	BackendMilvus = "milvus"
)

var _ options.IOptions = (*Options)(nil)

// Options contains knowledge base configuration.
type Options struct {
	// Backend selects the vector store implementation (flat or milvus).
	Backend string `json:"backend" mapstructure:"backend"`

	// IndexPath is the vector index file for the flat backend.
	IndexPath string `json:"index-path" mapstructure:"index-path"`

	// MetadataPath is the chunk metadata file for the flat backend.
	MetadataPath string `json:"metadata-path" mapstructure:"metadata-path"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// TopK is the default number of results from similarity search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// Threshold is the minimum cosine similarity for a hit to be returned.
	Threshold float64 `json:"threshold" mapstructure:"threshold"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Backend:      BackendFlat,
		IndexPath:    "_output/kb/index.bin",
		MetadataPath: "_output/kb/metadata.json",
		EmbeddingDim: 768,
		TopK:         3,
		Threshold:    0.45,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, options.Join(prefixes...)+"kb.backend", o.Backend, "Vector store backend (flat or milvus).")
	fs.StringVar(&o.IndexPath, options.Join(prefixes...)+"kb.index-path", o.IndexPath, "Vector index file for the flat backend.")
	fs.StringVar(&o.MetadataPath, options.Join(prefixes...)+"kb.metadata-path", o.MetadataPath, "Chunk metadata file for the flat backend.")
	fs.IntVar(&o.EmbeddingDim, options.Join(prefixes...)+"kb.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"kb.top-k", o.TopK, "Default number of results from similarity search.")
	fs.Float64Var(&o.Threshold, options.Join(prefixes...)+"kb.threshold", o.Threshold, "Minimum similarity score for retrieved chunks.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Backend {
	case BackendFlat:
		if o.IndexPath == "" {
			errs = append(errs, fmt.Errorf("kb index-path is required for the flat backend"))
		}
		if o.MetadataPath == "" {
			errs = append(errs, fmt.Errorf("kb metadata-path is required for the flat backend"))
		}
	case BackendMilvus:
	default:
		errs = append(errs, fmt.Errorf("unknown kb backend %q", o.Backend))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("kb embedding-dim must be positive"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("kb top-k must be positive"))
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		errs = append(errs, fmt.Errorf("kb threshold must be within [0, 1]"))
	}
	return errs
}
