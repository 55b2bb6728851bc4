package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	embeddingopts "github.com/kart-io/onboard/pkg/options/embedding"
	kbopts "github.com/kart-io/onboard/pkg/options/kb"
	logopts "github.com/kart-io/onboard/pkg/options/logger"
	milvusopts "github.com/kart-io/onboard/pkg/options/milvus"
)

// Options contains the configuration for an ingestion run.
type Options struct {
	Log       *logopts.Options       `json:"log" mapstructure:"log"`
	Embedding *embeddingopts.Options `json:"embedding" mapstructure:"embedding"`
	KB        *kbopts.Options        `json:"kb" mapstructure:"kb"`
	Milvus    *milvusopts.Options    `json:"milvus" mapstructure:"milvus"`

	// ChunkSize and ChunkOverlap drive the generic windowing policy.
	ChunkSize    int `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// EmbedBatchSize and EmbedWorkers bound the embedding stage.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`
	EmbedWorkers   int `json:"embed-workers" mapstructure:"embed-workers"`

	// Sources are the documents to ingest, usually set via config file.
	Sources []SourceSpec `json:"sources" mapstructure:"sources"`

	// docFlags holds --docs values of the form "source=path".
	docFlags []string
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		Log:            logopts.NewOptions(),
		Embedding:      embeddingopts.NewOptions(),
		KB:             kbopts.NewOptions(),
		Milvus:         milvusopts.NewOptions(),
		ChunkSize:      500,
		ChunkOverlap:   100,
		EmbedBatchSize: defaultEmbedBatchSize,
		EmbedWorkers:   defaultEmbedWorkers,
	}
}

// AddFlags registers all ingestion flags.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Embedding.AddFlags(fs)
	o.KB.AddFlags(fs)
	o.Milvus.AddFlags(fs)

	fs.IntVar(&o.ChunkSize, "chunk-size", o.ChunkSize, "Window size in runes for generic chunking.")
	fs.IntVar(&o.ChunkOverlap, "chunk-overlap", o.ChunkOverlap, "Overlap in runes between consecutive windows.")
	fs.IntVar(&o.EmbedBatchSize, "embed-batch-size", o.EmbedBatchSize, "Chunks embedded per provider call.")
	fs.IntVar(&o.EmbedWorkers, "embed-workers", o.EmbedWorkers, "Concurrent embedding workers.")
	fs.StringSliceVar(&o.docFlags, "docs", nil, "Documents to ingest as source=path pairs (repeatable).")
}

// Complete merges --docs flags into the source list.
func (o *Options) Complete() error {
	for _, spec := range o.docFlags {
		source, path, ok := strings.Cut(spec, "=")
		if !ok || source == "" || path == "" {
			return fmt.Errorf("invalid --docs value %q, want source=path", spec)
		}
		o.Sources = append(o.Sources, SourceSpec{Source: source, Path: path})
	}
	return o.Log.Complete()
}

// Validate checks the final option values.
func (o *Options) Validate() error {
	var errs []error

	if err := o.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.Embedding.Validate()...)
	errs = append(errs, o.KB.Validate()...)
	if o.KB.Backend == kbopts.BackendMilvus {
		errs = append(errs, o.Milvus.Validate()...)
	}

	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk-overlap must be within [0, chunk-size)"))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embed-batch-size must be positive"))
	}
	if o.EmbedWorkers <= 0 {
		errs = append(errs, fmt.Errorf("embed-workers must be positive"))
	}

	return errors.Join(errs...)
}
