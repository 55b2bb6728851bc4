// Package apiserver provides the onboarding API server.
package apiserver

import (
	"errors"

	"github.com/spf13/pflag"

	embeddingopts "github.com/kart-io/onboard/pkg/options/embedding"
	httpopts "github.com/kart-io/onboard/pkg/options/http"
	kbopts "github.com/kart-io/onboard/pkg/options/kb"
	logopts "github.com/kart-io/onboard/pkg/options/logger"
	milvusopts "github.com/kart-io/onboard/pkg/options/milvus"
	redisopts "github.com/kart-io/onboard/pkg/options/redis"
	sessionopts "github.com/kart-io/onboard/pkg/options/session"
	sqliteopts "github.com/kart-io/onboard/pkg/options/sqlite"
)

// Options contains the configuration for the API server.
type Options struct {
	HTTP      *httpopts.Options      `json:"http" mapstructure:"http"`
	Log       *logopts.Options       `json:"log" mapstructure:"log"`
	KB        *kbopts.Options        `json:"kb" mapstructure:"kb"`
	Milvus    *milvusopts.Options    `json:"milvus" mapstructure:"milvus"`
	Embedding *embeddingopts.Options `json:"embedding" mapstructure:"embedding"`
	Session   *sessionopts.Options   `json:"session" mapstructure:"session"`
	Redis     *redisopts.Options     `json:"redis" mapstructure:"redis"`
	SQLite    *sqliteopts.Options    `json:"sqlite" mapstructure:"sqlite"`
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		HTTP:      httpopts.NewOptions(),
		Log:       logopts.NewOptions(),
		KB:        kbopts.NewOptions(),
		Milvus:    milvusopts.NewOptions(),
		Embedding: embeddingopts.NewOptions(),
		Session:   sessionopts.NewOptions(),
		Redis:     redisopts.NewOptions(),
		SQLite:    sqliteopts.NewOptions(),
	}
}

// AddFlags registers all server flags.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.KB.AddFlags(fs)
	o.Milvus.AddFlags(fs)
	o.Embedding.AddFlags(fs)
	o.Session.AddFlags(fs)
	o.Redis.AddFlags(fs)
	o.SQLite.AddFlags(fs)
}

// Complete fills in derived defaults.
func (o *Options) Complete() error {
	if err := o.HTTP.Complete(); err != nil {
		return err
	}
	return o.Log.Complete()
}

// Validate checks the final option values.
func (o *Options) Validate() error {
	var errs []error

	errs = append(errs, o.HTTP.Validate()...)
	if err := o.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.KB.Validate()...)
	if o.KB.Backend == kbopts.BackendMilvus {
		errs = append(errs, o.Milvus.Validate()...)
	}
	errs = append(errs, o.Embedding.Validate()...)
	errs = append(errs, o.Session.Validate()...)
	if o.Session.Backend == sessionopts.BackendRedis {
		errs = append(errs, o.Redis.Validate()...)
	}
	errs = append(errs, o.SQLite.Validate()...)

	return errors.Join(errs...)
}
