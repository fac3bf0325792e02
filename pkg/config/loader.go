package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var defaultEnvLoaded sync.Once

// Option configures a single Load call.
type Option func(*loadOptions)

type loadOptions struct {
	files   []string
	prefix  string
	environ map[string]string
}

// WithEnvFiles loads the given .env files before parsing. Unlike the default
// .env file, missing files are an error. Variables already present in the
// process environment win over file values.
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) {
		o.files = append(o.files, files...)
	}
}

// WithPrefix prepends prefix to every env tag, e.g. "TENANT_".
func WithPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.prefix = prefix
	}
}

// WithEnvironment parses from vars instead of the process environment.
// No .env files are read in that case. Meant for tests.
func WithEnvironment(vars map[string]string) Option {
	return func(o *loadOptions) {
		o.environ = vars
	}
}

// Load parses environment variables into v based on its `env` struct tags.
//
// The .env file in the working directory is loaded once per process if it
// exists.
//
// Example:
//
//	type Config struct {
//		CacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
//		Store    string        `env:"TENANT_STORE" envDefault:"memory"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		// Handle error
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.environ == nil {
		defaultEnvLoaded.Do(func() {
			// The default .env file is optional.
			_ = godotenv.Load()
		})

		for _, f := range o.files {
			if err := godotenv.Load(f); err != nil {
				return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", f, err))
			}
		}
	}

	// A nil Environment makes env read the process environment.
	if err := env.ParseWithOptions(v, env.Options{
		Environment: o.environ,
		Prefix:      o.prefix,
	}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Use it for configuration the process cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
