// Package config loads process configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: the
// optional .env file in the working directory is loaded once, then the
// environment is parsed into any struct annotated with `env` tags.
//
//	type Config struct {
//	    Store    string        `env:"TENANT_STORE" envDefault:"memory"`
//	    CacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
//	    Database pg.Config     `envPrefix:""`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// Additional files are loaded with WithEnvFiles, and WithEnvironment parses a
// fixed map instead of the process environment, which keeps tests parallel.
//
// Errors wrap ErrParsingConfig or ErrLoadingEnvFile and can be checked with errors.Is.
package config
