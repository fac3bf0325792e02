// Package environment names the deployment environment and carries it
// through contexts and logs.
//
// Environment implements encoding.TextUnmarshaler so it can be loaded from
// APP_ENV directly:
//
//	type Config struct {
//	    Env environment.Environment `env:"APP_ENV" envDefault:"development"`
//	}
//
// Development relaxes a few checks elsewhere, for example the trusted origin
// registry accepts loopback origins only in development.
package environment
