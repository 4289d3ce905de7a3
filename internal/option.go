package internal

import "github.com/tunehub/paramlens/internal/winquery"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	provider winquery.Provider
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithProvider overrides the window query provider. When unset, the
// provider is built from the host configuration (snapshot file or an
// empty in-memory tree).
func WithProvider(p winquery.Provider) Option {
	return func(a *application) {
		a.provider = p
	}
}
