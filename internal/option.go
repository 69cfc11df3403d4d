package internal

import "log/slog"

// Option configures the application before it runs.
type Option func(*application)

type application struct {
	config *Config
	logger *slog.Logger
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the default logger. Without it Run logs JSON to
// stdout and RunMCP to stderr, at the configured level. Embedders that
// already own a logger pass it here.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}
