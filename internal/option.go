package internal

// application holds everything Run assembles before serving.
type application struct {
	config *Config
}

// Option adjusts the application before Run starts it.
type Option func(*application)

// WithConfig supplies the server configuration. Run refuses to start
// without one.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
