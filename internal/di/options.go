package di

// Settings holds the GoCD server connection parameters.
type Settings struct {
	ServerURL string
	Username  string
	Password  string
}

// Option is a function that configures the dependency injection container.
type Option func(*options)

// WithServer sets the GoCD server URL and the basic-auth credentials used
// to fetch and post the configuration.
func WithServer(url, username, password string) Option {
	return func(opts *options) {
		opts.settings = Settings{
			ServerURL: url,
			Username:  username,
			Password:  password,
		}
	}
}

// WithProviders adds constructor functions to the dependency injection container.
// Each provider should be a constructor function that returns one or more values.
// Providers can declare dependencies as function parameters, which will be
// automatically resolved by the container.
//
// Example:
//
//	WithProviders(
//	    func(settings Settings) *Registry { ... },
//	    func(r *Registry) *Installer { ... },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	settings  Settings
	providers []any
}
