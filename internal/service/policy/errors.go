package policy

import "fmt"

// ConfigError marks an invalid startup configuration. It is the only error
// the service refuses to start on.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
