package config

// configurationError marks invalid or missing setup. Fatal at startup.
type configurationError struct{ msg string }

func (e configurationError) Error() string { return "configuration: " + e.msg }

// ErrConfiguration constructs a configurationError.
func ErrConfiguration(msg string) error { return configurationError{msg: msg} }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	_, ok := err.(configurationError)
	return ok
}
