package gateway

import "fmt"

// ModelNotFoundError reports a model identifier the backend does not serve.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found", e.Model)
}

// ConnectionError reports a backend outage. It is distinct from input errors
// so callers can convert it into a degenerate payload plus an out-of-band
// notification instead of failing the request.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("backend connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
