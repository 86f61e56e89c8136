package pipeline

import "fmt"

// LoadError reports a fatal problem with a required vector input: the file
// is missing, unreadable, or empty after mandatory filtering.
type LoadError struct {
	Layer string
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s layer from %s: %v", e.Layer, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
