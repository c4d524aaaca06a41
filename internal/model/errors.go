package model

import "fmt"

// DecodeError reports input bytes that are not a supported image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ModelLoadError is fatal at startup: the artifact is missing, unreadable or
// does not agree with the label set.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ShapeMismatchError means a tensor or score vector had an unexpected shape.
type ShapeMismatchError struct {
	What     string
	Expected string
	Got      string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s shape mismatch: expected %s, got %s", e.What, e.Expected, e.Got)
}
