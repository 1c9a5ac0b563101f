package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures per the failure model: media, render
// and exhausted-transcription errors are fatal for the task, annotation errors
// degrade to a sentinel caption, cancellation stops silently.
type ErrorKind string

const (
	KindMedia         ErrorKind = "MediaError"
	KindTranscription ErrorKind = "TranscriptionError"
	KindAnnotation    ErrorKind = "AnnotationError"
	KindRender        ErrorKind = "RenderError"
	KindCancelled     ErrorKind = "CancelledError"
)

type PipelineError struct {
	Kind ErrorKind
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func NewMediaError(err error) *PipelineError {
	return &PipelineError{Kind: KindMedia, Err: err}
}

func NewTranscriptionError(err error) *PipelineError {
	return &PipelineError{Kind: KindTranscription, Err: err}
}

func NewAnnotationError(err error) *PipelineError {
	return &PipelineError{Kind: KindAnnotation, Err: err}
}

func NewRenderError(err error) *PipelineError {
	return &PipelineError{Kind: KindRender, Err: err}
}

func NewCancelledError(err error) *PipelineError {
	return &PipelineError{Kind: KindCancelled, Err: err}
}

// KindOf extracts the classification from an error chain; unclassified errors
// report an empty kind.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled || errors.Is(err, context.Canceled)
}
