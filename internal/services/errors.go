package services

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why an upload could not be processed.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindRasterizationFailed ErrorKind = "rasterization_failed"
	KindRecognitionFailed   ErrorKind = "recognition_failed"
	KindCanceled            ErrorKind = "canceled"
	KindInternal            ErrorKind = "internal"
)

var (
	ErrEmptyUpload = errors.New("uploaded file is empty")
	ErrNotPDF      = errors.New("uploaded file is not a PDF document")
	ErrTooLarge    = errors.New("uploaded file exceeds the size limit")
	ErrNoFile      = errors.New("no file uploaded")
)

// ProcessingError is the single error type surfaced by the ingestion
// pipeline. Page is set for recognition failures and is 1-based.
type ProcessingError struct {
	Kind ErrorKind
	Page int
	Err  error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// InvalidInput tags err as a client-side problem with the upload.
func InvalidInput(err error) error {
	return &ProcessingError{Kind: KindInvalidInput, Err: err}
}

// KindOf reports the ErrorKind carried by err. Context errors are reported as
// KindCanceled even when they were never tagged.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var perr *ProcessingError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if isContextErr(err) {
		return KindCanceled
	}
	return KindInternal
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func classify(kind ErrorKind, page int, err error) error {
	if isContextErr(err) {
		kind = KindCanceled
	}
	return &ProcessingError{Kind: kind, Page: page, Err: err}
}

func recognitionError(page, total int, err error) error {
	return classify(KindRecognitionFailed, page, fmt.Errorf("recognize page %d of %d: %w", page, total, err))
}
