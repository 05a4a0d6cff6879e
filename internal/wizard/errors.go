package wizard

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmitting is returned when the wizard is asked to change or submit
	// while a submission is running.
	ErrSubmitting = errors.New("wizard: submission in progress")
	// ErrClosed is returned by a wizard that has been closed.
	ErrClosed = errors.New("wizard: closed")
)

// ValidationError blocks a submission before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UploadFailure reports the file whose upload aborted a submission. Files
// before Index were uploaded and are not rolled back.
type UploadFailure struct {
	File  string
	Index int
	Err   error
}

func (e *UploadFailure) Error() string {
	return fmt.Sprintf("upload %q (file %d): %v", e.File, e.Index+1, e.Err)
}

func (e *UploadFailure) Unwrap() error { return e.Err }

// RecordCreationError means every file was uploaded but the record was
// rejected. The form is kept for a retry.
type RecordCreationError struct {
	Err error
}

func (e *RecordCreationError) Error() string {
	return fmt.Sprintf("create record: %v", e.Err)
}

func (e *RecordCreationError) Unwrap() error { return e.Err }
