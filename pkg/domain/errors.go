package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for the caller and for retry decisions.
type ErrorKind string

const (
	KindTransientStore   ErrorKind = "TransientStoreError"
	KindPermanentStore   ErrorKind = "PermanentStoreError"
	KindPublishDelivery  ErrorKind = "PublishDeliveryError"
	KindDeadlineExceeded ErrorKind = "DeadlineExceeded"
	KindMalformedInput   ErrorKind = "MalformedInput"
)

var (
	// Store errors. Adapters wrap driver errors with one of these.
	ErrTransientStore = errors.New("transient store error")
	ErrPermanentStore = errors.New("permanent store error")
	ErrNotFound       = errors.New("order not found")

	// Bus errors.
	ErrDelivery = errors.New("event delivery error")

	// Workflow errors.
	ErrDeadlineExceeded = errors.New("workflow deadline exceeded")
	ErrMalformedInput   = errors.New("malformed input")
)

// Sentinel returns the sentinel error associated with the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindTransientStore:
		return ErrTransientStore
	case KindPermanentStore:
		return ErrPermanentStore
	case KindPublishDelivery:
		return ErrDelivery
	case KindDeadlineExceeded:
		return ErrDeadlineExceeded
	case KindMalformedInput:
		return ErrMalformedInput
	default:
		return nil
	}
}

// IsTransient reports whether an error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// Stage names the workflow step a failure is attributed to.
type Stage string

const (
	StagePersist Stage = "persist"
	StagePublish Stage = "publish"
)

// Failure is the caller-facing description of a failed workflow execution.
// It carries no retry counts or timings.
type Failure struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", f.Stage, f.Kind, f.Message)
}

// Unwrap exposes the kind's sentinel to errors.Is.
func (f *Failure) Unwrap() error {
	return f.Kind.Sentinel()
}

// Timeout reports whether the failure was caused by the workflow deadline.
func (f *Failure) Timeout() bool {
	return f.Kind == KindDeadlineExceeded
}
