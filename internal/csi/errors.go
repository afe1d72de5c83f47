package csi

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for malformed input: out of range configuration,
	// nil records or callbacks
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation is not valid in the current lifecycle state
	ErrInvalidState = errors.New("invalid state")

	// ErrTimeout is returned when no data arrived within the requested bound
	ErrTimeout = errors.New("timeout")

	// ErrResourceExhausted is returned when a record cannot be built or stored
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrBufferFull is returned by SampleBuffer.Put when the record was dropped
	ErrBufferFull = fmt.Errorf("%w: buffer full", ErrResourceExhausted)
)
