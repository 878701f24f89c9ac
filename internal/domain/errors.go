// SPDX-License-Identifier: MIT

// Package domain defines the error taxonomy shared by the signal source,
// the spectral analyzer and the frame scheduler.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Every typed error below matches exactly one of them with
// errors.Is, so callers can branch on the kind without a type switch.
var (
	// ErrResource is matched by ResourceError.
	ErrResource = errors.New("audio resource error")

	// ErrConfig is matched by ConfigError.
	ErrConfig = errors.New("invalid configuration")

	// ErrInvalidState is matched by InvalidStateError.
	ErrInvalidState = errors.New("invalid state")

	// ErrRenderTick is matched by RenderTickError.
	ErrRenderTick = errors.New("render tick failed")
)

// ResourceError is returned when an audio resource cannot be opened or decoded.
type ResourceError struct {
	Op       string // Operation that failed (e.g., "load", "decode")
	Resource string // Resource name or path
	Message  string
	Err      error // Underlying error (if any)
}

func (e *ResourceError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Resource != "" {
		return fmt.Sprintf("audio resource %s failed for '%s': %s", e.Op, e.Resource, msg)
	}
	return fmt.Sprintf("audio resource %s failed: %s", e.Op, msg)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrResource.
func (e *ResourceError) Is(target error) bool { return target == ErrResource }

// NewResourceError creates a new ResourceError.
func NewResourceError(op, resource, message string, err error) *ResourceError {
	return &ResourceError{Op: op, Resource: resource, Message: message, Err: err}
}

// ConfigError reports a configuration value that was rejected. Values are
// never clamped into range; the caller gets this error instead.
type ConfigError struct {
	Field   string      // Field that failed validation
	Value   interface{} // Value that failed validation
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: message}
}

// InvalidStateError is returned when an operation is attempted in a state
// that forbids it, such as Play before Load or a second Start.
type InvalidStateError struct {
	Component string // e.g., "source", "analyzer", "scheduler"
	Op        string
	State     string // State the component was in
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s not allowed in state %s", e.Component, e.Op, e.State)
}

// Is reports whether target is ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(component, op, state string) *InvalidStateError {
	return &InvalidStateError{Component: component, Op: op, State: state}
}

// RenderTickError wraps a failure raised by a tick callback, either a returned
// error or a recovered panic. The scheduler reports it and keeps looping.
type RenderTickError struct {
	Frame uint64      // Sequence number of the failed tick
	Panic interface{} // Recovered panic value, nil when the tick returned an error
	Err   error
}

func (e *RenderTickError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("render tick %d panicked: %v", e.Frame, e.Panic)
	}
	return fmt.Sprintf("render tick %d failed: %v", e.Frame, e.Err)
}

func (e *RenderTickError) Unwrap() error { return e.Err }

// Is reports whether target is ErrRenderTick.
func (e *RenderTickError) Is(target error) bool { return target == ErrRenderTick }
