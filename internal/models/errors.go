// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package models

import (
	"errors"
	"fmt"
)

// ValidationError rejects a write because of its input or linkage:
// a bad vote type, a parent on another page, a deleted target.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PermissionError rejects a write the actor is not allowed to make.
type PermissionError struct {
	Action  string
	Message string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s not permitted: %s", e.Action, e.Message)
}

// NotFoundError reports a missing page, comment or user.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// AuthRequiredError is returned when an operation needs an authenticated actor.
type AuthRequiredError struct {
	Message string
}

func (e *AuthRequiredError) Error() string {
	if e.Message == "" {
		return "authentication required"
	}
	return e.Message
}

// DeliveryError describes a failed send to a single websocket session. It is
// logged and counted, never returned to the writer that triggered it.
type DeliveryError struct {
	SessionID uint64
	Key       string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to session %d (%s) failed: %v", e.SessionID, e.Key, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPermission reports whether err wraps a *PermissionError.
func IsPermission(err error) bool {
	var target *PermissionError
	return errors.As(err, &target)
}

// IsNotFound reports whether err wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
