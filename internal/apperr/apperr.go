// Package apperr holds the error taxonomy shared by the HTTP functions and their gateways.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindProvider      Kind = "provider"
	KindNetwork       Kind = "network"
	KindLocal         Kind = "local"
)

// Error carries the message shown to the caller and the HTTP status it maps to.
type Error struct {
	Kind     Kind
	Message  string
	Status   int
	Internal error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// Details is the internal error text when it adds something to Message.
func (e *Error) Details() string {
	if e.Internal == nil {
		return ""
	}
	d := e.Internal.Error()
	if d == "" || strings.Contains(e.Message, d) {
		return ""
	}
	return d
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Status: http.StatusBadRequest}
}

// Configuration reports a missing credential for provider, e.g. "OpenAI API Key not configured".
func Configuration(provider string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: fmt.Sprintf("%s API Key not configured", provider),
		Status:  http.StatusInternalServerError,
	}
}

// Provider reports a provider answer the gateway could not use.
func Provider(provider, message string, internal error) *Error {
	return &Error{
		Kind:     KindProvider,
		Message:  fmt.Sprintf("%s API returned an error: %s", provider, message),
		Status:   http.StatusInternalServerError,
		Internal: internal,
	}
}

// ResponseError is implemented by provider errors built from an actual provider response.
type ResponseError interface {
	error
	ProviderMessage() string
}

// Classify sorts an outbound call failure into provider, network or local errors.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var respErr ResponseError
	if errors.As(err, &respErr) {
		msg := respErr.ProviderMessage()
		if msg == "" {
			msg = "Unknown API error"
		}
		return Provider(provider, msg, err)
	}

	if isNetworkError(err) {
		return &Error{
			Kind:     KindNetwork,
			Message:  fmt.Sprintf("No response received from %s API. Please try again later.", provider),
			Status:   http.StatusInternalServerError,
			Internal: err,
		}
	}

	return &Error{
		Kind:     KindLocal,
		Message:  fmt.Sprintf("Error setting up the request: %s", err.Error()),
		Status:   http.StatusInternalServerError,
		Internal: err,
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
