// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errs provides structured error handling for cartograph.
//
// CartographError carries a Kind drawn from the fixed set in the error
// handling design: what went wrong, why, and an HTTP status to respond
// with. The HTTP layer unwraps to a CartographError to build the
// {error: {kind, message}} envelope; everything else is reported as
// "internal" with status 500.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the category of a CartographError.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindUnauthorizedLLM Kind = "unauthorized_llm"
	KindRateLimitedLLM  Kind = "rate_limited_llm"
	KindRateLimitedHost Kind = "rate_limited_host"
	KindLLMFailure      Kind = "llm_failure"
	KindParseFailure    Kind = "parse_failure"
	KindInternal        Kind = "internal"
)

// httpStatus maps each Kind to the HTTP status code it produces.
var httpStatus = map[Kind]int{
	KindInvalidInput:    400,
	KindNotFound:        404,
	KindUnauthorizedLLM: 400,
	KindRateLimitedLLM:  502,
	KindRateLimitedHost: 502,
	KindLLMFailure:      502,
	KindParseFailure:    0, // warn-only, never surfaced to a client
	KindInternal:        500,
}

// CartographError is the structured error type threaded through the
// pipeline, the query engine, and the HTTP layer.
type CartographError struct {
	Kind    Kind
	Message string
	Cause   string
	Fix     string
	Err     error
}

func (e *CartographError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CartographError) Unwrap() error { return e.Err }

// HTTPStatus returns the HTTP status code for this error's Kind.
func (e *CartographError) HTTPStatus() int {
	if code, ok := httpStatus[e.Kind]; ok && code != 0 {
		return code
	}
	return 500
}

// JSON is the wire shape of the {error: {kind, message}} envelope.
type JSON struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Envelope wraps JSON under the top-level "error" key expected by clients.
type Envelope struct {
	Error JSON `json:"error"`
}

// ToJSON converts the error to its wire envelope.
func (e *CartographError) ToJSON() Envelope {
	return Envelope{Error: JSON{Kind: e.Kind, Message: e.Message}}
}

// Encode marshals the envelope.
func (e *CartographError) Encode() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

func New(kind Kind, message, cause, fix string, err error) *CartographError {
	return &CartographError{Kind: kind, Message: message, Cause: cause, Fix: fix, Err: err}
}

func NewInvalidInput(message string, err error) *CartographError {
	return &CartographError{Kind: KindInvalidInput, Message: message, Err: err}
}

func NewNotFound(message string) *CartographError {
	return &CartographError{Kind: KindNotFound, Message: message}
}

func NewUnauthorizedLLM(message string, err error) *CartographError {
	return &CartographError{Kind: KindUnauthorizedLLM, Message: message, Err: err}
}

func NewRateLimitedLLM(message string, err error) *CartographError {
	return &CartographError{Kind: KindRateLimitedLLM, Message: message, Err: err}
}

func NewRateLimitedHost(message string, err error) *CartographError {
	return &CartographError{Kind: KindRateLimitedHost, Message: message, Err: err}
}

func NewLLMFailure(message string, err error) *CartographError {
	return &CartographError{Kind: KindLLMFailure, Message: message, Err: err}
}

func NewParseFailure(message string, err error) *CartographError {
	return &CartographError{Kind: KindParseFailure, Message: message, Err: err}
}

func NewInternal(message string, err error) *CartographError {
	return &CartographError{Kind: KindInternal, Message: message, Err: err}
}

// As reports whether err (or something it wraps) is a *CartographError,
// setting target to it on success.
func As(err error, target **CartographError) bool {
	return errors.As(err, target)
}

// OfKind reports whether err is a CartographError of the given Kind.
func OfKind(err error, kind Kind) bool {
	var ce *CartographError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
