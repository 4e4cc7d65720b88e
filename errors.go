// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// HMC reason codes with special meaning for the session
const (
	// ReasonSessionTokenExpired is the reason code of a 403 response whose
	// API session token has expired. It triggers a re-logon.
	ReasonSessionTokenExpired = 5

	// ReasonSessionTokenInvalid is the reason code of a 403 response whose
	// API session token is not (or no longer) known to the HMC.
	ReasonSessionTokenInvalid = 1

	// ReasonNone is used when the HMC did not supply a reason code
	ReasonNone = -1
)

// ConnectionError indicates that the transport could not complete the
// HTTP exchange with the HMC (connection refused, DNS failure, TLS failure,
// timeout). It is never retried by the session.
type ConnectionError struct {
	// Operation is the operation key, e.g. "get /api/cpcs"
	Operation string

	// Message is the message of the underlying transport error
	Message string

	// Err is the underlying transport error
	Err error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("zhmc: %s failed: connection error: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying transport error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DetailedError returns the full error message including the underlying error
func (e *ConnectionError) DetailedError() string {
	if e.Err == nil {
		return e.Error()
	}
	return fmt.Sprintf("zhmc: %s failed: connection error: %s (internal: %T)",
		e.Operation, e.Message, e.Err)
}

// AuthError indicates an authentication or authorization failure that is not
// resolved by a re-logon: missing credentials, a 403 with a reason code other
// than the expired-token code, or an expired token on a request that bypasses
// logon.
//
// If the failure came from an HTTP response, HTTPErr carries the details and
// is also reachable via errors.As.
type AuthError struct {
	// Operation is the operation key, e.g. "post /api/sessions"
	Operation string

	// Message is the human-readable error message
	Message string

	// Reason is the HMC reason code, or ReasonNone if no HTTP response
	// was involved
	Reason int

	// HTTPErr is the HTTP error detail, if any
	HTTPErr *HTTPError
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("zhmc: authentication failed: %s", e.Message)
	}
	return fmt.Sprintf("zhmc: %s failed: authentication failed: %s", e.Operation, e.Message)
}

// Unwrap returns the embedded HTTP error detail
func (e *AuthError) Unwrap() error {
	if e.HTTPErr == nil {
		return nil
	}
	return e.HTTPErr
}

// DetailedError returns the full error message including the HTTP detail
func (e *AuthError) DetailedError() string {
	if e.HTTPErr == nil {
		return e.Error()
	}
	return fmt.Sprintf("%s (internal: %s)", e.Error(), e.HTTPErr.DetailedError())
}

// HTTPError indicates that the HMC answered with a non-successful HTTP status.
//
// Callers can branch on the (HTTPStatus, Reason) pair, for example:
//
//	var httpErr *zhmc.HTTPError
//	if errors.As(err, &httpErr) && httpErr.HTTPStatus == 409 && httpErr.Reason == 1 {
//	    // resource is in the wrong state
//	}
type HTTPError struct {
	// HTTPStatus is the HTTP status code of the response
	HTTPStatus int

	// Reason is the HMC reason code, or ReasonNone if the body had none
	Reason int

	// Message is the HMC error message
	Message string

	// RequestMethod is the HTTP method as reported by the HMC
	RequestMethod string

	// RequestURI is the request URI as reported by the HMC
	RequestURI string

	// Body is the raw error body
	Body string
}

// newHTTPError builds an HTTPError from a response status and body
func newHTTPError(method, uri string, status int, body string) *HTTPError {
	e := &HTTPError{
		HTTPStatus:    status,
		Reason:        ReasonNone,
		RequestMethod: method,
		RequestURI:    uri,
		Body:          body,
	}
	if !gjson.Valid(body) {
		e.Message = body
		return e
	}
	if r := gjson.Get(body, "reason"); r.Exists() {
		e.Reason = int(r.Int())
	}
	e.Message = gjson.Get(body, "message").String()
	if m := gjson.Get(body, "request-method"); m.Exists() {
		e.RequestMethod = m.String()
	}
	if u := gjson.Get(body, "request-uri"); u.Exists() {
		e.RequestURI = u.String()
	}
	return e
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("zhmc: %s %s failed: HTTP %d, reason %d: %s",
		e.RequestMethod, e.RequestURI, e.HTTPStatus, e.Reason, e.Message)
}

// DetailedError returns the error message including the raw body
func (e *HTTPError) DetailedError() string {
	return fmt.Sprintf("%s (body: %s)", e.Error(), e.Body)
}

// GetValue retrieves a value from the raw error body using a gjson path
func (e *HTTPError) GetValue(path string) gjson.Result {
	return gjson.Get(e.Body, path)
}

// ParseError indicates that a successful response could not be interpreted
type ParseError struct {
	// Operation is the operation key
	Operation string

	// Message describes what could not be parsed
	Message string

	// Body is the raw response body
	Body string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("zhmc: %s failed: parse error: %s", e.Operation, e.Message)
}

// JobError indicates that an asynchronous job reached a terminal status
// other than "complete". Result carries the final job status body.
type JobError struct {
	// JobURI is the URI of the job
	JobURI string

	// Status is the final job status
	Status string

	// Result is the final job status body
	Result Res
}

// Error implements the error interface
func (e *JobError) Error() string {
	return fmt.Sprintf("zhmc: job %s ended with status %q (job-status-code %d, job-reason-code %d)",
		e.JobURI, e.Status,
		e.Result.GetValue("job-status-code").Int(),
		e.Result.GetValue("job-reason-code").Int())
}

// TimeoutError indicates that waiting for an asynchronous job exceeded the
// job wait budget or the maximum number of poll attempts
type TimeoutError struct {
	// JobURI is the URI of the job still in flight
	JobURI string

	// Attempts is the number of job status queries performed
	Attempts int

	// Waited is the time spent waiting
	Waited time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("zhmc: job %s did not complete (attempts: %d, waited: %s)",
		e.JobURI, e.Attempts, e.Waited.Round(time.Millisecond))
}

// CancelledError indicates that the caller's context ended while waiting for
// an asynchronous job. It unwraps to context.Canceled or
// context.DeadlineExceeded.
type CancelledError struct {
	// JobURI is the URI of the job still in flight
	JobURI string

	// Err is the context error
	Err error
}

// Error implements the error interface
func (e *CancelledError) Error() string {
	return fmt.Sprintf("zhmc: waiting for job %s cancelled: %v", e.JobURI, e.Err)
}

// Unwrap returns the context error
func (e *CancelledError) Unwrap() error {
	return e.Err
}
