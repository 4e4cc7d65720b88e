// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Input validation constants
const (
	// MaxURILength is the maximum length of a request URI
	MaxURILength = 2048

	// MaxResponseSize is the maximum size of a response body (64MB)
	MaxResponseSize = 64 * 1024 * 1024
)

// maxRelogons is the number of forced re-logons allowed per external call
const maxRelogons = 1

// outcome classifies a successfully interpreted response
type outcome int

const (
	outcomeOK outcome = iota
	outcomeAccepted
	outcomeTokenExpired
)

// validateURI validates a request URI
//
// Checks:
//   - URI is not empty
//   - URI starts with "/"
//   - URI length does not exceed MaxURILength
//   - URI contains no whitespace or control characters
func validateURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("uri cannot be empty")
	}
	if len(uri) > MaxURILength {
		return fmt.Errorf("uri exceeds maximum length of %d characters: %s", MaxURILength, truncateURI(uri))
	}
	if !strings.HasPrefix(uri, "/") {
		return fmt.Errorf("uri must start with '/': %s", truncateURI(uri))
	}
	for i := 0; i < len(uri); i++ {
		if uri[i] <= ' ' || uri[i] == 127 {
			return fmt.Errorf("uri contains invalid character at position %d", i)
		}
	}
	return nil
}

// truncateURI truncates a URI for error messages
func truncateURI(uri string) string {
	if len(uri) <= 100 {
		return uri
	}
	return uri[:100] + "..."
}

// encodeBody converts a POST body to the JSON payload sent on the wire
//
// nil becomes an empty JSON object. Body, string, []byte and
// json.RawMessage are sent as is. Everything else is marshalled with
// encoding/json.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return []byte("{}"), nil
	case Body:
		return b.Bytes()
	case *Body:
		if b == nil {
			return []byte("{}"), nil
		}
		return b.Bytes()
	case string:
		if b == "" {
			return []byte("{}"), nil
		}
		return []byte(b), nil
	case []byte:
		if len(b) == 0 {
			return []byte("{}"), nil
		}
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		return data, nil
	}
}

// operationKey returns the key an operation is measured and reported under
func operationKey(method, uri string) string {
	return strings.ToLower(method) + " " + uri
}

// Get performs an HTTP GET against the HMC and returns the JSON body
//
// The session logs on first unless NoLogon is given. An expired API session
// token is renewed once and the request is repeated.
//
// Example:
//
//	res, err := session.Get(ctx, "/api/cpcs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, cpc := range res.GetValue("cpcs").Array() {
//	    fmt.Println(cpc.Get("name").String())
//	}
func (s *Session) Get(ctx context.Context, uri string, mods ...func(*Req)) (Res, error) {
	if err := validateURI(uri); err != nil {
		return Res{}, err
	}

	req := newReq(mods)
	res, _, err := s.request(ctx, http.MethodGet, uri, nil, req)
	return res, err
}

// Delete performs an HTTP DELETE against the HMC
//
// Most delete operations answer with 204 and an empty Res.
func (s *Session) Delete(ctx context.Context, uri string, mods ...func(*Req)) (Res, error) {
	if err := validateURI(uri); err != nil {
		return Res{}, err
	}

	req := newReq(mods)
	res, _, err := s.request(ctx, http.MethodDelete, uri, nil, req)
	return res, err
}

// Post performs an HTTP POST against the HMC
//
// The body may be nil (sent as {}), a Body, a JSON string or []byte, or any
// value encoding/json can marshal.
//
// Asynchronous operations answer with 202 and a job URI. By default Post
// polls the job until it ends and returns the final job status body. A job
// that ends with a status other than "complete" is reported as *JobError.
// With NoWait the 202 body is returned right away and the job URI is
// available via Res.JobURI.
//
// Example:
//
//	body := zhmc.Body{}.Set("force", true)
//	res, err := session.Post(ctx, partitionURI+"/operations/stop", body,
//	    zhmc.JobTimeout(10*time.Minute))
//	if err != nil {
//	    var jobErr *zhmc.JobError
//	    if errors.As(err, &jobErr) {
//	        log.Printf("job ended with %s", jobErr.Status)
//	    }
//	    log.Fatal(err)
//	}
//	fmt.Println(res.GetValue("job-status-code").Int())
func (s *Session) Post(ctx context.Context, uri string, body any, mods ...func(*Req)) (Res, error) {
	if err := validateURI(uri); err != nil {
		return Res{}, err
	}

	payload, err := encodeBody(body)
	if err != nil {
		return Res{}, err
	}

	req := newReq(mods)
	res, out, err := s.request(ctx, http.MethodPost, uri, payload, req)
	if err != nil {
		return res, err
	}
	if out != outcomeAccepted {
		return res, nil
	}

	jobURI := res.JobURI()
	if jobURI == "" {
		return res, &ParseError{
			Operation: operationKey(http.MethodPost, uri),
			Message:   "202 response does not contain job-uri",
			Body:      res.Body,
		}
	}

	if !req.WaitForCompletion {
		s.logger.Debug(ctx, "HMC job accepted, not waiting",
			"uri", uri,
			"job_uri", jobURI)
		return res, nil
	}

	return s.waitForCompletion(ctx, jobURI, req)
}

// QueryJobStatus performs a single job status query and returns the body
// as is, whatever the job status
func (s *Session) QueryJobStatus(ctx context.Context, jobURI string, mods ...func(*Req)) (Res, error) {
	return s.Get(ctx, jobURI, mods...)
}

// QueryAPIVersion returns the API version information of the HMC. This
// operation does not require logon.
func (s *Session) QueryAPIVersion(ctx context.Context, mods ...func(*Req)) (Res, error) {
	return s.Get(ctx, VersionURI, append([]func(*Req){NoLogon()}, mods...)...)
}

// waitForCompletion polls a job until it leaves the running statuses
//
// Polling is bounded by the job wait budget (request JobTimeout, else the
// session's DefaultJobTimeout) and by MaxJobPollAttempts when set.
func (s *Session) waitForCompletion(ctx context.Context, jobURI string, req *Req) (Res, error) {
	budget := req.JobTimeout
	if budget <= 0 {
		budget = s.DefaultJobTimeout
	}

	// Polls draw on the re-logon budget left over by the POST
	pollReq := &Req{
		LogonRequired: req.LogonRequired,
		Timeout:       req.Timeout,
		relogons:      req.relogons,
	}

	s.logger.Debug(ctx, "waiting for HMC job",
		"job_uri", jobURI,
		"budget", budget.String(),
		"max_attempts", s.MaxJobPollAttempts)

	start := time.Now()
	for attempt := 0; ; attempt++ {
		if s.MaxJobPollAttempts > 0 && attempt >= s.MaxJobPollAttempts {
			return Res{}, s.jobTimeout(ctx, jobURI, attempt, start)
		}

		if err := checkContextCancellation(ctx); err != nil {
			return Res{}, &CancelledError{JobURI: jobURI, Err: err}
		}

		res, _, err := s.request(ctx, http.MethodGet, jobURI, nil, pollReq)
		if err != nil {
			if ctxErr := checkContextCancellation(ctx); ctxErr != nil {
				return Res{}, &CancelledError{JobURI: jobURI, Err: ctxErr}
			}
			return res, err
		}

		status := res.JobStatus()
		switch {
		case status == JobStatusComplete:
			s.logger.Debug(ctx, "HMC job complete",
				"job_uri", jobURI,
				"attempts", attempt+1,
				"job_status_code", res.GetValue("job-status-code").Int())
			return res, nil
		case status == "":
			return res, &ParseError{
				Operation: operationKey(http.MethodGet, jobURI),
				Message:   "job status response does not contain status",
				Body:      res.Body,
			}
		case !IsJobRunning(status):
			s.logger.Warn(ctx, "HMC job ended without completing",
				"job_uri", jobURI,
				"status", status)
			return res, &JobError{JobURI: jobURI, Status: status, Result: res}
		}

		delay := s.Backoff(attempt)
		if time.Since(start)+delay > budget {
			return Res{}, s.jobTimeout(ctx, jobURI, attempt+1, start)
		}

		s.logger.Debug(ctx, "HMC job still running",
			"job_uri", jobURI,
			"status", status,
			"attempt", attempt+1,
			"next_poll", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Res{}, &CancelledError{JobURI: jobURI, Err: ctx.Err()}
		}
	}
}

func (s *Session) jobTimeout(ctx context.Context, jobURI string, attempts int, start time.Time) error {
	err := &TimeoutError{JobURI: jobURI, Attempts: attempts, Waited: time.Since(start)}
	s.logger.Warn(ctx, "gave up waiting for HMC job",
		"job_uri", jobURI,
		"attempts", attempts,
		"waited", err.Waited.String())
	return err
}

// request executes a request with the logon pre-flight and the one-shot
// re-logon on an expired session token. The re-logon budget is tracked on
// req, so requests issued with the same req share it.
func (s *Session) request(ctx context.Context, method, uri string, payload []byte, req *Req) (Res, outcome, error) {
	if req.LogonRequired {
		if err := s.Logon(ctx); err != nil {
			return Res{}, outcomeOK, err
		}
	}

	for {
		conn := s.connection()
		res, out, err := s.roundTrip(ctx, method, uri, payload, conn, req)
		if err != nil || out != outcomeTokenExpired {
			return res, out, err
		}

		httpErr := newHTTPError(method, uri, res.Status, res.Body)
		if !req.LogonRequired {
			return Res{}, outcomeOK, &AuthError{
				Operation: operationKey(method, uri),
				Message:   "API session token expired on a request that does not log on",
				Reason:    httpErr.Reason,
				HTTPErr:   httpErr,
			}
		}
		if req.relogons >= maxRelogons {
			return Res{}, outcomeOK, &AuthError{
				Operation: operationKey(method, uri),
				Message:   "API session token expired again after re-logon",
				Reason:    httpErr.Reason,
				HTTPErr:   httpErr,
			}
		}

		req.relogons++
		if err := s.relogon(ctx, conn.sessionID); err != nil {
			return Res{}, outcomeOK, err
		}
	}
}

// roundTrip sends one request over the given connection and interprets
// the response
func (s *Session) roundTrip(ctx context.Context, method, uri string, payload []byte, conn connection, req *Req) (Res, outcome, error) {
	status, body, err := s.send(ctx, method, uri, payload, conn, req)
	if err != nil {
		return Res{}, outcomeOK, err
	}
	return s.interpretResponse(ctx, method, uri, status, body)
}

// send performs one HTTP exchange and returns the status and body
//
// Transport failures are returned as *ConnectionError. The exchange is
// measured in the time statistics, including failed ones.
func (s *Session) send(ctx context.Context, method, uri string, payload []byte, conn connection, req *Req) (int, string, error) {
	op := operationKey(method, uri)

	attemptCtx, cancel := s.createAttemptContext(ctx, req)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, s.baseURL+uri, reader)
	if err != nil {
		return 0, "", fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	httpReq.Header = standardHeaders(conn.sessionID)

	if payload != nil {
		s.logger.Debug(ctx, "HMC request",
			"operation", op,
			"body", s.prepareJSONForLogging(string(payload)))
	} else {
		s.logger.Debug(ctx, "HMC request",
			"operation", op)
	}

	end := s.stats.Begin(op)
	defer end()

	resp, err := conn.client.Do(httpReq)
	if err != nil {
		s.logger.Error(ctx, "HMC request failed",
			"operation", op,
			"error", err.Error())
		return 0, "", &ConnectionError{Operation: op, Message: err.Error(), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return 0, "", &ConnectionError{
			Operation: op,
			Message:   fmt.Sprintf("failed to read response: %s", err.Error()),
			Err:       err,
		}
	}

	s.logger.Debug(ctx, "HMC response",
		"operation", op,
		"status", resp.StatusCode,
		"body", s.prepareJSONForLogging(string(data)))

	return resp.StatusCode, string(data), nil
}

// interpretResponse maps an HTTP status and body to a result, an outcome
// and the typed error of the session. This is the only place HMC responses
// are turned into errors.
func (s *Session) interpretResponse(ctx context.Context, method, uri string, status int, body string) (Res, outcome, error) {
	op := operationKey(method, uri)
	res := Res{Status: status, Body: strings.TrimSpace(body)}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		if res.Body != "" && !gjson.Valid(res.Body) {
			return Res{}, outcomeOK, &ParseError{
				Operation: op,
				Message:   "response body is not valid JSON",
				Body:      body,
			}
		}
		return res, outcomeOK, nil

	case http.StatusAccepted:
		if res.Body != "" && !gjson.Valid(res.Body) {
			return Res{}, outcomeOK, &ParseError{
				Operation: op,
				Message:   "response body is not valid JSON",
				Body:      body,
			}
		}
		return res, outcomeAccepted, nil

	case http.StatusForbidden:
		httpErr := newHTTPError(method, uri, status, body)
		if httpErr.Reason == ReasonSessionTokenExpired {
			s.logger.Debug(ctx, "HMC API session token expired",
				"operation", op)
			return res, outcomeTokenExpired, nil
		}
		return Res{}, outcomeOK, &AuthError{
			Operation: op,
			Message:   httpErr.Message,
			Reason:    httpErr.Reason,
			HTTPErr:   httpErr,
		}

	default:
		httpErr := newHTTPError(method, uri, status, body)
		s.logger.Debug(ctx, "HMC request returned an error status",
			"operation", op,
			"status", status,
			"reason", httpErr.Reason)
		return Res{}, outcomeOK, httpErr
	}
}

// checkContextCancellation checks if context is canceled or deadline exceeded
//
// This is a non-blocking check that immediately returns if the context is
// done. Used before each job poll to avoid wasted requests.
func checkContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// createAttemptContext creates the context of a single HTTP exchange
//
// Timeout priority model:
//  1. Request-specific timeout (req.Timeout > 0)
//  2. Existing context deadline
//  3. Session default timeout (s.OperationTimeout)
//
// Caller MUST call the returned cancel function after the response body has
// been read.
func (s *Session) createAttemptContext(ctx context.Context, req *Req) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		if req.Timeout < time.Second {
			s.logger.Warn(ctx, "request timeout is very short (may not complete)",
				"timeout", req.Timeout.String(),
				"host", s.Host)
		} else if req.Timeout > 10*time.Minute {
			s.logger.Warn(ctx, "request timeout is very long (may delay error detection)",
				"timeout", req.Timeout.String(),
				"host", s.Host)
		}
		return context.WithTimeout(ctx, req.Timeout)
	}

	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.OperationTimeout)
}

// IsExpiredToken reports whether err is an authentication failure caused by
// an expired API session token
func IsExpiredToken(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Reason == ReasonSessionTokenExpired
}
