// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	zhmc "github.com/netascode/go-zhmc"
	"github.com/netascode/go-zhmc/internal/sessionfile"
)

// TestFormatJSON tests rendering of response bodies
func TestFormatJSON(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		format   string
		expected string
	}{
		{
			name:     "json",
			doc:      `{"name":"CPC1","status":"operating"}`,
			format:   outputFormatJSON,
			expected: "{\n  \"name\": \"CPC1\",\n  \"status\": \"operating\"\n}\n",
		},
		{
			name:     "yaml keeps key order",
			doc:      `{"status":"operating","name":"CPC1"}`,
			format:   outputFormatYAML,
			expected: "status: operating\nname: CPC1\n",
		},
		{
			name:     "yaml nested",
			doc:      `{"cpcs":[{"name":"CPC1"},{"name":"CPC2"}]}`,
			format:   outputFormatYAML,
			expected: "cpcs:\n    - name: CPC1\n    - name: CPC2\n",
		},
		{
			name:     "yaml quotes numeric strings",
			doc:      `{"api-minor-version":"1","api-major-version":4}`,
			format:   outputFormatYAML,
			expected: "api-minor-version: \"1\"\napi-major-version: 4\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := formatJSON([]byte(tt.doc), tt.format, false)
			if err != nil {
				t.Fatalf("formatJSON() error = %v", err)
			}
			if string(out) != tt.expected {
				t.Errorf("formatJSON() = %q, want %q", out, tt.expected)
			}
		})
	}
}

// TestFormatJSON_Color tests that colored output contains escape sequences
func TestFormatJSON_Color(t *testing.T) {
	out, err := formatJSON([]byte(`{"a":1}`), outputFormatJSON, true)
	if err != nil {
		t.Fatalf("formatJSON() error = %v", err)
	}
	if !bytes.Contains(out, []byte("\x1b[")) {
		t.Errorf("expected ANSI colors, got %q", out)
	}
}

// TestErrorDefinition tests the structured error fields
func TestErrorDefinition(t *testing.T) {
	httpErr := &zhmc.HTTPError{
		HTTPStatus:    409,
		Reason:        1,
		Message:       "wrong state",
		RequestMethod: "POST",
		RequestURI:    "/api/partitions/p1/operations/start",
	}

	tests := []struct {
		name   string
		err    error
		expect map[string]any
	}{
		{
			name: "plain error",
			err:  errors.New("session logon requires --host"),
			expect: map[string]any{
				"classname": "Error",
				"message":   "session logon requires --host",
			},
		},
		{
			name: "http error",
			err:  httpErr,
			expect: map[string]any{
				"classname":      "HTTPError",
				"http_status":    409,
				"reason":         1,
				"request_method": "POST",
				"request_uri":    "/api/partitions/p1/operations/start",
			},
		},
		{
			name: "auth error wrapping http error",
			err:  &zhmc.AuthError{Operation: "get /api/cpcs", Message: "denied", Reason: 3, HTTPErr: &zhmc.HTTPError{HTTPStatus: 403, Reason: 3}},
			expect: map[string]any{
				"classname":   "AuthError",
				"reason":      3,
				"http_status": 403,
			},
		},
		{
			name: "wrapped connection error",
			err:  fmt.Errorf("get: %w", &zhmc.ConnectionError{Operation: "get /api/cpcs", Message: "refused"}),
			expect: map[string]any{
				"classname": "ConnectionError",
				"operation": "get /api/cpcs",
			},
		},
		{
			name: "job error",
			err: &zhmc.JobError{
				JobURI: "/api/jobs/1",
				Status: "canceled",
				Result: zhmc.Res{Body: `{"status":"canceled","job-status-code":409,"job-reason-code":2}`},
			},
			expect: map[string]any{
				"classname":       "JobError",
				"job_uri":         "/api/jobs/1",
				"status":          "canceled",
				"job_status_code": int64(409),
				"job_reason_code": int64(2),
			},
		},
		{
			name: "timeout error",
			err:  &zhmc.TimeoutError{JobURI: "/api/jobs/1", Attempts: 4, Waited: 2 * time.Second},
			expect: map[string]any{
				"classname":      "TimeoutError",
				"attempts":       4,
				"waited_seconds": 2.0,
			},
		},
		{
			name: "cancelled error",
			err:  &zhmc.CancelledError{JobURI: "/api/jobs/1", Err: context.Canceled},
			expect: map[string]any{
				"classname": "CancelledError",
				"job_uri":   "/api/jobs/1",
			},
		},
		{
			name: "session file format error",
			err:  &sessionfile.FormatError{Path: "/tmp/s.yml", Message: "invalid YAML"},
			expect: map[string]any{
				"classname": "SessionFileFormatError",
				"path":      "/tmp/s.yml",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := errorDefinition(tt.err)
			if def["message"] != tt.err.Error() {
				t.Errorf("message = %v, want %q", def["message"], tt.err.Error())
			}
			for k, v := range tt.expect {
				if def[k] != v {
					t.Errorf("def[%q] = %#v, want %#v", k, def[k], v)
				}
			}
		})
	}
}

// TestPrintError tests both error formats
func TestPrintError(t *testing.T) {
	err := &zhmc.HTTPError{HTTPStatus: 404, Reason: 1, Message: "not found", RequestMethod: "GET", RequestURI: "/api/cpcs/x"}

	var msg bytes.Buffer
	(&zhmcCLI{stderr: &msg, errorFormat: errorFormatMsg}).printError(err)
	if want := "Error: " + err.Error() + "\n"; msg.String() != want {
		t.Errorf("msg format = %q, want %q", msg.String(), want)
	}

	var def bytes.Buffer
	(&zhmcCLI{stderr: &def, errorFormat: errorFormatDef}).printError(err)
	var got struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(def.Bytes(), &got); err != nil {
		t.Fatalf("def format is not JSON: %v: %s", err, def.String())
	}
	if got.Error["classname"] != "HTTPError" || got.Error["http_status"] != 404.0 {
		t.Errorf("def format = %v", got.Error)
	}
	if !strings.HasSuffix(def.String(), "\n") {
		t.Errorf("def format not newline terminated")
	}
}
