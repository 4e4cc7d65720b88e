// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/netascode/go-zhmc/internal/sessionfile"
)

// testHMC is a minimal HTTPS double of the HMC Web Services API
type testHMC struct {
	server *httptest.Server

	mu     sync.Mutex
	calls  []string
	tokens []string
	logons int
}

func newTestHMC(t *testing.T) *testHMC {
	t.Helper()

	h := &testHMC{}
	h.server = httptest.NewTLSServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.server.Close)
	return h
}

func (h *testHMC) handle(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.calls = append(h.calls, r.Method+" "+r.URL.RequestURI())
	h.tokens = append(h.tokens, r.Header.Get("X-API-Session"))
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method + " " + r.URL.Path {
	case "POST /api/sessions":
		h.mu.Lock()
		h.logons++
		n := h.logons
		h.mu.Unlock()
		fmt.Fprintf(w, `{"api-session":"token-%d","api-major-version":4,"api-minor-version":10}`, n)
	case "DELETE /api/sessions/this-session":
		w.WriteHeader(http.StatusNoContent)
	case "GET /api/version":
		fmt.Fprint(w, `{"api-major-version":4,"api-minor-version":10,"hmc-name":"HMC1"}`)
	case "GET /api/cpcs":
		fmt.Fprint(w, `{"cpcs":[{"name":"CPC1"}]}`)
	case "POST /api/cpcs/c1/operations/start":
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"job-uri":"/api/jobs/j1"}`)
	case "GET /api/jobs/j1":
		fmt.Fprint(w, `{"status":"complete","job-status-code":200,"job-results":{"message":"started"}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"http-status":404,"reason":1,"message":"not found: %s"}`, r.URL.Path)
	}
}

func (h *testHMC) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *testHMC) Tokens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tokens...)
}

// args returns global flags addressing the test HMC
func (h *testHMC) args(t *testing.T) []string {
	t.Helper()

	host, port, err := net.SplitHostPort(h.server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	return []string{"--host", host, "--port", port, "--no-verify", "-u", "ensadmin", "-p", "secret"}
}

// runCLI runs the command line and returns the exit code and output
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	argv := append([]string{"zhmc", "--log-level", "disabled"}, args...)
	code := run(context.Background(), argv, nil, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestGetWithHost tests that a session given by --host is logged off
func TestGetWithHost(t *testing.T) {
	hmc := newTestHMC(t)

	code, stdout, stderr := runCLI(t, append(hmc.args(t), "get", "/api/cpcs")...)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(stdout), &body); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, stdout)
	}
	if !strings.Contains(stdout, "\n  \"cpcs\"") {
		t.Errorf("output not pretty printed: %s", stdout)
	}

	want := []string{"POST /api/sessions", "GET /api/cpcs", "DELETE /api/sessions/this-session"}
	if got := hmc.Calls(); !equalStrings(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

// TestPostWaitsForJob tests that asynchronous operations are waited for
func TestPostWaitsForJob(t *testing.T) {
	hmc := newTestHMC(t)

	code, stdout, stderr := runCLI(t, append(hmc.args(t), "-o", "yaml", "post", "/api/cpcs/c1/operations/start")...)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "status: complete") {
		t.Errorf("output = %q, want the final job status", stdout)
	}

	code, stdout, stderr = runCLI(t, append(hmc.args(t), "post", "--no-wait", "/api/cpcs/c1/operations/start")...)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"job-uri": "/api/jobs/j1"`) {
		t.Errorf("output = %q, want the job URI", stdout)
	}
}

// TestPostInvalidBody tests rejection of a malformed request body
func TestPostInvalidBody(t *testing.T) {
	for _, body := range []string{"{name", `{"name":"p1"} x`, "[1,"} {
		t.Run(body, func(t *testing.T) {
			hmc := newTestHMC(t)

			code, _, stderr := runCLI(t, append(hmc.args(t), "post", "--body", body, "/api/cpcs")...)
			if code != 1 || !strings.Contains(stderr, "--body is not valid JSON") {
				t.Errorf("exit code = %d, stderr = %q", code, stderr)
			}
			if calls := hmc.Calls(); len(calls) != 0 {
				t.Errorf("unexpected HMC calls: %v", calls)
			}
		})
	}
}

// TestAPIVersionWithoutLogon tests that the API version needs no credentials
func TestAPIVersionWithoutLogon(t *testing.T) {
	hmc := newTestHMC(t)
	args := hmc.args(t)[:5] // host, port, no-verify

	code, stdout, stderr := runCLI(t, append(args, "api-version")...)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, `"hmc-name": "HMC1"`) {
		t.Errorf("output = %q", stdout)
	}
	if got, want := hmc.Calls(), []string{"GET /api/version"}; !equalStrings(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

// TestErrorFormatDef tests the structured error output
func TestErrorFormatDef(t *testing.T) {
	hmc := newTestHMC(t)

	code, stdout, stderr := runCLI(t, append(hmc.args(t), "-e", "def", "get", "/api/cpcs/unknown")...)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Errorf("unexpected output: %s", stdout)
	}

	var got struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal([]byte(stderr), &got); err != nil {
		t.Fatalf("stderr is not JSON: %v: %s", err, stderr)
	}
	if got.Error["classname"] != "HTTPError" || got.Error["http_status"] != 404.0 || got.Error["reason"] != 1.0 {
		t.Errorf("error = %v", got.Error)
	}

	// The temporary session is logged off even after a failure
	calls := hmc.Calls()
	if calls[len(calls)-1] != "DELETE /api/sessions/this-session" {
		t.Errorf("calls = %v, want a final logoff", calls)
	}
}

// TestInvalidGlobalOptions tests validation of the format options
func TestInvalidGlobalOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "output format", args: []string{"-o", "xml", "session", "list"}, want: "invalid output format"},
		{name: "error format", args: []string{"-e", "xml", "session", "list"}, want: "invalid error format"},
		{name: "log level", args: []string{"--log-level", "loud", "session", "list"}, want: "invalid log level"},
		{name: "missing uri", args: []string{"get"}, want: "get requires exactly one URI argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != 1 || !strings.Contains(stderr, tt.want) {
				t.Errorf("exit code = %d, stderr = %q, want %q", code, stderr, tt.want)
			}
		})
	}
}

// TestSessionLifecycle tests logon, reuse, listing and logoff of a stored session
func TestSessionLifecycle(t *testing.T) {
	hmc := newTestHMC(t)
	file := filepath.Join(t.TempDir(), "sessions.yml")
	fileArgs := []string{"--session-file", file, "-s", "lab"}

	code, _, stderr := runCLI(t, append(append(hmc.args(t), fileArgs...), "session", "logon")...)
	if code != 0 {
		t.Fatalf("session logon exit code = %d, stderr: %s", code, stderr)
	}

	f, err := sessionfile.New(file)
	if err != nil {
		t.Fatalf("sessionfile.New() error = %v", err)
	}
	entry, err := f.Get("lab")
	if err != nil {
		t.Fatalf("stored session missing: %v", err)
	}
	if entry.SessionID != "token-1" || entry.Userid != "ensadmin" || entry.CAVerify {
		t.Errorf("stored session = %+v", entry)
	}

	// Port is not stored in the session file
	_, port, _ := net.SplitHostPort(hmc.server.Listener.Addr().String())
	reuse := append([]string{"--port", port}, fileArgs...)

	code, stdout, stderr := runCLI(t, append(reuse, "get", "/api/cpcs")...)
	if code != 0 {
		t.Fatalf("get exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "CPC1") {
		t.Errorf("get output = %q", stdout)
	}

	code, stdout, stderr = runCLI(t, append(reuse, "session", "list")...)
	if code != 0 {
		t.Fatalf("list exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "SESSION NAME") || !strings.Contains(stdout, "lab") || strings.Contains(stdout, "token-1") {
		t.Errorf("list output = %q", stdout)
	}

	code, _, stderr = runCLI(t, append(reuse, "session", "logoff")...)
	if code != 0 {
		t.Fatalf("logoff exit code = %d, stderr: %s", code, stderr)
	}

	want := []string{"POST /api/sessions", "GET /api/cpcs", "DELETE /api/sessions/this-session"}
	if got := hmc.Calls(); !equalStrings(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if got := hmc.Tokens(); got[1] != "token-1" || got[2] != "token-1" {
		t.Errorf("session tokens = %v, want the stored token reused", got)
	}

	reopened, _ := sessionfile.New(file)
	if names, _ := reopened.Names(); len(names) != 0 {
		t.Errorf("sessions after logoff = %v, want none", names)
	}
}

// TestNoSession tests the error when neither --host nor a stored session is given
func TestNoSession(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sessions.yml")

	code, _, stderr := runCLI(t, "--session-file", file, "get", "/api/cpcs")
	if code != 1 || !strings.Contains(stderr, "no HMC specified") {
		t.Errorf("exit code = %d, stderr = %q", code, stderr)
	}
}
