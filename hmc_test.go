// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"
)

// hmcCall records one request received by the fake HMC
type hmcCall struct {
	Method    string
	URI       string
	SessionID string
	Body      string
	Header    http.Header
}

// String returns the call in "METHOD uri" form
func (c hmcCall) String() string {
	return c.Method + " " + c.URI
}

// hmcResponse is a scripted response
type hmcResponse struct {
	Status int
	Body   string
}

// fakeHMC is an HTTPS test double of the HMC Web Services API.
//
// Logon issues tokens "token-1", "token-2", ... and logoff answers 204.
// Other requests are answered from per-route response queues. The last
// queued response of a route is repeated.
type fakeHMC struct {
	t      *testing.T
	server *httptest.Server

	mu      sync.Mutex
	calls   []hmcCall
	routes  map[string][]hmcResponse
	logons  int
	logonFn func(body string) hmcResponse
	hook    func(call hmcCall)
}

func newFakeHMC(t *testing.T) *fakeHMC {
	t.Helper()

	f := &fakeHMC{
		t:      t,
		routes: make(map[string][]hmcResponse),
	}
	f.server = httptest.NewTLSServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// on queues responses for a route
func (f *fakeHMC) on(method, uri string, responses ...hmcResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + uri
	f.routes[key] = append(f.routes[key], responses...)
}

// onRequest installs a hook that runs for each call before it is answered
func (f *fakeHMC) onRequest(fn func(call hmcCall)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = fn
}

// onLogon replaces the default logon behavior
func (f *fakeHMC) onLogon(fn func(body string) hmcResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logonFn = fn
}

func (f *fakeHMC) handle(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body) //nolint:errcheck // test double
	call := hmcCall{
		Method:    r.Method,
		URI:       r.URL.RequestURI(),
		SessionID: r.Header.Get(SessionHeader),
		Body:      string(data),
		Header:    r.Header.Clone(),
	}

	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	resp, ok := f.respond(call)
	f.mu.Unlock()

	if !ok {
		resp = hmcResponse{
			Status: http.StatusNotFound,
			Body:   fmt.Sprintf(`{"http-status":404,"reason":1,"message":"no route for %s"}`, call),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if resp.Body != "" {
		_, _ = io.WriteString(w, resp.Body) //nolint:errcheck // test double
	}
}

// respond picks the response for a call. Caller holds f.mu.
func (f *fakeHMC) respond(call hmcCall) (hmcResponse, bool) {
	key := call.String()
	if queue, ok := f.routes[key]; ok && len(queue) > 0 {
		resp := queue[0]
		if len(queue) > 1 {
			f.routes[key] = queue[1:]
		}
		return resp, true
	}

	switch key {
	case http.MethodPost + " " + LogonURI:
		if f.logonFn != nil {
			return f.logonFn(call.Body), true
		}
		f.logons++
		return hmcResponse{
			Status: http.StatusOK,
			Body:   fmt.Sprintf(`{"api-session":"token-%d","notification-topic":"t","job-notification-topic":"j"}`, f.logons),
		}, true
	case http.MethodDelete + " " + LogoffURI:
		return hmcResponse{Status: http.StatusNoContent}, true
	}
	return hmcResponse{}, false
}

// Calls returns a copy of the recorded calls
func (f *fakeHMC) Calls() []hmcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hmcCall(nil), f.calls...)
}

// CallStrings returns the recorded calls in "METHOD uri" form
func (f *fakeHMC) CallStrings() []string {
	calls := f.Calls()
	result := make([]string, len(calls))
	for i, c := range calls {
		result[i] = c.String()
	}
	return result
}

// Count returns how often a route was called
func (f *fakeHMC) Count(method, uri string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && c.URI == uri {
			n++
		}
	}
	return n
}

// host and port of the fake HMC
func (f *fakeHMC) hostPort() (string, int) {
	f.t.Helper()

	u, err := url.Parse(f.server.URL)
	if err != nil {
		f.t.Fatalf("failed to parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		f.t.Fatalf("failed to parse server port: %v", err)
	}
	return u.Hostname(), port
}

// newTestSession creates a session against the fake HMC with fast polling
func newTestSession(t *testing.T, f *fakeHMC, opts ...func(*Session)) *Session {
	t.Helper()

	host, port := f.hostPort()
	base := []func(*Session){
		Port(port),
		VerifyCertificate(false),
		Userid("ensadmin"),
		Password("secret"),
		JobPollMinDelay(time.Millisecond),
		JobPollMaxDelay(5 * time.Millisecond),
	}
	s, err := NewSession(host, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
