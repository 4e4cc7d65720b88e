// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"context"
	"testing"
	"time"
)

// TestCredentialOptions tests the credential options
func TestCredentialOptions(t *testing.T) {
	s := &Session{}
	Userid("ensadmin")(s)
	Password("secret")(s)

	if s.userid != "ensadmin" {
		t.Errorf("userid = %q, want ensadmin", s.userid)
	}
	if s.password != "secret" {
		t.Errorf("password not set")
	}
	if s.Userid() != "ensadmin" {
		t.Errorf("Userid() = %q", s.Userid())
	}

	provider := func(context.Context, string, string) (string, error) { return "x", nil }
	PasswordFunc(provider)(s)
	if s.passwordFunc == nil {
		t.Error("password provider not set")
	}
}

// TestSessionIDOption tests resuming a session
func TestSessionIDOption(t *testing.T) {
	s, err := NewSession("hmc1", SessionID("abc"))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if s.SessionID() != "abc" || !s.IsLogon() {
		t.Errorf("SessionID() = %q, IsLogon() = %v", s.SessionID(), s.IsLogon())
	}
	if s.pooled == nil {
		t.Error("resumed session must have a pooled connection")
	}
	if s.HasCredentials() {
		t.Error("HasCredentials() = true without userid")
	}
}

// TestSessionOptions tests the numeric and flag options
func TestSessionOptions(t *testing.T) {
	s, err := NewSession("hmc1",
		Port(9443),
		VerifyCertificate(false),
		ConnectTimeout(5*time.Second),
		OperationTimeout(2*time.Minute),
		JobPollMinDelay(500*time.Millisecond),
		JobPollMaxDelay(3*time.Second),
		JobPollDelayFactor(1.5),
		DefaultJobTimeout(20*time.Minute),
		MaxJobPollAttempts(100),
		WithPrettyPrintLogs(true),
	)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Port", s.Port, 9443},
		{"VerifyCertificate", s.VerifyCertificate, false},
		{"ConnectTimeout", s.ConnectTimeout, 5 * time.Second},
		{"OperationTimeout", s.OperationTimeout, 2 * time.Minute},
		{"JobPollMinDelay", s.JobPollMinDelay, 500 * time.Millisecond},
		{"JobPollMaxDelay", s.JobPollMaxDelay, 3 * time.Second},
		{"JobPollDelayFactor", s.JobPollDelayFactor, 1.5},
		{"DefaultJobTimeout", s.DefaultJobTimeout, 20 * time.Minute},
		{"MaxJobPollAttempts", s.MaxJobPollAttempts, 100},
		{"prettyPrintLogs", s.prettyPrintLogs, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

// TestWithLoggerOption tests the logger option
func TestWithLoggerOption(t *testing.T) {
	logger := NewDefaultLogger(LogLevelInfo)
	s := &Session{}
	WithLogger(logger)(s)
	if s.logger != logger {
		t.Error("logger not set")
	}

	// nil keeps the current logger
	WithLogger(nil)(s)
	if s.logger != logger {
		t.Error("nil logger replaced the configured one")
	}
}

// TestWithTimeStatsOption tests enabling and disabling time statistics
func TestWithTimeStatsOption(t *testing.T) {
	s, err := NewSession("hmc1", WithTimeStats(false))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if s.Stats().Enabled() {
		t.Error("time statistics enabled despite WithTimeStats(false)")
	}

	s, err = NewSession("hmc1", WithTimeStats(false), WithTimeStats(true))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if !s.Stats().Enabled() {
		t.Error("last option should win")
	}
}
