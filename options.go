// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"context"
	"time"
)

// Session configuration options using the functional options pattern

// Userid sets the HMC userid used for logon
func Userid(userid string) func(*Session) {
	return func(s *Session) {
		s.userid = userid
	}
}

// Password sets the password used for logon
func Password(password string) func(*Session) {
	return func(s *Session) {
		s.password = password
	}
}

// PasswordProvider returns the password for a host and userid. It is called
// at logon time when no password was configured, e.g. to prompt the user.
type PasswordProvider func(ctx context.Context, host, userid string) (string, error)

// PasswordFunc sets a password provider used when no password is configured
//
// Example:
//
//	session, _ := zhmc.NewSession("hmc1.example.com",
//	    zhmc.Userid("ensadmin"),
//	    zhmc.PasswordFunc(func(ctx context.Context, host, userid string) (string, error) {
//	        return os.Getenv("HMC_PASSWORD"), nil
//	    }))
func PasswordFunc(fn PasswordProvider) func(*Session) {
	return func(s *Session) {
		s.passwordFunc = fn
	}
}

// SessionID resumes an existing HMC session
//
// The session starts in the logged-on state with the given session token.
// If the token turns out to be expired, the session logs on again with the
// configured credentials.
func SessionID(sessionID string) func(*Session) {
	return func(s *Session) {
		s.sessionID = sessionID
	}
}

// Port sets the HMC Web Services API port (default: 6794)
func Port(port int) func(*Session) {
	return func(s *Session) {
		s.Port = port
	}
}

// VerifyCertificate enables or disables TLS certificate verification (default: true)
//
// WARNING: Disabling certificate verification makes the connection vulnerable
// to Man-in-the-Middle attacks. HMCs frequently use self-signed certificates;
// prefer CACerts over disabling verification.
func VerifyCertificate(verify bool) func(*Session) {
	return func(s *Session) {
		s.VerifyCertificate = verify
	}
}

// CACerts sets a PEM file with CA certificates used to verify the HMC certificate
func CACerts(path string) func(*Session) {
	return func(s *Session) {
		s.caCerts = path
	}
}

// ConnectTimeout sets the TCP connect timeout (default: 30s)
func ConnectTimeout(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.ConnectTimeout = duration
	}
}

// OperationTimeout sets the timeout of a single HTTP exchange (default: 60s)
func OperationTimeout(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.OperationTimeout = duration
	}
}

// JobPollMinDelay sets the delay before the first job status query (default: 1s)
func JobPollMinDelay(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.JobPollMinDelay = duration
	}
}

// JobPollMaxDelay caps the delay between job status queries (default: 10s)
func JobPollMaxDelay(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.JobPollMaxDelay = duration
	}
}

// JobPollDelayFactor sets the growth factor of the job poll delay
// (default: 1.0, i.e. a fixed interval)
func JobPollDelayFactor(factor float64) func(*Session) {
	return func(s *Session) {
		s.JobPollDelayFactor = factor
	}
}

// DefaultJobTimeout bounds the time spent waiting for an asynchronous job
// (default: 1h)
func DefaultJobTimeout(duration time.Duration) func(*Session) {
	return func(s *Session) {
		s.DefaultJobTimeout = duration
	}
}

// MaxJobPollAttempts bounds the number of job status queries per job
// (default: 0, unlimited within the job timeout)
func MaxJobPollAttempts(attempts int) func(*Session) {
	return func(s *Session) {
		s.MaxJobPollAttempts = attempts
	}
}

// WithLogger configures a logger for the session
//
// By default the session uses NoOpLogger. JSON bodies logged at Debug level
// have passwords and session tokens redacted.
func WithLogger(logger Logger) func(*Session) {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPrettyPrintLogs enables/disables indentation of JSON bodies in debug logs
func WithPrettyPrintLogs(enabled bool) func(*Session) {
	return func(s *Session) {
		s.prettyPrintLogs = enabled
	}
}

// WithTimeStats enables or disables time statistics collection (default: enabled)
func WithTimeStats(enabled bool) func(*Session) {
	return func(s *Session) {
		if enabled {
			s.stats.Enable()
		} else {
			s.stats.Disable()
		}
	}
}

// Request modifiers for individual operations

// NoLogon returns a request modifier that bypasses the automatic logon
//
// Use it for operations that do not require authentication, such as
// querying the API version:
//
//	res, err := session.Get(ctx, "/api/version", zhmc.NoLogon())
func NoLogon() func(*Req) {
	return func(req *Req) {
		req.LogonRequired = false
	}
}

// NoWait returns a request modifier that makes Post return the raw 202 body
// of an asynchronous operation instead of waiting for the job
//
// The job can be inspected later with QueryJobStatus:
//
//	res, err := session.Post(ctx, uri, body, zhmc.NoWait())
//	...
//	status, err := session.QueryJobStatus(ctx, res.JobURI())
func NoWait() func(*Req) {
	return func(req *Req) {
		req.WaitForCompletion = false
	}
}

// Timeout returns a request modifier that sets the timeout of each HTTP
// exchange of the operation
//
// Timeout priority:
//  1. Request-specific timeout (this modifier)
//  2. Context deadline (if set)
//  3. Session.OperationTimeout
func Timeout(duration time.Duration) func(*Req) {
	return func(req *Req) {
		req.Timeout = duration
	}
}

// JobTimeout returns a request modifier that bounds the time Post waits for
// an asynchronous job
//
//	res, err := session.Post(ctx, uri, body, zhmc.JobTimeout(20*time.Minute))
func JobTimeout(duration time.Duration) func(*Req) {
	return func(req *Req) {
		req.JobTimeout = duration
	}
}
