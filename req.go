// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import "time"

// Req holds per-request settings applied via functional modifiers
//
// The URI and body are passed directly to Get, Post and Delete.
//
// Example:
//
//	// Start an asynchronous operation without waiting for the job
//	res, err := session.Post(ctx, "/api/partitions/"+id+"/operations/start", nil,
//	    zhmc.NoWait())
type Req struct {
	// LogonRequired makes the session log on before the request (default true).
	// Only a few operations, such as API version discovery, bypass logon.
	LogonRequired bool

	// WaitForCompletion makes Post poll an asynchronous job until it ends
	// (default true). Ignored by Get and Delete.
	WaitForCompletion bool

	// Timeout is the timeout of a single HTTP exchange.
	// Overrides the context deadline and the session's OperationTimeout.
	Timeout time.Duration

	// JobTimeout bounds the total time spent waiting for an asynchronous job.
	// Overrides the session's DefaultJobTimeout.
	JobTimeout time.Duration

	// relogons counts the forced re-logons spent on this call
	relogons int
}

// newReq returns a Req with defaults and the modifiers applied
func newReq(mods []func(*Req)) *Req {
	req := &Req{
		LogonRequired:     true,
		WaitForCompletion: true,
	}
	for _, mod := range mods {
		mod(req)
	}
	return req
}
