// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package zhmc provides a session client for the Web Services API of the
// IBM Z Hardware Management Console (HMC).
//
// A Session handles logon and logoff, injects the API session token into
// requests, renews an expired token once per call, waits for asynchronous
// jobs and reports failures as a small set of typed errors.
//
// # Quick Start
//
//	session, err := zhmc.NewSession("hmc1.example.com",
//	    zhmc.Userid("ensadmin"),
//	    zhmc.Password("secret"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close(context.Background())
//
//	ctx := context.Background()
//	res, err := session.Get(ctx, "/api/cpcs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, cpc := range res.GetValue("cpcs").Array() {
//	    fmt.Println(cpc.Get("name").String())
//	}
//
// # Asynchronous Operations
//
// Operations answered with 202 Accepted return a job URI. Post waits for the
// job by default, polling at a fixed interval bounded by a wait budget:
//
//	res, err := session.Post(ctx, partitionURI+"/operations/start", nil,
//	    zhmc.JobTimeout(15*time.Minute))
//
// Use NoWait to get the job URI back and query it later with
// QueryJobStatus.
//
// # Error Handling
//
// Errors are one of *ConnectionError, *AuthError, *HTTPError, *ParseError,
// *JobError, *TimeoutError or *CancelledError and are matched with
// errors.As:
//
//	var httpErr *zhmc.HTTPError
//	if errors.As(err, &httpErr) && httpErr.HTTPStatus == 404 {
//	    // object does not exist
//	}
//
// # Thread Safety
//
// A Session may be shared between goroutines. Logon and logoff are
// serialized; requests run concurrently over a pooled connection.
//
// # References
//
//   - HMC Web Services API: https://www.ibm.com/docs/en/systems-hardware/zsystems
//   - gjson: https://github.com/tidwall/gjson
//   - sjson: https://github.com/tidwall/sjson
package zhmc
