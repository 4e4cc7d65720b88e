// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Res represents the response of an HMC operation
//
// The body is kept as raw JSON and queried with gjson paths. A 204 response
// has an empty body.
type Res struct {
	// Status is the HTTP status code of the response that produced the body.
	// For a waited asynchronous operation it is the status of the final
	// job status query.
	Status int

	// Body is the raw JSON body
	Body string
}

// GetValue retrieves a value from the response body using a gjson path
//
// Example:
//
//	res, err := session.Get(ctx, "/api/cpcs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, cpc := range res.GetValue("cpcs").Array() {
//	    fmt.Println(cpc.Get("name").String(), cpc.Get("object-uri").String())
//	}
func (r Res) GetValue(path string) gjson.Result {
	if r.Body == "" {
		return gjson.Result{}
	}
	return gjson.Get(r.Body, path)
}

// JSON returns the raw response body
func (r Res) JSON() string {
	return r.Body
}

// Pretty returns the response body indented for display.
// An empty body is returned as is.
func (r Res) Pretty() string {
	if r.Body == "" {
		return ""
	}
	return string(pretty.Pretty([]byte(r.Body)))
}

// IsEmpty reports whether the response has no body (e.g. HTTP 204)
func (r Res) IsEmpty() bool {
	return r.Body == ""
}

// JobURI returns the job URI of an accepted asynchronous operation
func (r Res) JobURI() string {
	return r.GetValue("job-uri").String()
}

// JobStatus returns the status field of a job status body
func (r Res) JobStatus() string {
	return r.GetValue("status").String()
}
