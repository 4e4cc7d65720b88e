// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// Body provides a fluent interface for building HMC request bodies
// using sjson for path-based manipulation.
//
// The Body builder tracks errors internally to enable method chaining
// while providing error checking through String() or Err() methods.
//
// Example:
//
//	body := zhmc.Body{}.
//	    Set("name", "part1").
//	    Set("description", "Linux partition").
//	    Set("ifl-processors", 2).
//	    Set("initial-memory", 8192).
//	    Set("maximum-memory", 8192)
//
//	res, err := session.Post(ctx, cpcURI+"/partitions", body)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Body struct {
	// str contains the JSON string being built
	str string
	// err tracks the first error encountered during building
	err error
}

// Set sets a value at the specified JSON path and returns a new Body
//
// The path uses dot notation for nested fields (e.g., "boot-iso.image-name").
// The value can be any type that sjson supports (string, number, bool, etc.).
//
// If an error occurs, the error is stored and returned by String() or Err().
// Once an error occurs, all subsequent operations are no-ops that preserve the error.
//
// Example:
//
//	body := zhmc.Body{}.
//	    Set("userid", "ensadmin").
//	    Set("password", password)
//	json, err := body.String()
//
// Returns the Body for method chaining.
func (b Body) Set(path string, value any) Body {
	// Short-circuit if already in error state
	if b.err != nil {
		return b
	}

	result, err := sjson.Set(b.str, path, value)
	if err != nil {
		// Store error and return body with error state
		return Body{str: b.str, err: fmt.Errorf("Set(%q): %w", path, err)}
	}
	return Body{str: result, err: nil}
}

// Delete removes a value at the specified JSON path and returns a new Body
//
// If an error occurs, the error is stored and returned by String() or Err().
//
// Example:
//
//	body := zhmc.Body{}.
//	    Set("name", "part1").
//	    Set("description", "temp").
//	    Delete("description")
//	json, err := body.String()
//
// Returns the Body for method chaining.
func (b Body) Delete(path string) Body {
	// Short-circuit if already in error state
	if b.err != nil {
		return b
	}

	result, err := sjson.Delete(b.str, path)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("Delete(%q): %w", path, err)}
	}
	return Body{str: result, err: nil}
}

// String returns the JSON string and the first error encountered during
// building. An empty Body yields "{}".
func (b Body) String() (string, error) {
	if b.err == nil && b.str == "" {
		return "{}", nil
	}
	return b.str, b.err
}

// Err returns any error that occurred during the building process
func (b Body) Err() error {
	return b.err
}

// Res returns the built body as a Res so it can be queried like a response.
// If an error occurred during building, the Res is empty.
func (b Body) Res() Res {
	if b.err != nil {
		return Res{}
	}
	return Res{Body: b.str}
}

// Bytes returns the JSON payload as sent on the wire
func (b Body) Bytes() ([]byte, error) {
	s, err := b.String()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
