// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"encoding/json"
	"errors"
	"fmt"

	zhmc "github.com/netascode/go-zhmc"
	"github.com/netascode/go-zhmc/internal/sessionfile"
	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"
)

const (
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"

	errorFormatMsg = "msg"
	errorFormatDef = "def"
)

// printRes prints a response body in the selected output format. Empty
// bodies print nothing.
func (z *zhmcCLI) printRes(res zhmc.Res) error {
	if res.IsEmpty() {
		return nil
	}
	out, err := formatJSON([]byte(res.JSON()), z.outputFormat, isTerminal(z.stdout))
	if err != nil {
		return err
	}
	_, err = z.stdout.Write(out)
	return err
}

// formatJSON renders a JSON document as pretty JSON, optionally colored, or
// as block-style YAML with the key order of the document
func formatJSON(doc []byte, format string, color bool) ([]byte, error) {
	switch format {
	case outputFormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(doc, &node); err != nil {
			return nil, fmt.Errorf("converting response to YAML: %w", err)
		}
		clearStyle(&node)
		out, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("converting response to YAML: %w", err)
		}
		return out, nil
	default:
		out := pretty.Pretty(doc)
		if color {
			out = pretty.Color(out, nil)
		}
		return out, nil
	}
}

// clearStyle turns the JSON flow style of a parsed document into YAML block style
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		clearStyle(child)
	}
}

// errorDefinition returns the structured fields of an error
func errorDefinition(err error) map[string]any {
	def := map[string]any{
		"classname": "Error",
		"message":   err.Error(),
	}

	var (
		authErr    *zhmc.AuthError
		httpErr    *zhmc.HTTPError
		connErr    *zhmc.ConnectionError
		parseErr   *zhmc.ParseError
		jobErr     *zhmc.JobError
		timeoutErr *zhmc.TimeoutError
		cancelErr  *zhmc.CancelledError
		formatErr  *sessionfile.FormatError
	)
	switch {
	case errors.As(err, &authErr):
		def["classname"] = "AuthError"
		def["reason"] = authErr.Reason
		if authErr.HTTPErr != nil {
			def["http_status"] = authErr.HTTPErr.HTTPStatus
		}
	case errors.As(err, &httpErr):
		def["classname"] = "HTTPError"
		def["http_status"] = httpErr.HTTPStatus
		def["reason"] = httpErr.Reason
		def["request_method"] = httpErr.RequestMethod
		def["request_uri"] = httpErr.RequestURI
	case errors.As(err, &connErr):
		def["classname"] = "ConnectionError"
		def["operation"] = connErr.Operation
	case errors.As(err, &parseErr):
		def["classname"] = "ParseError"
		def["operation"] = parseErr.Operation
	case errors.As(err, &jobErr):
		def["classname"] = "JobError"
		def["job_uri"] = jobErr.JobURI
		def["status"] = jobErr.Status
		def["job_status_code"] = jobErr.Result.GetValue("job-status-code").Int()
		def["job_reason_code"] = jobErr.Result.GetValue("job-reason-code").Int()
	case errors.As(err, &timeoutErr):
		def["classname"] = "TimeoutError"
		def["job_uri"] = timeoutErr.JobURI
		def["attempts"] = timeoutErr.Attempts
		def["waited_seconds"] = timeoutErr.Waited.Seconds()
	case errors.As(err, &cancelErr):
		def["classname"] = "CancelledError"
		def["job_uri"] = cancelErr.JobURI
	case errors.As(err, &formatErr):
		def["classname"] = "SessionFileFormatError"
		def["path"] = formatErr.Path
	}
	return def
}

// printError prints an error to stderr in the selected error format
func (z *zhmcCLI) printError(err error) {
	if z.errorFormat == errorFormatDef {
		out, merr := json.Marshal(map[string]any{"error": errorDefinition(err)})
		if merr == nil {
			fmt.Fprintln(z.stderr, string(out))
			return
		}
	}
	fmt.Fprintf(z.stderr, "Error: %s\n", err)
}
