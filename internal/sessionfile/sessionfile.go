// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package sessionfile stores logged-on HMC sessions in a YAML file so that
// later CLI invocations can reuse them without logging on again.
//
// The file maps a session name to the HMC host, userid, session token and
// certificate settings of the session:
//
//	default:
//	    host: hmc1.example.com
//	    userid: ensadmin
//	    session_id: 6ig8k0f2ok6l2eg0pdsh9wtb1zuq1tdz3c9a2yvnfoh3cgm1qb
//	    ca_verify: true
//	    ca_cert_path: null
//	    creation_time: "2025-03-01 10:22:41"
package sessionfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSessionName is the session name used when none is given
	DefaultSessionName = "default"

	// DefaultFileName is the file name of the session file in the home directory
	DefaultFileName = ".zhmc_sessions.yml"

	// TimeFormat is the format of creation_time, in UTC
	TimeFormat = "2006-01-02 15:04:05"

	// fileMode restricts the file to its owner since it holds session tokens
	fileMode = 0o600

	blankedOut = "********"
)

var (
	// ErrSessionNotFound is returned when a session name is not in the file
	ErrSessionNotFound = errors.New("session not found in HMC session file")

	// ErrSessionAlreadyExists is returned when adding a name that is taken
	ErrSessionAlreadyExists = errors.New("session already exists in HMC session file")
)

// sessionNameRegex matches valid session names
var sessionNameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidateSessionName validates that a field is a valid session name:
// lower-case letters, digits and underscores.
func ValidateSessionName(fl validator.FieldLevel) bool {
	return sessionNameRegex.MatchString(fl.Field().String())
}

// ValidateHostAddress validates that a field is an IP address, optionally
// in brackets and with an IPv6 zone, e.g. "[fe80::1%eth0]"
func ValidateHostAddress(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	_, err := netip.ParseAddr(host)
	return err == nil
}

// Session is one logged-on HMC session
type Session struct {
	Host         string `yaml:"host" validate:"required,hostname_rfc1123|hmcaddr"`
	Userid       string `yaml:"userid" validate:"required"`
	SessionID    string `yaml:"session_id" validate:"required"`
	CAVerify     bool   `yaml:"ca_verify"`
	CACertPath   string `yaml:"ca_cert_path"`
	CreationTime string `yaml:"creation_time" validate:"required,datetime=2006-01-02 15:04:05"`
}

// String returns a representation with the session token blanked out
func (s Session) String() string {
	return fmt.Sprintf("Session(host=%q, userid=%q, session_id=%s, ca_verify=%t, ca_cert_path=%q, creation_time=%q)",
		s.Host, s.Userid, blankedOut, s.CAVerify, s.CACertPath, s.CreationTime)
}

// CreatedAt parses the creation time
func (s Session) CreatedAt() (time.Time, error) {
	return time.ParseInLocation(TimeFormat, s.CreationTime, time.UTC)
}

// FormatError indicates invalid YAML syntax or invalid content of the file
type FormatError struct {
	Path    string
	Message string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid HMC session file %s: %s", e.Path, e.Message)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// File provides access to an HMC session file. The file is loaded on first
// use and created empty if it does not exist.
//
// A File is not safe for concurrent use.
type File struct {
	path     string
	data     map[string]Session
	validate *validator.Validate
	now      func() time.Time
}

// DefaultPath returns ~/.zhmc_sessions.yml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// New returns a File for the given path. An empty path selects DefaultPath.
func New(path string) (*File, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("sessionname", ValidateSessionName); err != nil {
		return nil, fmt.Errorf("registering session name validation: %w", err)
	}
	if err := validate.RegisterValidation("hmcaddr", ValidateHostAddress); err != nil {
		return nil, fmt.Errorf("registering host address validation: %w", err)
	}

	return &File{
		path:     path,
		validate: validate,
		now:      time.Now,
	}, nil
}

// Path returns the path name of the file
func (f *File) Path() string {
	return f.path
}

// String lists the session names without their content
func (f *File) String() string {
	names, err := f.Names()
	if err != nil {
		return fmt.Sprintf("File(path=%q)", f.path)
	}
	return fmt.Sprintf("File(path=%q, sessions=%v)", f.path, names)
}

// List returns all sessions by name
func (f *File) List() (map[string]Session, error) {
	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}
	result := make(map[string]Session, len(f.data))
	for name, s := range f.data {
		result[name] = s
	}
	return result, nil
}

// Names returns the session names in sorted order
func (f *File) Names() ([]string, error) {
	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.data))
	for name := range f.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the session with the given name
func (f *File) Get(name string) (Session, error) {
	if err := f.ensureLoaded(); err != nil {
		return Session{}, err
	}
	s, ok := f.data[name]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	return s, nil
}

// Add adds a session under a new name and saves the file. The creation time
// is set to the current time.
func (f *File) Add(name string, s Session) error {
	if err := f.checkName(name); err != nil {
		return err
	}
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := f.data[name]; ok {
		return fmt.Errorf("%w: %s", ErrSessionAlreadyExists, name)
	}

	data := f.clone()
	s.CreationTime = f.now().UTC().Format(TimeFormat)
	data[name] = s
	return f.save(data)
}

// Remove removes a session and saves the file
func (f *File) Remove(name string) error {
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := f.data[name]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}

	data := f.clone()
	delete(data, name)
	return f.save(data)
}

// Update changes a session and saves the file. The creation time is set to
// the current time.
func (f *File) Update(name string, update func(*Session)) error {
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	s, ok := f.data[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}

	update(&s)
	s.CreationTime = f.now().UTC().Format(TimeFormat)

	data := f.clone()
	data[name] = s
	return f.save(data)
}

func (f *File) checkName(name string) error {
	if err := f.validate.Var(name, "required,sessionname"); err != nil {
		return fmt.Errorf("invalid session name %q: must consist of lower-case letters, digits and underscores", name)
	}
	return nil
}

func (f *File) clone() map[string]Session {
	data := make(map[string]Session, len(f.data))
	for name, s := range f.data {
		data[name] = s
	}
	return data
}

func (f *File) ensureLoaded() error {
	if f.data != nil {
		return nil
	}
	data, err := f.load()
	if err != nil {
		return err
	}
	f.data = data
	return nil
}

// load reads and validates the file, creating it if it does not exist
func (f *File) load() (map[string]Session, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(f.path, []byte("{}\n"), fileMode); err != nil {
			return nil, fmt.Errorf("the HMC session file %s could not be created: %w", f.path, err)
		}
		return map[string]Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("the HMC session file %s could not be read: %w", f.path, err)
	}

	data := map[string]Session{}
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
			return nil, &FormatError{Path: f.path, Message: fmt.Sprintf("invalid YAML: %s", err.Error()), Err: err}
		}
		if data == nil {
			data = map[string]Session{}
		}
	}

	if err := f.validateData(data); err != nil {
		return nil, err
	}
	return data, nil
}

// save validates and writes the data, then makes it the current state
func (f *File) save(data map[string]Session) error {
	if err := f.validateData(data); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(4)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encoding HMC session file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding HMC session file: %w", err)
	}

	if err := os.WriteFile(f.path, buf.Bytes(), fileMode); err != nil {
		return fmt.Errorf("the HMC session file %s could not be written: %w", f.path, err)
	}
	if err := os.Chmod(f.path, fileMode); err != nil {
		return fmt.Errorf("the HMC session file %s could not be written: %w", f.path, err)
	}

	f.data = data
	return nil
}

func (f *File) validateData(data map[string]Session) error {
	for name, s := range data {
		if err := f.validate.Var(name, "required,sessionname"); err != nil {
			return &FormatError{
				Path:    f.path,
				Message: fmt.Sprintf("invalid session name %q", name),
				Err:     err,
			}
		}
		if err := f.validate.Struct(s); err != nil {
			var verrs validator.ValidationErrors
			msg := err.Error()
			if errors.As(err, &verrs) && len(verrs) > 0 {
				msg = fmt.Sprintf("field %s fails %q validation", verrs[0].Field(), verrs[0].Tag())
			}
			return &FormatError{
				Path:    f.path,
				Message: fmt.Sprintf("session %s: %s", name, msg),
				Err:     err,
			}
		}
	}
	return nil
}
