// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	zhmc "github.com/netascode/go-zhmc"
	"github.com/netascode/go-zhmc/internal/sessionfile"
	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// newLogger returns a zerolog console logger writing to w
func newLogger(w io.Writer, level string) (zhmc.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: !isTerminal(w)}
	return zhmc.NewZerologLogger(zerolog.New(out).Level(lvl).With().Timestamp().Logger()), nil
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// target is the HMC session a command operates on
type target struct {
	session *zhmc.Session

	// file and name identify the session file entry the session was
	// resumed from; name is empty for sessions given on the command line
	file  *sessionfile.File
	name  string
	entry sessionfile.Session

	// temporary sessions are logged off when the command ends
	temporary bool
}

// passwordPrompt reads the password from the terminal
func (z *zhmcCLI) passwordPrompt(_ context.Context, host, userid string) (string, error) {
	if z.stdin == nil || !term.IsTerminal(int(z.stdin.Fd())) {
		return "", errors.New("password required but not provided and standard input is not a terminal")
	}
	fmt.Fprintf(z.stderr, "Enter password (for user %s at HMC %s): ", userid, host)
	pw, err := term.ReadPassword(int(z.stdin.Fd()))
	fmt.Fprintln(z.stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// sessionFile opens the session file selected by --session-file
func (z *zhmcCLI) sessionFile(c *cli.Context) (*sessionfile.File, error) {
	return sessionfile.New(c.String("session-file"))
}

// commonOptions returns the session options shared by all session sources
func (z *zhmcCLI) commonOptions(c *cli.Context) []func(*zhmc.Session) {
	opts := []func(*zhmc.Session){
		zhmc.Port(c.Int("port")),
		zhmc.WithLogger(z.logger),
		zhmc.WithTimeStats(c.Bool("timestats")),
		zhmc.PasswordFunc(z.passwordPrompt),
	}
	if pw := c.String("password"); pw != "" {
		opts = append(opts, zhmc.Password(pw))
	}
	return opts
}

// hostOptions returns the session options for a session given on the
// command line
func (z *zhmcCLI) hostOptions(c *cli.Context) []func(*zhmc.Session) {
	opts := z.commonOptions(c)
	opts = append(opts, zhmc.Userid(c.String("userid")))
	if c.Bool("no-verify") {
		opts = append(opts, zhmc.VerifyCertificate(false))
	} else if ca := c.String("ca-certs"); ca != "" {
		opts = append(opts, zhmc.CACerts(ca))
	}
	return opts
}

// connect selects the HMC session for a command: the --host options if
// given, otherwise the named entry of the session file
func (z *zhmcCLI) connect(c *cli.Context) (*target, error) {
	if host := c.String("host"); host != "" {
		opts := z.hostOptions(c)
		sessionID := c.String("session-id")
		if sessionID != "" {
			opts = append(opts, zhmc.SessionID(sessionID))
		}
		s, err := zhmc.NewSession(host, opts...)
		if err != nil {
			return nil, err
		}
		return &target{session: s, temporary: sessionID == ""}, nil
	}

	f, err := z.sessionFile(c)
	if err != nil {
		return nil, err
	}
	name := c.String("session-name")
	entry, err := f.Get(name)
	if errors.Is(err, sessionfile.ErrSessionNotFound) {
		return nil, fmt.Errorf("no HMC specified: use --host or log on with 'zhmc session logon' (session %q not in %s)", name, f.Path())
	}
	if err != nil {
		return nil, err
	}

	s, err := zhmc.NewSession(entry.Host, z.entryOptions(c, entry)...)
	if err != nil {
		return nil, err
	}
	return &target{session: s, file: f, name: name, entry: entry}, nil
}

// entryOptions returns the session options for resuming a session file entry
func (z *zhmcCLI) entryOptions(c *cli.Context, entry sessionfile.Session) []func(*zhmc.Session) {
	opts := z.commonOptions(c)
	opts = append(opts,
		zhmc.Userid(entry.Userid),
		zhmc.SessionID(entry.SessionID),
		zhmc.VerifyCertificate(entry.CAVerify))
	if entry.CAVerify && entry.CACertPath != "" {
		opts = append(opts, zhmc.CACerts(entry.CACertPath))
	}
	return opts
}

// finish ends a command on a target: temporary sessions are logged off, and a
// session file entry is updated when the session logged on again
func (z *zhmcCLI) finish(ctx context.Context, t *target) error {
	if t.temporary {
		return t.session.Logoff(ctx)
	}
	if t.file != nil {
		if id := t.session.SessionID(); id != "" && id != t.entry.SessionID {
			z.logger.Info(ctx, "Updating session in HMC session file", "session_name", t.name)
			return t.file.Update(t.name, func(s *sessionfile.Session) {
				s.SessionID = id
			})
		}
	}
	return nil
}

// withSession runs fn against the selected HMC session and finishes it
func (z *zhmcCLI) withSession(c *cli.Context, fn func(ctx context.Context, s *zhmc.Session) error) (err error) {
	t, err := z.connect(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	defer func() {
		if c.Bool("timestats") {
			fmt.Fprint(z.stderr, t.session.Stats().String())
		}
		// A cleanup failure replaces only a nil command error
		if ferr := z.finish(context.WithoutCancel(ctx), t); ferr != nil {
			if err == nil {
				err = ferr
			} else {
				z.logger.Warn(ctx, "Cleanup of HMC session failed", "error", ferr.Error())
			}
		}
	}()

	return fn(ctx, t.session)
}
