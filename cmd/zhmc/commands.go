// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosuri/uitable"
	zhmc "github.com/netascode/go-zhmc"
	"github.com/netascode/go-zhmc/internal/sessionfile"
	"github.com/tidwall/gjson"
	cli "github.com/urfave/cli/v2"
)

// uriArg returns the single URI argument of a command
func uriArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s requires exactly one %s argument", c.Command.Name, name)
	}
	return c.Args().First(), nil
}

func (z *zhmcCLI) sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Manage HMC sessions in the HMC session file",
		Subcommands: []*cli.Command{
			{
				Name:   "logon",
				Usage:  "Log on to the HMC given by --host and store the session",
				Action: z.sessionLogon,
			},
			{
				Name:   "logoff",
				Usage:  "Log off the stored session and remove it",
				Action: z.sessionLogoff,
			},
			{
				Name:   "list",
				Usage:  "List the stored sessions",
				Action: z.sessionList,
			},
		},
	}
}

// sessionLogon logs on and stores the session under --session-name. An
// existing session of that name is logged off and replaced.
func (z *zhmcCLI) sessionLogon(c *cli.Context) error {
	host := c.String("host")
	if host == "" {
		return errors.New("session logon requires --host")
	}
	ctx := c.Context

	f, err := z.sessionFile(c)
	if err != nil {
		return err
	}
	name := c.String("session-name")
	old, err := f.Get(name)
	exists := err == nil
	if err != nil && !errors.Is(err, sessionfile.ErrSessionNotFound) {
		return err
	}

	s, err := zhmc.NewSession(host, z.hostOptions(c)...)
	if err != nil {
		return err
	}
	if err := s.Logon(ctx); err != nil {
		return err
	}

	entry := sessionfile.Session{
		Host:       host,
		Userid:     s.Userid(),
		SessionID:  s.SessionID(),
		CAVerify:   s.VerifyCertificate,
		CACertPath: c.String("ca-certs"),
	}
	if !entry.CAVerify {
		entry.CACertPath = ""
	}

	if !exists {
		if err := f.Add(name, entry); err != nil {
			return errors.Join(err, s.Logoff(ctx))
		}
		z.logger.Info(ctx, "Stored HMC session", "session_name", name, "host", host)
		return nil
	}

	z.logoffEntry(c, old)
	if err := f.Update(name, func(e *sessionfile.Session) { *e = entry }); err != nil {
		return errors.Join(err, s.Logoff(ctx))
	}
	z.logger.Info(ctx, "Replaced HMC session", "session_name", name, "host", host)
	return nil
}

// logoffEntry logs off the session of a session file entry, logging failures
func (z *zhmcCLI) logoffEntry(c *cli.Context, entry sessionfile.Session) {
	s, err := zhmc.NewSession(entry.Host, z.entryOptions(c, entry)...)
	if err == nil {
		err = s.Logoff(c.Context)
	}
	if err != nil {
		z.logger.Warn(c.Context, "Logoff of previous HMC session failed", "host", entry.Host, "error", err.Error())
	}
}

// sessionLogoff logs off the session stored under --session-name and removes
// it from the session file
func (z *zhmcCLI) sessionLogoff(c *cli.Context) error {
	f, err := z.sessionFile(c)
	if err != nil {
		return err
	}
	name := c.String("session-name")
	entry, err := f.Get(name)
	if err != nil {
		return err
	}

	s, err := zhmc.NewSession(entry.Host, z.entryOptions(c, entry)...)
	if err != nil {
		return err
	}
	if err := s.Logoff(c.Context); err != nil {
		return err
	}
	return f.Remove(name)
}

func (z *zhmcCLI) sessionList(c *cli.Context) error {
	f, err := z.sessionFile(c)
	if err != nil {
		return err
	}
	sessions, err := f.List()
	if err != nil {
		return err
	}
	names, err := f.Names()
	if err != nil {
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("SESSION NAME", "HOST", "USERID", "CA VERIFY", "CA CERT PATH", "CREATION TIME")
	for _, name := range names {
		s := sessions[name]
		table.AddRow(name, s.Host, s.Userid, s.CAVerify, s.CACertPath, s.CreationTime)
	}
	fmt.Fprintln(z.stdout, table)
	return nil
}

func (z *zhmcCLI) getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Perform a GET request on the HMC and print the result",
		ArgsUsage: "URI",
		Action: func(c *cli.Context) error {
			uri, err := uriArg(c, "URI")
			if err != nil {
				return err
			}
			return z.withSession(c, func(ctx context.Context, s *zhmc.Session) error {
				res, err := s.Get(ctx, uri)
				if err != nil {
					return err
				}
				return z.printRes(res)
			})
		},
	}
}

func (z *zhmcCLI) postCommand() *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "Perform a POST request on the HMC and print the result",
		ArgsUsage: "URI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "body",
				Aliases: []string{"b"},
				Usage:   "Request body as a JSON string",
			},
			&cli.BoolFlag{
				Name:  "no-wait",
				Usage: "Do not wait for completion of an asynchronous operation, print the job URI",
			},
			&cli.DurationFlag{
				Name:  "job-timeout",
				Usage: "Maximum time to wait for completion of an asynchronous operation",
			},
		},
		Action: func(c *cli.Context) error {
			uri, err := uriArg(c, "URI")
			if err != nil {
				return err
			}
			var body any
			if b := c.String("body"); b != "" {
				if !gjson.Valid(b) {
					return errors.New("--body is not valid JSON")
				}
				body = b
			}
			var mods []func(*zhmc.Req)
			if c.Bool("no-wait") {
				mods = append(mods, zhmc.NoWait())
			}
			if d := c.Duration("job-timeout"); d > 0 {
				mods = append(mods, zhmc.JobTimeout(d))
			}
			return z.withSession(c, func(ctx context.Context, s *zhmc.Session) error {
				res, err := s.Post(ctx, uri, body, mods...)
				if err != nil {
					return err
				}
				return z.printRes(res)
			})
		},
	}
}

func (z *zhmcCLI) deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Perform a DELETE request on the HMC",
		ArgsUsage: "URI",
		Action: func(c *cli.Context) error {
			uri, err := uriArg(c, "URI")
			if err != nil {
				return err
			}
			return z.withSession(c, func(ctx context.Context, s *zhmc.Session) error {
				res, err := s.Delete(ctx, uri)
				if err != nil {
					return err
				}
				return z.printRes(res)
			})
		},
	}
}

func (z *zhmcCLI) jobCommand() *cli.Command {
	return &cli.Command{
		Name:  "job",
		Usage: "Work with asynchronous HMC jobs",
		Subcommands: []*cli.Command{
			{
				Name:      "status",
				Usage:     "Print the status of a job",
				ArgsUsage: "JOB-URI",
				Action: func(c *cli.Context) error {
					jobURI, err := uriArg(c, "JOB-URI")
					if err != nil {
						return err
					}
					return z.withSession(c, func(ctx context.Context, s *zhmc.Session) error {
						res, err := s.QueryJobStatus(ctx, jobURI)
						if err != nil {
							return err
						}
						return z.printRes(res)
					})
				},
			},
		},
	}
}

func (z *zhmcCLI) apiVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "api-version",
		Usage: "Print the API version of the HMC (no logon required)",
		Action: func(c *cli.Context) error {
			return z.withSession(c, func(ctx context.Context, s *zhmc.Session) error {
				res, err := s.QueryAPIVersion(ctx)
				if err != nil {
					return err
				}
				return z.printRes(res)
			})
		},
	}
}
