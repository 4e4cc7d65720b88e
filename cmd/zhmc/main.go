// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command zhmc is a command line client for the IBM Z HMC Web Services API.
//
// Usage:
//
//	zhmc --host hmc1.example.com --userid ensadmin session logon
//	zhmc get /api/cpcs
//	zhmc post /api/partitions/1234/operations/start
//	zhmc session logoff
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	zhmc "github.com/netascode/go-zhmc"
	"github.com/netascode/go-zhmc/internal/sessionfile"
	cli "github.com/urfave/cli/v2"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the exit code
func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) int {
	z := &zhmcCLI{stdin: stdin, stdout: stdout, stderr: stderr, errorFormat: errorFormatMsg}
	if err := z.app().RunContext(ctx, args); err != nil {
		z.printError(err)
		return 1
	}
	return 0
}

// zhmcCLI holds the streams and the global options of one invocation
type zhmcCLI struct {
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer

	outputFormat string
	errorFormat  string
	logger       zhmc.Logger
}

func (z *zhmcCLI) app() *cli.App {
	return &cli.App{
		Name:            "zhmc",
		Usage:           "Command line client for the IBM Z Hardware Management Console",
		Version:         version,
		Writer:          z.stdout,
		ErrWriter:       z.stderr,
		HideHelpCommand: true,
		ExitErrHandler:  func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Hostname or IP address of the HMC",
				EnvVars: []string{"ZHMC_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port of the HMC Web Services API",
				EnvVars: []string{"ZHMC_PORT"},
				Value:   zhmc.DefaultPort,
			},
			&cli.StringFlag{
				Name:    "userid",
				Aliases: []string{"u"},
				Usage:   "Userid for the HMC",
				EnvVars: []string{"ZHMC_USERID"},
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password for the HMC (prompted for if needed)",
				EnvVars: []string{"ZHMC_PASSWORD"},
			},
			&cli.BoolFlag{
				Name:    "no-verify",
				Aliases: []string{"n"},
				Usage:   "Do not verify the HMC certificate",
				EnvVars: []string{"ZHMC_NO_VERIFY"},
			},
			&cli.StringFlag{
				Name:    "ca-certs",
				Aliases: []string{"c"},
				Usage:   "Path to a PEM file with CA certificates for verifying the HMC certificate",
				EnvVars: []string{"ZHMC_CA_CERTS"},
			},
			&cli.StringFlag{
				Name:    "session-id",
				Usage:   "Session ID of an existing HMC session (used with --host)",
				EnvVars: []string{"ZHMC_SESSION_ID"},
			},
			&cli.StringFlag{
				Name:    "session-name",
				Aliases: []string{"s"},
				Usage:   "Name of the session in the HMC session file",
				EnvVars: []string{"ZHMC_SESSION_NAME"},
				Value:   sessionfile.DefaultSessionName,
			},
			&cli.StringFlag{
				Name:    "session-file",
				Usage:   "Path to the HMC session file (default: ~/" + sessionfile.DefaultFileName + ")",
				EnvVars: []string{"ZHMC_SESSION_FILE"},
			},
			&cli.StringFlag{
				Name:    "output-format",
				Aliases: []string{"o"},
				Usage:   "Output format: json, yaml",
				Value:   outputFormatJSON,
			},
			&cli.StringFlag{
				Name:    "error-format",
				Aliases: []string{"e"},
				Usage:   "Error format: msg, def",
				Value:   errorFormatMsg,
			},
			&cli.BoolFlag{
				Name:  "timestats",
				Usage: "Print time statistics of the HMC requests",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error, disabled",
				EnvVars: []string{"ZHMC_LOG_LEVEL"},
				Value:   "warn",
			},
		},
		Before: z.before,
		Commands: []*cli.Command{
			z.sessionCommand(),
			z.getCommand(),
			z.postCommand(),
			z.deleteCommand(),
			z.jobCommand(),
			z.apiVersionCommand(),
		},
	}
}

// before validates and stores the global options
func (z *zhmcCLI) before(c *cli.Context) error {
	switch f := c.String("error-format"); f {
	case errorFormatMsg, errorFormatDef:
		z.errorFormat = f
	default:
		return fmt.Errorf("invalid error format %q: must be %s or %s", f, errorFormatMsg, errorFormatDef)
	}

	switch f := c.String("output-format"); f {
	case outputFormatJSON, outputFormatYAML:
		z.outputFormat = f
	default:
		return fmt.Errorf("invalid output format %q: must be %s or %s", f, outputFormatJSON, outputFormatYAML)
	}

	logger, err := newLogger(z.stderr, c.String("log-level"))
	if err != nil {
		return err
	}
	z.logger = logger
	return nil
}
