// Package cli implements the netspeedlogger command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"netspeedlogger/collector"
	"netspeedlogger/config"
	"netspeedlogger/logger"
	"netspeedlogger/storage"
)

// ErrUsage is returned for unknown commands and bad flags.
var ErrUsage = errors.New("usage error")

// Messages shared by several commands.
const (
	NoResults = "No results - run `netspeedlogger speedtest` first"
	NoData    = "No data - run `netspeedlogger speedtest` first!"
)

// App carries the process streams and the seams tests replace.
type App struct {
	Stdout io.Writer
	Stderr io.Writer // logs and usage
	Stdin  io.Reader

	// NewProber builds the measurement backend for `speedtest`.
	NewProber func(cfg *config.Config, log *zap.Logger) collector.Prober

	// Prompt asks one question and returns the answer; ok is false once
	// input is exhausted. Nil picks a prompt suited to Stdin.
	Prompt func(question string) (answer string, ok bool)

	// Sleep replaces the retry backoff when set.
	Sleep func(ctx context.Context, d time.Duration) error

	Now func() time.Time
}

// New returns an App bound to the process streams.
func New() *App {
	return &App{
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Stdin:     os.Stdin,
		NewProber: SpeedtestNetProber,
		Now:       time.Now,
	}
}

// SpeedtestNetProber measures against speedtest.net.
func SpeedtestNetProber(cfg *config.Config, log *zap.Logger) collector.Prober {
	st := collector.NewSpeedtestNet(log)
	r := collector.NewRunner(st, st, log)
	r.ProbeDeadline = cfg.ProbeDeadline
	return r
}

// env is what every command gets once configuration is loaded.
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	store storage.Store
	flags *pflag.FlagSet
}

type command struct {
	help  string
	flags func(fs *pflag.FlagSet)
	run   func(a *App, ctx context.Context, e *env) error
}

var commands = map[string]command{
	"speedtest": {
		help:  "Run an internet speed test and save the result",
		flags: speedtestFlags,
		run:   (*App).speedtest,
	},
	"results": {
		help: "Show up to 10000 stored results",
		run:  (*App).results,
	},
	"summary": {
		help: "Show summary statistics of stored results",
		run:  (*App).summary,
	},
	"delete_database": {
		help: "Delete the database after confirmation",
		run:  (*App).deleteDatabase,
	},
	"app": {
		help:  "Print the dashboard chart data as JSON",
		flags: rangeFlags,
		run:   (*App).chart,
	},
	"export": {
		help:  "Export results to a Parquet file",
		flags: exportFlags,
		run:   (*App).exportParquet,
	},
	"import": {
		help:  "Import speedtest-cli --json output, one document per line",
		flags: importFlags,
		run:   (*App).importResults,
	},
	"push": {
		help: "Upload the database over SFTP",
		run:  (*App).push,
	},
	"config": {
		help: "Print the effective configuration",
		run:  (*App).showConfig,
	},
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		a.usage()
		if len(args) == 0 {
			return ErrUsage
		}
		return nil
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(a.Stderr, "unknown command %q\n", name)
		a.usage()
		return ErrUsage
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	fs.String("data-dir", "", "folder holding netspeedlogger.sqlite3 (env NETSPEEDLOGGER)")
	fs.String("log-level", "info", "debug|info|warn|error")
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	log, err := logger.NewWithWriter(cfg.LogLevel, a.Stderr)
	if err != nil {
		return fmt.Errorf("setting up logger: %w", err)
	}
	defer logger.Flush(log.Logger)
	log.Logger.Debug("config loaded", zap.String("command", name), zap.String("data_dir", cfg.DataDir))

	e := &env{
		cfg:   cfg,
		log:   log.Logger,
		store: storage.NewSQLite(cfg.DataDir, log.Logger),
		flags: fs,
	}
	return cmd.run(a, ctx, e)
}

func (a *App) usage() {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("usage: netspeedlogger <command> [flags]\n\ncommands:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "  %-16s %s\n", n, commands[n].help)
	}
	fmt.Fprint(a.Stderr, b.String())
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
