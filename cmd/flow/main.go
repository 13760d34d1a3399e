// Package main provides flow, the operator CLI: run a workflow once, list the
// configured workflows, or mint an operator token for the trigger endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/app"
	"github.com/weatherflows/weatherflows/internal/auth"
	"github.com/weatherflows/weatherflows/internal/config"
	"github.com/weatherflows/weatherflows/internal/worker"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

const usage = `usage: flow <command> [flags]

commands:
  run <workflow>   run a workflow once (-all runs every workflow)
  list             list configured workflows
  token            issue an operator token for the trigger endpoint
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}
	log := newLogger(stderr, cfg.LogLevel)

	switch args[0] {
	case "run":
		return runCommand(ctx, cfg, log, args[1:], stdout, stderr)
	case "list":
		return listCommand(cfg, args[1:], stdout, stderr)
	case "token":
		return tokenCommand(cfg, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "flow: unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func runCommand(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	city := fs.String("city", "", "override the workflow's default city")
	dryRun := fs.Bool("dry-run", false, "log notifications instead of posting them")
	file := fs.String("workflows", cfg.WorkflowsFile, "workflow descriptor file")
	all := fs.Bool("all", false, "run every configured workflow")
	if err := parseInterspersed(fs, args); err != nil {
		return exitUsage
	}
	if *all == (fs.NArg() == 1) || fs.NArg() > 1 {
		fmt.Fprintln(stderr, "flow: run needs exactly one workflow name, or -all")
		return exitUsage
	}
	if *all && *city != "" {
		fmt.Fprintln(stderr, "flow: -city cannot be combined with -all")
		return exitUsage
	}

	defs, err := app.Definitions(*file)
	if err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}
	pipelines, err := app.Pipelines(cfg, defs, log, app.Options{DryRun: *dryRun})
	if err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}
	repo, closeHistory, err := app.History(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}
	defer closeHistory()

	runner, err := worker.NewRunner(worker.RunnerConfig{Pipelines: pipelines, History: repo, Logger: log})
	if err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}

	if *all {
		result := runner.TriggerAll(ctx, workflow.TriggerManual, worker.DefaultBatchConfig())
		if err := writeJSON(stdout, result.Runs); err != nil {
			fmt.Fprintf(stderr, "flow: %v\n", err)
			return exitFailed
		}
		if result.Failed > 0 {
			return exitFailed
		}
		return exitOK
	}

	runRecord, err := runner.Trigger(ctx, fs.Arg(0), workflow.RunParams{City: *city, Trigger: workflow.TriggerManual})
	if errors.Is(err, worker.ErrUnknownWorkflow) {
		fmt.Fprintf(stderr, "flow: unknown workflow %q (have %v)\n", fs.Arg(0), runner.Names())
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}
	if err := writeJSON(stdout, runRecord); err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}
	if runRecord.Failed() {
		return exitFailed
	}
	return exitOK
}

type listEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	City        string `json:"default_city"`
	Condition   string `json:"condition"`
	Schedule    string `json:"schedule,omitempty"`
	NextRunAt   string `json:"next_run_at,omitempty"`
}

func listCommand(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("workflows", cfg.WorkflowsFile, "workflow descriptor file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	defs, err := app.Definitions(*file)
	if err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}

	now := time.Now()
	entries := make([]listEntry, 0, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			fmt.Fprintf(stderr, "flow: %v\n", err)
			return exitFailed
		}
		entry := listEntry{
			Name:        def.Name,
			Description: def.Description,
			City:        def.DefaultCity,
			Condition:   string(def.Condition.Kind),
		}
		if def.Schedule.IsScheduled() {
			entry.Schedule = def.Schedule.Expression()
			if next, err := def.Schedule.Next(now); err == nil {
				entry.NextRunAt = next.UTC().Format(time.RFC3339)
			}
		}
		entries = append(entries, entry)
	}

	if err := writeJSON(stdout, entries); err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}
	return exitOK
}

func tokenCommand(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "operator the token is issued to")
	ttl := fs.Duration("ttl", cfg.Auth.TokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *subject == "" {
		fmt.Fprintln(stderr, "flow: token needs -subject")
		return exitUsage
	}

	tokens, err := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})
	if err != nil {
		fmt.Fprintf(stderr, "flow: JWT_SIGNING_KEY: %v\n", err)
		return exitFailed
	}

	token, expiresAt, err := tokens.IssueToken(*subject, *ttl, auth.ScopeTrigger)
	if err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}

	if err := writeJSON(stdout, map[string]string{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}); err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		return exitFailed
	}
	return exitOK
}

// parseInterspersed lets flags follow the positional workflow name.
func parseInterspersed(fs *flag.FlagSet, args []string) error {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	return fs.Parse(positional)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
