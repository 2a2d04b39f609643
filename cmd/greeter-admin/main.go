package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/greeter-api/config"
	"github.com/target/greeter-api/internal/adapters/credentials"
	"github.com/target/greeter-api/internal/bootstrap"
	"github.com/target/greeter-api/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	bootstrap.SetLogLevel(cfg.LogLevel)

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply the processed-follower schema to Postgres",
			run:         runMigrations,
		},
		"list-processed": {
			name:        "list-processed",
			description: "List the most recently welcomed followers of an account",
			run:         runListProcessed,
		},
		"mark-processed": {
			name:        "mark-processed",
			description: "Record followers as already welcomed so jobs skip them",
			run:         runMarkProcessed,
		},
		"check-cookies": {
			name:        "check-cookies",
			description: "Validate a session cookie export before submitting a job",
			run:         runCheckCookies,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: greeter-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-18s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Timeout <= 0 {
		return opts, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

type processedOptions struct {
	Owner     string
	Limit     int
	Followers []string
}

func parseProcessedFlags(name string, args []string, wantFollowers bool) (processedOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts := processedOptions{}
	fs.StringVar(&opts.Owner, "owner", "", "Account owner handle (required)")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows to print")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.Owner = strings.TrimPrefix(strings.TrimSpace(opts.Owner), "@")
	if opts.Owner == "" {
		return opts, errors.New("--owner is required")
	}
	if opts.Limit < 1 {
		return opts, errors.New("--limit must be at least 1")
	}
	if wantFollowers {
		for _, f := range fs.Args() {
			if f = strings.TrimSpace(f); f != "" {
				opts.Followers = append(opts.Followers, f)
			}
		}
		if len(opts.Followers) == 0 {
			return opts, errors.New("at least one follower handle is required")
		}
	}
	return opts, nil
}

func openStore(ctx context.Context, cmdCtx *commandContext) (*bootstrap.ProcessedStore, error) {
	ps, err := bootstrap.OpenProcessedStore(ctx, bootstrap.StoreDeps{Config: &cmdCtx.Config, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, err
	}
	if ps.Store == nil {
		return nil, errors.New("no processed store configured; set STORE_BACKEND to postgres, sqlite or redis")
	}
	return ps, nil
}

func runListProcessed(cmdCtx *commandContext, args []string) error {
	opts, err := parseProcessedFlags("list-processed", args, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	ps, err := openStore(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ps.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close store failed", "error", cerr)
		}
	}()

	recs, err := ps.Lister.ListByOwner(ctx, opts.Owner, opts.Limit)
	if err != nil {
		return fmt.Errorf("list processed followers: %w", err)
	}
	return renderProcessed(cmdCtx.Out, opts.Owner, recs)
}

func renderProcessed(w io.Writer, owner string, recs []model.ProcessedRecord) error {
	if err := writef(w, "Processed followers for @%s (%d)\n\n", owner, len(recs)); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "FOLLOWER\tPROCESSED AT\n"); err != nil {
		return err
	}
	for _, r := range recs {
		if err := writef(tw, "%s\t%s\n", r.FollowerID, r.ProcessedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runMarkProcessed(cmdCtx *commandContext, args []string) error {
	opts, err := parseProcessedFlags("mark-processed", args, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	ps, err := openStore(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ps.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close store failed", "error", cerr)
		}
	}()

	for _, f := range opts.Followers {
		if err := ps.Store.Record(ctx, f, opts.Owner); err != nil {
			return fmt.Errorf("record %s: %w", f, err)
		}
	}
	return writef(cmdCtx.Out, "Marked %d followers of @%s as processed\n", len(opts.Followers), opts.Owner)
}

func runCheckCookies(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("check-cookies", flag.ContinueOnError)
	path := fs.String("file", "", "Path to the cookie export (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*path) == "" {
		return errors.New("--file is required")
	}

	// Operators may check any local file; the cookies directory only fences API callers.
	data, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read cookies file: %w", err)
	}
	resolver := credentials.NewResolver(cmdCtx.Config.Driver.PlatformDomain)
	creds, err := resolver.Resolve(cmdCtx.Ctx, model.CredentialsFromBytes(data))
	if err != nil {
		return err
	}
	return renderCookieSummary(cmdCtx.Out, creds, time.Now())
}

func renderCookieSummary(w io.Writer, creds model.ResolvedCredentials, now time.Time) error {
	if err := writef(w, "%d cookies OK\n", len(creds.Cookies)); err != nil {
		return err
	}
	for _, c := range creds.Cookies {
		if c.Expires <= 0 {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0).UTC()
		if exp.Before(now) {
			if err := writef(w, "warning: cookie %s expired at %s\n", c.Name, exp.Format(time.RFC3339)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
