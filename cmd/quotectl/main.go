package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pgclosets/quote-service/cmd/quotectl/cli"
	"github.com/pgclosets/quote-service/internal/app"
	"github.com/pgclosets/quote-service/internal/platform/db"
	"github.com/pgclosets/quote-service/jobs"
)

const usage = `usage: quotectl <command> [flags]

commands:
  migrate               apply database migrations
  migrate-status        print migration state
  rules-check --file F  validate a pricing rules file [--json]
  jobs-trigger NAME     enqueue a maintenance job (%s)
  jobs-stats            print queue counters
  jobs-retry            re-run archived tasks
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintf(stderr, usage, jobs.TaskIdempotencyCleanup)
		return 2
	}
	cmd, rest := args[0], args[1:]

	// rules-check runs without any environment configured.
	if cmd == "rules-check" {
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(stderr)
		path := fs.String("file", "", "pricing rules YAML file")
		jsonOut := fs.Bool("json", false, "print a JSON summary")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return cli.RulesCheckCommand(cli.RulesCheckOptions{Path: *path, JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr})
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch cmd {
	case "migrate", "migrate-status":
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer pool.Close()
		if cmd == "migrate" {
			err = db.Migrate(ctx, pool)
		} else {
			err = db.MigrationStatus(ctx, pool)
		}
		if err != nil {
			logger.Error(cmd, slog.Any("error", err))
			return 1
		}
		logger.Info(cmd + " complete")
		return 0
	case "jobs-trigger", "jobs-stats", "jobs-retry":
		jc := cli.NewJobsCLI(cfg.RedisAddr)
		defer func() {
			if err := jc.Close(); err != nil {
				logger.Warn("close jobs cli", slog.Any("error", err))
			}
		}()
		return runJobs(ctx, jc, cmd, rest, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		_, _ = fmt.Fprintf(stderr, usage, jobs.TaskIdempotencyCleanup)
		return 2
	}
}

func runJobs(ctx context.Context, jc *cli.JobsCLI, cmd string, args []string, stdout, stderr io.Writer) int {
	switch cmd {
	case "jobs-trigger":
		if len(args) != 1 {
			_, _ = fmt.Fprintln(stderr, "jobs-trigger: exactly one job name is required")
			return 2
		}
		info, err := jc.Trigger(ctx, args[0])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs-trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "jobs-stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs-stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "jobs-retry":
		n, err := jc.RetryArchived(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs-retry: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "requeued %d archived tasks\n", n)
	}
	return 0
}
