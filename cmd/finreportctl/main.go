package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/finreport/cmd/finreportctl/cli"
	"github.com/odyssey-erp/finreport/internal/app"
	"github.com/odyssey-erp/finreport/internal/finreport"
	"github.com/odyssey-erp/finreport/internal/ledger"
	"github.com/odyssey-erp/finreport/internal/platform/cache"
	"github.com/odyssey-erp/finreport/internal/platform/db"
)

const usage = `usage: finreportctl <command> [flags]

commands:
  enqueue <report-id>         queue generation of a report
  queue [--json]              show queue statistics
  tokens [--json] <file>      list the tokens of a template in TEMPLATE_DIR
  template register --name N --file F [--tenant T] [--description D] [--inactive]
  cache invalidate            drop cached ledger datasets from Redis
`

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.ReadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	switch args[0] {
	case "enqueue":
		return enqueue(ctx, cfg, args[1:], stdout, stderr)
	case "queue":
		return queue(ctx, cfg, args[1:], stdout, stderr)
	case "tokens":
		return tokens(ctx, cfg, args[1:], stdout, stderr)
	case "template":
		if len(args) < 2 || args[1] != "register" {
			_, _ = fmt.Fprint(stderr, usage)
			return 2
		}
		return registerTemplate(ctx, cfg, args[2:], stdout, stderr)
	case "cache":
		if len(args) < 2 || args[1] != "invalidate" {
			_, _ = fmt.Fprint(stderr, usage)
			return 2
		}
		return invalidateCache(ctx, cfg, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
}

func enqueue(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		_, _ = fmt.Fprintf(stderr, "enqueue: invalid report id %q\n", args[0])
		return 1
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "enqueue: %v\n", err)
		return 1
	}
	defer closeQuietly(jc)
	if err := jc.Enqueue(ctx, id, stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "enqueue: %v\n", err)
		return 1
	}
	return 0
}

func queue(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("queue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOutput := fs.Bool("json", false, "print JSON")
	sample := fs.Int("retry-sample", 10, "number of retrying tasks to list")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
		return 1
	}
	defer closeQuietly(jc)
	return jc.QueueCommand(ctx, cli.QueueOptions{RetrySample: *sample, JSONOutput: *jsonOutput, Stdout: stdout, Stderr: stderr})
}

func tokens(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tokens", flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOutput := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	tc, err := cli.NewTemplateCLI(nil, finreport.NewFileStore(cfg.TemplateDir, cfg.ReportStorageDir))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "tokens: %v\n", err)
		return 1
	}
	return tc.TokensCommand(ctx, cli.TokensOptions{File: fs.Arg(0), JSONOutput: *jsonOutput, Stdout: stdout, Stderr: stderr})
}

func registerTemplate(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("template register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.RegisterOptions{Stdout: stdout, Stderr: stderr}
	fs.StringVar(&opts.Name, "name", "", "template name")
	fs.StringVar(&opts.File, "file", "", "file name inside TEMPLATE_DIR")
	fs.StringVar(&opts.Tenant, "tenant", "standard", "tenant formula set")
	fs.StringVar(&opts.Description, "description", "", "description")
	fs.BoolVar(&opts.Inactive, "inactive", false, "register the template as inactive")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "template register: %v\n", err)
		return 1
	}
	defer pool.Close()
	repo := finreport.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "template register: %v\n", err)
		return 1
	}
	tc, err := cli.NewTemplateCLI(repo, finreport.NewFileStore(cfg.TemplateDir, cfg.ReportStorageDir))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "template register: %v\n", err)
		return 1
	}
	return tc.RegisterCommand(ctx, opts)
}

func invalidateCache(ctx context.Context, cfg *app.Config, stdout, stderr io.Writer) int {
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cache invalidate: %v\n", err)
		return 1
	}
	defer closeQuietly(client)
	src := ledger.NewCachedSource(nil, client, cfg.LedgerCacheTTL)
	return cli.InvalidateCommand(ctx, src, cli.CacheOptions{Stdout: stdout, Stderr: stderr})
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Default().Warn("close", slog.Any("error", err))
	}
}
