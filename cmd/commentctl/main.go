// Command commentctl is a one-shot CLI over the commentbot database: it
// processes JSON-lines comment files, lists records and manages watched posts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

const usage = `commentctl processes comments against the configured commentbot database.

Usage:
  commentctl <command> [flags]

Commands:
  process   classify and answer comments from a JSON-lines file (or stdin)
  records   list processed records, or per-label counts with --stats
  watch     add or update a watched post
  unwatch   stop watching a post
  posts     list watched posts

Configuration is read from COMMENTBOT_* environment variables and .env.

Examples:
  commentctl process --file comments.jsonl --workers 8
  commentctl records --label negative --limit 20
  commentctl watch urn:li:activity:7001 --content "Launch post"
`

var (
	// errUsage marks invalid invocations; main exits 2 for them.
	errUsage = errors.New("usage error")
	// errHelp stops a command after pflag printed its help.
	errHelp = errors.New("help requested")
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n\n%s", err, usage)
			os.Exit(2)
		}
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stdout, usage)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name, rest := args[0], args[1:]
	switch name {
	case "process":
		return cmdProcess(ctx, rest)
	case "records":
		return cmdRecords(ctx, rest)
	case "watch":
		return cmdWatch(ctx, rest)
	case "unwatch":
		return cmdUnwatch(ctx, rest)
	case "posts":
		return cmdPosts(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
}

// parseFlags parses args with fs and converts help and parse failures.
func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelp
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}
