package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/ericfisherdev/commentbot/internal/application"
	"github.com/ericfisherdev/commentbot/internal/bootstrap"
	"github.com/ericfisherdev/commentbot/internal/config"
	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
	"github.com/ericfisherdev/commentbot/internal/sentiment"
	"github.com/ericfisherdev/commentbot/internal/textutil"
)

// env is the opened configuration and storage shared by every command.
type env struct {
	cfg    *config.Config
	stores *bootstrap.Stores
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, stores: stores}, nil
}

func (e *env) close() { e.stores.Close() }

// commentLine is one input line for the process command.
type commentLine struct {
	ID               string            `json:"id"`
	PostURN          string            `json:"post_urn"`
	Text             string            `json:"text"`
	AuthorName       string            `json:"author_name"`
	AuthorProfileURL string            `json:"author_profile_url"`
	Metadata         map[string]string `json:"metadata"`
	ReceivedAt       *time.Time        `json:"received_at"`
}

// resultLine is one output line of the process command.
type resultLine struct {
	CommentID  string  `json:"comment_id"`
	Created    bool    `json:"created"`
	Label      string  `json:"label,omitempty"`
	Polarity   float64 `json:"polarity"`
	Response   string  `json:"response,omitempty"`
	TemplateID string  `json:"template_id,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// processSummary counts outcomes of a process run.
type processSummary struct {
	Total       int `json:"total"`
	Created     int `json:"created"`
	Duplicates  int `json:"duplicates"`
	RateLimited int `json:"rate_limited"`
	Failed      int `json:"failed"`
}

func cmdProcess(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("process", pflag.ContinueOnError)
	file := fs.StringP("file", "f", "-", "JSON-lines file of comments, - for stdin")
	workers := fs.IntP("workers", "w", 0, "concurrent comments (default COMMENTBOT_WORKERS)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open comments file: %w", err)
		}
		defer f.Close()
		in = f
	}

	comments, err := decodeComments(in)
	if err != nil {
		return err
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	clock := clockwork.NewRealClock()
	limiter, err := bootstrap.NewLimiter(ctx, e.cfg, clock)
	if err != nil {
		return err
	}
	defer limiter.Close()

	classifier, err := sentiment.New(e.cfg.Thresholds())
	if err != nil {
		return err
	}
	generator, err := bootstrap.NewGenerator(e.cfg)
	if err != nil {
		return err
	}

	pipeline := application.NewPipeline(e.stores.Records, limiter, classifier, generator,
		application.WithStorageTimeout(e.cfg.StorageTimeout),
	)

	n := *workers
	if n <= 0 {
		n = e.cfg.Workers
	}

	summary, err := processComments(ctx, pipeline, comments, n, os.Stdout)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "processed %d comments: %d created, %d duplicates, %d rate-limited, %d failed\n",
		summary.Total, summary.Created, summary.Duplicates, summary.RateLimited, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d comments failed", summary.Failed)
	}
	return nil
}

// decodeComments reads one JSON comment per line. Blank lines are skipped.
func decodeComments(r io.Reader) ([]model.Comment, error) {
	var comments []model.Comment

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var cl commentLine
		if err := json.Unmarshal([]byte(line), &cl); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		c := model.Comment{
			ID:               cl.ID,
			PostURN:          cl.PostURN,
			Text:             textutil.FromHTML(cl.Text),
			AuthorName:       cl.AuthorName,
			AuthorProfileURL: cl.AuthorProfileURL,
			Metadata:         cl.Metadata,
		}
		if cl.ReceivedAt != nil {
			c.ReceivedAt = cl.ReceivedAt.UTC()
		}
		comments = append(comments, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}

	return comments, nil
}

// processComments runs the batch and writes one result line per comment, in
// input order.
func processComments(ctx context.Context, p *application.Pipeline, comments []model.Comment, workers int, out io.Writer) (processSummary, error) {
	summary := processSummary{Total: len(comments)}
	enc := json.NewEncoder(out)

	for _, o := range p.ProcessBatch(ctx, comments, workers) {
		line := resultLine{CommentID: o.Comment.ID, Created: o.Created}

		switch {
		case o.Err == nil:
			if o.Created {
				summary.Created++
			} else {
				summary.Duplicates++
			}
		case errors.Is(o.Err, model.ErrRateLimitExceeded):
			summary.RateLimited++
			line.Error = o.Err.Error()
		default:
			summary.Failed++
			line.Error = o.Err.Error()
		}

		if o.Err == nil {
			line.Label = string(o.Record.Sentiment.Label)
			line.Polarity = o.Record.Sentiment.Polarity
			line.Response = o.Record.Response.Text
			line.TemplateID = o.Record.Response.TemplateID
		}

		if err := enc.Encode(line); err != nil {
			return summary, fmt.Errorf("write result: %w", err)
		}
	}

	return summary, nil
}

func cmdRecords(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("records", pflag.ContinueOnError)
	label := fs.String("label", "", "only records with this sentiment label")
	post := fs.String("post", "", "only records for this post URN")
	limit := fs.Int("limit", 50, "maximum records to print")
	stats := fs.Bool("stats", false, "print per-label counts instead of records")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	filter := model.RecordFilter{Label: model.SentimentLabel(*label), PostURN: *post, Limit: *limit}
	if filter.Label != "" && !filter.Label.Valid() {
		return fmt.Errorf("%w: invalid label %q", errUsage, *label)
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if *stats {
		return printStats(ctx, e.stores.Records, os.Stdout)
	}
	return printRecords(ctx, e.stores.Records, filter, os.Stdout)
}

func printRecords(ctx context.Context, records driven.RecordStore, filter model.RecordFilter, out io.Writer) error {
	recs, err := records.List(ctx, filter)
	if err != nil {
		return err
	}

	for _, r := range recs {
		fmt.Fprintf(out, "%s\t%s\t%+.2f\t%s\t%s\n",
			r.ProcessedAt.Format(time.RFC3339),
			r.Sentiment.Label,
			r.Sentiment.Polarity,
			r.Comment.ID,
			textutil.Truncate(r.Comment.Text, 60),
		)
	}
	return nil
}

func printStats(ctx context.Context, records driven.RecordStore, out io.Writer) error {
	counts, err := records.CountByLabel(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, label := range model.SentimentLabels {
		fmt.Fprintf(out, "%-9s %d\n", label, counts[label])
		total += counts[label]
	}
	fmt.Fprintf(out, "%-9s %d\n", "total", total)
	return nil
}

func cmdWatch(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	content := fs.String("content", "", "post text, for reference")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: watch takes exactly one post URN", errUsage)
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	post := model.Post{URN: fs.Arg(0), Content: *content, LastUpdated: time.Now().UTC()}
	if err := e.stores.Posts.Upsert(ctx, post); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "watching %s\n", post.URN)
	return nil
}

func cmdUnwatch(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("unwatch", pflag.ContinueOnError)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: unwatch takes exactly one post URN", errUsage)
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.stores.Posts.Remove(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "stopped watching %s\n", fs.Arg(0))
	return nil
}

func cmdPosts(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("posts", pflag.ContinueOnError)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	posts, err := e.stores.Posts.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, p := range posts {
		fmt.Fprintf(os.Stdout, "%s\t%d comments\t%s\n", p.URN, p.CommentCount, p.LastUpdated.Format(time.RFC3339))
	}
	return nil
}
