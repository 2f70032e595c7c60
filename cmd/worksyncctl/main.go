package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/V4T54L/worksync/internal/adapter/stream"
	"github.com/V4T54L/worksync/internal/client"
	"github.com/V4T54L/worksync/internal/domain"
)

type options struct {
	url      string
	adminURL string
	apiKey   string
	timeout  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "worksyncctl",
		Short:        "worksyncctl - submit telemetry and ask questions of a WorkSync server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.url, "url", envOr("WORKSYNC_URL", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.adminURL, "admin-url", envOr("WORKSYNC_ADMIN_URL", "http://localhost:9091"), "admin listener base URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("WORKSYNC_API_KEY"), "API key sent as X-API-Key")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	root.SetIn(stdin)
	root.SetOut(stdout)

	root.AddCommand(
		newSubmitCmd(opts),
		newGenerateCmd(),
		newQueryCmd(opts),
		newSummarizeCmd(opts),
		newQueuesCmd(opts),
	)
	return root
}

func (o *options) client() *client.Client {
	return client.New(o.url, o.apiKey, client.WithAdminURL(o.adminURL))
}

func (o *options) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func newSubmitCmd(opts *options) *cobra.Command {
	var (
		typeSlug string
		file     string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit JSON or NDJSON events of one type from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType, ok := domain.ParseEventTypeSlug(typeSlug)
			if !ok {
				return fmt.Errorf("unknown event type %q", typeSlug)
			}
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			events, err := readEvents(in, eventType)
			if err != nil {
				return err
			}

			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			resp, code, err := opts.client().SubmitEvents(ctx, eventType, events)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status %d: %d accepted, %d rejected, %d failed\n", code, resp.Accepted, resp.Rejected, resp.Failed)
			for _, r := range resp.Results {
				if r.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %s: %s\n", r.Status, r.EventID, r.Error)
				}
			}
			if resp.Rejected > 0 || resp.Failed > 0 {
				return errors.New("some events were not accepted")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeSlug, "type", "t", "app-usage", "event type: app-usage, security or alert")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "input file, - for stdin")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var (
		typeSlug  string
		count     int
		employees int
		seed      uint64
		brokers   []string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic events as NDJSON, or publish them to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			var eventType domain.EventType
			if typeSlug != "" {
				t, ok := domain.ParseEventTypeSlug(typeSlug)
				if !ok {
					return fmt.Errorf("unknown event type %q", typeSlug)
				}
				eventType = t
			}
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			gen := client.NewGenerator(seed, employees)
			events := make([]domain.Event, count)
			for i := range events {
				events[i] = gen.Next(eventType)
			}

			if len(brokers) > 0 {
				pub := stream.NewPublisher(brokers)
				defer pub.Close()
				if err := pub.Publish(cmd.Context(), events...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d events\n", len(events))
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range events {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeSlug, "type", "t", "", "event type, random when empty")
	cmd.Flags().IntVarP(&count, "count", "n", 10, "number of events")
	cmd.Flags().IntVar(&employees, "employees", 5, "number of distinct employees")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, time based when zero")
	cmd.Flags().StringSliceVar(&brokers, "kafka", nil, "publish to these Kafka brokers instead of printing")
	return cmd
}

func newQueryCmd(opts *options) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a natural language question about employee activity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			result, err := opts.client().Query(ctx, strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Message)
			if len(result.Matches) > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EMPLOYEE\tTIMESTAMP\tSIMILARITY")
				for _, m := range result.Matches {
					fmt.Fprintf(w, "%s\t%s\t%.3f\n", m.EmployeeID, m.Timestamp.Format(time.RFC3339), m.Similarity)
				}
				w.Flush()
			}
			if !result.Success {
				return errors.New("query failed")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of summaries to retrieve, server default when zero")
	return cmd
}

func newSummarizeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Run the summary pipeline for the last window now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			report, err := opts.client().GenerateSummaries(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "window %s - %s: %d employees, %d stored, %d failed\n",
				report.WindowStart.Format(time.RFC3339), report.WindowEnd.Format(time.RFC3339),
				report.Employees, report.Stored, report.Failed)
			return err
		},
	}
}

func newQueuesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "Show tier queue and dead-letter depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			resp, err := opts.client().Queues(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tDEPTH")
			for _, q := range resp.Queues {
				fmt.Fprintf(w, "%s\t%d\n", q.Queue, q.Depth)
			}
			fmt.Fprintf(w, "dead-letter\t%d\n", resp.DeadLetter.Depth)
			return w.Flush()
		},
	}
}

// readEvents decodes a stream of JSON objects, one per line or
// concatenated, tagging untagged events with t.
func readEvents(r io.Reader, t domain.EventType) ([]domain.Event, error) {
	dec := json.NewDecoder(r)
	var events []domain.Event
	for {
		var e domain.Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", len(events)+1, err)
		}
		if !e.AssignType(t) {
			return nil, fmt.Errorf("event %d has type %s, expected %s", len(events)+1, e.EventType, t)
		}
		events = append(events, e)
	}
	if len(events) == 0 {
		return nil, errors.New("no events in input")
	}
	return events, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
