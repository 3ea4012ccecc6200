// Package cli wires the vrpgoal command line: solve a problem file, explain
// a job's placement, browse stored reports.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"vrpgoal/internal/buildinfo"
	"vrpgoal/internal/config"
	"vrpgoal/internal/events"
	"vrpgoal/internal/metrics"
	"vrpgoal/internal/opt"
	"vrpgoal/internal/problem"
	"vrpgoal/internal/report"
	"vrpgoal/internal/solution"
	"vrpgoal/internal/store"
)

var ErrUsage = errors.New("usage")

type options struct {
	configPath  string
	format      string
	metricsAddr string
}

// NewRootCommand builds the command tree. Output goes to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "vrpgoal",
		Short:         "Evaluate and optimize vehicle routing problems",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&o.configPath, "config", "", "YAML config file with weights and search settings")
	root.PersistentFlags().StringVarP(&o.format, "format", "o", "text", "output format: text or json")

	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	root.PersistentFlags().AddGoFlagSet(fs)

	root.AddCommand(newSolveCommand(o), newExplainCommand(o), newReportsCommand(o), newVersionCommand(o))
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	cmd := NewRootCommand(out)
	cmd.SetArgs(args)
	defer klog.Flush()
	return cmd.ExecuteContext(ctx)
}

func (o *options) loadConfig() (config.Config, error) {
	if o.format != "text" && o.format != "json" {
		return config.Config{}, fmt.Errorf("%w: --format must be text or json, got %q", ErrUsage, o.format)
	}
	return config.Load(o.configPath)
}

func newSolveCommand(o *options) *cobra.Command {
	var save bool
	var runID string
	cmd := &cobra.Command{
		Use:   "solve PROBLEM",
		Short: "Optimize a problem file and print the resulting report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := klog.FromContext(ctx).WithName("solve")
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if runID == "" {
				runID = uuid.NewString()
			}
			metrics.RegisterDefault()
			stop := o.serveMetrics(log)
			defer stop()

			broker, closeBroker, err := openBroker(ctx, cfg.Events, log)
			if err != nil {
				return err
			}
			defer closeBroker()
			done := followRun(broker, runID, log)
			defer done()

			rep, err := solve(ctx, args[0], cfg, runID, broker, log)
			if err != nil {
				return err
			}
			if save {
				st, err := store.Open(ctx, cfg.Store, log)
				if err != nil {
					return err
				}
				defer st.Close()
				if err := st.SaveReport(ctx, rep); err != nil {
					return fmt.Errorf("save report: %w", err)
				}
				log.Info("Report saved", "id", rep.ID)
			}
			return write(o, cmd.OutOrStdout(), rep, report.WriteText)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "persist the report to the configured store")
	cmd.Flags().StringVar(&runID, "run-id", "", "identifier for published search events (default: random)")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while solving")
	return cmd
}

func solve(ctx context.Context, path string, cfg config.Config, runID string, broker events.Broker, log logr.Logger) (report.Report, error) {
	p, err := problem.LoadFile(path)
	if err != nil {
		return report.Report{}, err
	}
	inst, err := problem.Build(p, cfg, log)
	if err != nil {
		return report.Report{}, err
	}
	best, m, err := opt.Optimize(ctx, inst, cfg.Search, runID, broker, log)
	if err != nil {
		return report.Report{}, err
	}
	rep := report.Build(inst.Goal, best)
	rep.Search = &m
	return rep, nil
}

func newExplainCommand(o *options) *cobra.Command {
	var noSolve bool
	cmd := &cobra.Command{
		Use:   "explain PROBLEM JOB",
		Short: "Show every insertion option for a job and why illegal ones are rejected",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := klog.FromContext(ctx).WithName("explain")
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			p, err := problem.LoadFile(args[0])
			if err != nil {
				return err
			}
			inst, err := problem.Build(p, cfg, log)
			if err != nil {
				return err
			}
			sol := inst.Solution
			if !noSolve {
				var best *solution.Solution
				best, _, err = opt.Optimize(ctx, inst, cfg.Search, uuid.NewString(), events.Discard{}, log)
				if err != nil {
					return err
				}
				sol = best
			}
			ex, err := report.Explain(inst.Goal, sol, args[1])
			if err != nil {
				return err
			}
			return write(o, cmd.OutOrStdout(), ex, report.WriteExplanation)
		},
	}
	cmd.Flags().BoolVar(&noSolve, "no-solve", false, "explain against the seeded solution instead of an optimized one")
	return cmd
}

func newReportsCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "reports", Short: "Browse stored run reports"}
	var cursor string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, o, func(ctx context.Context, st store.Store) error {
				items, next, err := st.ListReports(ctx, cursor, limit)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if o.format == "json" {
					return writeJSON(w, map[string]any{"items": items, "nextCursor": next})
				}
				for _, it := range items {
					fmt.Fprintf(w, "%s  %s  fitness=%.3f  unassigned=%d\n", it.ID, it.CreatedAt.Format(time.RFC3339), it.Fitness, it.Unassigned)
				}
				if next != "" {
					fmt.Fprintf(w, "next: %s\n", next)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&cursor, "cursor", "", "continue from a previous listing")
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	show := &cobra.Command{
		Use:   "show ID",
		Short: "Print a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, o, func(ctx context.Context, st store.Store) error {
				rep, err := st.GetReport(ctx, args[0])
				if err != nil {
					return err
				}
				return write(o, cmd.OutOrStdout(), rep, report.WriteText)
			})
		},
	}
	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, o, func(ctx context.Context, st store.Store) error {
				return st.DeleteReport(ctx, args[0])
			})
		},
	}
	cmd.AddCommand(list, show, del)
	return cmd
}

func withStore(cmd *cobra.Command, o *options, fn func(context.Context, store.Store) error) error {
	ctx := cmd.Context()
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.Store, klog.FromContext(ctx).WithName("store"))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func newVersionCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := buildinfo.Get()
			if o.format == "json" {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
}

func write[T any](o *options, w io.Writer, v T, text func(io.Writer, T) error) error {
	if o.format == "json" {
		return writeJSON(w, v)
	}
	return text(w, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openBroker picks Redis when configured, otherwise an in-process broker,
// and wraps it with webhook delivery when a webhook URL is set.
func openBroker(ctx context.Context, cfg config.Events, log logr.Logger) (events.Broker, func(), error) {
	var b events.Broker = events.NewMemory()
	closers := []func(){}
	if cfg.RedisURL != "" {
		r, err := events.NewRedis(cfg.RedisURL, cfg.Channel, log.WithName("events"))
		if err != nil {
			return nil, nil, fmt.Errorf("redis events: %w", err)
		}
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, nil, fmt.Errorf("redis events: %w", err)
		}
		b = r
		closers = append(closers, func() { _ = r.Close() })
	}
	if cfg.WebhookURL != "" {
		opts := events.WebhookOptions{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret, Types: cfg.WebhookEvents}
		if cfg.WebhookRate != nil {
			opts.PerSecond = *cfg.WebhookRate
		}
		w := events.NewWebhook(b, opts, log.WithName("webhook"))
		b = w
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := w.Close(ctx); err != nil {
				log.Error(err, "Pending webhook deliveries abandoned")
			}
		})
	}
	return b, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

// followRun logs best-solution improvements of a run. The returned func
// stops following.
func followRun(b events.Broker, runID string, log logr.Logger) func() {
	ch := b.Subscribe(runID)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for evt := range ch {
			switch evt.Type {
			case events.TypeBestImproved:
				log.V(1).Info("New best solution", "iteration", evt.Iteration, "fitness", evt.Fitness)
			case events.TypeRunFinished:
				log.V(1).Info("Run finished", "fitness", evt.Fitness)
			}
		}
	}()
	return func() {
		b.Unsubscribe(runID, ch)
		<-finished
	}
}

func (o *options) serveMetrics(log logr.Logger) func() {
	if o.metricsAddr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: o.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Metrics server stopped")
		}
	}()
	log.V(2).Info("Serving metrics", "addr", o.metricsAddr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
