package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zoobzio/metricz"

	"github.com/zoobzio/chainz"
	"github.com/zoobzio/chainz/config"
	"github.com/zoobzio/chainz/logging"
	"github.com/zoobzio/chainz/persist"
	"github.com/zoobzio/chainz/telemetry"
)

// errFaulted is returned when the run finished with a fault.
var errFaulted = errors.New("pipeline faulted")

type runOptions struct {
	File      string
	Token     string
	Store     string
	Codec     string
	EnvPrefix string
	LogLevel  string
	LogPretty bool
	Trace     bool
	Metrics   bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a pipeline definition",
		Long: `Run loads a pipeline definition, builds it from the built-in operation
types and runs it once. The process exits non-zero when the run faults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Path to pipeline definition")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Correlation token (random when empty)")
	cmd.Flags().StringVar(&opts.Store, "store", "memory", "Token store: memory, file:<dir> or sqlite:<path>")
	cmd.Flags().StringVar(&opts.Codec, "codec", "json", "Codec for stored values: json, yaml or msgpack")
	cmd.Flags().StringVar(&opts.EnvPrefix, "env-prefix", "CHAINZ_", "Prefix of environment overrides (empty disables)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "Log level")
	cmd.Flags().BoolVar(&opts.LogPretty, "log-pretty", false, "Human-readable logs")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "Print an OpenTelemetry span for the run")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "Print run counters")
	cmd.MarkFlagRequired("file") //nolint:errcheck

	return cmd
}

func runPipeline(ctx context.Context, opts runOptions, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logging.New(logging.Options{
		Level:         opts.LogLevel,
		HumanReadable: opts.LogPretty,
		Writer:        errOut,
	})
	if err != nil {
		return err
	}

	codec, err := persist.CodecByName(opts.Codec)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(opts.Store, codec)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck

	def, err := config.Load(opts.File, opts.EnvPrefix)
	if err != nil {
		return err
	}
	pipeline, err := config.Build(builtins(environment{store: store, codec: codec}), def, config.WithLogger(logger))
	if err != nil {
		return err
	}
	defer pipeline.Close()

	observed := telemetry.NewObserved(pipeline)
	defer observed.Close()

	var runner chainz.Runner = observed
	if opts.Trace {
		shutdown, err := telemetry.InitStdout("chainz", errOut)
		if err != nil {
			return err
		}
		defer shutdown(context.Background()) //nolint:errcheck
		runner = telemetry.NewOTel(observed, nil)
	}

	var msgOpts []chainz.MessageOption
	if opts.Token != "" {
		msgOpts = append(msgOpts, chainz.WithToken(opts.Token))
	}
	m := chainz.NewMessage(msgOpts...)

	report, err := runner.RunContext(ctx, m)
	printReport(out, report, m)
	if opts.Metrics {
		printMetrics(out, observed)
	}
	if err != nil {
		return err
	}
	if report.Faulty {
		return fmt.Errorf("%w: %s", errFaulted, report.FirstError)
	}
	return nil
}

func openStore(target string, codec persist.Codec) (persist.Store, func() error, error) {
	noop := func() error { return nil }
	kind, path, _ := strings.Cut(target, ":")
	switch kind {
	case "", "memory":
		return persist.NewMemoryStore(), noop, nil
	case "file":
		if path == "" {
			return nil, nil, fmt.Errorf("store %q: directory is required", target)
		}
		store, err := persist.NewFileStore(path, persist.WithExtension(codec.Name()))
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case "sqlite":
		if path == "" {
			return nil, nil, fmt.Errorf("store %q: database path is required", target)
		}
		store, err := persist.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", target)
}

func printReport(w io.Writer, report *chainz.Report, m *chainz.Message) {
	if report == nil {
		return
	}
	fmt.Fprintf(w, "pipeline %s token %s: %s in %s\n", report.Pipeline, report.Token, report.State, report.Duration)
	fmt.Fprintf(w, "  executed: %s\n", joinNames(report.Executed))
	if len(report.RolledBack) > 0 {
		fmt.Fprintf(w, "  rolled back: %s\n", joinNames(report.RolledBack))
	}
	for _, n := range m.Notices() {
		fmt.Fprintf(w, "  %s\n", n)
	}
	if rec, ok := chainz.Get[Record](m); ok && len(rec) > 0 {
		fmt.Fprintln(w, "  record:")
		for _, k := range sortedKeys(rec) {
			fmt.Fprintf(w, "    %s = %v\n", k, rec[k])
		}
	}
}

func printMetrics(w io.Writer, observed *telemetry.Observed) {
	metrics := observed.Metrics()
	fmt.Fprintln(w, "  metrics:")
	for _, key := range []metricz.Key{
		telemetry.RunsTotal,
		telemetry.SuccessesTotal,
		telemetry.FailuresTotal,
		telemetry.RollbacksTotal,
		telemetry.RollbackErrors,
	} {
		fmt.Fprintf(w, "    %s = %.0f\n", key, metrics.Counter(key).Value())
	}
}

func joinNames(names []chainz.Name) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
