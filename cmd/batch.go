package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/timvw/reverse-turing/internal/backend"
	"github.com/timvw/reverse-turing/internal/model"
)

var (
	flagBatchInterrogators []string
	flagBatchInterrogated  []string
	flagBatchRepeat        int
	flagBatchParallel      int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every interrogator against every interrogated participant",
	Long: `Run one conversation for each interrogator/interrogated pair, repeated
--repeat times. Conversations are independent and run with bounded
parallelism; each one writes its own transcript.

A human participant is only allowed with --parallel 1.`,
	Example: `  reverse-turing batch --interrogators anthropic,openai --interrogated gemini,llama --repeat 3 --test`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd)
	},
}

func init() {
	batchCmd.Flags().StringSliceVar(&flagBatchInterrogators, "interrogators", nil, "comma-separated interrogator participants")
	batchCmd.Flags().StringSliceVar(&flagBatchInterrogated, "interrogated", nil, "comma-separated interrogated participants")
	batchCmd.Flags().IntVar(&flagBatchRepeat, "repeat", 1, "conversations per pair")
	batchCmd.Flags().IntVar(&flagBatchParallel, "parallel", 0, "max concurrent conversations (default: config parallel)")
	_ = batchCmd.MarkFlagRequired("interrogators")
	_ = batchCmd.MarkFlagRequired("interrogated")
	rootCmd.AddCommand(batchCmd)
}

type pairing struct {
	interrogator backend.Selector
	interrogated backend.Selector
}

// pairings expands the cross product of both lists, repeat times.
func pairings(interrogators, interrogated []backend.Selector, repeat int) []pairing {
	var out []pairing
	for i := 0; i < repeat; i++ {
		for _, a := range interrogators {
			for _, b := range interrogated {
				out = append(out, pairing{interrogator: a, interrogated: b})
			}
		}
	}
	return out
}

func parseSelectors(flag string, raw []string) ([]backend.Selector, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("--%s: at least one participant is required", flag)
	}
	sels := make([]backend.Selector, 0, len(raw))
	for _, s := range raw {
		sel, err := backend.ParseSelector(s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flag, err)
		}
		sels = append(sels, sel)
	}
	return sels, nil
}

// checkHumans rejects a human participant when conversations run in
// parallel: there is only one operator.
func checkHumans(sels []backend.Selector, parallel int) error {
	if parallel <= 1 {
		return nil
	}
	for _, s := range sels {
		if s.Provider == backend.HumanProvider {
			return fmt.Errorf("a human participant requires --parallel 1")
		}
	}
	return nil
}

// validateSelectors checks every participant of the batch before the first
// conversation starts. It returns the first *backend.ConfigError.
func (rt *runtime) validateSelectors(interrogators, interrogated []backend.Selector) error {
	for _, sel := range interrogators {
		if err := backend.Validate(sel, rt.options(model.RoleInterrogator)); err != nil {
			return err
		}
	}
	for _, sel := range interrogated {
		if err := backend.Validate(sel, rt.options(model.RoleInterrogated)); err != nil {
			return err
		}
	}
	return nil
}

func runBatch(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	interrogators, err := parseSelectors("interrogators", flagBatchInterrogators)
	if err != nil {
		return err
	}
	interrogated, err := parseSelectors("interrogated", flagBatchInterrogated)
	if err != nil {
		return err
	}
	if flagBatchRepeat < 1 {
		return fmt.Errorf("--repeat must be at least 1, got %d", flagBatchRepeat)
	}

	rt, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	parallel := rt.cfg.Parallel
	if cmd.Flags().Changed("parallel") {
		parallel = flagBatchParallel
	}
	if parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", parallel)
	}
	if err := checkHumans(interrogated, parallel); err != nil {
		return err
	}
	if err := rt.validateSelectors(interrogators, interrogated); err != nil {
		return err
	}

	runs := pairings(interrogators, interrogated, flagBatchRepeat)
	ctx, span := rt.tracer.Start(ctx, "batch", trace.WithAttributes(
		attribute.Int("batch.conversations", len(runs)),
		attribute.Int("batch.parallel", parallel),
	))
	defer span.End()

	slog.Info("batch starting", "conversations", len(runs), "parallel", parallel,
		"interrogators", selectorNames(interrogators), "interrogated", selectorNames(interrogated))

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, run := range runs {
		printer := rt.printer.WithPrefix(fmt.Sprintf("%d %s→%s", i+1, run.interrogator, run.interrogated))
		g.Go(func() error {
			if _, err := rt.converse(ctx, run.interrogator, run.interrogated, printer); err != nil {
				failed.Add(1)
				slog.Error("conversation failed", "n", i+1,
					"interrogator", run.interrogator.String(), "interrogated", run.interrogated.String(), "error", err)
				return err
			}
			return nil
		})
	}
	err = g.Wait()

	slog.Info("batch finished", "conversations", len(runs), "failed", failed.Load(), "log_dir", rt.store.Dir())
	span.SetAttributes(attribute.Int64("batch.failed", failed.Load()))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%d of %d conversations failed, first error: %w", failed.Load(), len(runs), err)
	}
	return nil
}
