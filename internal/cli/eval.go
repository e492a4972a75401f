package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/eval"
	"github.com/PipeOpsHQ/agent-backend/internal/config"
)

type evalCLIOptions struct {
	dataset   string
	output    string
	failUnder float64
	scorers   []string
	maxCases  int
	workers   int
	timeout   time.Duration
}

// runEvalCLI replays a JSONL dataset through the scorers and prints a
// report. It fails when any case mismatches its expectations or when a
// scorer's pass rate is below --fail-under.
func runEvalCLI(ctx context.Context, _ *config.Config, logger *zap.Logger, args []string) error {
	opts, err := parseEvalArgs(args)
	if err != nil {
		return err
	}

	cases, err := eval.LoadJSONL(opts.dataset)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	scorers, err := eval.ScorersByID(opts.scorers)
	if err != nil {
		return err
	}

	pipeline := eval.NewPipeline(scorers, eval.WithLogger(logger.Named("eval")))
	report, err := pipeline.Replay(ctx, cases, eval.ReplayOptions{
		MaxCases: opts.maxCases,
		Workers:  opts.workers,
		Timeout:  opts.timeout,
	})
	if err != nil {
		return fmt.Errorf("eval run failed: %w", err)
	}

	switch opts.output {
	case "", "markdown", "md":
		fmt.Fprintln(os.Stdout, eval.FormatMarkdown(report))
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(data))
	}

	return checkThresholds(report, opts.failUnder)
}

func checkThresholds(report eval.Report, failUnder float64) error {
	var errs []error
	if report.Mismatches > 0 {
		errs = append(errs, fmt.Errorf("%d case(s) did not match expectations", report.Mismatches))
	}
	for id, m := range report.PerScorer {
		if m.Scored > 0 && m.PassRate < failUnder {
			errs = append(errs, fmt.Errorf("scorer %s pass rate %.2f%% is below fail-under %.2f%%", id, m.PassRate, failUnder))
		}
	}
	return errors.Join(errs...)
}

func parseEvalArgs(args []string) (evalCLIOptions, error) {
	opts := evalCLIOptions{output: "markdown", workers: 4}
	for _, arg := range args {
		if v, ok := flagValue(arg, "dataset"); ok {
			opts.dataset = v
		} else if v, ok := flagValue(arg, "output"); ok {
			opts.output = strings.ToLower(v)
		} else if v, ok := flagValue(arg, "fail-under"); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 || f > 100 {
				return opts, fmt.Errorf("--fail-under must be a number within [0, 100], got %q", v)
			}
			opts.failUnder = f
		} else if v, ok := flagValue(arg, "scorers"); ok {
			opts.scorers = splitCSV(v)
		} else if v, ok := flagValue(arg, "max-cases"); ok {
			opts.maxCases = positiveInt(v, 0)
		} else if v, ok := flagValue(arg, "workers"); ok {
			opts.workers = positiveInt(v, opts.workers)
		} else if v, ok := flagValue(arg, "timeout-ms"); ok {
			opts.timeout = positiveMillis(v, 0)
		} else {
			return opts, fmt.Errorf("unknown eval flag %q", arg)
		}
	}
	if opts.dataset == "" {
		return opts, errors.New("usage: eval --dataset=path/to/file.jsonl [--output=markdown|json] [--fail-under=0] [--scorers=a,b]")
	}
	switch opts.output {
	case "markdown", "md", "json":
	default:
		return opts, fmt.Errorf("unsupported output format %q (use markdown or json)", opts.output)
	}
	return opts, nil
}
