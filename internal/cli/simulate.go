package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/record"
	"github.com/matzehuels/fractal/pkg/sim"
	"github.com/matzehuels/fractal/pkg/sink"
)

const (
	formatJSON   = "json"
	formatBinary = "binary"
)

// simulateOptions holds flags for the simulate command.
type simulateOptions struct {
	tree     treeFlags
	cache    cacheFlags
	ticks    int
	dt       float32
	realtime bool
	output   string
	format   string
	maxLevel int
	every    uint64
	record   string
	host     hostFlags
}

// simulateCommand creates the simulate command.
func (c *CLI) simulateCommand() *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the propagator for a number of ticks",
		Long: `Run the propagator for a number of ticks and optionally write every frame.

Frames are written as JSON lines or as packed little-endian float32 matrices
(48 bytes per node). Use --record to keep per-tick statistics in SQLite.`,
		Example: `  # 10 seconds at 60 Hz, organic variant, depth 7
  fractal simulate --ticks 600 --depth 7

  # Binary frames for a renderer
  fractal simulate --ticks 60 -o frames.bin --format binary

  # Record statistics and keep the latest frame in Redis
  fractal simulate --record runs.db --redis localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSimulate(cmd, opts)
		},
	}

	opts.tree.register(cmd)
	opts.cache.register(cmd)
	cmd.Flags().IntVarP(&opts.ticks, "ticks", "n", 600, "number of ticks")
	cmd.Flags().Float32Var(&opts.dt, "dt", 1.0/defaultFPS, "simulated seconds per tick (negative rewinds)")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "pace ticks at --dt on the wall clock")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "frame output file ('-' for stdout)")
	cmd.Flags().StringVar(&opts.format, "format", formatJSON, "frame format: json or binary")
	_ = cmd.RegisterFlagCompletionFunc("format", fixedValues(formatJSON, formatBinary))
	cmd.Flags().IntVar(&opts.maxLevel, "max-level", -1, "deepest level written in JSON output (-1 = all)")
	cmd.Flags().Uint64Var(&opts.every, "every", 1, "write and record only every n-th tick")
	cmd.Flags().StringVar(&opts.record, "record", "", "SQLite database for run statistics")
	opts.host.register(cmd)
	cmd.Flags().Float32Var(&opts.host.scale, "scale", 1, "root scale")

	return cmd
}

func (c *CLI) runSimulate(cmd *cobra.Command, opts simulateOptions) error {
	ctx := cmd.Context()
	if opts.ticks < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "--ticks must be >= 1, got %d", opts.ticks)
	}
	if opts.format != formatJSON && opts.format != formatBinary {
		return errors.New(errors.ErrCodeInvalidInput, "unknown format %q (want %s or %s)", opts.format, formatJSON, formatBinary)
	}

	cfg, err := c.resolve(cmd, &opts.tree)
	if err != nil {
		return err
	}
	prog := newProgress(c.Logger)
	s, err := sim.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	prog.done(fmt.Sprintf("Built %s tree with %d nodes", cfg.Tree.Variant, s.Tree().NodeCount()))

	var sinks []sim.Sink
	if opts.output != "" {
		w, closeFn, err := openOutput(opts.output)
		if err != nil {
			return err
		}
		defer closeFn()
		sinks = append(sinks, frameSink(w, opts))
	}

	store, err := opts.cache.open(cmd)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		cs := sink.NewCacheSink(store, nil, s.ConfigHash())
		cs.Every = opts.cache.every
		cs.TTL = opts.cache.ttl
		sinks = append(sinks, cs)
	}

	if opts.record != "" {
		rec, err := record.Open(opts.record)
		if err != nil {
			return err
		}
		defer rec.Close()
		rec.SetEvery(opts.every)
		if err := rec.StartRun(ctx, s); err != nil {
			return err
		}
		sinks = append(sinks, rec)
	}

	run := sim.RunOptions{
		Ticks:     opts.ticks,
		DeltaTime: opts.dt,
		Pose:      opts.host.pose(cfg.Tree.Seed),
		Sink:      sink.Multi(sinks...),
	}
	if opts.realtime {
		run.Interval = time.Duration(float64(time.Second) * float64(abs(opts.dt)))
	}

	// Frames on stdout leave the terminal to the stream; the runner's log
	// lines on stderr are the only progress.
	if opts.output == "-" {
		_, err := sim.NewRunner(s, c.Logger).Run(ctx, run)
		return err
	}

	spinner := newSpinner(ctx, os.Stderr, fmt.Sprintf("Simulating %d ticks...", opts.ticks))
	spinner.Start()
	stats, err := sim.NewRunner(s, c.Logger).Run(ctx, run)
	if err != nil {
		spinner.StopWithError(fmt.Sprintf("Stopped after %d ticks", stats.Ticks))
		return err
	}
	spinner.StopWithSuccess(fmt.Sprintf("Simulated %d ticks", stats.Ticks))
	printTickStats(stats)
	printKeyValue("Run", s.RunID())
	if opts.output != "" {
		printFile(opts.output)
	}
	if opts.record != "" {
		printFile(opts.record)
		printNextStep("Inspect the run", fmt.Sprintf("fractal runs %s --run %s", opts.record, s.RunID()))
	}
	return nil
}

func frameSink(w io.Writer, opts simulateOptions) sim.Sink {
	if opts.format == formatBinary {
		b := sink.NewBinarySink(w)
		if opts.every <= 1 {
			return b
		}
		return sim.SinkFunc(func(ctx context.Context, f *sim.Frame) error {
			if f.Tick%opts.every != 0 {
				return nil
			}
			return b.Draw(ctx, f)
		})
	}
	return sink.NewJSONSink(w, sink.WithMaxLevel(opts.maxLevel), sink.WithEvery(opts.every))
}

// openOutput opens path for writing, or stdout for "-".
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "-" {
		bw := bufio.NewWriter(os.Stdout)
		return bw, bw.Flush, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	bw := bufio.NewWriter(f)
	return bw, func() error {
		if err := bw.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
