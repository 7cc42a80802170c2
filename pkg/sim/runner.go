package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fractal/pkg/observability"
)

// RunOptions configures [Runner.Run].
type RunOptions struct {
	// Ticks is the number of steps to run. Zero runs until ctx is done.
	Ticks int

	// DeltaTime is the simulated seconds per tick. Zero uses the measured
	// wall-clock time since the previous tick.
	DeltaTime float32

	// Interval paces ticks on a wall-clock ticker. Zero runs back to back.
	Interval time.Duration

	// Pose supplies the root pose; nil keeps the root at the origin.
	Pose PoseSource

	// Sink receives every frame; nil discards them.
	Sink Sink
}

// Stats summarizes a run.
type Stats struct {
	Ticks     uint64
	Nodes     int
	Simulated float32       // seconds of simulated time
	Elapsed   time.Duration // wall-clock time
	Propagate time.Duration // time spent in Step
	Draw      time.Duration // time spent in the sink
}

// MeanTick returns the average wall-clock cost of a tick.
func (s Stats) MeanTick() time.Duration {
	if s.Ticks == 0 {
		return 0
	}
	return (s.Propagate + s.Draw) / time.Duration(s.Ticks)
}

// Runner drives a Simulation. Like the Simulation it wraps, it must not be
// run from more than one goroutine at a time.
type Runner struct {
	Sim    *Simulation
	Logger *log.Logger
}

// NewRunner creates a runner. A nil logger uses log.Default().
func NewRunner(s *Simulation, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Sim: s, Logger: logger}
}

// Run steps the simulation until opts.Ticks are done or ctx is canceled.
// Cancellation is a normal way to stop and is not reported as an error;
// errors from propagation or the sink end the run and are returned.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (Stats, error) {
	pose := opts.Pose
	if pose == nil {
		pose = identity
	}
	sink := opts.Sink
	if sink == nil {
		sink = SinkFunc(func(context.Context, *Frame) error { return nil })
	}

	var ticker *time.Ticker
	if opts.Interval > 0 {
		ticker = time.NewTicker(opts.Interval)
		defer ticker.Stop()
	}

	r.Logger.Info("simulation started",
		"run", r.Sim.RunID(),
		"variant", r.Sim.Config().Tree.Variant,
		"depth", r.Sim.Tree().Depth(),
		"nodes", r.Sim.Tree().NodeCount())

	var stats Stats
	start := time.Now()
	last := start
	for opts.Ticks == 0 || stats.Ticks < uint64(opts.Ticks) {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return r.finish(stats, start), nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return r.finish(stats, start), nil
		}

		now := time.Now()
		dt := opts.DeltaTime
		if dt == 0 {
			dt = float32(now.Sub(last).Seconds())
		}
		last = now

		if err := r.tick(ctx, &stats, dt, pose, sink); err != nil {
			return r.finish(stats, start), err
		}
	}
	return r.finish(stats, start), nil
}

func (r *Runner) tick(ctx context.Context, stats *Stats, dt float32, pose PoseSource, sink Sink) error {
	n := stats.Ticks + 1
	hooks := observability.Simulation()
	hooks.OnTickStart(ctx, n)

	t0 := time.Now()
	frame, err := r.Sim.Step(dt, pose.Pose(n, stats.Simulated+dt))
	t1 := time.Now()
	if err != nil {
		hooks.OnTickComplete(ctx, n, 0, t1.Sub(t0), err)
		return fmt.Errorf("tick %d: %w", n, err)
	}
	err = sink.Draw(ctx, frame)
	t2 := time.Now()
	hooks.OnTickComplete(ctx, n, frame.NodeCount(), t2.Sub(t0), err)
	if err != nil {
		return fmt.Errorf("tick %d: draw: %w", n, err)
	}

	stats.Ticks = n
	stats.Nodes = frame.NodeCount()
	stats.Simulated += dt
	stats.Propagate += t1.Sub(t0)
	stats.Draw += t2.Sub(t1)
	r.Logger.Debug("tick", "tick", n, "dt", dt, "propagate", t1.Sub(t0), "draw", t2.Sub(t1))
	return nil
}

func (r *Runner) finish(stats Stats, start time.Time) Stats {
	stats.Elapsed = time.Since(start)
	r.Logger.Info("simulation finished",
		"run", r.Sim.RunID(),
		"ticks", stats.Ticks,
		"simulated", stats.Simulated,
		"mean_tick", stats.MeanTick(),
		"duration", stats.Elapsed)
	return stats
}
