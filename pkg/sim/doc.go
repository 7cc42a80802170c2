// Package sim drives a fractal tree tick by tick and hands each finished
// frame to a rendering collaborator.
//
// A [Simulation] owns one tree, its propagator and the per-level draw
// parameters (colours and sequence numbers). [Simulation.Step] advances it by
// one tick and returns a [Frame] whose batches alias the tree's level buffers.
// A [Runner] repeats Step on a fixed or real-time clock, takes the root pose
// from a [PoseSource] and calls a [Sink] once per tick, strictly after the
// propagation of that tick has finished.
//
//	s, err := sim.New(config.Default())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	r := sim.NewRunner(s, logger)
//	stats, err := r.Run(ctx, sim.RunOptions{
//	    Ticks:     600,
//	    DeltaTime: 1.0 / 60,
//	    Sink:      sink.NewJSONSink(os.Stdout),
//	})
package sim
