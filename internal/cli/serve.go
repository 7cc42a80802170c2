package cli

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/record"
	"github.com/matzehuels/fractal/pkg/server"
	"github.com/matzehuels/fractal/pkg/sim"
	"github.com/matzehuels/fractal/pkg/sink"
)

type serveOptions struct {
	tree   treeFlags
	cache  cacheFlags
	addr   string
	fps    int
	record string
	every  uint64
	host   hostFlags
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Simulate in real time and serve the latest frame over HTTP",
		Long: `Simulate in real time and serve the latest frame over HTTP.

Endpoints:
  GET /healthz
  GET /config
  GET /frame
  GET /frame/levels/{level}`,
		Example: `  fractal serve --addr :8080 --fps 30
  curl localhost:8080/frame/levels/1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd, opts)
		},
	}

	opts.tree.register(cmd)
	opts.cache.register(cmd)
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVar(&opts.fps, "fps", defaultFPS, "ticks per second")
	cmd.Flags().StringVar(&opts.record, "record", "", "SQLite database for run statistics")
	cmd.Flags().Uint64Var(&opts.every, "record-every", defaultFPS, "record only every n-th tick")
	opts.host.register(cmd)

	return cmd
}

func (c *CLI) runServe(cmd *cobra.Command, opts serveOptions) error {
	if opts.fps < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "--fps must be >= 1, got %d", opts.fps)
	}
	cfg, err := c.resolve(cmd, &opts.tree)
	if err != nil {
		return err
	}
	s, err := sim.New(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := server.New(s.Config(), c.Logger)
	sinks := []sim.Sink{srv}

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
		if err := rec.StartRun(cmd.Context(), s); err != nil {
			return err
		}
		sinks = append(sinks, rec)
	}

	printInfo("Serving %s tree (%d nodes) on %s", cfg.Tree.Variant, s.Tree().NodeCount(), StyleHighlight.Render(opts.addr))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.ListenAndServe(ctx, opts.addr)
	})
	g.Go(func() error {
		_, err := sim.NewRunner(s, c.Logger).Run(ctx, sim.RunOptions{
			Interval: time.Second / time.Duration(opts.fps),
			Pose:     opts.host.pose(cfg.Tree.Seed),
			Sink:     sink.Multi(sinks...),
		})
		return err
	})
	return g.Wait()
}
