// Package cli implements the fractal command-line interface.
package cli

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/matzehuels/fractal/pkg/buildinfo"
	"github.com/matzehuels/fractal/pkg/cache"
	"github.com/matzehuels/fractal/pkg/config"
	"github.com/matzehuels/fractal/pkg/sim"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "fractal"

	// defaultFPS is the tick rate of real-time commands.
	defaultFPS = 60
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Fractal builds and animates five-way branching transform trees",
		Long: `Fractal builds a tree with five children per node and recomputes every
node's world transform once per tick, level by level, in parallel.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "TOML configuration file")

	root.AddCommand(c.simulateCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.treeCommand())
	root.AddCommand(c.runsCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Configuration
// =============================================================================

// loadConfig returns the --config file, or the defaults when none is given.
func (c *CLI) loadConfig() (config.Config, error) {
	if c.configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	c.Logger.Debug("loaded config", "path", c.configPath, "hash", cfg.Hash()[:12])
	return cfg, nil
}

// treeFlags are the configuration overrides shared by commands that build a tree.
type treeFlags struct {
	depth   int
	variant string
	seed    uint64
	workers int
}

func (f *treeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.depth, "depth", "d", config.DefaultDepth, "tree depth (levels, including the root)")
	cmd.Flags().StringVar(&f.variant, "variant", "", "tree variant: directional or organic")
	cmd.Flags().Uint64Var(&f.seed, "seed", config.DefaultSeed, "seed for per-node parameters and sequence numbers")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "goroutines per level (0 = GOMAXPROCS)")
	_ = cmd.RegisterFlagCompletionFunc("depth", depthValues())
	_ = cmd.RegisterFlagCompletionFunc("variant", variantValues())
}

// apply overrides cfg with the flags the user set explicitly, then validates.
func (f *treeFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("depth") {
		cfg.Tree.Depth = f.depth
	}
	if cmd.Flags().Changed("variant") {
		cfg.Tree.Variant = f.variant
	}
	if cmd.Flags().Changed("seed") {
		cfg.Tree.Seed = f.seed
	}
	if cmd.Flags().Changed("workers") {
		cfg.Propagation.Workers = f.workers
	}
	return cfg.Validate()
}

// resolve loads the configuration and applies flag overrides.
func (c *CLI) resolve(cmd *cobra.Command, f *treeFlags) (config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	if err := f.apply(cmd, &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// hostFlags describe how the host moves the root between ticks.
type hostFlags struct {
	spin   float32
	wander float32
	scale  float32
}

func (f *hostFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float32Var(&f.spin, "host-spin", 0, "host rotation about global up in degrees per second")
	cmd.Flags().Float32Var(&f.wander, "wander", 0, "let the host drift up to this far from the origin (replaces --host-spin)")
}

// pose returns a wandering host when --wander is set, a spinning one otherwise.
func (f *hostFlags) pose(seed uint64) sim.PoseSource {
	scale := f.scale
	if scale == 0 {
		scale = 1
	}
	if f.wander > 0 {
		w := sim.NewWanderingPose(int64(seed), f.wander, mgl32.DegToRad(30))
		w.Scale = scale
		return w
	}
	return sim.SpinningPose{Scale: scale, Rate: mgl32.DegToRad(f.spin)}
}

// =============================================================================
// Cache Factory
// =============================================================================

// cacheFlags select the frame snapshot backend.
type cacheFlags struct {
	enabled bool
	redis   string
	every   uint64
	ttl     time.Duration
}

func (f *cacheFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.enabled, "cache", false, "store the latest frame in the local cache")
	cmd.Flags().StringVar(&f.redis, "redis", "", "store frames in Redis at host:port instead of the local cache")
	cmd.Flags().Uint64Var(&f.every, "cache-every", 0, "also keep every n-th frame under its own key")
	cmd.Flags().DurationVar(&f.ttl, "cache-ttl", 0, "expiry of cached frames (0 = never)")
}

// open returns nil when caching is off.
func (f *cacheFlags) open(cmd *cobra.Command) (cache.Cache, error) {
	switch {
	case f.redis != "":
		c, err := cache.NewRedisCache(cmd.Context(), cache.RedisOptions{Addr: f.redis})
		if err != nil {
			return nil, err
		}
		return c, nil
	case f.enabled:
		c, err := newFileCache()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, nil
}

func newFileCache() (*cache.FileCache, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	return cache.NewFileCache(filepath.Join(dir, "frames"))
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/fractal/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
