// Package config loads and validates the TOML configuration of a fractal
// simulation.
//
// A configuration fixes everything decided at build time: tree depth and
// variant, the organic randomization ranges, the seed, propagation
// parallelism and the colour palette. Nothing here changes during a run; a new
// depth means a new tree.
//
// # File Format
//
//	[tree]
//	depth = 6
//	variant = "organic"
//	seed = 42
//
//	[organic]
//	sag_min = 15.0
//	sag_max = 25.0
//	spin_min = 20.0
//	spin_max = 25.0
//	reverse_spin_chance = 0.25
//
//	[propagation]
//	workers = 0      # 0 = GOMAXPROCS
//	batch_size = 5
//
//	[palette]
//	leaf_a = "#6fbf3f"
//	leaf_b = "#2f7a1f"
//
//	[[palette.gradient_a]]
//	pos = 0.0
//	color = "#4a3426"
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/fractal/pkg/cache"
	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/palette"
)

// Default values.
const (
	DefaultDepth     = 6
	DefaultSeed      = uint64(42)
	DefaultBatchSize = fractal.DefaultBatchSize
)

// Config is the root of a configuration file.
type Config struct {
	Tree        Tree        `toml:"tree" json:"tree"`
	Organic     Organic     `toml:"organic" json:"organic"`
	Propagation Propagation `toml:"propagation" json:"propagation"`
	Palette     Palette     `toml:"palette" json:"palette"`
}

// Tree configures the tree shape.
type Tree struct {
	Depth    int    `toml:"depth" json:"depth"`
	MaxDepth int    `toml:"max_depth" json:"max_depth"`
	Variant  string `toml:"variant" json:"variant"`
	Seed     uint64 `toml:"seed" json:"seed"`
}

// Organic holds the randomization ranges of the organic variant in degrees.
type Organic struct {
	SagMin            float32 `toml:"sag_min" json:"sag_min"`
	SagMax            float32 `toml:"sag_max" json:"sag_max"`
	SpinMin           float32 `toml:"spin_min" json:"spin_min"`
	SpinMax           float32 `toml:"spin_max" json:"spin_max"`
	ReverseSpinChance float64 `toml:"reverse_spin_chance" json:"reverse_spin_chance"`
}

// Propagation configures per-level parallelism.
type Propagation struct {
	Workers   int `toml:"workers" json:"workers"`
	BatchSize int `toml:"batch_size" json:"batch_size"`
}

// Palette configures level colours. Colours are hex strings ("#rrggbb").
type Palette struct {
	GradientA []Stop `toml:"gradient_a" json:"gradient_a"`
	GradientB []Stop `toml:"gradient_b" json:"gradient_b"`
	LeafA     string `toml:"leaf_a" json:"leaf_a"`
	LeafB     string `toml:"leaf_b" json:"leaf_b"`
}

// Stop is one gradient key.
type Stop struct {
	Pos   float64 `toml:"pos" json:"pos"`
	Color string  `toml:"color" json:"color"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := fractal.DefaultOrganicParams()
	pal := palette.Default()
	return Config{
		Tree: Tree{
			Depth:    DefaultDepth,
			MaxDepth: fractal.DefaultMaxDepth,
			Variant:  string(fractal.VariantOrganic),
			Seed:     DefaultSeed,
		},
		Organic: Organic{
			SagMin:            p.SagMin,
			SagMax:            p.SagMax,
			SpinMin:           p.SpinMin,
			SpinMax:           p.SpinMax,
			ReverseSpinChance: p.ReverseSpinChance,
		},
		Propagation: Propagation{BatchSize: DefaultBatchSize},
		Palette: Palette{
			GradientA: stopsOf(pal.GradientA),
			GradientB: stopsOf(pal.GradientB),
			LeafA:     pal.LeafA.Hex(),
			LeafB:     pal.LeafB.Hex(),
		},
	}
}

func stopsOf(g palette.Gradient) []Stop {
	var out []Stop
	for _, s := range g.Stops() {
		out = append(out, Stop{Pos: s.Pos, Color: s.Color.Hex()})
	}
	return out
}

// Load reads and validates a configuration file. Keys missing from the file
// keep their default values; unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "open %s", path)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "load %s", path)
	}
	return cfg, nil
}

// Decode reads a configuration from r on top of the defaults and validates it.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode toml")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode writes cfg as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks every field. It does not clamp.
func (c Config) Validate() error {
	if err := errors.ValidateDepth(c.Tree.Depth, c.maxDepth()); err != nil {
		return err
	}
	if _, err := fractal.ParseVariant(c.Tree.Variant); err != nil {
		return err
	}
	if err := errors.ValidateRange("sag angle", float64(c.Organic.SagMin), float64(c.Organic.SagMax), 0, 90); err != nil {
		return err
	}
	if err := errors.ValidateRange("spin velocity", float64(c.Organic.SpinMin), float64(c.Organic.SpinMax), 0, 90); err != nil {
		return err
	}
	if err := errors.ValidateProbability("reverse_spin_chance", c.Organic.ReverseSpinChance); err != nil {
		return err
	}
	if c.Propagation.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must be >= 0, got %d", c.Propagation.Workers)
	}
	if c.Propagation.BatchSize < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "batch_size must be >= 1, got %d", c.Propagation.BatchSize)
	}
	if _, err := c.BuildPalette(); err != nil {
		return err
	}
	return nil
}

func (c Config) maxDepth() int {
	if c.Tree.MaxDepth == 0 {
		return fractal.DefaultMaxDepth
	}
	return c.Tree.MaxDepth
}

// BuildOptions converts the configuration into tree build options.
func (c Config) BuildOptions() *fractal.BuildOptions {
	return &fractal.BuildOptions{
		Variant:  fractal.Variant(c.Tree.Variant),
		MaxDepth: c.maxDepth(),
		Seed:     c.Tree.Seed,
		Organic: fractal.OrganicParams{
			SagMin:            c.Organic.SagMin,
			SagMax:            c.Organic.SagMax,
			SpinMin:           c.Organic.SpinMin,
			SpinMax:           c.Organic.SpinMax,
			ReverseSpinChance: c.Organic.ReverseSpinChance,
		},
	}
}

// Propagator returns a propagator configured from the [propagation] table.
func (c Config) Propagator() *fractal.Propagator {
	return fractal.NewPropagator(c.Propagation.Workers, c.Propagation.BatchSize)
}

// BuildPalette parses the [palette] table.
func (c Config) BuildPalette() (palette.Palette, error) {
	a, err := gradient("gradient_a", c.Palette.GradientA)
	if err != nil {
		return palette.Palette{}, err
	}
	b, err := gradient("gradient_b", c.Palette.GradientB)
	if err != nil {
		return palette.Palette{}, err
	}
	leafA, err := parseColor("leaf_a", c.Palette.LeafA)
	if err != nil {
		return palette.Palette{}, err
	}
	leafB, err := parseColor("leaf_b", c.Palette.LeafB)
	if err != nil {
		return palette.Palette{}, err
	}
	return palette.Palette{GradientA: a, GradientB: b, LeafA: leafA, LeafB: leafB}, nil
}

func gradient(name string, stops []Stop) (palette.Gradient, error) {
	out := make([]palette.Stop, 0, len(stops))
	for _, s := range stops {
		c, err := parseColor(name, s.Color)
		if err != nil {
			return palette.Gradient{}, err
		}
		out = append(out, palette.Stop{Pos: s.Pos, Color: c})
	}
	g, err := palette.NewGradient(out...)
	if err != nil {
		return palette.Gradient{}, errors.Wrap(errors.ErrCodeInvalidColor, err, "%s", name)
	}
	return g, nil
}

func parseColor(name, s string) (colorful.Color, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return colorful.Color{}, errors.Wrap(errors.ErrCodeInvalidColor, err, "%s: %q is not a #rrggbb colour", name, s)
	}
	return c, nil
}

// Hash identifies a configuration. Equal configurations hash equally, so the
// hash keys cached frames and recorded runs.
func (c Config) Hash() string {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(c)
	return cache.Hash(buf.Bytes())
}
