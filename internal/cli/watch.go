package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"

	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/sim"
)

type watchOptions struct {
	tree treeFlags
	fps  int
}

// watchCommand creates the watch command.
func (c *CLI) watchCommand() *cobra.Command {
	opts := watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show a live per-level view of a running simulation",
		Long: `Show a live per-level view of a running simulation.

Keys: space pause, r reverse time, +/- rebuild one level deeper/shallower, q quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			_, err = tea.NewProgram(newWatchModel(s, opts.fps), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	opts.tree.register(cmd)
	cmd.Flags().IntVar(&opts.fps, "fps", 30, "refresh rate")

	return cmd
}

type tickMsg time.Time

// watchModel steps the simulation on every tick message. Frames alias the
// tree, which is safe because Update and View run on the same goroutine.
type watchModel struct {
	sim      *sim.Simulation
	interval time.Duration
	last     time.Time
	paused   bool
	reverse  bool
	frame    *sim.Frame
	stepTime time.Duration
	err      error
}

func newWatchModel(s *sim.Simulation, fps int) watchModel {
	return watchModel{sim: s, interval: time.Second / time.Duration(fps)}
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return m.tick()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "r":
			m.reverse = !m.reverse
		case "+", "=":
			m.rebuild(m.sim.Tree().Depth() + 1)
		case "-", "_":
			m.rebuild(m.sim.Tree().Depth() - 1)
		}
		return m, nil

	case tickMsg:
		now := time.Time(msg)
		dt := float32(0)
		if !m.last.IsZero() {
			dt = float32(now.Sub(m.last).Seconds())
		}
		m.last = now
		if m.paused {
			return m, m.tick()
		}
		if m.reverse {
			dt = -dt
		}
		start := time.Now()
		f, err := m.sim.Step(dt, fractal.IdentityPose())
		m.stepTime = time.Since(start)
		if err != nil {
			m.err = err
			return m, tea.Quit
		}
		m.frame = f
		return m, m.tick()
	}
	return m, nil
}

// rebuild keeps the current tree when depth is rejected and shows why.
func (m *watchModel) rebuild(depth int) {
	if err := m.sim.Reconfigure(context.Background(), depth); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.frame = nil
}

func (m watchModel) View() string {
	var b strings.Builder
	cfg := m.sim.Config()

	b.WriteString(StyleTitle.Render("Fractal"))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %s · depth %d · %d nodes · seed %d",
		cfg.Tree.Variant, m.sim.Tree().Depth(), m.sim.Tree().NodeCount(), cfg.Tree.Seed)))
	b.WriteString("\n")

	state := StyleSuccess.Render("running")
	switch {
	case m.paused:
		state = StyleWarning.Render("paused")
	case m.reverse:
		state = StyleHighlight.Render("reversed")
	}
	b.WriteString(fmt.Sprintf("tick %s  step %s  %s\n\n",
		StyleNumber.Render(fmt.Sprint(m.sim.Tick())),
		StyleValue.Render(m.stepTime.Round(time.Microsecond).String()),
		state))

	if m.frame != nil {
		b.WriteString(levelTable(m.sim, m.frame))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(styleIconError.Render(iconError) + " " + errors.UserMessage(m.err) + "\n")
	}
	b.WriteString(StyleDim.Render("space pause · r reverse · +/- depth · q quit"))
	b.WriteString("\n")
	return b.String()
}

// levelTable renders one row per level: colour swatches, spread of the level's
// translations and the first node's spine angle.
func levelTable(s *sim.Simulation, f *sim.Frame) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rows := make([][]string, 0, len(f.Batches))
	for _, batch := range f.Batches {
		lo, hi := yRange(batch.Matrices)
		kind := ""
		if batch.Leaf {
			kind = "leaf"
		}
		rows = append(rows, []string{
			fmt.Sprint(batch.Level),
			fmt.Sprint(batch.Count),
			fmt.Sprintf("%.4f", fractal.LevelScale(f.Root.Scale, batch.Level)),
			swatch(batch.ColorA) + swatch(batch.ColorB),
			fmt.Sprintf("%+.3f … %+.3f", lo, hi),
			fmt.Sprintf("%7.1f°", mgl32.RadToDeg(s.Tree().Node(batch.Level, 0).SpineAngle)),
			kind,
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Level", "Nodes", "Scale", "Colour", "Y range", "Spine", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.Render()
}

func yRange(ms []mgl32.Mat3x4) (lo, hi float32) {
	for i, m := range ms {
		y := fractal.Translation(m)[1]
		if i == 0 || y < lo {
			lo = y
		}
		if i == 0 || y > hi {
			hi = y
		}
	}
	return lo, hi
}

func swatch(c mgl32.Vec4) string {
	hex := colorful.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2])}.Clamped().Hex()
	return lipgloss.NewStyle().Background(lipgloss.Color(hex)).Render("  ")
}
