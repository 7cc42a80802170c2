package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/render/nodelink"
)

type treeOptions struct {
	tree     treeFlags
	dot      string
	svg      string
	png      string
	maxLevel int
	detailed bool
}

// treeCommand creates the tree command.
func (c *CLI) treeCommand() *cobra.Command {
	opts := treeOptions{}

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the tree's level layout and optionally draw its shape",
		Example: `  fractal tree --depth 8
  fractal tree --depth 3 --svg tree.svg --max-level 2 --detailed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTree(cmd, opts)
		},
	}

	opts.tree.register(cmd)
	cmd.Flags().StringVar(&opts.dot, "dot", "", "write Graphviz DOT to this file")
	cmd.Flags().StringVar(&opts.svg, "svg", "", "render an SVG diagram to this file")
	cmd.Flags().StringVar(&opts.png, "png", "", "render a PNG diagram to this file")
	cmd.Flags().IntVar(&opts.maxLevel, "max-level", nodelink.DefaultMaxLevel, "deepest level drawn in diagrams")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show spin and sag in diagram labels")

	return cmd
}

func (c *CLI) runTree(cmd *cobra.Command, opts treeOptions) error {
	cfg, err := c.resolve(cmd, &opts.tree)
	if err != nil {
		return err
	}
	pal, err := cfg.BuildPalette()
	if err != nil {
		return err
	}

	prog := newProgress(c.Logger)
	t, err := fractal.Build(cfg.Tree.Depth, fractal.DefaultSlots(), cfg.BuildOptions())
	if err != nil {
		return err
	}
	defer t.Release()
	prog.done(fmt.Sprintf("Built %d nodes", t.NodeCount()))

	printKeyValue("Variant", cfg.Tree.Variant)
	printKeyValue("Depth", fmt.Sprint(t.Depth()))
	printKeyValue("Nodes", fmt.Sprint(t.NodeCount()))
	printKeyValue("Matrices", fmt.Sprintf("%d bytes", t.NodeCount()*48))
	printNewline()

	rows := make([][]string, 0, t.Depth())
	for l := range t.Depth() {
		a, b, leaf := pal.Level(l, t.Depth())
		kind := "branch"
		if leaf {
			kind = "leaf"
		}
		rows = append(rows, []string{
			fmt.Sprint(l),
			fmt.Sprint(t.LevelCount(l)),
			fmt.Sprintf("%g", fractal.LevelScale(1, l)),
			a.Clamped().Hex() + " " + b.Clamped().Hex(),
			kind,
		})
	}
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Level", "Nodes", "Scale", "Colours", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Println(tbl.Render())

	if opts.dot == "" && opts.svg == "" && opts.png == "" {
		return nil
	}
	dot := nodelink.ToDOT(t, nodelink.Options{MaxLevel: opts.maxLevel, Detailed: opts.detailed, Palette: &pal})
	if opts.dot != "" {
		if err := os.WriteFile(opts.dot, []byte(dot), 0o644); err != nil {
			return err
		}
		printFile(opts.dot)
	}
	if opts.svg != "" {
		svg, err := nodelink.RenderSVG(dot)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.svg, svg, 0o644); err != nil {
			return err
		}
		printFile(opts.svg)
	}
	if opts.png != "" {
		png, err := nodelink.RenderPNG(dot)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.png, png, 0o644); err != nil {
			return err
		}
		printFile(opts.png)
	}
	return nil
}
