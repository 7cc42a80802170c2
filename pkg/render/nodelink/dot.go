package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/palette"
)

// DefaultMaxLevel keeps diagrams at 31 nodes.
const DefaultMaxLevel = 2

// Options configures diagram generation.
type Options struct {
	// MaxLevel is the deepest level drawn. Zero means DefaultMaxLevel; a
	// negative value draws only the root.
	MaxLevel int

	// Detailed adds spin velocity and sag angle to each label.
	Detailed bool

	// Palette fills boxes with level colours when set.
	Palette *palette.Palette
}

var slotNames = [fractal.Branching]string{"up", "right", "left", "forward", "back"}

// ToDOT converts the tree shape to Graphviz DOT source.
func ToDOT(t *fractal.Tree, opts Options) string {
	maxLevel := opts.MaxLevel
	switch {
	case maxLevel == 0:
		maxLevel = DefaultMaxLevel
	case maxLevel < 0:
		maxLevel = 0
	}
	levels := min(maxLevel+1, t.Depth())

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.15,0.05\"];\n")
	buf.WriteString("  ranksep=0.6;\n")
	buf.WriteString("  nodesep=0.2;\n")
	buf.WriteString("\n")

	for l := range levels {
		fill := ""
		if opts.Palette != nil {
			a, _, _ := opts.Palette.Level(l, t.Depth())
			fill = a.Clamped().Hex()
		}
		for i := range t.LevelCount(l) {
			attrs := []string{fmt.Sprintf("label=%q", label(t, l, i, opts.Detailed))}
			if fill != "" {
				attrs = append(attrs, fmt.Sprintf("fillcolor=%q", fill))
			}
			fmt.Fprintf(&buf, "  %q [%s];\n", nodeID(l, i), strings.Join(attrs, ", "))
		}
	}

	buf.WriteString("\n")
	for l := 1; l < levels; l++ {
		for i := range t.LevelCount(l) {
			fmt.Fprintf(&buf, "  %q -> %q;\n", nodeID(l-1, i/fractal.Branching), nodeID(l, i))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeID(l, i int) string {
	return fmt.Sprintf("L%d_%d", l, i)
}

func label(t *fractal.Tree, l, i int, detailed bool) string {
	name := "root"
	if l > 0 {
		name = slotNames[i%fractal.Branching]
	}
	if !detailed {
		return name
	}
	n := t.Node(l, i)
	parts := []string{
		name,
		fmt.Sprintf("L%d #%d", l, i),
		fmt.Sprintf("spin: %.1f°/s", mgl32.RadToDeg(n.SpinVelocity)),
	}
	if n.MaxSagAngle != 0 {
		parts = append(parts, fmt.Sprintf("sag: %.1f°", mgl32.RadToDeg(n.MaxSagAngle)))
	}
	return strings.Join(parts, "\n")
}

// RenderSVG renders DOT source to SVG.
func RenderSVG(dot string) ([]byte, error) {
	out, err := render(dot, graphviz.SVG)
	if err != nil {
		return nil, err
	}
	return normalizeViewBox(out), nil
}

// RenderPNG renders DOT source to PNG.
func RenderPNG(dot string) ([]byte, error) {
	return render(dot, graphviz.PNG)
}

func render(dot string, format graphviz.Format) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's point-based svg header with one that
// scales to its container.
func normalizeViewBox(svg []byte) []byte {
	m := viewBoxRe.FindSubmatch(svg)
	if m == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(m[3]), 64)
	h, _ := strconv.ParseFloat(string(m[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
