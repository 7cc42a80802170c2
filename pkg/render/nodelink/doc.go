// Package nodelink draws the shape of a fractal tree as a Graphviz diagram.
//
// Every node becomes a box labelled with its slot (up, right, left, forward,
// back), connected to its parent. A tree of depth 8 has almost 100,000 nodes,
// so [Options.MaxLevel] cuts the diagram off after a few levels:
//
//	dot := nodelink.ToDOT(tree, nodelink.Options{MaxLevel: 2, Detailed: true})
//	svg, err := nodelink.RenderSVG(dot)
//
// With a [palette.Palette] set, boxes are filled with the level's first
// colour, which previews the gradient the renderer will use.
//
// [palette.Palette]: github.com/matzehuels/fractal/pkg/palette
package nodelink
