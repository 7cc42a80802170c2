package cli

import (
	"io"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fractal/pkg/fractal"
)

// shells maps each supported shell to its completion script generator.
var shells = map[string]func(root *cobra.Command, w io.Writer) error{
	"bash": func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
	"zsh":  func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
	"fish": func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
	"powershell": func(root *cobra.Command, w io.Writer) error {
		return root.GenPowerShellCompletionWithDesc(w)
	},
}

func (c *CLI) completionCommand() *cobra.Command {
	names := make([]string, 0, len(shells))
	for name := range shells {
		names = append(names, name)
	}
	slices.Sort(names)

	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Print a shell completion script",
		Long: `Print a completion script for bash, zsh, fish or powershell.

Completions cover subcommands and flags, plus the values of --variant,
--depth and --format. For example:

  source <(fractal completion bash)
  fractal completion fish > ~/.config/fish/completions/fractal.fish`,
		DisableFlagsInUseLine: true,
		ValidArgs:             names,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return shells[args[0]](cmd.Root(), cmd.OutOrStdout())
		},
	}
}

// fixedValues completes a flag from a closed list without falling back to files.
func fixedValues(values ...string) cobra.CompletionFunc {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

func variantValues() cobra.CompletionFunc {
	return fixedValues(string(fractal.VariantDirectional), string(fractal.VariantOrganic))
}

// depthValues offers every depth the default configuration accepts.
func depthValues() cobra.CompletionFunc {
	depths := make([]string, fractal.DefaultMaxDepth)
	for i := range depths {
		n := i + 1
		depths[i] = strconv.Itoa(n) + "\t" + strconv.Itoa(fractal.TotalNodes(n)) + " nodes"
	}
	return fixedValues(depths...)
}
