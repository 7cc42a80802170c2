package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fractal/pkg/config"
)

// configCommand creates the config command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or validate configuration files",
	}

	cmd.AddCommand(c.configShowCommand())
	cmd.AddCommand(c.configValidateCommand())

	return cmd
}

// configShowCommand prints the effective configuration as TOML.
func (c *CLI) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (defaults, or --config) as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			return cfg.Encode(os.Stdout)
		},
	}
}

// configValidateCommand checks one or more configuration files.
func (c *CLI) configValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check configuration files without running anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var firstErr error
			for _, path := range args {
				cfg, err := config.Load(path)
				if err != nil {
					printError("%s: %v", path, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				printSuccess("%s", path)
				printDetail("%s tree, depth %d, hash %s", cfg.Tree.Variant, cfg.Tree.Depth, cfg.Hash()[:12])
			}
			return firstErr
		},
	}
}
