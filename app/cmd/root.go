package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/triagelabs/searchgate/config"
	"github.com/triagelabs/searchgate/sizing"
)

var (
	cfgFile   string
	workspace string

	globalCfg *config.Config
)

// Execute is the entry point for the CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd wires the cobra tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "searchgate",
		Short:         "Size-governed gateway for biomedical search APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if workspace == "" {
				if wd, err := os.Getwd(); err == nil {
					workspace = wd
				} else {
					return err
				}
			}
			if cfgFile == "" {
				cfgFile = config.DefaultPath(workspace)
			}
			cfg, err := config.Load(cfgFile, workspace)
			if err != nil {
				return err
			}
			globalCfg = cfg
			return sizing.Configure(cfg.Size)
		},
	}
	root.PersistentFlags().StringVar(&workspace, "workspace", "", "Workspace directory")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to searchgate config file")

	root.AddCommand(
		newServeCmd(),
		newSearchCmd(),
		newConfigCmd(),
		newSessionsCmd(),
	)
	return root
}
