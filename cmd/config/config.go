// Package config implements the config command.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiodevicebuffer/internal/conf"
)

// Command creates the config command, which prints the effective settings
// or writes the defaults to a file.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return conf.WriteYAML(cmd.OutOrStdout(), settings)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.WriteDefault(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Created default config file at:", args[0])
			return nil
		},
	}
	cmd.AddCommand(initCmd)
	return cmd
}
