package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/tphakala/audiodevicebuffer/cmd/config"
	"github.com/tphakala/audiodevicebuffer/cmd/devices"
	"github.com/tphakala/audiodevicebuffer/cmd/run"
	"github.com/tphakala/audiodevicebuffer/internal/buildinfo"
	"github.com/tphakala/audiodevicebuffer/internal/conf"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// RootCommand creates and returns the root command. Settings are loaded into
// settings before any sub-command runs.
func RootCommand(v *viper.Viper, settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "adb",
		Short:         "Audio device buffer",
		Long:          "Drive an audio device through the device buffer, report per-direction statistics and expose them over HTTP and MQTT.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.yaml (default: search ., user config dir, /etc/audiodevicebuffer)")
	rootCmd.PersistentFlags().String("loglevel", "", "Default log level (trace, debug, info, warn, error)")
	if err := v.BindPFlag("log.default_level", rootCmd.PersistentFlags().Lookup("loglevel")); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}

	devicesCmd := devices.Command()
	versionCmd := versionCommand()
	rootCmd.AddCommand(
		run.Command(v, settings),
		devicesCmd,
		configcmd.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for commands that do not use the settings
		if cmd.Name() == devicesCmd.Name() || cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(v, configFile, settings)
	}

	return rootCmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := buildinfo.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "audiodevicebuffer %s (built %s, %s)\n", info.Version, info.BuildDate, info.GoVersion)
		},
	}
}

// initialize loads the settings and installs the global logger.
func initialize(v *viper.Viper, configFile string, settings *conf.Settings) error {
	loaded, err := conf.Load(v, configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	central, err := logger.NewCentralLogger(&settings.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return nil
}
