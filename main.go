package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/tphakala/audiodevicebuffer/cmd"
	"github.com/tphakala/audiodevicebuffer/internal/conf"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

func main() {
	var settings conf.Settings
	rootCmd := cmd.RootCommand(viper.GetViper(), &settings)

	err := rootCmd.Execute()
	if flushErr := logger.Global().Flush(); flushErr != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", flushErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
