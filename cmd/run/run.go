// Package run implements the run command: it drives an audio device through
// the device buffer until interrupted.
package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/audiodevicebuffer/internal/conf"
)

// Command creates the run command.
func Command(v *viper.Viper, settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the device buffer on an audio device",
		Long: "Open the configured audio device, feed the device buffer from its callback and " +
			"serve status, reports and metrics until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	if err := setupFlags(cmd, v); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

// setupFlags defines run flags and binds each to its configuration key.
func setupFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	flags.String("mode", "", "Device mode (duplex, capture, playback)")
	flags.String("capture", "", "Capture device name, ID or \"default\"")
	flags.String("playback", "", "Playback device name, ID or \"default\"")
	flags.Int("samplerate", 0, "Sample rate in Hz")
	flags.String("transport", "", "Audio transport (loopback, wav, none)")
	flags.String("wav-in", "", "WAV file played out by the wav transport")
	flags.String("wav-out", "", "WAV file receiving recorded audio with the wav transport")
	flags.String("listen", "", "Listen address of the HTTP status API")
	flags.String("mqtt-broker", "", "MQTT broker URL; enables MQTT publishing")

	bindings := map[string]string{
		"mode":        "device.mode",
		"capture":     "device.capture",
		"playback":    "device.playback",
		"samplerate":  "audio.samplerate",
		"transport":   "transport.type",
		"wav-in":      "transport.wavinput",
		"wav-out":     "transport.wavoutput",
		"listen":      "http.listen",
		"mqtt-broker": "mqtt.broker",
	}
	for flag, key := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Run builds the pipeline from settings and blocks until ctx is cancelled or
// a component fails.
func Run(ctx context.Context, settings *conf.Settings) error {
	if settings.MQTT.Broker != "" {
		settings.MQTT.Enabled = true
	}
	p, err := newPipeline(settings)
	if err != nil {
		return err
	}
	defer p.close()
	return p.run(ctx)
}
