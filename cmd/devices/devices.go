// Package devices implements the devices command.
package devices

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore/sources/malgo"
)

// Command creates the devices command.
func Command() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture and playback devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := malgo.ListDevices()
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}
			return printDevices(cmd.OutOrStdout(), devices)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print devices as JSON")
	return cmd
}

func printDevices(w io.Writer, devices []malgo.DeviceInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tINDEX\tDEFAULT\tNAME\tID")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", d.Kind, d.Index, def, d.Name, d.ID)
	}
	return tw.Flush()
}
