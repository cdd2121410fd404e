package app

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/SridarDhandapani/isapi"
	"github.com/spf13/cobra"
)

var (
	channelsProbe int

	channelsCmd = &cobra.Command{
		Use:   "channels [ADDRESS]",
		Short: "List the camera channels of a device",
		Long: `List the camera inputs the device reports. With --probe N the device is
instead searched for recordings of channels 1..N during the last 24 hours,
which works on firmware that hides its channel list.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChannels,
	}
)

func init() {
	channelsCmd.Flags().IntVar(&channelsProbe, "probe", 0, "search channels 1..N for recent recordings")
	RootCmd.AddCommand(channelsCmd)
}

func runChannels(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, firstArg(args), nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	session, err := rt.client.Connect(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if info, err := session.GetDeviceInformation(cmd.Context()); err == nil {
		fmt.Fprintf(out, "%s %s (firmware %s)\n", info.DeviceName, info.Model, info.FirmwareVersion)
	} else {
		rt.log.Debug().Err(err).Msg("device information unavailable")
	}

	var channels []isapi.Channel
	if channelsProbe > 0 {
		now := time.Now().UTC()
		window := isapi.TimeInterval{Start: now.Add(-24 * time.Hour), End: now}
		channels, err = session.ProbeChannels(cmd.Context(), channelsProbe, window)
	} else {
		channels, err = session.Channels(cmd.Context())
	}
	if err != nil {
		return err
	}

	if len(channels) == 0 {
		fmt.Fprintln(out, "No channels found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tNAME\tENABLED")
	for _, channel := range channels {
		fmt.Fprintf(w, "%d\t%s\t%t\n", channel.ID, channel.Name, channel.Enabled)
	}
	return w.Flush()
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
