package app

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/SridarDhandapani/isapi"
	"github.com/SridarDhandapani/isapi/internal/logging"
	"github.com/spf13/cobra"
)

var (
	discoverTimeout time.Duration

	discoverCmd = &cobra.Command{
		Use:   "discover",
		Short: "Find devices on the local network with WS-Discovery",
		Args:  cobra.NoArgs,
		RunE:  runDiscover,
	}
)

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "wait", isapi.DefaultDiscoveryTimeout, "how long to wait for replies")
	RootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	logger, closer, err := logging.New(logging.Options{
		Level:     logLevel,
		Verbosity: verbosity,
		Console:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	devices, err := isapi.DiscoverDevices(cmd.Context(), &isapi.DiscoveryOptions{
		Timeout: discoverTimeout,
		Logger:  &logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tMODEL\tLOCATION")
	for _, device := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", device.Address, device.Name, device.Model, device.Location)
	}
	return w.Flush()
}
