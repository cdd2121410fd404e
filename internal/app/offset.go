package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var offsetCmd = &cobra.Command{
	Use:   "offset [ADDRESS]",
	Short: "Show the device clock and its offset from UTC",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOffset,
}

func init() {
	RootCmd.AddCommand(offsetCmd)
}

func runOffset(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, firstArg(args), nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	session, err := rt.client.Connect(cmd.Context())
	if err != nil {
		return err
	}

	deviceTime, err := session.DeviceTime(cmd.Context())
	if err != nil {
		return err
	}
	offset, err := session.TimeOffset(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Auth:       %s\n", session.Auth())
	fmt.Fprintf(out, "Time mode:  %s\n", deviceTime.TimeMode)
	fmt.Fprintf(out, "Local time: %s\n", deviceTime.LocalTime)
	fmt.Fprintf(out, "Time zone:  %s\n", deviceTime.TimeZone)
	fmt.Fprintf(out, "Offset:     %s\n", offset)
	return nil
}
