package app

import (
	"fmt"
	"time"

	"github.com/SridarDhandapani/isapi"
	"github.com/SridarDhandapani/isapi/internal/config"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	downloadChannel    int
	downloadUTC        bool
	downloadArchive    string
	downloadMaxReboots int
	downloadOverwrite  bool
	downloadNoStamp    bool

	downloadCmd = &cobra.Command{
		Use:   "download [ADDRESS] START_DATE START_TIME [END_DATE END_TIME]",
		Short: "Download the recordings of one channel inside a time range",
		Long: `Search the device for every recording of a channel between START and END
and download each one to {archive}/{address}/camera{channel}/{start}.mp4.

Times use the layout "2006-01-02 15:04:05" split into date and time
arguments. They are read as device local time unless --utc is given. When
END is omitted the current time is used. ADDRESS may be omitted when the
config file names a device.`,
		Example: `  nvrdl download 10.145.17.202 2020-04-15 00:30:00 2020-04-15 10:59:59
  nvrdl download --channel 2 --utc 10.145.17.202 2020-04-15 00:30:00`,
		Args: cobra.RangeArgs(2, 5),
		RunE: runDownload,
	}
)

func init() {
	flags := downloadCmd.Flags()
	flags.IntVarP(&downloadChannel, "channel", "c", 0, "camera channel (default 1)")
	flags.BoolVar(&downloadUTC, "utc", false, "read START and END as UTC instead of device local time")
	flags.StringVar(&downloadArchive, "archive", "", "archive root directory (default video)")
	flags.IntVar(&downloadMaxReboots, "max-reboots", 0, "device reboots allowed per track, negative for unlimited (default 3)")
	flags.BoolVar(&downloadOverwrite, "overwrite", false, "download tracks whose file already exists")
	flags.BoolVar(&downloadNoStamp, "no-stamp", false, "do not stamp file times and media metadata")

	RootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	address, start, end, err := parseDownloadArgs(args)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd, address, func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("channel") && downloadChannel > 0 {
			cfg.Channel = downloadChannel
		}
		if flags.Changed("utc") {
			cfg.UTC = downloadUTC
		}
		if flags.Changed("archive") {
			cfg.ArchiveRoot = downloadArchive
		}
		if flags.Changed("max-reboots") {
			cfg.MaxReboots = downloadMaxReboots
		}
		if downloadOverwrite {
			cfg.Overwrite = true
		}
		if downloadNoStamp {
			cfg.Stamp = false
		}
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	if end.IsZero() {
		now := time.Now()
		if rt.config.UTC {
			now = now.UTC()
		}
		end = wallClock(now)
	}
	if end.Before(start) {
		return fmt.Errorf("end %s is before start %s",
			end.Format(isapi.InputTimeLayout), start.Format(isapi.InputTimeLayout))
	}

	client := rt.client
	rt.log.Info().Str("device", client.Address).Int("channel", rt.config.Channel).
		Str("start", start.Format(isapi.InputTimeLayout)).Str("end", end.Format(isapi.InputTimeLayout)).
		Msg("processing")

	session, err := client.Connect(cmd.Context())
	if err != nil {
		return err
	}

	result, err := session.Archive(cmd.Context(), isapi.ArchiveRequest{
		Channel: rt.config.Channel,
		Start:   start,
		End:     end,
		UTC:     rt.config.UTC,
	})
	if err != nil {
		return err
	}

	printArchiveResult(cmd, client, rt.config.Channel, result)
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d tracks failed", len(result.Failed), len(result.Tracks))
	}
	return nil
}

// parseDownloadArgs accepts [ADDRESS] START_DATE START_TIME [END_DATE END_TIME].
// An odd argument count means the address is present. A zero end means the
// range is open and ends now.
func parseDownloadArgs(args []string) (address string, start, end time.Time, err error) {
	if len(args)%2 == 1 {
		address, args = args[0], args[1:]
	}
	if len(args) != 2 && len(args) != 4 {
		return "", time.Time{}, time.Time{}, fmt.Errorf("expected START_DATE START_TIME [END_DATE END_TIME]")
	}

	start, err = parseWallClock(args[0], args[1])
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}

	if len(args) == 4 {
		end, err = parseWallClock(args[2], args[3])
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
		}
		if end.Before(start) {
			return "", time.Time{}, time.Time{}, fmt.Errorf("end %s is before start %s",
				end.Format(isapi.InputTimeLayout), start.Format(isapi.InputTimeLayout))
		}
	}
	return address, start, end, nil
}

// parseWallClock reads date and time as a zone-less wall clock
func parseWallClock(date, clock string) (time.Time, error) {
	return time.Parse(isapi.InputTimeLayout, date+" "+clock)
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

func printArchiveResult(cmd *cobra.Command, client *isapi.Client, channel int, result isapi.ArchiveResult) {
	out := cmd.OutOrStdout()

	var total uint64
	for _, track := range result.Tracks {
		if track.Size > 0 {
			total += uint64(track.Size)
		}
	}

	fmt.Fprintf(out, "Found %d tracks (%s) in %s\n", len(result.Tracks), humanize.Bytes(total), result.Interval)
	fmt.Fprintf(out, "Downloaded %d, skipped %d, failed %d into %s\n",
		len(result.Files), len(result.Skipped), len(result.Failed), client.ChannelDir(channel))
	for _, failure := range result.Failed {
		fmt.Fprintf(out, "  failed %s: %v\n", failure.Track.Interval.ToFilenameText(), failure.Err)
	}
}
