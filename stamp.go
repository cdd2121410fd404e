package isapi

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

const (
	exiftoolTimeLayout = "2006:01:02 15:04:05"
	exiftoolTimeout    = 30 * time.Second
)

// stampMetadata sets the file times and, when exiftool is installed, the
// container date tags to the segment's local start. Failures are logged only.
func stampMetadata(ctx context.Context, log zerolog.Logger, path string, start time.Time) {
	if err := os.Chtimes(path, start, start); err != nil {
		log.Debug().Err(err).Msg("could not set file times")
	}

	exiftool, err := exec.LookPath("exiftool")
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, exiftoolTimeout)
	defer cancel()

	stamp := start.Format(exiftoolTimeLayout)
	args := []string{"-overwrite_original"}
	for _, tag := range []string{"CreateDate", "ModifyDate", "TrackCreateDate", "TrackModifyDate", "MediaCreateDate", "MediaModifyDate"} {
		args = append(args, "-"+tag+"="+stamp)
	}
	args = append(args, path)

	if out, err := exec.CommandContext(ctx, exiftool, args...).CombinedOutput(); err != nil {
		log.Debug().Err(err).Bytes("output", out).Msg("exiftool failed, metadata not stamped")
	}
}
