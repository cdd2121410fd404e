package isapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/elgs/gostrgen"
	"github.com/juju/errors"
)

// errDownloadStalled means the device stopped sending data mid-download
var errDownloadStalled = errors.New("download stalled")

// TrackPath is {ArchiveRoot}/{address}/camera{channel}/{local start}{ext}.
// A port separator in the address becomes "_" to keep the path portable.
func (c *Client) TrackPath(track Track, channel int) string {
	return filepath.Join(c.ChannelDir(channel), track.FileName(c.config.FileExtension))
}

// ChannelDir is the archive directory of one channel
func (c *Client) ChannelDir(channel int) string {
	return filepath.Join(c.config.ArchiveRoot, strings.ReplaceAll(c.Address, ":", "_"), fmt.Sprintf("camera%d", channel))
}

// Download fetches one track into the archive and returns the file path.
// When the device answers with its internal error code it is rebooted, the
// client waits for it to come back and the download starts over; at most
// MaxReboots times. Transport failures and other 5xx answers are retried
// after RetryDelay, at most MaxRetries times.
func (s *Session) Download(ctx context.Context, track Track, channel int) (string, error) {
	config := s.client.config
	path := s.client.TrackPath(track, channel)
	log := s.client.log.With().Int("channel", channel).Str("file", path).Logger()

	reboots, retries := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return "", errors.Annotate(err, "download")
		}

		log.Info().Str("uri", track.PlaybackURI).Msg("downloading track")
		size, err := s.downloadFile(ctx, track, path)
		if err == nil {
			log.Info().Str("size", humanize.Bytes(uint64(size))).Msg("track downloaded")
			if config.StampMetadata {
				stampMetadata(ctx, log, path, track.LocalInterval().Start)
			}
			return path, nil
		}

		var statusErr *StatusError
		isStatus := errors.As(err, &statusErr)

		switch {
		case isStatus && statusErr.StatusCode == config.DeviceErrorCode:
			if config.MaxReboots >= 0 && reboots >= config.MaxReboots {
				return "", errors.Annotatef(ErrRebootLimit, "download %s after %d reboots: %v", track.Name, reboots, err)
			}
			reboots++
			log.Warn().Err(err).Int("reboot", reboots).Msg("device error, recovering")
			if err := s.rebootAndWait(ctx); err != nil {
				return "", errors.Annotate(err, "download")
			}

		case isTransient(err) || (isStatus && statusErr.StatusCode >= 500):
			if config.MaxRetries >= 0 && retries >= config.MaxRetries {
				return "", errors.Annotatef(ErrRetryLimit, "download %s: %v", track.Name, err)
			}
			retries++
			log.Warn().Err(err).Int("attempt", retries).Dur("delay", config.RetryDelay).Msg("download failed, retrying")
			if err := sleep(ctx, config.RetryDelay); err != nil {
				return "", errors.Annotate(err, "download")
			}

		default:
			return "", errors.Trace(err)
		}
	}
}

// rebootAndWait reboots the device and blocks until it accepts connections
// again or the reboot budget is spent
func (s *Session) rebootAndWait(ctx context.Context) error {
	if err := s.Reboot(ctx); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) || ctx.Err() != nil {
			return errors.Trace(err)
		}
		// Devices often drop the connection while going down
		s.client.log.Warn().Err(err).Msg("reboot request failed, waiting for device anyway")
	}

	_, err := s.client.WaitUntilAvailable(ctx)
	return err
}

// downloadFile streams one track into path through a ".part" file that is
// renamed on success and removed on failure
func (s *Session) downloadFile(ctx context.Context, track Track, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, errors.Annotate(err, "download: create directory")
	}

	body, err := downloadRequestBody(track)
	if err != nil {
		return 0, errors.Annotate(err, "download")
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	resp, err := s.do(ctx, http.MethodGet, downloadPath, body)
	if err != nil {
		return 0, errors.Annotate(err, "download")
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return 0, newStatusError("download", resp, respBody)
	}

	partial, err := partialPath(path)
	if err != nil {
		return 0, errors.Annotate(err, "download")
	}
	file, err := os.Create(partial)
	if err != nil {
		return 0, errors.Annotate(err, "download: create file")
	}

	reader := newIdleReader(resp.Body, s.client.config.Timeout, func() { cancel(errDownloadStalled) })
	n, err := io.Copy(file, reader)
	reader.stop()
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partial)
		if errors.Is(context.Cause(ctx), errDownloadStalled) {
			return n, errors.Annotate(errDownloadStalled, "download")
		}
		return n, errors.Annotate(err, "download: write file")
	}

	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return n, errors.Annotate(err, "download: rename file")
	}
	return n, nil
}

// partialPath names the file a download streams into before it is renamed.
// The random infix keeps two runs on the same archive from sharing one.
func partialPath(path string) (string, error) {
	suffix, err := gostrgen.RandGen(8, gostrgen.Lower|gostrgen.Digit, "", "")
	if err != nil {
		return "", errors.Annotate(err, "partial file name")
	}
	return path + "." + suffix + ".part", nil
}

func downloadRequestBody(track Track) ([]byte, error) {
	doc, root := newRequestDocument("downloadRequest")
	root.CreateElement("playbackURI").SetText(track.DownloadURI())
	return doc.WriteToBytes()
}

// idleReader calls onIdle when no data arrives for timeout
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func newIdleReader(r io.Reader, timeout time.Duration, onIdle func()) *idleReader {
	reader := &idleReader{r: r, timeout: timeout}
	if timeout > 0 {
		reader.timer = time.AfterFunc(timeout, onIdle)
	}
	return reader
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 && r.timer != nil {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (r *idleReader) stop() {
	if r.timer != nil {
		r.timer.Stop()
	}
}
