package isapi

import (
	"context"
	"os"
	"time"

	"github.com/juju/errors"
)

// Archive runs a complete retrieval: it resolves the device offset unless
// UTC is requested, searches the requested span and downloads every track
// one after another, pausing DownloadDelay between files. A track that fails
// is recorded and the run moves on; cancellation stops the run.
func (s *Session) Archive(ctx context.Context, req ArchiveRequest) (ArchiveResult, error) {
	var result ArchiveResult
	log := s.client.log.With().Int("channel", req.Channel).Logger()

	var offset time.Duration
	if req.UTC {
		log.Info().Msg("UTC time is used")
	} else {
		var err error
		if offset, err = s.TimeOffset(ctx); err != nil {
			return result, errors.Trace(err)
		}
		log.Info().Dur("offset", offset).Msg("device local time is used")
	}

	result.Interval = NewLocalInterval(req.Start, req.End, offset).ToUTC()

	tracks, err := s.Search(ctx, result.Interval, req.Channel)
	if err != nil {
		return result, errors.Trace(err)
	}
	result.Tracks = tracks

	files, skipped, failed, err := s.DownloadTracks(ctx, tracks, req.Channel)
	result.Files, result.Skipped, result.Failed = files, skipped, failed
	return result, err
}

// DownloadTracks downloads tracks sequentially, pausing DownloadDelay between
// the end of one download and the start of the next. Tracks whose file
// already exists are skipped when SkipExisting is set.
func (s *Session) DownloadTracks(ctx context.Context, tracks []Track, channel int) (files, skipped []string, failed []TrackFailure, err error) {
	config := s.client.config
	attempted := false

	for i, track := range tracks {
		if err := ctx.Err(); err != nil {
			return files, skipped, failed, errors.Annotate(err, "download")
		}

		path := s.client.TrackPath(track, channel)
		if config.SkipExisting && fileExists(path) {
			s.client.log.Info().Str("file", path).Msg("already downloaded, skipping")
			skipped = append(skipped, path)
			continue
		}

		if attempted {
			if err := sleep(ctx, config.DownloadDelay); err != nil {
				return files, skipped, failed, errors.Annotate(err, "download")
			}
		}
		attempted = true

		s.client.log.Debug().Int("track", i+1).Int("of", len(tracks)).Msg("next track")
		file, err := s.Download(ctx, track, channel)
		if err != nil {
			if ctx.Err() != nil {
				return files, skipped, failed, errors.Trace(err)
			}
			s.client.log.Error().Err(err).Str("uri", track.PlaybackURI).Msg("track failed")
			failed = append(failed, TrackFailure{Track: track, Err: err})
			continue
		}
		files = append(files, file)
	}

	return files, skipped, failed, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
