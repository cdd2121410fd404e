package isapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Playback URIs carry times like 20200415T003000Z; some firmware drops the Z
var playbackTimeLayouts = []string{"20060102T150405Z", "20060102T150405"}

// Track is one recording segment found by a search
type Track struct {
	PlaybackURI string
	Interval    TimeInterval // UTC representation, carrying the local offset
	Name        string
	Size        int64
}

// NewTrack decodes the start and end times embedded in a playback URI such as
// rtsp://host/Streaming/tracks/101/?starttime=20200415T003000Z&endtime=20200415T010000Z&name=...&size=...
func NewTrack(playbackURI string, localOffset time.Duration) (Track, error) {
	query, err := playbackQuery(playbackURI)
	if err != nil {
		return Track{}, err
	}

	start, err := parsePlaybackTime(query.Get("starttime"))
	if err != nil {
		return Track{}, fmt.Errorf("playback uri %q: starttime: %v", playbackURI, err)
	}
	end, err := parsePlaybackTime(query.Get("endtime"))
	if err != nil {
		return Track{}, fmt.Errorf("playback uri %q: endtime: %v", playbackURI, err)
	}

	return newTrackFromQuery(playbackURI, query, TimeInterval{Start: start, End: end, LocalOffset: localOffset}), nil
}

func newTrackFromQuery(playbackURI string, query url.Values, interval TimeInterval) Track {
	track := Track{
		PlaybackURI: playbackURI,
		Interval:    interval,
		Name:        query.Get("name"),
	}
	if size, err := strconv.ParseInt(query.Get("size"), 10, 64); err == nil {
		track.Size = size
	}
	return track
}

// LocalInterval returns the track's span in device local time
func (t Track) LocalInterval() TimeInterval {
	return t.Interval.ToLocalTime()
}

// DownloadURI is the reference sent in a download request
func (t Track) DownloadURI() string {
	return t.PlaybackURI
}

// FileName is the local start time followed by ext
func (t Track) FileName(ext string) string {
	return t.Interval.ToFilenameText() + ext
}

func playbackQuery(playbackURI string) (url.Values, error) {
	_, rawQuery, ok := strings.Cut(playbackURI, "?")
	if !ok {
		return nil, fmt.Errorf("playback uri %q has no query", playbackURI)
	}
	// Device URIs are not always valid URLs, so only the query is parsed
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("playback uri %q: %v", playbackURI, err)
	}
	return query, nil
}

func parsePlaybackTime(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	for _, layout := range playbackTimeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", text)
}
