package isapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/juju/errors"
)

const recordTypeDescriptor = "//recordType.meta.std-cgi.com"

// Search collects every track of a channel inside interval. Pages are
// requested until one comes back shorter than the page size; the start of
// the remaining window moves to the end of the last track of each full page.
// Any failed page abandons the whole search.
func (s *Session) Search(ctx context.Context, interval TimeInterval, channel int) ([]Track, error) {
	log := s.client.log.With().Int("channel", channel).Logger()
	pageSize := s.client.config.PageSize
	window := interval.ToUTC()

	log.Info().Str("interval", window.String()).Msg("searching recordings")

	var tracks []Track
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Annotate(err, "search")
		}

		var found []Track
		err := s.client.retry(ctx, "search", func() error {
			var err error
			found, err = s.SearchPage(ctx, window, channel)
			return err
		})
		if err != nil {
			log.Error().Err(err).Int("page", page).Msg("search failed, discarding results")
			return nil, errors.Trace(err)
		}

		tracks = append(tracks, found...)
		log.Debug().Int("page", page).Int("tracks", len(found)).Msg("search page received")

		if len(found) < pageSize {
			break
		}

		next := found[len(found)-1].Interval.End
		if !next.After(window.Start) {
			log.Warn().Time("start", window.Start).Msg("search window did not advance, stopping")
			break
		}
		window = window.WithStart(next)
	}

	log.Info().Int("tracks", len(tracks)).Msg("search complete")
	return tracks, nil
}

// SearchPage issues a single search request for window
func (s *Session) SearchPage(ctx context.Context, window TimeInterval, channel int) ([]Track, error) {
	body, err := searchRequestBody(window, channel, s.client.config.PageSize)
	if err != nil {
		return nil, errors.Annotate(err, "search")
	}

	resp, err := s.roundTrip(ctx, "search", http.MethodPost, searchPath, body)
	if err != nil {
		return nil, err
	}

	tracks, err := parseSearchResult(resp, window.LocalOffset)
	if err != nil {
		return nil, errors.Annotate(err, "search")
	}
	return tracks, nil
}

func searchRequestBody(window TimeInterval, channel, maxResults int) ([]byte, error) {
	searchID, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Annotate(err, "generate search id")
	}

	doc, root := newRequestDocument("CMSearchDescription")
	root.CreateElement("searchID").SetText(searchID.String())
	root.CreateElement("trackIDList").CreateElement("trackID").SetText(trackID(channel))

	start, end := window.ToProtocolText()
	timeSpan := root.CreateElement("timeSpanList").CreateElement("timeSpan")
	timeSpan.CreateElement("startTime").SetText(start)
	timeSpan.CreateElement("endTime").SetText(end)

	root.CreateElement("maxResults").SetText(strconv.Itoa(maxResults))
	// The misspelling is part of the device schema
	root.CreateElement("searchResultPostion").SetText("0")
	root.CreateElement("metadataList").CreateElement("metadataDescriptor").SetText(recordTypeDescriptor)

	return doc.WriteToBytes()
}

// trackID selects the main stream recording of a channel, e.g. 101 for channel 1
func trackID(channel int) string {
	return fmt.Sprintf("%d01", channel)
}

// parseSearchResult builds tracks from a CMSearchResult document. A missing
// matchList means the window holds no recordings.
func parseSearchResult(body []byte, localOffset time.Duration) ([]Track, error) {
	doc, err := parseXML(body)
	if err != nil {
		return nil, err
	}

	matchList := doc.Root().SelectElement("matchList")
	if matchList == nil {
		return nil, nil
	}

	var tracks []Track
	for _, item := range matchList.SelectElements("searchMatchItem") {
		track, err := trackFromMatch(item, localOffset)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

func trackFromMatch(item *etree.Element, localOffset time.Duration) (Track, error) {
	uri := childText(item.SelectElement("mediaSegmentDescriptor"), "playbackURI")
	if uri == "" {
		return Track{}, errors.New("search match without playbackURI")
	}

	track, err := NewTrack(uri, localOffset)
	if err == nil {
		return track, nil
	}

	// Fall back to the match's own time span when the URI carries no times
	timeSpan := item.SelectElement("timeSpan")
	interval, spanErr := ParseProtocolText(childText(timeSpan, "startTime"), childText(timeSpan, "endTime"), localOffset)
	if spanErr != nil {
		return Track{}, errors.Trace(err)
	}

	query, _ := playbackQuery(uri)
	return newTrackFromQuery(uri, query, interval.ToUTC()), nil
}
