package isapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/juju/errors"
)

// Channels lists the camera inputs of the device. NVRs describe them as
// input proxy channels; cameras and DVRs as video inputs.
func (s *Session) Channels(ctx context.Context) ([]Channel, error) {
	channels, err := s.listChannels(ctx, inputProxyPath, "InputProxyChannel")
	if err == nil && len(channels) > 0 {
		return channels, nil
	}
	s.client.log.Debug().Err(err).Msg("no input proxy channels, trying video inputs")

	channels, err = s.listChannels(ctx, videoInputsPath, "VideoInputChannel")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return channels, nil
}

func (s *Session) listChannels(ctx context.Context, path, tag string) ([]Channel, error) {
	resp, err := s.roundTrip(ctx, "channels", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	doc, err := parseXML(resp)
	if err != nil {
		return nil, errors.Annotate(err, "channels")
	}

	var channels []Channel
	for _, el := range doc.Root().SelectElements(tag) {
		id, err := strconv.Atoi(childText(el, "id"))
		if err != nil {
			continue
		}
		channels = append(channels, Channel{
			ID:      id,
			Name:    childText(el, "name"),
			Enabled: childText(el, "videoInputEnabled") != "false",
		})
	}
	return channels, nil
}

// ProbeChannels finds channels holding recordings inside window by running a
// single search page against channels 1..maxChannels
func (s *Session) ProbeChannels(ctx context.Context, maxChannels int, window TimeInterval) ([]Channel, error) {
	var channels []Channel
	for id := 1; id <= maxChannels; id++ {
		if err := ctx.Err(); err != nil {
			return channels, errors.Annotate(err, "channels")
		}

		tracks, err := s.SearchPage(ctx, window.ToUTC(), id)
		if err != nil {
			s.client.log.Debug().Err(err).Int("channel", id).Msg("channel probe failed")
			continue
		}
		if len(tracks) > 0 {
			channels = append(channels, Channel{ID: id, Name: "Camera " + strconv.Itoa(id), Enabled: true})
		}
	}
	return channels, nil
}
