package isapi

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"golang.org/x/time/rate"
)

const deviceInfoPath = "/ISAPI/System/deviceInfo"

// DeviceInfo is the identity block of /ISAPI/System/deviceInfo
type DeviceInfo struct {
	DeviceName      string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	MACAddress      string
}

// GetDeviceInformation fetches the device identity
func (s *Session) GetDeviceInformation(ctx context.Context) (DeviceInfo, error) {
	resp, err := s.roundTrip(ctx, "device info", http.MethodGet, deviceInfoPath, nil)
	if err != nil {
		return DeviceInfo{}, err
	}

	doc, err := parseXML(resp)
	if err != nil {
		return DeviceInfo{}, errors.Annotate(err, "device info")
	}

	root := doc.Root()
	return DeviceInfo{
		DeviceName:      childText(root, "deviceName"),
		Model:           childText(root, "model"),
		SerialNumber:    childText(root, "serialNumber"),
		FirmwareVersion: childText(root, "firmwareVersion"),
		MACAddress:      childText(root, "macAddress"),
	}, nil
}

// DeviceTime fetches the device clock settings
func (s *Session) DeviceTime(ctx context.Context) (DeviceTime, error) {
	resp, err := s.roundTrip(ctx, "time offset", http.MethodGet, timePath, nil)
	if err != nil {
		return DeviceTime{}, err
	}
	return parseDeviceTime(resp)
}

func parseDeviceTime(body []byte) (DeviceTime, error) {
	doc, err := parseXML(body)
	if err != nil {
		return DeviceTime{}, errors.Annotate(err, "time offset")
	}

	root := doc.Root()
	return DeviceTime{
		TimeMode:  childText(root, "timeMode"),
		LocalTime: childText(root, "localTime"),
		TimeZone:  childText(root, "timeZone"),
	}, nil
}

// TimeOffset resolves the device's local-minus-UTC offset. A failed request
// is an error; an unreadable or unrecognized time zone yields zero.
func (s *Session) TimeOffset(ctx context.Context) (time.Duration, error) {
	resp, err := s.roundTrip(ctx, "time offset", http.MethodGet, timePath, nil)
	if err != nil {
		return 0, err
	}

	deviceTime, err := parseDeviceTime(resp)
	if err != nil {
		s.client.log.Warn().Err(err).Msg("unreadable time response, assuming zero offset")
		return 0, nil
	}
	if deviceTime.TimeZone == "" {
		s.client.log.Warn().Msg("device reported no time zone, assuming zero offset")
		return 0, nil
	}

	offset := ParseTimezone(deviceTime.TimeZone)
	s.client.log.Debug().Str("timezone", deviceTime.TimeZone).Dur("offset", offset).Msg("time offset resolved")
	return offset, nil
}

var (
	zoneNamePrefix    = regexp.MustCompile(`^[A-Za-z]+`)
	baseOffsetPattern = regexp.MustCompile(`^([+-]?)(\d{1,2}):(\d{2})(?::(\d{2}))?`)
	dstOffsetPattern  = regexp.MustCompile(`DST([+-]?)(\d{1,2}):(\d{2})(?::(\d{2}))?`)
)

// ParseTimezone converts a device time zone such as "CST-8:00:00" or
// "CST+5:00:00DST01:00:00,M3.2.0/02:00:00,M11.1.0/02:00:00" into a
// local-minus-UTC offset. The device reports the offset to reach UTC, so
// base plus DST is negated. Unrecognized text yields zero.
func ParseTimezone(raw string) time.Duration {
	text := zoneNamePrefix.ReplaceAllString(strings.TrimSpace(raw), "")

	base := baseOffsetPattern.FindStringSubmatch(text)
	if base == nil {
		return 0
	}
	offset, ok := matchedOffset(base)
	if !ok {
		return 0
	}

	// The DST term is added whenever present; the M3.2.0/M11.1.0 transition
	// rules are not evaluated, so the offset is the same all year.
	if dst := dstOffsetPattern.FindStringSubmatch(text[len(base[0]):]); dst != nil {
		if dstOffset, ok := matchedOffset(dst); ok {
			offset += dstOffset
		}
	}

	return -offset
}

// matchedOffset turns sign, hours, minutes and optional seconds submatches
// into a duration
func matchedOffset(m []string) (time.Duration, bool) {
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	seconds := 0
	if m[4] != "" {
		seconds, _ = strconv.Atoi(m[4])
	}
	if hours > 14 || minutes > 59 || seconds > 59 {
		return 0, false
	}

	offset := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	if m[1] == "-" {
		offset = -offset
	}
	return offset, true
}

// Reboot asks the device to restart
func (s *Session) Reboot(ctx context.Context) error {
	s.client.log.Warn().Msg("rebooting device")
	_, err := s.roundTrip(ctx, "reboot", http.MethodPut, rebootPath, []byte{})
	return err
}

// WaitUntilAvailable sleeps through the reboot grace period, then dials the
// device's service port, starting at most one dial per poll interval, until
// it accepts a TCP connection or the reboot budget runs out. It reports
// whether the device came back.
func (c *Client) WaitUntilAvailable(ctx context.Context) (bool, error) {
	if err := sleep(ctx, c.config.RebootGrace); err != nil {
		return false, err
	}

	address := c.availabilityAddress()
	deadline := time.Now().Add(c.config.RebootTime - c.config.RebootGrace)
	dialer := net.Dialer{Timeout: c.config.Timeout}
	polls := rate.NewLimiter(rate.Every(c.config.PollInterval), 1)

	for time.Now().Before(deadline) {
		if err := polls.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			break
		}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			conn.Close()
			c.log.Info().Str("address", address).Msg("device is available")
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}

	c.log.Warn().Str("address", address).Dur("budget", c.config.RebootTime).Msg("device not available after reboot budget")
	return false, nil
}
