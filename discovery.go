package isapi

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultDiscoveryTimeout = 3 * time.Second
	DefaultMulticastAddr    = "239.255.255.250:3702"
)

const probeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<Envelope xmlns="http://www.w3.org/2003/05/soap-envelope"
          xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing"
          xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery"
          xmlns:dn="http://www.onvif.org/ver10/network/wsdl">
    <Header>
        <a:Action>http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe</a:Action>
        <a:MessageID>uuid:%s</a:MessageID>
        <a:To>urn:schemas-xmlsoap-org:ws:2005:04:discovery</a:To>
    </Header>
    <Body>
        <d:Probe>
            <d:Types>dn:NetworkVideoTransmitter</d:Types>
        </d:Probe>
    </Body>
</Envelope>`

// DiscoverDevices multicasts a WS-Discovery probe and collects the devices
// that answer before the timeout
func DiscoverDevices(ctx context.Context, options *DiscoveryOptions) ([]Device, error) {
	if options == nil {
		options = &DiscoveryOptions{}
	}
	timeout := options.Timeout
	if timeout == 0 {
		timeout = DefaultDiscoveryTimeout
	}
	multicastAddr := options.MulticastAddr
	if multicastAddr == "" {
		multicastAddr = DefaultMulticastAddr
	}
	log := zerolog.Nop()
	if options.Logger != nil {
		log = *options.Logger
	}

	addr, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve multicast address: %v", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to create UDP connection: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %v", err)
	}

	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	messageID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %v", err)
	}
	if _, err := conn.WriteToUDP([]byte(fmt.Sprintf(probeTemplate, messageID)), addr); err != nil {
		return nil, fmt.Errorf("failed to send probe message: %v", err)
	}

	var devices []Device
	buffer := make([]byte, 65536)
	for {
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break
			}
			continue
		}

		found, err := parseProbeMatches(buffer[:n])
		if err != nil {
			log.Debug().Err(err).Str("from", from.String()).Msg("ignoring discovery reply")
			continue
		}
		devices = append(devices, found...)
	}

	return deduplicateDevices(devices), ctx.Err()
}

// parseProbeMatches reads the ProbeMatch entries of a discovery reply. Reply
// elements are namespace-prefixed; etree matches them by local name.
func parseProbeMatches(reply []byte) ([]Device, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(reply); err != nil {
		return nil, err
	}

	var devices []Device
	for _, match := range doc.FindElements("//ProbeMatch") {
		xaddrs := childText(match, "XAddrs")
		if xaddrs == "" {
			continue
		}
		name, location, model := parseScopes(childText(match, "Scopes"))
		devices = append(devices, Device{
			Address:  hostFromXAddrs(xaddrs),
			XAddrs:   xaddrs,
			Name:     name,
			Model:    model,
			Location: location,
		})
	}
	return devices, nil
}

func parseScopes(scopes string) (name, location, model string) {
	for _, scope := range strings.Fields(scopes) {
		switch {
		case strings.HasPrefix(scope, "onvif://www.onvif.org/name/"):
			name = scopeValue(scope, "onvif://www.onvif.org/name/")
		case strings.HasPrefix(scope, "onvif://www.onvif.org/location/"):
			location = scopeValue(scope, "onvif://www.onvif.org/location/")
		case strings.HasPrefix(scope, "onvif://www.onvif.org/hardware/"):
			model = scopeValue(scope, "onvif://www.onvif.org/hardware/")
		}
	}
	return
}

func scopeValue(scope, prefix string) string {
	value := strings.TrimPrefix(scope, prefix)
	if unescaped, err := url.PathUnescape(value); err == nil {
		value = unescaped
	}
	return strings.ReplaceAll(value, "_", " ")
}

// hostFromXAddrs extracts host[:port] from the first service address
func hostFromXAddrs(xaddrs string) string {
	first := strings.Fields(xaddrs)[0]
	u, err := url.Parse(first)
	if err != nil || u.Host == "" {
		return first
	}
	return u.Host
}

func deduplicateDevices(devices []Device) []Device {
	seen := make(map[string]bool)
	var unique []Device
	for _, device := range devices {
		if seen[device.Address] {
			continue
		}
		seen[device.Address] = true
		unique = append(unique, device)
	}
	return unique
}
