package link

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v2"
)

const defaultSerialBaud = 115200

// parseEndpoint converts a pymavlink-style connection string into a
// gomavlib endpoint:
//
//	udp:HOST:PORT / udpin:HOST:PORT   listen for UDP (e.g. SITL on 14551)
//	udpout:HOST:PORT                  send UDP to HOST:PORT
//	tcp:HOST:PORT                     connect over TCP
//	tcpin:HOST:PORT                   accept a TCP connection
//	/dev/ttyUSB0[,BAUD] or COM3[,BAUD] serial device
func parseEndpoint(s string) (gomavlib.EndpointConf, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("link: endpoint is empty")
	}

	if scheme, addr, ok := strings.Cut(s, ":"); ok && !isSerialDevice(s) {
		if addr == "" || !strings.Contains(addr, ":") {
			return nil, fmt.Errorf("link: endpoint %q must be SCHEME:HOST:PORT", s)
		}
		switch strings.ToLower(scheme) {
		case "udp", "udpin":
			return gomavlib.EndpointUDPServer{Address: addr}, nil
		case "udpout":
			return gomavlib.EndpointUDPClient{Address: addr}, nil
		case "tcp":
			return gomavlib.EndpointTCPClient{Address: addr}, nil
		case "tcpin":
			return gomavlib.EndpointTCPServer{Address: addr}, nil
		default:
			return nil, fmt.Errorf("link: unsupported endpoint scheme %q", scheme)
		}
	}

	dev, baudStr, hasBaud := strings.Cut(s, ",")
	baud := defaultSerialBaud
	if hasBaud {
		v, err := strconv.Atoi(strings.TrimSpace(baudStr))
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("link: invalid serial baud %q", baudStr)
		}
		baud = v
	}
	if !isSerialDevice(dev) {
		return nil, fmt.Errorf("link: unrecognized endpoint %q", s)
	}
	return gomavlib.EndpointSerial{Device: strings.TrimSpace(dev), Baud: baud}, nil
}

func isSerialDevice(s string) bool {
	if strings.HasPrefix(s, "/dev/") {
		return true
	}
	up := strings.ToUpper(s)
	if strings.HasPrefix(up, "COM") && len(up) > 3 {
		d := up[3:]
		if i := strings.IndexByte(d, ','); i >= 0 {
			d = d[:i]
		}
		_, err := strconv.Atoi(d)
		return err == nil
	}
	return false
}
