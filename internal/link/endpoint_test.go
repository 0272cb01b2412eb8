package link

import (
	"testing"

	"github.com/bluenviron/gomavlib/v2"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want gomavlib.EndpointConf
	}{
		{"udp:127.0.0.1:14551", gomavlib.EndpointUDPServer{Address: "127.0.0.1:14551"}},
		{"udpin:0.0.0.0:14550", gomavlib.EndpointUDPServer{Address: "0.0.0.0:14550"}},
		{"udpout:192.168.2.2:14550", gomavlib.EndpointUDPClient{Address: "192.168.2.2:14550"}},
		{"tcp:192.168.1.100:5760", gomavlib.EndpointTCPClient{Address: "192.168.1.100:5760"}},
		{"tcpin:0.0.0.0:5760", gomavlib.EndpointTCPServer{Address: "0.0.0.0:5760"}},
		{"/dev/ttyUSB0", gomavlib.EndpointSerial{Device: "/dev/ttyUSB0", Baud: 115200}},
		{"/dev/ttyACM0,57600", gomavlib.EndpointSerial{Device: "/dev/ttyACM0", Baud: 57600}},
		{"COM3", gomavlib.EndpointSerial{Device: "COM3", Baud: 115200}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseEndpoint(tc.in)
			if err != nil {
				t.Fatalf("parseEndpoint(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("parseEndpoint(%q)=%#v want %#v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseEndpoint_Invalid(t *testing.T) {
	for _, in := range []string{"", "udp:", "udp:14550", "ftp:host:21", "/dev/ttyUSB0,fast", "bogus"} {
		if _, err := parseEndpoint(in); err == nil {
			t.Fatalf("parseEndpoint(%q) expected error", in)
		}
	}
}
