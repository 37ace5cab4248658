package shaper

import (
	"bytes"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// captureSink records every frame handed to it.
type captureSink struct {
	frames [][]byte
}

func (s *captureSink) WritePacket(frame []byte) error {
	c := make([]byte, len(frame))
	copy(c, frame)
	s.frames = append(s.frames, c)
	return nil
}

// testFrame is an arbitrary shaped payload of the given size.
func testFrame(size int) []byte {
	return bytes.Repeat([]byte{0x5a}, size)
}

// ipv4Frame builds a tagged Ethernet/IPv4/UDP frame the classifier can
// parse.
func ipv4Frame(t *testing.T, src, dst string) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src),
		DstIP:    net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: 9000, DstPort: 9001}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("checksum setup: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("payload")); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	raw := buf.Bytes()
	frame := make([]byte, 0, len(raw)+2)
	frame = append(frame, raw[12], raw[13])
	return append(frame, raw...)
}
