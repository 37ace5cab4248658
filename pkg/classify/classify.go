// Package classify decides, per frame, whether shaping applies or the
// frame bypasses it. A frame bypasses when its IPv4 source or
// destination matches an address the operator marked as ignored.
package classify

import (
	"encoding/binary"
	"fmt"
	"os"

	"inet.af/netaddr"
)

// Frames arrive in the TUN format used by the emulator: a 2-byte
// protocol tag prepended to a standard 14-byte Ethernet header, so the
// IP header starts 16 bytes in. This must stay 16 for wire
// compatibility with existing traces and drivers.
const (
	EthHeaderLen    = 16
	ipv4HeaderMin   = 20
	ipv4SrcOffset   = EthHeaderLen + 12
	ipv4DstOffset   = EthHeaderLen + 16
	classifiableMin = EthHeaderLen + ipv4HeaderMin
)

// Environment variables the surrounding shell uses to configure the
// bypass addresses.
const (
	EnvSrcToIgnore = "SRC_TO_IGNORE"
	EnvDstToIgnore = "DEST_TO_IGNORE"
)

type Verdict int

const (
	// Shape sends the frame through the shaping discipline. It is the
	// conservative verdict: anything short, malformed, or non-IPv4
	// shapes normally.
	Shape Verdict = iota
	// Bypass routes the frame around all shaping.
	Bypass
)

func (v Verdict) String() string {
	if v == Bypass {
		return "bypass"
	}
	return "shape"
}

// Classifier holds the configured bypass addresses as 32-bit values in
// network byte order. It is resolved once at startup and never touches
// the heap per packet.
type Classifier struct {
	srcSet bool
	src    uint32
	dstSet bool
	dst    uint32
}

// New builds a classifier from dotted-quad addresses; either or both
// may be empty. Non-IPv4 addresses are rejected.
func New(src, dst string) (*Classifier, error) {
	c := &Classifier{}

	if src != "" {
		v, err := parseIPv4(src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvSrcToIgnore, err)
		}
		c.src, c.srcSet = v, true
	}

	if dst != "" {
		v, err := parseIPv4(dst)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvDstToIgnore, err)
		}
		c.dst, c.dstSet = v, true
	}

	return c, nil
}

// FromEnv resolves SRC_TO_IGNORE and DEST_TO_IGNORE.
func FromEnv() (*Classifier, error) {
	return New(os.Getenv(EnvSrcToIgnore), os.Getenv(EnvDstToIgnore))
}

func parseIPv4(s string) (uint32, error) {
	ip, err := netaddr.ParseIP(s)
	if err != nil {
		return 0, err
	}
	if !ip.Is4() {
		return 0, fmt.Errorf("%s: not an IPv4 address", s)
	}
	b := ip.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

// Classify inspects the frame's IPv4 header in place. The verdict is
// Bypass only when the frame carries at least a full IPv4 header, the
// version nibble says IPv4, and a configured address equals the
// corresponding header field.
func (c *Classifier) Classify(frame []byte) Verdict {
	if !c.srcSet && !c.dstSet {
		return Shape
	}

	if len(frame) < classifiableMin {
		return Shape
	}

	if frame[EthHeaderLen]>>4 != 4 {
		return Shape
	}

	if c.srcSet && binary.BigEndian.Uint32(frame[ipv4SrcOffset:ipv4SrcOffset+4]) == c.src {
		return Bypass
	}

	if c.dstSet && binary.BigEndian.Uint32(frame[ipv4DstOffset:ipv4DstOffset+4]) == c.dst {
		return Bypass
	}

	return Shape
}
