// Package tun creates the packet endpoints the emulator shapes
// between: TAP devices carrying raw Ethernet frames, wrapped into the
// engine's 16-byte-header framing.
package tun

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const tunDevice = "/dev/net/tun"

// ifReq mirrors struct ifreq for TUNSETIFF.
type ifReq struct {
	Name  [unix.IFNAMSIZ]byte
	Flags uint16
	pad   [22]byte
}

// Device is a TAP endpoint. Reads return one frame per call in the
// engine's wire format: a 2-byte protocol tag followed by the 14-byte
// Ethernet header and payload. Writes accept the same format and
// strip the tag before handing the frame to the kernel.
type Device struct {
	f    *os.File
	name string
	buf  []byte
}

// Open creates (or attaches to) a TAP device. The kernel's own
// packet-info prefix is disabled; the engine's 2-byte protocol tag is
// synthesized from the Ethernet header instead, which keeps frames
// bit-compatible with recorded traces.
func Open(name string) (*Device, error) {
	f, err := os.OpenFile(tunDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tunDevice, err)
	}

	var req ifReq
	copy(req.Name[:], name)
	req.Flags = unix.IFF_TAP | unix.IFF_NO_PI

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(),
		unix.TUNSETIFF, uintptr(unsafe.Pointer(&req))); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("TUNSETIFF %s: %w", name, errno)
	}

	return &Device{
		f:    f,
		name: name,
		buf:  make([]byte, 65536),
	}, nil
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Fd() uintptr {
	return d.f.Fd()
}

// Read fills p with one tagged frame. The tag repeats the EtherType so
// the classifier's fixed offsets line up.
func (d *Device) Read(p []byte) (int, error) {
	n, err := d.f.Read(d.buf)
	if err != nil {
		return 0, err
	}
	if n < 14 {
		return 0, nil
	}

	total := n + 2
	if total > len(p) {
		return 0, fmt.Errorf("%s: frame of %d bytes exceeds read buffer", d.name, total)
	}

	// protocol tag: the EtherType at Ethernet offset 12
	p[0] = d.buf[12]
	p[1] = d.buf[13]
	copy(p[2:], d.buf[:n])
	return total, nil
}

// Write sends one tagged frame, dropping the 2-byte tag.
func (d *Device) Write(p []byte) (int, error) {
	if len(p) <= 2 {
		return len(p), nil
	}
	n, err := d.f.Write(p[2:])
	if err != nil {
		return n, err
	}
	return n + 2, nil
}

func (d *Device) Close() error {
	return d.f.Close()
}
