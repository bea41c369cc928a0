//go:build linux

// Package tun attaches to a Linux TUN device, the virtual point-to-point
// interface that delivers whole IP datagrams with no link-layer framing.
package tun

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Device is an open TUN interface. It satisfies tcpstack.DatagramInterface.
type Device struct {
	f    *os.File
	name string
}

// Open creates (or attaches to) the named TUN interface in IFF_NO_PI mode.
// The interface still has to be brought up and addressed externally
// (ip link set / ip addr add).
func Open(name string) (*Device, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/net/tun: %w", err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("interface name %q: %w", name, err)
	}
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("TUNSETIFF %q: %w", name, err)
	}

	return &Device{
		f:    os.NewFile(uintptr(fd), "/dev/net/tun"),
		name: ifr.Name(),
	}, nil
}

// Name returns the kernel-assigned interface name.
func (d *Device) Name() string { return d.name }

// ReadDatagram blocks until the kernel delivers one whole datagram.
func (d *Device) ReadDatagram(buf []byte) (int, error) {
	return d.f.Read(buf)
}

// WriteDatagram hands one whole datagram to the kernel.
func (d *Device) WriteDatagram(pkt []byte) error {
	_, err := d.f.Write(pkt)
	return err
}

// Close tears the device down and unblocks any in-flight read.
func (d *Device) Close() error {
	return d.f.Close()
}
