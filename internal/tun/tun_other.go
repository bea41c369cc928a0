//go:build !linux

package tun

import "errors"

var errUnsupported = errors.New("tun: only supported on linux")

// Device is a stub on platforms without TUN support.
type Device struct{}

func Open(name string) (*Device, error) { return nil, errUnsupported }

func (d *Device) Name() string { return "" }

func (d *Device) ReadDatagram(buf []byte) (int, error) { return 0, errUnsupported }

func (d *Device) WriteDatagram(pkt []byte) error { return errUnsupported }

func (d *Device) Close() error { return nil }
