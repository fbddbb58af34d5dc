//go:build linux

package device

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// Linux hidraw ioctl request numbers, computed with the kernel's _IOC
// encoding (include/uapi/linux/hidraw.h / asm-generic/ioctl.h). These
// are fixed kernel ABI constants, not invented values; Go has no
// generated binding for them the way cgo would, so hidraw backends
// (ours and the handful of third-party Go HID libraries that exist)
// compute them by hand the same way.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocRead  = 2
	iocWrite = 1

	hidrawIOCType = 'H'

	hidMaxDescriptorSize = 4096
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func hidiocGFeature(size int) uintptr {
	return ioc(iocWrite|iocRead, hidrawIOCType, 0x07, uintptr(size))
}

func hidiocSFeature(size int) uintptr {
	return ioc(iocWrite|iocRead, hidrawIOCType, 0x06, uintptr(size))
}

var (
	hidiocGRDescSize = ioc(iocRead, hidrawIOCType, 0x01, 4)
	hidiocGRDesc     = ioc(iocRead, hidrawIOCType, 0x02, 4+hidMaxDescriptorSize)
)

// hidrawReportDescriptor mirrors struct hidraw_report_descriptor from
// linux/hidraw.h.
type hidrawReportDescriptor struct {
	Size  uint32
	Value [hidMaxDescriptorSize]byte
}

// HidrawDevice is the production Device backend: a real hidraw character
// device node, read via plain file I/O and controlled via HIDIOCGFEATURE
// / HIDIOCSFEATURE / HIDIOCGRDESC ioctls, grounded on
// original_source/src/core/linux/device/hidraw.hpp's open/ioctl sequence.
type HidrawDevice struct {
	f *os.File
}

// OpenHidraw opens the hidraw node at path for read/write.
func OpenHidraw(path string) (*HidrawDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &HidrawDevice{f: f}, nil
}

func (d *HidrawDevice) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, d.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Read reads one report directly from the device node.
func (d *HidrawDevice) Read(buf []byte) (int, error) {
	return d.f.Read(buf)
}

// GetFeature issues HIDIOCGFEATURE for reportID and copies the report's
// payload, without the leading report ID byte the ioctl returns, into
// buf. The returned count is the number of payload bytes copied.
func (d *HidrawDevice) GetFeature(reportID uint8, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("device: GetFeature requires a non-empty buffer")
	}
	msg := make([]byte, len(buf)+1)
	msg[0] = reportID

	req := hidiocGFeature(len(msg))
	if err := d.ioctl(req, unsafe.Pointer(&msg[0])); err != nil {
		return 0, err
	}
	return copy(buf, msg[1:]), nil
}

// SetFeature issues HIDIOCSFEATURE with reportID followed by the payload
// in buf.
func (d *HidrawDevice) SetFeature(reportID uint8, buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("device: SetFeature requires a non-empty buffer")
	}
	msg := append([]byte{reportID}, buf...)

	req := hidiocSFeature(len(msg))
	return d.ioctl(req, unsafe.Pointer(&msg[0]))
}

// RawDescriptor fetches the device's binary HID report descriptor via
// HIDIOCGRDESCSIZE followed by HIDIOCGRDESC.
func (d *HidrawDevice) RawDescriptor() ([]byte, error) {
	var size uint32
	if err := d.ioctl(hidiocGRDescSize, unsafe.Pointer(&size)); err != nil {
		return nil, err
	}

	desc := hidrawReportDescriptor{Size: size}
	if err := d.ioctl(hidiocGRDesc, unsafe.Pointer(&desc)); err != nil {
		return nil, err
	}

	return append([]byte(nil), desc.Value[:size]...), nil
}

// Close closes the device node.
func (d *HidrawDevice) Close() error {
	return d.f.Close()
}
