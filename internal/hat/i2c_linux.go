//go:build linux

package hat

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

// I2C_SLAVE from linux/i2c-dev.h.
const i2cSlave = 0x0703

// DevI2C implements drivers.I2C on top of a Linux /dev/i2c-N character device.
type DevI2C struct {
	mu   sync.Mutex
	fd   int
	path string
}

// OpenI2C opens /dev/i2c-<bus> for read/write.
func OpenI2C(bus int) (*DevI2C, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DevI2C{fd: fd, path: path}, nil
}

// Opener adapts OpenI2C to a BusOpener.
func Opener(bus int) BusOpener {
	return func() (drivers.I2C, io.Closer, error) {
		dev, err := OpenI2C(bus)
		if err != nil {
			return nil, nil, err
		}
		return dev, dev, nil
	}
}

// Tx writes w then reads len(r) bytes from addr.
func (d *DevI2C) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := unix.IoctlSetInt(d.fd, i2cSlave, int(addr)); err != nil {
		if errors.Is(err, unix.EBUSY) {
			return fmt.Errorf("%s addr 0x%02x: %w", d.path, addr, ErrAddressBusy)
		}
		return fmt.Errorf("%s select 0x%02x: %w", d.path, addr, err)
	}
	if len(w) > 0 {
		if _, err := unix.Write(d.fd, w); err != nil {
			return fmt.Errorf("%s write 0x%02x: %w", d.path, addr, err)
		}
	}
	if len(r) > 0 {
		if _, err := unix.Read(d.fd, r); err != nil {
			return fmt.Errorf("%s read 0x%02x: %w", d.path, addr, err)
		}
	}
	return nil
}

func (d *DevI2C) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
