//go:build !linux

package hat

import (
	"errors"
	"io"

	"tinygo.org/x/drivers"
)

// Opener reports that no I2C character device exists on this platform.
func Opener(int) BusOpener {
	return func() (drivers.I2C, io.Closer, error) {
		return nil, nil, errors.New("i2c bus scan is only supported on linux")
	}
}
