package hat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tinygo.org/x/drivers"
)

// Source names the signal that decided a Detection.
type Source string

const (
	SourceDescriptor Source = "descriptor"
	SourceBusScan    Source = "bus-scan"
	SourceDefault    Source = "default"
	SourceOverride   Source = "override"
)

// ErrAddressBusy marks an address already claimed by a kernel driver; the peripheral is present.
var ErrAddressBusy = errors.New("i2c address claimed by a kernel driver")

// BusOpener opens the I2C bus used by the fallback scan.
type BusOpener func() (drivers.I2C, io.Closer, error)

// Detection is the classification result plus the report lines explaining it.
type Detection struct {
	Variant    Variant
	Source     Source
	Descriptor *Descriptor
	Address    uint16
	Lines      []string
}

// Amplifier enable GPIOs. Boards that publish an EEPROM descriptor drive the
// speaker amplifier from GPIO 12; earlier boards without one use GPIO 20.
const (
	SpeakerPinDescribed = 12
	SpeakerPinLegacy    = 20
)

// SpeakerPin returns the BCM GPIO that enables the speaker amplifier.
func (d Detection) SpeakerPin() int {
	if d.Descriptor != nil {
		return SpeakerPinDescribed
	}
	return SpeakerPinLegacy
}

// Report renders the human-readable detection report.
func (d Detection) Report() string {
	lines := append([]string(nil), d.Lines...)
	lines = append(lines, fmt.Sprintf("variant: %s (source: %s)", d.Variant, d.Source))
	return strings.Join(lines, "\n")
}

// Identifier classifies the attached Hat: descriptor store first, bus scan as fallback.
type Identifier struct {
	Store       DescriptorStore
	OpenBus     BusOpener
	UUIDs       []string
	MicRevision uint64
	Addresses   []uint16
	Logger      *slog.Logger
}

// Identify never yields Unknown: every inconclusive path degrades to WithoutMic.
// The only error is context cancellation.
func (i *Identifier) Identify(ctx context.Context) (Detection, error) {
	det := Detection{}

	if i.Store != nil {
		desc, found, err := i.Store.Find(i.UUIDs)
		switch {
		case err != nil:
			det.note(i.Logger, "descriptor store unreadable: %v", err)
		case found:
			det.Descriptor = &desc
			det.Source = SourceDescriptor
			det.Variant = WithoutMic
			if desc.ProductVer >= i.MicRevision {
				det.Variant = WithMic
			}
			det.note(i.Logger, "descriptor %s matched uuid %s (product %q, version 0x%04x, mic revision 0x%04x)",
				desc.Dir, desc.UUID, desc.Product, desc.ProductVer, i.MicRevision)
			return det, nil
		default:
			det.note(i.Logger, "no descriptor matched the known hat uuids")
		}
	}

	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}

	addr, found, err := i.scan(ctx, &det)
	if err != nil {
		return Detection{}, err
	}
	if found {
		det.Variant = WithMic
		det.Source = SourceBusScan
		det.Address = addr
		det.note(i.Logger, "peripheral controller answered at 0x%02x", addr)
		return det, nil
	}

	det.Variant = WithoutMic
	det.Source = SourceDefault
	det.note(i.Logger, "no positive detection; defaulting to the playback-only variant")
	return det, nil
}

func (i *Identifier) scan(ctx context.Context, det *Detection) (uint16, bool, error) {
	if i.OpenBus == nil || len(i.Addresses) == 0 {
		det.note(i.Logger, "bus scan not configured")
		return 0, false, nil
	}

	bus, closer, err := i.OpenBus()
	if err != nil {
		det.note(i.Logger, "bus scan unavailable: %v", err)
		return 0, false, nil
	}
	if closer != nil {
		defer closer.Close()
	}

	for _, addr := range i.Addresses {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		if Acknowledges(bus, addr) {
			return addr, true, nil
		}
		det.note(i.Logger, "no answer at 0x%02x", addr)
	}
	return 0, false, nil
}

// Acknowledges reports whether a device acknowledges a one-byte read at addr.
func Acknowledges(bus drivers.I2C, addr uint16) bool {
	buf := make([]byte, 1)
	err := bus.Tx(addr, nil, buf)
	return err == nil || errors.Is(err, ErrAddressBusy)
}

func (d *Detection) note(logger *slog.Logger, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	d.Lines = append(d.Lines, line)
	if logger != nil {
		logger.Debug("hat detection", "detail", line)
	}
}
