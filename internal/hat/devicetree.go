package hat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Descriptor is one attached-board entry from the device tree.
type Descriptor struct {
	Dir        string
	UUID       string
	Product    string
	Vendor     string
	ProductID  uint64
	ProductVer uint64
}

// DescriptorStore finds a board descriptor matching one of the given identifiers.
type DescriptorStore interface {
	Find(uuids []string) (Descriptor, bool, error)
}

// DeviceTree reads HAT EEPROM descriptors exported by the firmware under Root.
type DeviceTree struct {
	Root string
}

// Find scans Root for "*hat*" directories and returns the first whose uuid matches.
// A missing Root is not an error; it just means no descriptor is available.
func (d DeviceTree) Find(uuids []string) (Descriptor, bool, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Descriptor{}, false, nil
		}
		return Descriptor{}, false, fmt.Errorf("read device tree %q: %w", d.Root, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.Contains(entry.Name(), "hat") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(d.Root, name)
		uuid, err := readField(dir, "uuid")
		if err != nil {
			continue
		}
		if !containsFold(uuids, uuid) {
			continue
		}
		return readDescriptor(dir, uuid)
	}
	return Descriptor{}, false, nil
}

func readDescriptor(dir, uuid string) (Descriptor, bool, error) {
	desc := Descriptor{Dir: dir, UUID: uuid}
	desc.Product, _ = readField(dir, "product")
	desc.Vendor, _ = readField(dir, "vendor")

	rawID, err := readField(dir, "product_id")
	if err == nil {
		if desc.ProductID, err = parseHex(rawID); err != nil {
			return Descriptor{}, false, fmt.Errorf("parse product_id in %s: %w", dir, err)
		}
	}

	rawVer, err := readField(dir, "product_ver")
	if err != nil {
		return Descriptor{}, false, fmt.Errorf("read product_ver in %s: %w", dir, err)
	}
	if desc.ProductVer, err = parseHex(rawVer); err != nil {
		return Descriptor{}, false, fmt.Errorf("parse product_ver in %s: %w", dir, err)
	}
	return desc, true, nil
}

// readField reads a device-tree string property; values carry a trailing NUL.
func readField(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimRight(string(data), "\x00")), nil
}

func parseHex(raw string) (uint64, error) {
	raw = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "0x")
	return strconv.ParseUint(raw, 16, 32)
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
