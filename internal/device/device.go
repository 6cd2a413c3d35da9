// Package device maps a part name (as given on the CLI) to the constants
// the OCD layer needs to talk to it: where code flash is mapped into data
// space, and where the device signature lives.
package device

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Info is the per-part constant set the debug bridge needs. NVM page sizes
// are carried for a future flash-programming path; this bridge doesn't
// write flash, but the lookup table is the natural home for the whole
// device fact sheet rather than a second, parallel table.
type Info struct {
	PartName       string
	FlashOffset    uint32
	SignatureAddr  uint32
	FlashPageSize  int
	EEPROMPageSize int
}

var (
	megaAVR = regexp.MustCompile(`^atmega(8|16|32|48)0(8|9)$`)
	tinyAVR = regexp.MustCompile(`^attiny(2|4|8|16|32)(0|1|2)(2|4|6|7)$`)
	dxAVR   = regexp.MustCompile(`^avr(16|32|64|128)(da|db|dd|du|ea|eb)(14|20|28|32|48|64)$`)
)

// ErrUnknownPart is returned by Lookup for a part name matching none of the
// three recognized families.
type ErrUnknownPart struct{ Part string }

func (e *ErrUnknownPart) Error() string { return fmt.Sprintf("device: unrecognized part %q", e.Part) }

// Lookup resolves a CLI-supplied part name into its Info. Matching is
// case-insensitive.
func Lookup(partName string) (Info, error) {
	name := strings.ToLower(partName)

	if m := megaAVR.FindStringSubmatch(name); m != nil {
		return sizedInfo(name, 0x4000, 0x1100, m[1]), nil
	}
	if m := tinyAVR.FindStringSubmatch(name); m != nil {
		return sizedInfo(name, 0x8000, 0x1100, m[1]), nil
	}
	if m := dxAVR.FindStringSubmatch(name); m != nil {
		return dxInfo(name, m[2], m[1]), nil
	}
	return Info{}, &ErrUnknownPart{Part: partName}
}

func sizedInfo(name string, flashOffset, sigAddr uint32, flashGroup string) Info {
	highDensity, _ := strconv.Atoi(flashGroup)
	pageSize, eepromPage := 64, 32
	if highDensity >= 32 {
		pageSize, eepromPage = 128, 64
	}
	return Info{
		PartName:       name,
		FlashOffset:    flashOffset,
		SignatureAddr:  sigAddr,
		FlashPageSize:  pageSize,
		EEPROMPageSize: eepromPage,
	}
}

func dxInfo(name, family, flashGroup string) Info {
	base := Info{PartName: name, FlashOffset: 0x800000, SignatureAddr: 0x1100}
	switch family {
	case "da", "db", "dd":
		base.FlashPageSize, base.EEPROMPageSize = 512, 1
	case "du":
		base.SignatureAddr = 0x1080
		base.FlashPageSize, base.EEPROMPageSize = 512, 1
	case "ea":
		base.EEPROMPageSize = 8
		if flashGroup == "64" {
			base.FlashPageSize = 128
		} else {
			base.FlashPageSize = 64
		}
	case "eb":
		base.SignatureAddr = 0x1080
		base.FlashPageSize, base.EEPROMPageSize = 64, 8
	}
	return base
}
