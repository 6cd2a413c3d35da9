package ocd

import "fmt"

// Diagnostics is the decoded form of a raw register-window dump, the data
// backing the RSP layer's "monitor regs" reply.
type Diagnostics struct {
	BP0Word    uint32
	BP1Word    uint32
	TrapEnable Traps
	Cause      uint16
	PC         uint16
	SP         uint16
	SREG       byte
	Registers  [32]byte
}

// Dump reads the entire OCD register window in one 64-byte burst and decodes
// it into a Diagnostics value.
func (d *Debugger) Dump() (Diagnostics, error) {
	raw, err := d.bus.LoadBurst(ocdBase, DataByte, 64)
	if err != nil {
		return Diagnostics{}, err
	}
	var diag Diagnostics
	diag.BP0Word = uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16
	diag.BP1Word = uint32(raw[4]) | uint32(raw[5])<<8 | uint32(raw[6])<<16
	diag.TrapEnable = Traps(uint16(raw[8]) | uint16(raw[9])<<8)
	diag.Cause = uint16(raw[0x0C]) | uint16(raw[0x0D])<<8
	diag.PC = (uint16(raw[0x14]) | uint16(raw[0x15])<<8) - 1
	diag.SP = uint16(raw[0x18]) | uint16(raw[0x19])<<8
	diag.SREG = raw[0x1C]
	copy(diag.Registers[:], raw[0x20:0x40])
	return diag, nil
}

// Traps.String and sregString render letter-coded summaries used by the
// "monitor regs" text reply.

func (t Traps) String() string {
	bit := func(set Traps, c, absent byte) byte {
		if t&set != 0 {
			return c
		}
		return absent
	}
	return string([]byte{
		bit(TrapINT, 'I', '_'),
		bit(TrapJMP, 'J', '_'),
		bit(TrapSWBP, 'S', '_'),
		bit(TrapEXTBRK, 'X', '_'),
		bit(TrapBP1, '1', '_'),
		bit(TrapBP0, '0', '_'),
		bit(TrapStep, 'P', '_'),
		bit(TrapHWBP, 'H', '_'),
		bit(TrapUnknown1, '?', '_'),
	})
}

func sregString(sreg byte) string {
	bit := func(mask byte, set, unset rune) rune {
		if sreg&mask != 0 {
			return set
		}
		return unset
	}
	return string([]rune{
		bit(0x80, 'I', 'i'),
		bit(0x40, 'T', 't'),
		bit(0x20, 'H', 'h'),
		bit(0x10, 'S', 's'),
		bit(0x08, 'V', 'v'),
		bit(0x04, 'N', 'n'),
		bit(0x02, 'Z', 'z'),
		bit(0x01, 'C', 'c'),
	})
}

// Text renders the dump the way "monitor regs" reports it back to the GDB
// console.
func (diag Diagnostics) Text() string {
	return fmt.Sprintf(
		"BP0:\t 0x%04x W (0x%05x B)\nBP1:\t 0x%04x W (0x%05x B)\nTRAPEN:\t 0x%04x (%s)\nREASON:\t 0x%04x\nPC:\t 0x%04x W (0x%05x B)\nSP:\t 0x%04x\nSREG:\t %s\nRn:\t % x\n",
		diag.BP0Word>>1, diag.BP0Word,
		diag.BP1Word>>1, diag.BP1Word,
		uint16(diag.TrapEnable), diag.TrapEnable.String(),
		diag.Cause,
		diag.PC, uint32(diag.PC)<<1,
		diag.SP,
		sregString(diag.SREG),
		diag.Registers,
	)
}
