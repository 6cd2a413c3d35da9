// Package ocd implements the on-chip-debug register-level state machine:
// CPU run/halt, single-step, breakpoint arming, reset, and register-file
// access, built on top of the UPDI wire driver.
package ocd

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Bus is the subset of updi.Client this package drives the target through.
// Declaring it as an interface (rather than depending on *updi.Client
// directly) keeps this package's tests hardware-free.
type Bus interface {
	Connect() (int, error)
	Disconnect() error
	Resynchronize() (byte, error)
	LoadCSR(addr byte) (byte, error)
	StoreCSR(addr, value byte) error
	Key(key [8]byte) error
	LoadDirect(addr uint32, addrWidth, dataWidth int) (uint16, error)
	StoreDirect(addr uint32, data uint16, addrWidth, dataWidth int) error
	LoadBurst(addr uint32, dataWidth, burst int) ([]byte, error)
	StoreBurst(addr uint32, data []byte, dataWidth, burst int) error
}

// Key/width constants mirrored from the updi package so callers don't need
// to import it just to pass a width/key value through this layer.
const (
	AddrByte  = 0
	AddrWord  = 1
	Addr3Byte = 2
	DataByte  = 0
	DataWord  = 1
)

var KeyOCD = [8]byte{'O', 'C', 'D', ' ', ' ', ' ', ' ', ' '}

// OCD register window, a fixed byte-addressed region of the target's data
// space.
const (
	ocdBase    = 0x0F80
	ocdBP0A    = ocdBase + 0x00
	ocdBP0AT   = ocdBase + 0x02
	ocdBP1A    = ocdBase + 0x04
	ocdBP1AT   = ocdBase + 0x06
	ocdTRAPEN  = ocdBase + 0x08
	ocdTRAPENL = ocdBase + 0x08
	ocdTRAPENH = ocdBase + 0x09
	ocdCAUSE   = ocdBase + 0x0C
	ocdPC      = ocdBase + 0x14
	ocdSP      = ocdBase + 0x18
	ocdSREG    = ocdBase + 0x1C
	ocdR0      = ocdBase + 0x20
)

// UPDI CSR addresses used by this layer.
const (
	csrCTRLA       = 0x2
	csrASIOCDCTRLA = 0x4
	csrASIOCDStat  = 0x5
	csrASIResetReq = 0x8
	csrASISysStat  = 0xB
)

const (
	ctrlaGTVal2Cycles = 0x6
	ocdStop           = 0x01
	ocdStopped        = 0x01
	ocdRun            = 0x02
	rstreqReset       = 0x59
	rstreqRun         = 0x00
	sysSysRst         = 0x20
)

// Traps enumerates the TRAPEN bitfield.
type Traps uint16

const (
	TrapUnknown1 Traps = 0x0001
	TrapHWBP     Traps = 0x0002
	TrapStep     Traps = 0x0004
	TrapBP0      Traps = 0x0100
	TrapBP1      Traps = 0x0200
	TrapEXTBRK   Traps = 0x1000
	TrapSWBP     Traps = 0x2000
	TrapJMP      Traps = 0x4000
	TrapINT      Traps = 0x8000
	TrapUnknown2 Traps = 0x0008
)

// Debugger is the OCD register-level state machine built on top of a UPDI
// bus. flashOffset maps the client's flat flash byte address onto the
// UPDI data-space address of the code-flash mapping.
type Debugger struct {
	bus         Bus
	flashOffset uint32
	log         logrus.FieldLogger
}

func New(bus Bus, flashOffset uint32, log logrus.FieldLogger) *Debugger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Debugger{bus: bus, flashOffset: flashOffset, log: log}
}

// Attach connects to the target and unlocks OCD access. If the initial
// connect fails (the target's UPDI interface may already be active from a
// previous session), it resynchronizes and retries once.
func (d *Debugger) Attach() error {
	if _, err := d.bus.Connect(); err != nil {
		d.log.WithError(err).Warn("connect failed, resynchronizing")
		if _, rerr := d.bus.Resynchronize(); rerr != nil {
			return rerr
		}
		if _, err := d.bus.Connect(); err != nil {
			return err
		}
	}
	if err := d.bus.Key(KeyOCD); err != nil {
		return err
	}
	// Minimum guard time: contention is not destructive on an open-drain bus.
	return d.bus.StoreCSR(csrCTRLA, ctrlaGTVal2Cycles)
}

func (d *Debugger) Detach() error {
	return d.bus.Disconnect()
}

func (d *Debugger) Halt() error {
	return d.bus.StoreCSR(csrASIOCDCTRLA, ocdStop)
}

func (d *Debugger) Run() error {
	return d.bus.StoreCSR(csrASIOCDCTRLA, ocdRun)
}

// IsHalted ORs the OCD status bit with a plain read of CAUSE: a non-zero
// halt cause also indicates a halt.
func (d *Debugger) IsHalted() (bool, error) {
	status, err := d.bus.LoadCSR(csrASIOCDStat)
	if err != nil {
		return false, err
	}
	if status&ocdStopped != 0 {
		return true, nil
	}
	cause, err := d.bus.LoadDirect(ocdCAUSE, AddrWord, DataWord)
	if err != nil {
		return false, err
	}
	return cause != 0, nil
}

// PollHalted busy-loops IsHalted, bounded by an optional iteration count
// (0 means unbounded) and an optional sleep between polls.
func (d *Debugger) PollHalted(interval time.Duration, count int) (bool, error) {
	for {
		halted, err := d.IsHalted()
		if err != nil {
			return false, err
		}
		if halted {
			return true, nil
		}
		if count > 0 {
			count--
			if count <= 0 {
				return false, nil
			}
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}
}

// Reset pulses ASI_RESET_REQ and waits for SYSRST to clear.
func (d *Debugger) Reset() error {
	if err := d.bus.StoreCSR(csrASIResetReq, rstreqReset); err != nil {
		return err
	}
	if err := d.bus.StoreCSR(csrASIResetReq, rstreqRun); err != nil {
		return err
	}
	for {
		status, err := d.bus.LoadCSR(csrASISysStat)
		if err != nil {
			return err
		}
		if status&sysSysRst == 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (d *Debugger) SetTraps(traps Traps) error {
	return d.bus.StoreDirect(ocdTRAPEN, uint16(traps), AddrWord, DataWord)
}

func (d *Debugger) EnableTraps(traps Traps) error {
	current, err := d.bus.LoadDirect(ocdTRAPEN, AddrWord, DataWord)
	if err != nil {
		return err
	}
	return d.bus.StoreDirect(ocdTRAPEN, uint16(traps)|current, AddrWord, DataWord)
}

func (d *Debugger) DisableTraps(traps Traps) error {
	current, err := d.bus.LoadDirect(ocdTRAPEN, AddrWord, DataWord)
	if err != nil {
		return err
	}
	return d.bus.StoreDirect(ocdTRAPEN, current&^uint16(traps), AddrWord, DataWord)
}
