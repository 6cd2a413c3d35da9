package ocd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus is an in-memory stand-in for the UPDI transport: a flat
// byte-addressed store plus a handful of CSRs, enough to exercise the OCD
// register-window semantics without real hardware.
type fakeBus struct {
	csr  map[byte]byte
	mem  map[uint32]byte
	conn bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{csr: map[byte]byte{}, mem: map[uint32]byte{}}
}

func (f *fakeBus) Connect() (int, error)      { f.conn = true; return 3, nil }
func (f *fakeBus) Disconnect() error          { f.conn = false; return nil }
func (f *fakeBus) Resynchronize() (byte, error) { return 0, nil }
func (f *fakeBus) Key(key [8]byte) error      { return nil }

func (f *fakeBus) LoadCSR(addr byte) (byte, error) { return f.csr[addr], nil }
func (f *fakeBus) StoreCSR(addr, value byte) error { f.csr[addr] = value; return nil }

func (f *fakeBus) LoadDirect(addr uint32, addrWidth, dataWidth int) (uint16, error) {
	if dataWidth == DataByte {
		return uint16(f.mem[addr]), nil
	}
	return uint16(f.mem[addr]) | uint16(f.mem[addr+1])<<8, nil
}

func (f *fakeBus) StoreDirect(addr uint32, data uint16, addrWidth, dataWidth int) error {
	f.mem[addr] = byte(data)
	if dataWidth == DataWord {
		f.mem[addr+1] = byte(data >> 8)
	}
	return nil
}

func (f *fakeBus) LoadBurst(addr uint32, dataWidth, burst int) ([]byte, error) {
	out := make([]byte, burst)
	for i := 0; i < burst; i++ {
		out[i] = f.mem[addr+uint32(i)]
	}
	return out, nil
}

func (f *fakeBus) StoreBurst(addr uint32, data []byte, dataWidth, burst int) error {
	for i := 0; i < burst; i++ {
		f.mem[addr+uint32(i)] = data[i]
	}
	return nil
}

func TestAttachUnlocksOCD(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0x4000, nil)
	require.NoError(t, dbg.Attach())
	assert.True(t, bus.conn)
	assert.Equal(t, byte(ctrlaGTVal2Cycles), bus.csr[csrCTRLA])
}

// GetPC undoes the hardware's +1 fetch bias: the raw OCD.PC register holds
// the word address of the next fetch, one past the reported value.
func TestGetPC_SubtractsFetchBias(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)
	require.NoError(t, bus.StoreDirect(ocdPC, 0x1235, AddrWord, DataWord))

	pc, err := dbg.GetPC()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), pc)
}

// SetPC writes the raw value (not biased) and issues a single Step to
// consume the otherwise-skipped prefetch slot.
func TestSetPC_WritesRawAndSteps(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)
	bus.mem[ocdCAUSE] = 0x01 // IsHalted() must see a halt for Step()'s poll to return

	require.NoError(t, dbg.SetPC(0x1234))
	raw, err := bus.LoadDirect(ocdPC, AddrWord, DataWord)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), raw)
}

func TestRegisterFileRoundTrip(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)

	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, dbg.SetRegisterFile(data))

	got, err := dbg.GetRegisterFile()
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestIsHalted_CauseNonZero(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)
	bus.mem[ocdCAUSE] = 0x04
	halted, err := dbg.IsHalted()
	require.NoError(t, err)
	assert.True(t, halted)
}

func TestIsHalted_StatusBit(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)
	bus.csr[csrASIOCDStat] = ocdStopped
	halted, err := dbg.IsHalted()
	require.NoError(t, err)
	assert.True(t, halted)
}

func TestSetTraps(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)
	require.NoError(t, dbg.SetTraps(TrapHWBP|TrapBP0))
	v, err := bus.LoadDirect(ocdTRAPEN, AddrWord, DataWord)
	require.NoError(t, err)
	assert.Equal(t, uint16(TrapHWBP|TrapBP0), v)
}

func TestEnableDisableTraps(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)
	require.NoError(t, dbg.EnableTraps(TrapHWBP))
	require.NoError(t, dbg.EnableTraps(TrapBP0))
	v, _ := bus.LoadDirect(ocdTRAPEN, AddrWord, DataWord)
	assert.Equal(t, uint16(TrapHWBP|TrapBP0), v)

	require.NoError(t, dbg.DisableTraps(TrapHWBP))
	v, _ = bus.LoadDirect(ocdTRAPEN, AddrWord, DataWord)
	assert.Equal(t, uint16(TrapBP0), v)
}

func TestReadCode_OutOfRangeReturnsEmpty(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)
	data, err := dbg.ReadCode(codeSpaceSize, 4)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestWriteData_Bounds(t *testing.T) {
	bus := newFakeBus()
	dbg := New(bus, 0, nil)

	ok, err := dbg.WriteData(dataSpaceSize, []byte{1})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = dbg.WriteData(0, make([]byte, maxBurst+1))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = dbg.WriteData(0x10, []byte{0xAA, 0xBB})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, byte(0xAA), bus.mem[0x10])
}
