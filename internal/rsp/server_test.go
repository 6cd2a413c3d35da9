package rsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyupdi/updidbg/internal/ocd"
)

// fakeBus is the same kind of in-memory stand-in internal/ocd uses in its
// own tests, reimplemented here since it's unexported there.
type fakeBus struct {
	csr map[byte]byte
	mem map[uint32]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{csr: map[byte]byte{}, mem: map[uint32]byte{}}
}

func (f *fakeBus) Connect() (int, error)        { return 3, nil }
func (f *fakeBus) Disconnect() error            { return nil }
func (f *fakeBus) Resynchronize() (byte, error) { return 0, nil }
func (f *fakeBus) Key(key [8]byte) error        { return nil }

func (f *fakeBus) LoadCSR(addr byte) (byte, error) { return f.csr[addr], nil }
func (f *fakeBus) StoreCSR(addr, value byte) error { f.csr[addr] = value; return nil }

func (f *fakeBus) LoadDirect(addr uint32, addrWidth, dataWidth int) (uint16, error) {
	if dataWidth == ocd.DataByte {
		return uint16(f.mem[addr]), nil
	}
	return uint16(f.mem[addr]) | uint16(f.mem[addr+1])<<8, nil
}

func (f *fakeBus) StoreDirect(addr uint32, data uint16, addrWidth, dataWidth int) error {
	f.mem[addr] = byte(data)
	if dataWidth == ocd.DataWord {
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

func newTestServer(bus *fakeBus) *Server {
	return &Server{dbg: ocd.New(bus, 0, nil)}
}

// S4 — Register read.
func TestDispatch_S4_RegisterRead(t *testing.T) {
	bus := newFakeBus()
	const ocdR0 = 0x0F80 + 0x20
	for i := 0; i < 32; i++ {
		bus.mem[uint32(ocdR0+i)] = byte(i)
	}
	bus.mem[0x0F80+0x1C] = 0x80           // SREG
	bus.mem[0x0F80+0x18] = 0xFE           // SP low
	bus.mem[0x0F80+0x19] = 0x3F           // SP high
	bus.mem[0x0F80+0x14] = 0x24           // PC low (raw, biased +1)
	bus.mem[0x0F80+0x15] = 0x01           // PC high

	s := newTestServer(bus)
	reply, exit, err := s.dispatch("g")
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f80fe3f46020000", reply)
}

// S5 — BP alloc/free.
func TestDispatch_S5_BreakpointAllocFree(t *testing.T) {
	bus := newFakeBus()
	s := newTestServer(bus)

	reply, _, err := s.dispatch("Z1,1234,2")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)

	reply, _, err = s.dispatch("Z1,5678,2")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)

	reply, _, err = s.dispatch("Z1,9abc,2")
	require.NoError(t, err)
	assert.Equal(t, "E04", reply)

	reply, _, err = s.dispatch("z1,1234,2")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)

	reply, _, err = s.dispatch("Z1,9abc,2")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)
}

// S6 — Memory out of range.
func TestDispatch_S6_MemoryOutOfRange(t *testing.T) {
	bus := newFakeBus()
	s := newTestServer(bus)

	reply, _, err := s.dispatch("m200000,10")
	require.NoError(t, err)
	assert.Equal(t, "E02", reply)

	reply, _, err = s.dispatch("m810000,10")
	require.NoError(t, err)
	assert.Equal(t, "E02", reply)

	reply, _, err = s.dispatch("m7fffff,10")
	require.NoError(t, err)
	assert.Equal(t, "E02", reply)
}

func TestDispatch_SoftwareBreakpointsUnsupported(t *testing.T) {
	s := newTestServer(newFakeBus())
	reply, _, err := s.dispatch("Z0,1234,2")
	require.NoError(t, err)
	assert.Equal(t, "E00", reply)

	reply, _, err = s.dispatch("z0,1234,2")
	require.NoError(t, err)
	assert.Equal(t, "E00", reply)
}

func TestDispatch_UnknownPacketEmptyReply(t *testing.T) {
	s := newTestServer(newFakeBus())
	reply, exit, err := s.dispatch("qSomethingUnknown")
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, "", reply)
}

func TestDispatch_DetachSignalsExit(t *testing.T) {
	s := newTestServer(newFakeBus())
	reply, exit, err := s.dispatch("D")
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Equal(t, "OK", reply)
}
