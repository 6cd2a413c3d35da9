package updi

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyupdi/updidbg/internal/serialport"
)

// fakeTransport is a loopback stand-in for the serial port: writes go into
// a tx log, and ReadFull drains a pre-seeded rx buffer, the way a real
// UPDI target would echo then respond.
type fakeTransport struct {
	tx  bytes.Buffer
	rx  []byte
	dtr []bool
}

func (f *fakeTransport) Write(data []byte) (int, error) {
	return f.tx.Write(data)
}

func (f *fakeTransport) ReadFull(data []byte, timeout time.Duration) (int, error) {
	n := copy(data, f.rx)
	f.rx = f.rx[n:]
	if n < len(data) {
		return n, nil
	}
	return n, nil
}

func (f *fakeTransport) Flush(queue serialport.Queue) error    { return nil }
func (f *fakeTransport) SetDTR(on bool) error                  { f.dtr = append(f.dtr, on); return nil }
func (f *fakeTransport) SendBreak(duration time.Duration) error { return nil }
func (f *fakeTransport) Close() error                          { return nil }

func newTestClient(rx []byte) (*Client, *fakeTransport) {
	ft := &fakeTransport{rx: rx}
	return newClientWithTransport(ft, nil), ft
}

func TestLoadCSR(t *testing.T) {
	// echo of [sync, opcode] then the CSR value
	c, ft := newTestClient([]byte{syncChar, 0x80 | CSRCTRLA, 0x42})
	v, err := c.LoadCSR(CSRCTRLA)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), v)
	assert.Equal(t, []byte{syncChar, 0x80 | CSRCTRLA}, ft.tx.Bytes())
}

func TestStoreCSR(t *testing.T) {
	c, _ := newTestClient([]byte{syncChar, 0xC0 | CSRCTRLB, 0x08})
	err := c.StoreCSR(CSRCTRLB, 0x08)
	require.NoError(t, err)
}

func TestConnect_HandshakeTimeout(t *testing.T) {
	// Not enough echo bytes ever arrive: ReadFull returns short, so the
	// handshake reports a typed timeout rather than hanging.
	c, _ := newTestClient(nil)
	_, err := c.Connect()
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, errors.Is(err, ErrTimedOut))
}

func TestLoadDirect_Word(t *testing.T) {
	addr := uint32(0x1234)
	c, _ := newTestClient([]byte{
		syncChar, 0x00 | (AddrWord << 2) | DataWord, byte(addr), byte(addr >> 8),
		0x34, 0x12,
	})
	v, err := c.LoadDirect(addr, AddrWord, DataWord)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)
}

func TestStoreDirect_MissingAckReportsNacked(t *testing.T) {
	c, _ := newTestClient([]byte{
		syncChar, 0x40 | (AddrByte << 2) | DataByte, 0x10,
		0x00, // not an ACK
	})
	err := c.StoreDirect(0x10, 0xFF, AddrByte, DataByte)
	require.Error(t, err)
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "AddressNacked", pe.Reason)
}

func TestKey_TransmitsReversed(t *testing.T) {
	reversed := []byte("     DCO") // KeyOCD = "OCD     ", reversed byte-for-byte
	echo := append([]byte{syncChar, 0xE0}, reversed...)
	c, ft := newTestClient(echo)
	err := c.Key(KeyOCD)
	require.NoError(t, err)
	assert.Equal(t, echo, ft.tx.Bytes())
}

func TestRepeat_ClampsRange(t *testing.T) {
	c, ft := newTestClient([]byte{syncChar, 0xA0, 0xFF})
	require.NoError(t, c.Repeat(1000))
	assert.Equal(t, []byte{syncChar, 0xA0, 0xFF}, ft.tx.Bytes())
}
