package updi

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinyupdi/updidbg/internal/serialport"
)

// transport is the seam between the instruction encoder in this file and
// the byte pipe carrying it. serialport.Port satisfies it directly; tests
// substitute an in-memory fake.
type transport interface {
	Write(data []byte) (int, error)
	ReadFull(data []byte, timeout time.Duration) (int, error)
	Flush(queue serialport.Queue) error
	SetDTR(assert bool) error
	SendBreak(duration time.Duration) error
	Close() error
}

// Client drives a single UPDI target over a serial transport. It owns the
// port's connection state: after Connect succeeds, every instruction call
// either returns success or a typed failure, and the caller resynchronizes
// explicitly on a parity/framing error rather than having it retried
// silently underneath.
type Client struct {
	port     transport
	portNew  func() (transport, error)
	portPath string
	baud     int
	timeout  time.Duration
	log      logrus.FieldLogger
}

// NewClient constructs a Client bound to portPath at the given baud rate,
// with a 1 s per-instruction read timeout. The port is not opened until
// Connect is called.
func NewClient(portPath string, baud int, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Client{portPath: portPath, baud: baud, timeout: time.Second, log: log}
	c.portNew = func() (transport, error) {
		return serialport.Open(portPath, serialport.Config{BaudRate: baud, ReadTimeout: c.timeout})
	}
	return c
}

// newClientWithTransport is used by tests to bypass real hardware.
func newClientWithTransport(t transport, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{port: t, timeout: time.Second, log: log}
}

// Connect opens the serial port and performs the UPDI handshake: deassert
// DTR, generate the optional HV pulse, send a short BREAK, drain garbage,
// disable contention checking for legacy parts, then issue a harmless
// `ldcs CTRLA` to confirm the target answers. It returns the UPDI revision
// found in the high nibble of the CSR value.
func (c *Client) Connect() (int, error) {
	if c.port == nil {
		p, err := c.portNew()
		if err != nil {
			return 0, err
		}
		c.port = p
	}

	c.log.Debug("opening serial port")
	if err := c.port.SetDTR(false); err != nil {
		return 0, err
	}

	c.log.Debug("emitting HV pulse and handshake")
	time.Sleep(time.Millisecond)
	if err := c.port.SetDTR(true); err != nil {
		return 0, err
	}
	time.Sleep(time.Millisecond)
	if err := c.port.SetDTR(false); err != nil {
		return 0, err
	}
	if err := c.port.SendBreak(time.Microsecond); err != nil {
		return 0, err
	}
	time.Sleep(5 * time.Millisecond)
	if err := c.port.Flush(serialport.TCIFLUSH); err != nil {
		return 0, err
	}

	// stcs CTRLB, 0x08 (disable contention check; legacy tinyAVR compatibility)
	if _, err := c.rawCommand([]byte{0xC0 | CSRCTRLB, ctrlbContentionDisable}, 0, false); err != nil {
		return 0, err
	}

	// ldcs CTRLA: a harmless read that consumes the sync char and confirms
	// the target is alive.
	resp, err := c.rawCommand([]byte{0x80 | CSRCTRLA}, 1, false)
	if err != nil {
		c.log.WithError(err).Error("initial command timed out; could not connect to MCU")
		return 0, handshakeTimedOut("ldcs CTRLA")
	}

	rev := int(resp[0] >> 4)
	c.log.WithField("updi_revision", rev).Info("UPDI handshake complete")
	return rev, nil
}

// Disconnect issues stcs CTRLB, UPDIDIS and closes the port.
func (c *Client) Disconnect() error {
	if c.port == nil {
		return nil
	}
	_ = c.StoreCSR(CSRCTRLB, ctrlbUPDIDIS)
	err := c.port.Close()
	c.port = nil
	return err
}

// Resynchronize transmits a 25 ms BREAK and reads STATUSB to clear the
// sticky parity-error flag, returning the PESIG byte.
func (c *Client) Resynchronize() (byte, error) {
	c.log.Debug("transmitting 25ms break")
	if err := c.port.SendBreak(25 * time.Millisecond); err != nil {
		return 0, err
	}
	c.log.Debug("clearing PESIG by read access")
	resp, err := c.rawCommand([]byte{0x80 | csrSTATUSB}, 1, false)
	if err != nil {
		return 0, handshakeTimedOut("ldcs STATUSB")
	}
	c.log.WithField("pesig", resp[0]).Info("UPDI resynchronized")
	return resp[0], nil
}

// rawCommand transmits txdata (prefixed with the sync char unless
// skipSync), reads back its own echo, then reads nExpected response bytes.
func (c *Client) rawCommand(txdata []byte, nExpected int, skipSync bool) ([]byte, error) {
	var frame []byte
	if skipSync {
		frame = txdata
	} else {
		frame = make([]byte, 0, len(txdata)+1)
		frame = append(frame, syncChar)
		frame = append(frame, txdata...)
	}

	if err := c.port.Flush(serialport.TCIFLUSH); err != nil {
		return nil, err
	}
	c.log.WithField("tx", frame).Debug("updi command")
	if _, err := c.port.Write(frame); err != nil {
		return nil, err
	}

	echo := make([]byte, len(frame))
	n, err := c.port.ReadFull(echo, c.timeout)
	if err != nil {
		return nil, err
	}
	if n != len(frame) {
		return nil, echoTimedOut("command")
	}

	if nExpected == 0 {
		return nil, nil
	}
	resp := make([]byte, nExpected)
	n, err = c.port.ReadFull(resp, c.timeout)
	if err != nil {
		return nil, err
	}
	if n != nExpected {
		return nil, responseTimedOut("command")
	}
	return resp, nil
}
