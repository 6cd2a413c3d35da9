package serialport

import (
	"time"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
	"syscall"
	"unsafe"
)

// Termios2 is the Linux termios2 structure (struct termios2 in
// asm-generic/termbits.h), which adds ISpeed/OSpeed so that an arbitrary
// baud rate can be set via BOTHER instead of being limited to the CBAUD
// table's fixed set of speeds.
type Termios2 struct {
	Iflag  IFlag
	Oflag  OFlag
	Cflag  CFlag
	Lflag  LFlag
	Line   byte
	Cc     [19]byte
	ISpeed uint32
	OSpeed uint32
}

type IFlag uint32

const (
	INPCK = IFlag(0000020) // Enable input parity checking.
)

type OFlag uint32

const (
	OPOST = OFlag(0000001) // Enable implementation-defined output processing.
)

type CFlag uint32

const (
	CBAUD  = CFlag(0010017)
	CSIZE  = CFlag(0000060)
	CS8    = CFlag(0000060)
	CSTOPB = CFlag(0000100) // two stop bits
	CREAD  = CFlag(0000200) // enable receiver
	PARENB = CFlag(0000400) // parity generation/checking
	PARODD = CFlag(0001000) // odd parity (unset => even)
	CLOCAL = CFlag(0004000) // ignore modem control lines
	BOTHER = CFlag(0010000)
)

type LFlag uint32

const (
	ISIG   = LFlag(0000001)
	ICANON = LFlag(0000002)
	ECHO   = LFlag(0000010)
	ECHONL = LFlag(0000100)
	IEXTEN = LFlag(0100000)
)

// ModemLine identifies a modem-control signal such as DTR.
type ModemLine int

const (
	TIOCM_DTR = ModemLine(0x002)
	TIOCM_RTS = ModemLine(0x004)
)

// Queue selects which I/O queue Flush should discard.
type Queue uint32

const (
	TCIFLUSH Queue = iota
	TCOFLUSH
	TCIOFLUSH
)

// Config describes the line parameters a half-duplex UPDI adapter needs:
// 8 data bits, even parity, two stop bits and an arbitrary baud rate.
type Config struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// Port is an opened, configured serial device file descriptor.
type Port struct {
	fd     int
	closed bool
}

// Open opens name (e.g. "/dev/ttyUSB0" or "/dev/ttyACM0") and configures it
// per cfg, with DTR initially deasserted as the UPDI handshake requires.
func Open(name string, cfg Config) (*Port, error) {
	fd, err := syscall.Open(name, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, wrapErr("open "+name, err)
	}
	p := &Port{fd: fd}
	if err := p.configure(cfg); err != nil {
		_ = p.Close()
		return nil, err
	}
	if err := p.SetDTR(false); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Port) configure(cfg Config) error {
	t := Termios2{}
	if err := ioctl.Ioctl(uintptr(p.fd), tcgets2, uintptr(unsafe.Pointer(&t))); err != nil {
		return wrapErr("TCGETS2", err)
	}

	// Raw mode: no line discipline processing of any kind.
	t.Iflag = 0
	t.Oflag = 0
	t.Lflag = 0
	t.Cc[vmin] = 0
	t.Cc[vtime] = 0

	t.Cflag &^= CSIZE | PARODD | CBAUD
	t.Cflag |= CS8 | PARENB | CSTOPB | CREAD | CLOCAL | BOTHER
	t.ISpeed = uint32(cfg.BaudRate)
	t.OSpeed = uint32(cfg.BaudRate)

	if err := ioctl.Ioctl(uintptr(p.fd), tcsets2, uintptr(unsafe.Pointer(&t))); err != nil {
		return wrapErr("TCSETS2", err)
	}
	return nil
}

// vmin/vtime are the Cc[] indices for VMIN/VTIME, the only two control
// characters raw mode on this bus cares about (both forced to 0: reads
// return as soon as any data is available, with timing handled by the
// poll-based Read below rather than the line discipline).
const (
	vmin  = 6
	vtime = 5
)

func (p *Port) Write(data []byte) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	n, err := syscall.Write(p.fd, data)
	return n, wrapErr("write", err)
}

// Read performs a single blocking read bounded by timeout. Nothing arriving
// before the deadline is reported as (0, nil), not an error: on this bus a
// timed-out read is a protocol-level condition (an unechoed or missing
// response) the UPDI driver reports itself, not a transport fault.
func (p *Port) Read(data []byte, timeout time.Duration) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if err := poll.WaitInput(p.fd, timeout); err != nil {
		return 0, nil
	}
	n, err := syscall.Read(p.fd, data)
	return n, wrapErr("read", err)
}

// ReadFull reads exactly len(data) bytes or returns however many arrived
// before the deadline elapsed, with a nil error — timeouts on this bus are
// a protocol-level condition the UPDI driver reports itself, not a
// transport-level error.
func (p *Port) ReadFull(data []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	total := 0
	for total < len(data) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		n, err := p.Read(data[total:], remaining)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// Flush discards unread input: used to throw away stale bytes (the echo of
// a BREAK, garbage left behind by a previously timed-out instruction)
// before issuing a new UPDI instruction.
func (p *Port) Flush(queue Queue) error {
	if p.closed {
		return ErrClosed
	}
	return wrapErr("TCFLSH", ioctl.Ioctl(uintptr(p.fd), tcflsh, uintptr(queue)))
}

// SetDTR asserts or deasserts the DTR modem-control line. On adapters that
// wire DTR to a level-shifter or charge pump, toggling it generates the
// optional high-voltage UPDI-enable pulse the handshake describes.
func (p *Port) SetDTR(assert bool) error {
	if p.closed {
		return ErrClosed
	}
	line := TIOCM_DTR
	req := tiocmbic
	if assert {
		req = tiocmbis
	}
	return wrapErr("DTR", ioctl.Ioctl(uintptr(p.fd), req, uintptr(unsafe.Pointer(&line))))
}

// SendBreak drives the line low (a BREAK condition) for approximately
// duration, then releases it. UPDI's handshake and resynchronize both rely
// on break timing to reset the target's UPDI interface state machine.
func (p *Port) SendBreak(duration time.Duration) error {
	if p.closed {
		return ErrClosed
	}
	if err := ioctl.Ioctl(uintptr(p.fd), tiocsbrk, 0); err != nil {
		return wrapErr("TIOCSBRK", err)
	}
	time.Sleep(duration)
	if err := ioctl.Ioctl(uintptr(p.fd), tioccbrk, 0); err != nil {
		return wrapErr("TIOCCBRK", err)
	}
	return nil
}

func (p *Port) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	return wrapErr("close", syscall.Close(p.fd))
}
