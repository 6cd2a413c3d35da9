package serialport

import (
	ioctl "github.com/daedaluz/goioctl"
	"unsafe"
)

// ioctl request numbers for the termios2/modem-control/break calls this
// package issues: baud/parity/stopbit configuration via TCGETS2/TCSETS2,
// DTR toggling, input flushing and break generation.
var (
	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))

	tiocsbrk = uintptr(0x5427)
	tioccbrk = uintptr(0x5428)

	tcflsh = uintptr(0x540B)

	tiocmget = uintptr(0x5415) // get status
	tiocmbis = uintptr(0x5416) // set indicated bits
	tiocmbic = uintptr(0x5417) // clear indicated bits
)
