// Package updi implements the UPDI wire protocol: a half-duplex,
// self-echoing, even-parity serial instruction stream used to debug and
// program modern 8-bit AVR microcontrollers over a single wire carried by a
// commodity UART adapter.
package updi

// Address width, applying to the address operand of lds/sts/st ptr/ld ptr.
const (
	AddrByte  = 0
	AddrWord  = 1
	Addr3Byte = 2
)

// Data width, applying to the data operand/response of most instructions.
const (
	DataByte = 0
	DataWord = 1
)

// Address-step mode for indirect (ld/st *ptr) instructions.
const (
	StepNoChange  = 0
	StepIncrement = 1
	StepDirect    = 2
	StepDecrement = 3
)

// syncChar is prepended to every instruction frame except a continuation
// byte within a multi-phase sts/st *ptr instruction.
const syncChar = 0x55

// ackByte is what a write-phase ACKs with.
const ackByte = 0x40

// UPDI CSR addresses (ldcs/stcs), the 16 one-byte registers on the UPDI
// interface itself, independent of the target's memory. Exported for callers
// outside this package (cmd/updidbg uses CSRASIResetReq); the ocd package
// keeps its own copies of the addresses it needs.
const (
	CSRCTRLA        = 0x2
	CSRCTRLB        = 0x3
	csrSTATUSB      = 0x1
	CSRASIOCDCTRLA  = 0x4
	CSRASIOCDStatus = 0x5
	CSRASIResetReq  = 0x8
	CSRASISysStatus = 0xB
)

// CTRLB bits used by connect/disconnect.
const (
	ctrlbContentionDisable = 0x08
	ctrlbUPDIDIS           = 0x04
)

// Debug-access keys. Each is an 8-byte ASCII string transmitted
// least-significant-byte-first by the key() instruction.
var (
	KeyOCD        = [8]byte{'O', 'C', 'D', ' ', ' ', ' ', ' ', ' '}
	KeyNVMProg    = [8]byte{'N', 'V', 'M', 'P', 'r', 'o', 'g', ' '}
	KeyNVMErase   = [8]byte{'N', 'V', 'M', 'E', 'r', 'a', 's', 'e'}
	KeyNVMUserRow = [8]byte{'N', 'V', 'M', 'U', 's', '&', 't', 'e'}
)
