package updi

import (
	"errors"
	"fmt"
)

// ErrTimedOut is the sentinel wrapped by every timeout-flavored failure this
// package returns; callers use errors.Is(err, updi.ErrTimedOut) regardless
// of which instruction or phase timed out.
var ErrTimedOut = errors.New("updi: timed out")

// TransportError reports that the bus did not behave: an instruction's echo
// or response did not arrive within the timeout, or the initial handshake
// never completed.
type TransportError struct {
	Instruction string
	Phase       string // "echo", "response", or "handshake"
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("updi: %s: %s timed out", e.Instruction, e.Phase)
}

func (e *TransportError) Is(target error) bool { return target == ErrTimedOut }

func echoTimedOut(instruction string) error {
	return &TransportError{Instruction: instruction, Phase: "echo"}
}

func responseTimedOut(instruction string) error {
	return &TransportError{Instruction: instruction, Phase: "response"}
}

func handshakeTimedOut(instruction string) error {
	return &TransportError{Instruction: instruction, Phase: "handshake"}
}

// ProtocolError reports that the target actively rejected an instruction:
// a missing ACK in a multi-phase sts/st instruction, or no echo at all.
type ProtocolError struct {
	Instruction string
	Reason      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("updi: %s: %s", e.Instruction, e.Reason)
}

func addressNacked(instruction string) error {
	return &ProtocolError{Instruction: instruction, Reason: "AddressNacked"}
}

func dataNacked(instruction string) error {
	return &ProtocolError{Instruction: instruction, Reason: "DataNacked"}
}

func instructionNotEchoed(instruction string) error {
	return &ProtocolError{Instruction: instruction, Reason: "InstructionNotEchoed"}
}
