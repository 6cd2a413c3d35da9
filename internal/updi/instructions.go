package updi

// This file implements the UPDI instruction set: one method per primitive,
// each a pure function over the bus built on top of Client.rawCommand.

// LoadCSR issues `ldcs addr` (opcode 0x8_), 0<=addr<=15.
func (c *Client) LoadCSR(addr byte) (byte, error) {
	resp, err := c.rawCommand([]byte{0x80 | (addr & 0x0F)}, 1, false)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}

// StoreCSR issues `stcs addr, value` (opcode 0xC_).
func (c *Client) StoreCSR(addr, value byte) error {
	_, err := c.rawCommand([]byte{0xC0 | (addr & 0x0F), value}, 0, false)
	return err
}

// ReadSIB issues `key.sib width` (opcode 0xE4|width). Hardware always
// returns 32 bytes regardless of the requested width.
func (c *Client) ReadSIB(width byte) ([32]byte, error) {
	var sib [32]byte
	resp, err := c.rawCommand([]byte{0xE4 | (width & 0x03)}, 32, false)
	if err != nil {
		return sib, err
	}
	copy(sib[:], resp)
	return sib, nil
}

// Key issues the `key` instruction (opcode 0xE0), transmitting the 8-byte
// ASCII key reversed as the wire protocol requires.
func (c *Client) Key(key [8]byte) error {
	reversed := make([]byte, 8)
	for i := 0; i < 8; i++ {
		reversed[i] = key[7-i]
	}
	_, err := c.rawCommand(append([]byte{0xE0}, reversed...), 0, false)
	return err
}

// Repeat issues `repeat count` (opcode 0xA0). count applies only to the
// very next instruction; 1<=count<=256.
func (c *Client) Repeat(count int) error {
	if count < 1 {
		count = 1
	}
	if count > 256 {
		count = 256
	}
	_, err := c.rawCommand([]byte{0xA0, byte(count - 1)}, 0, false)
	return err
}

// LoadDirect issues `lds addr` (opcode 0x0_|(addrWidth<<2)|dataWidth) and
// returns the little-endian result widened to uint16.
func (c *Client) LoadDirect(addr uint32, addrWidth, dataWidth int) (uint16, error) {
	opcode := byte(0x00 | (addrWidth << 2) | dataWidth)
	operands := addrOperands(addr, addrWidth)
	resp, err := c.rawCommand(append([]byte{opcode}, operands...), dataWidth+1, false)
	if err != nil {
		return 0, err
	}
	if dataWidth == DataByte {
		return uint16(resp[0]), nil
	}
	return uint16(resp[0]) | uint16(resp[1])<<8, nil
}

// StoreDirect issues `sts addr, val` (opcode 0x4_|(addrWidth<<2)|dataWidth).
// The instruction has two phases, address then data, each separately ACKed;
// a missing ACK at either phase is reported as AddressNacked/DataNacked.
func (c *Client) StoreDirect(addr uint32, data uint16, addrWidth, dataWidth int) error {
	opcode := byte(0x40 | (addrWidth << 2) | dataWidth)
	operands := addrOperands(addr, addrWidth)
	resp, err := c.rawCommand(append([]byte{opcode}, operands...), 1, false)
	if err != nil {
		return instructionNotEchoed("sts")
	}
	if resp[0] != ackByte {
		return addressNacked("sts")
	}

	var databytes []byte
	if dataWidth == DataByte {
		databytes = []byte{byte(data)}
	} else {
		databytes = []byte{byte(data), byte(data >> 8)}
	}
	resp, err = c.rawCommand(databytes, 1, true)
	if err != nil {
		return instructionNotEchoed("sts")
	}
	if resp[0] != ackByte {
		return dataNacked("sts")
	}
	return nil
}

// LoadPointer issues `ld ptr` (opcode 0x28|addrWidth), reading back the
// indirect-access pointer.
func (c *Client) LoadPointer(addrWidth int) (uint32, error) {
	resp, err := c.rawCommand([]byte{0x28 | byte(addrWidth)}, addrWidth+1, false)
	if err != nil {
		return 0, err
	}
	return decodeAddr(resp, addrWidth), nil
}

// StorePointer issues `st ptr` (opcode 0x68|addrWidth), setting the
// indirect-access pointer.
func (c *Client) StorePointer(addr uint32, addrWidth int) error {
	opcode := byte(0x68 | addrWidth)
	operands := addrOperands(addr, addrWidth)
	resp, err := c.rawCommand(append([]byte{opcode}, operands...), 1, false)
	if err != nil {
		return instructionNotEchoed("st ptr")
	}
	if resp[0] != ackByte {
		return addressNacked("st ptr")
	}
	return nil
}

// LoadIndirect issues `ld *ptr` (opcode 0x20|(step<<2)|dataWidth), reading
// burst*(dataWidth+1) bytes from the address the pointer holds.
func (c *Client) LoadIndirect(dataWidth, step, burst int) ([]byte, error) {
	resp, err := c.rawCommand([]byte{byte(0x20 | (step << 2) | dataWidth)}, burst*(dataWidth+1), false)
	if err != nil {
		return nil, responseTimedOut("ld *ptr")
	}
	return resp, nil
}

// StoreIndirect issues `st *ptr` (opcode 0x60|(step<<2)|dataWidth), writing
// data to the address the pointer holds. Unlike ld, each burst element is
// written (and ACKed) as its own command phase; only the first phase gets a
// sync byte.
func (c *Client) StoreIndirect(data []byte, dataWidth, step, burst int) error {
	_, err := c.rawCommand([]byte{byte(0x60 | (step << 2) | dataWidth)}, 0, false)
	if err != nil {
		return instructionNotEchoed("st *ptr")
	}

	elemSize := dataWidth + 1
	for i := 0; i < burst; i++ {
		elem := data[i*elemSize : i*elemSize+elemSize]
		resp, err := c.rawCommand(elem, 1, true)
		if err != nil {
			return dataNacked("st *ptr")
		}
		if resp[0] != ackByte {
			return dataNacked("st *ptr")
		}
	}
	return nil
}

// LoadBurst is the `st ptr; repeat; ld *ptr++` burst-load sequence.
func (c *Client) LoadBurst(addr uint32, dataWidth, burst int) ([]byte, error) {
	if err := c.StorePointer(addr, Addr3Byte); err != nil {
		return nil, err
	}
	if burst > 1 {
		if err := c.Repeat(burst); err != nil {
			return nil, err
		}
	}
	return c.LoadIndirect(dataWidth, StepIncrement, burst)
}

// StoreBurst is the `st ptr; repeat; st *ptr++` burst-store sequence.
func (c *Client) StoreBurst(addr uint32, data []byte, dataWidth, burst int) error {
	if err := c.StorePointer(addr, Addr3Byte); err != nil {
		return err
	}
	if burst > 1 {
		if err := c.Repeat(burst); err != nil {
			return err
		}
	}
	return c.StoreIndirect(data, dataWidth, StepIncrement, burst)
}

func addrOperands(addr uint32, addrWidth int) []byte {
	switch addrWidth {
	case AddrByte:
		return []byte{byte(addr)}
	case AddrWord:
		return []byte{byte(addr), byte(addr >> 8)}
	default:
		return []byte{byte(addr), byte(addr >> 8), byte(addr >> 16)}
	}
}

func decodeAddr(resp []byte, addrWidth int) uint32 {
	switch addrWidth {
	case AddrByte:
		return uint32(resp[0])
	case AddrWord:
		return uint32(resp[0]) | uint32(resp[1])<<8
	default:
		return uint32(resp[0]) | uint32(resp[1])<<8 | uint32(resp[2])<<16
	}
}
