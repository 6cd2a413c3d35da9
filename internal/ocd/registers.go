package ocd

// GetPC reads the word-addressed program counter and undoes the +1 fetch
// bias the hardware reports.
func (d *Debugger) GetPC() (uint16, error) {
	pc, err := d.bus.LoadDirect(ocdPC, AddrWord, DataWord)
	if err != nil {
		return 0, err
	}
	return pc - 1, nil
}

// SetPC writes pc directly (not pc+1): the instruction at a freshly written
// PC is not executed, so a single Step is issued afterward to complete the
// otherwise-skipped fetch cycle.
func (d *Debugger) SetPC(pc uint16) error {
	if err := d.bus.StoreDirect(ocdPC, pc, AddrWord, DataWord); err != nil {
		return err
	}
	return d.Step()
}

func (d *Debugger) GetSP() (uint16, error) {
	return d.bus.LoadDirect(ocdSP, AddrWord, DataWord)
}

func (d *Debugger) SetSP(sp uint16) error {
	return d.bus.StoreDirect(ocdSP, sp, AddrWord, DataWord)
}

func (d *Debugger) GetSREG() (byte, error) {
	v, err := d.bus.LoadDirect(ocdSREG, AddrWord, DataByte)
	return byte(v), err
}

func (d *Debugger) SetSREG(sreg byte) error {
	return d.bus.StoreDirect(ocdSREG, uint16(sreg), AddrWord, DataByte)
}

func (d *Debugger) GetGPR(num int) (byte, error) {
	if num < 0 || num >= 32 {
		return 0, &ProtocolLimitError{What: "GPR index", Got: num}
	}
	v, err := d.bus.LoadDirect(ocdR0+uint32(num), AddrWord, DataByte)
	return byte(v), err
}

func (d *Debugger) SetGPR(num int, value byte) error {
	if num < 0 || num >= 32 {
		return &ProtocolLimitError{What: "GPR index", Got: num}
	}
	return d.bus.StoreDirect(ocdR0+uint32(num), uint16(value), AddrWord, DataByte)
}

// GetRegisterFile reads r0..r31 in a single burst transaction, the form
// GDB's `g` packet needs.
func (d *Debugger) GetRegisterFile() ([]byte, error) {
	return d.bus.LoadBurst(ocdR0, DataByte, 32)
}

func (d *Debugger) SetRegisterFile(data []byte) error {
	if len(data) != 32 {
		return &ProtocolLimitError{What: "register file length", Got: len(data)}
	}
	return d.bus.StoreBurst(ocdR0, data, DataByte, 32)
}

// Step adds the STEP trap to the traps already armed in TRAPEN's low byte,
// runs one instruction, waits for the halt it causes, then restores that
// byte to its previous value.
func (d *Debugger) Step() error {
	orig, err := d.bus.LoadDirect(ocdTRAPENL, AddrWord, DataByte)
	if err != nil {
		return err
	}
	if err := d.bus.StoreDirect(ocdTRAPENL, uint16(orig)|uint16(TrapStep), AddrWord, DataByte); err != nil {
		return err
	}
	if err := d.Run(); err != nil {
		return err
	}
	if _, err := d.PollHalted(0, 0); err != nil {
		return err
	}
	return d.bus.StoreDirect(ocdTRAPENL, orig, AddrWord, DataByte)
}
