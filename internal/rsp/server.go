package rsp

import (
	"encoding/hex"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinyupdi/updidbg/internal/ocd"
)

const (
	codeSpaceSize = 0x200000
	dataSpaceBase = 0x800000
	dataSpaceSize = 0x10000
	recvChunk     = 1024
	cancelPoll    = 10 * time.Millisecond
)

// Server is a single-client, single-threaded RSP front-end over one OCD
// debugger session.
type Server struct {
	listener net.Listener
	dbg      *ocd.Debugger
	log      logrus.FieldLogger
	slots    slotTable
	parser   Parser
}

// New binds the RSP TCP listen socket. The socket isn't accepted from until
// Serve is called.
func New(tcpPort int, dbg *ocd.Debugger, log logrus.FieldLogger) (*Server, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	l, err := net.Listen("tcp", ":"+strconv.Itoa(tcpPort))
	if err != nil {
		return nil, err
	}
	return &Server{listener: l, dbg: dbg, log: log}, nil
}

// Serve attaches the OCD, accepts exactly one client, and runs the packet
// loop until the client disconnects, issues `D`, or a fatal error occurs.
func (s *Server) Serve() error {
	if err := s.dbg.Attach(); err != nil {
		return err
	}
	if err := s.dbg.Halt(); err != nil {
		return err
	}
	if err := s.dbg.SetTraps(ocd.TrapSWBP | ocd.TrapHWBP); err != nil {
		return err
	}
	defer s.dbg.Detach()

	conn, err := s.listener.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	s.log.WithField("remote", conn.RemoteAddr()).Info("rsp client connected")

	buf := make([]byte, recvChunk)
	for {
		conn.SetReadDeadline(time.Time{})
		n, err := conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		data := buf[:n]
		packets, brk := s.parser.Feed(data)

		if brk {
			if _, err := conn.Write([]byte("+")); err != nil {
				return err
			}
			if err := s.dbg.Halt(); err != nil {
				return err
			}
			if _, err := s.dbg.PollHalted(0, 0); err != nil {
				return err
			}
			if _, err := conn.Write(Encode("S02")); err != nil {
				return err
			}
		}

		for _, packet := range packets {
			if _, err := conn.Write([]byte("+")); err != nil {
				return err
			}
			if packet == "c" || strings.HasPrefix(packet, "c") {
				reply, err := s.continueLoop(conn)
				if err != nil {
					return err
				}
				if _, err := conn.Write(Encode(reply)); err != nil {
					return err
				}
				continue
			}

			reply, exit, err := s.dispatch(packet)
			if err != nil {
				return err
			}
			if reply != "" {
				if _, err := conn.Write(Encode(reply)); err != nil {
					return err
				}
			}
			if exit {
				return nil
			}
		}
	}
}

// continueLoop resumes the CPU and alternates between checking the halt
// flag and a time-boxed read for the client's async-interrupt byte.
func (s *Server) continueLoop(conn net.Conn) (string, error) {
	if err := s.dbg.Run(); err != nil {
		return "", err
	}
	b := make([]byte, 1)
	for {
		halted, err := s.dbg.IsHalted()
		if err != nil {
			return "", err
		}
		if halted {
			return "S05", nil
		}

		conn.SetReadDeadline(time.Now().Add(cancelPoll))
		n, err := conn.Read(b)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return "", err
		}
		if n > 0 && b[0] == breakByte {
			if _, werr := conn.Write([]byte("+")); werr != nil {
				return "", werr
			}
			if err := s.dbg.Halt(); err != nil {
				return "", err
			}
			if _, err := s.dbg.PollHalted(0, 0); err != nil {
				return "", err
			}
			return "S02", nil
		}
	}
}

// dispatch handles every packet kind except `c`, which needs direct access
// to the client connection and is special-cased in Serve.
func (s *Server) dispatch(packet string) (reply string, exit bool, err error) {
	switch {
	case strings.HasPrefix(packet, "qSupported"):
		return "PacketSize=1024", false, nil
	case strings.HasPrefix(packet, "qSymbol"):
		return "OK", false, nil
	case packet == "!":
		return "OK", false, nil
	case packet == "?":
		return "S05", false, nil

	case packet == "s":
		if err := s.dbg.Step(); err != nil {
			return "", false, err
		}
		return "S05", false, nil

	case packet == "g":
		gprs, err := s.dbg.GetRegisterFile()
		if err != nil {
			return "", false, err
		}
		sreg, err := s.dbg.GetSREG()
		if err != nil {
			return "", false, err
		}
		sp, err := s.dbg.GetSP()
		if err != nil {
			return "", false, err
		}
		pc, err := s.dbg.GetPC()
		if err != nil {
			return "", false, err
		}
		return encodeRegisterFile(gprs, sreg, sp, pc), false, nil

	case strings.HasPrefix(packet, "G"):
		rf, err := decodeRegisterFile(packet[1:])
		if err != nil {
			return "E01", false, nil
		}
		if err := s.dbg.SetRegisterFile(rf.gprs[:]); err != nil {
			return "", false, err
		}
		if err := s.dbg.SetSREG(rf.sreg); err != nil {
			return "", false, err
		}
		if err := s.dbg.SetSP(rf.sp); err != nil {
			return "", false, err
		}
		if err := s.dbg.SetPC(rf.pc); err != nil {
			return "", false, err
		}
		return "OK", false, nil

	case strings.HasPrefix(packet, "M"):
		return s.dispatchWriteMem(packet[1:])
	case strings.HasPrefix(packet, "m"):
		return s.dispatchReadMem(packet[1:])

	case strings.HasPrefix(packet, "Z1"):
		return s.dispatchSetBP(packet)
	case strings.HasPrefix(packet, "z1"):
		return s.dispatchClearBP(packet)
	case strings.HasPrefix(packet, "Z0"), strings.HasPrefix(packet, "z0"):
		return "E00", false, nil

	case strings.HasPrefix(packet, "vAttach"):
		return "S05", false, nil
	case strings.HasPrefix(packet, "vRun"), packet == "R", packet == "r":
		if err := s.dbg.Reset(); err != nil {
			return "", false, err
		}
		return "S05", false, nil
	case strings.HasPrefix(packet, "vKill"):
		return "OK", false, nil

	case packet == "T?" || strings.HasPrefix(packet, "H"):
		return "OK", false, nil

	case packet == "D":
		return "OK", true, nil
	case packet == "k":
		return "", false, nil

	case strings.HasPrefix(packet, "qRcmd"):
		return s.dispatchMonitor(packet)

	default:
		return "", false, nil
	}
}

func (s *Server) dispatchReadMem(arg string) (string, bool, error) {
	addr, length, ok := parseAddrLen(arg)
	if !ok {
		return "E02", false, nil
	}
	var data []byte
	var err error
	switch {
	case addr < codeSpaceSize:
		data, err = s.dbg.ReadCode(uint32(addr), int(length))
	case addr >= dataSpaceBase && addr < dataSpaceBase+dataSpaceSize:
		data, err = s.dbg.ReadData(uint32(addr-dataSpaceBase), int(length))
	default:
		return "E02", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(data) == 0 {
		return "E02", false, nil
	}
	return hex.EncodeToString(data), false, nil
}

func (s *Server) dispatchWriteMem(arg string) (string, bool, error) {
	addr, data, ok := parseWriteMem(arg)
	if !ok {
		return "E01", false, nil
	}
	if addr < dataSpaceBase || addr >= dataSpaceBase+dataSpaceSize {
		return "E02", false, nil
	}
	wrote, err := s.dbg.WriteData(uint32(addr-dataSpaceBase), data)
	if err != nil {
		return "", false, err
	}
	if !wrote {
		return "E02", false, nil
	}
	return "OK", false, nil
}

func (s *Server) dispatchSetBP(packet string) (string, bool, error) {
	addr, _, ok := parseZPacket(packet)
	if !ok {
		return "E01", false, nil
	}
	id, ok := s.slots.alloc(addr)
	if !ok {
		return "E04", false, nil
	}
	if err := s.dbg.SetBP(id, uint16(addr>>1)); err != nil {
		return "", false, err
	}
	return "OK", false, nil
}

func (s *Server) dispatchClearBP(packet string) (string, bool, error) {
	addr, _, ok := parseZPacket(packet)
	if !ok {
		return "E01", false, nil
	}
	id, ok := s.slots.free(addr)
	if !ok {
		return "E05", false, nil
	}
	if err := s.dbg.ClearBP(id); err != nil {
		return "", false, err
	}
	return "OK", false, nil
}

func (s *Server) dispatchMonitor(packet string) (string, bool, error) {
	rest := strings.TrimPrefix(packet, "qRcmd")
	rest = strings.TrimPrefix(rest, ",")
	raw, err := hex.DecodeString(rest)
	if err != nil {
		return "", false, nil
	}
	reply, handled := s.monitor(string(raw))
	if !handled {
		return "", false, nil
	}
	return reply, false, nil
}

// parseAddrLen parses the "addr,len" form shared by `m` and the leading
// part of `M`.
func parseAddrLen(s string) (addr, length uint64, ok bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	l, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	return a, l, true
}

// parseWriteMem parses "addr,len:hexdata".
func parseWriteMem(s string) (addr uint64, data []byte, ok bool) {
	colon := strings.IndexByte(s, ':')
	if colon < 0 {
		return 0, nil, false
	}
	a, _, addrOK := parseAddrLen(s[:colon])
	if !addrOK {
		return 0, nil, false
	}
	raw, err := hex.DecodeString(s[colon+1:])
	if err != nil {
		return 0, nil, false
	}
	return a, raw, true
}

// parseZPacket parses "Z1,addr,kind" / "z1,addr,kind".
func parseZPacket(packet string) (addr uint64, kind uint64, ok bool) {
	if len(packet) < 3 {
		return 0, 0, false
	}
	rest := strings.TrimPrefix(packet[2:], ",")
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) < 1 {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 2 {
		k, _ := strconv.ParseUint(parts[1], 16, 64)
		kind = k
	}
	return a, kind, true
}
