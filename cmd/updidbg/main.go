// Command updidbg bridges a GDB-compatible debugger client to an 8-bit AVR
// microcontroller's UPDI on-chip-debug port, carried over a serial adapter.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/tinyupdi/updidbg/internal/device"
	"github.com/tinyupdi/updidbg/internal/ocd"
	"github.com/tinyupdi/updidbg/internal/rsp"
	"github.com/tinyupdi/updidbg/internal/updi"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		part    string
		port    string
		bps     int
		rspPort int
		verbose bool
	)
	flags := pflag.NewFlagSet("updidbg", pflag.ContinueOnError)
	flags.StringVarP(&part, "part", "p", "", "MCU name (e.g. avr16ea48)")
	flags.StringVarP(&port, "port", "P", "", "serial port used as SerialUPDI (e.g. COM5 or /dev/ttyS1)")
	flags.IntVarP(&bps, "bps", "b", 115200, "baud rate for communication")
	flags.IntVarP(&rspPort, "rsp-port", "r", 0, "TCP port number for RSP communication with gdb")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print more logs")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return 1
	}
	if part == "" || port == "" || rspPort == 0 {
		fmt.Fprintln(os.Stderr, "updidbg: --part, --port and --rsp-port are required")
		return 1
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	devinfo, err := device.Lookup(part)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Part name not recognized")
		return 1
	}

	client := updi.NewClient(port, bps, log)
	if err := identify(client, devinfo, log); err != nil {
		log.WithError(err).Error("failed to identify chip")
		return 1
	}

	dbg := ocd.New(client, devinfo.FlashOffset, log)
	server, err := rsp.New(rspPort, dbg, log)
	if err != nil {
		log.WithError(err).Error("could not bind rsp listen socket")
		return 1
	}

	log.WithField("port", rspPort).Info("starting rsp server")
	if err := server.Serve(); err != nil {
		log.WithError(err).Error("rsp session ended")
		return 1
	}
	log.Info("normal termination")
	return 0
}

// identify reads the SIB and device signature and logs an identification
// banner, then disconnects so the main OCD session starts from a clean
// handshake.
func identify(client *updi.Client, devinfo device.Info, log logrus.FieldLogger) error {
	updiVer, err := client.Connect()
	if err != nil {
		if _, rerr := client.Resynchronize(); rerr != nil {
			return rerr
		}
		updiVer, err = client.Connect()
		if err != nil {
			return err
		}
	}

	time.Sleep(100 * time.Millisecond)
	sib, err := client.ReadSIB(0)
	if err != nil {
		return err
	}
	if err := client.Key(updi.KeyNVMProg); err != nil {
		return err
	}
	if err := client.StoreCSR(updi.CSRASIResetReq, 0x59); err != nil {
		return err
	}
	if err := client.StoreCSR(updi.CSRASIResetReq, 0x00); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)

	signature, err := client.LoadBurst(devinfo.SignatureAddr, updi.DataByte, 3)
	if err != nil {
		return err
	}
	revid, err := client.LoadDirect(0x0F01, updi.AddrWord, updi.DataByte)
	if err != nil {
		return err
	}

	rev := chipRevision(byte(revid))
	log.WithFields(logrus.Fields{
		"updi_rev":  updiVer,
		"sib":       string(sib[:]),
		"signature": fmt.Sprintf("%02X-%02X-%02X", signature[0], signature[1], signature[2]),
		"revision":  rev,
		"nvm_ver":   string(sib[10]),
		"ocd_ver":   string(sib[13]),
	}).Info("identified target")

	if err := client.StoreCSR(updi.CSRASIResetReq, 0x59); err != nil {
		return err
	}
	if err := client.StoreCSR(updi.CSRASIResetReq, 0x00); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return client.Disconnect()
}

// chipRevision renders SYSCFG.REVID as a letter for the major revision
// (1 renders as A) optionally followed by a minor digit.
func chipRevision(revid byte) string {
	if revid&0xF0 != 0 {
		return fmt.Sprintf("%c%d", rune((revid>>4)+64), revid&0x0F)
	}
	return string(rune(revid + 64))
}
