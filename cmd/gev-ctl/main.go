// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// gev-ctl is an interactive control client for GigE-Vision-style
// cameras.
//
// Usage: gev-ctl [OPTIONS] ADDR
//
// Example:
//
//	$> gev-ctl 192.168.1.40:3956
//	gev> discover
//	manufacturer: "go-gev"
//	model:        "GevCam"
//	gev> rr 0x1034
//	0x00001034 = 0x00000000
//	gev> wr 0x1034 12
//	gev> quit
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/go-gev/gevcam/gvcp"
	"github.com/go-gev/gevcam/regs"
)

func main() {
	log.SetPrefix("gev-ctl: ")
	log.SetFlags(0)

	timeout := flag.Duration("timeout", 2*time.Second, "command timeout")

	flag.Usage = func() {
		fmt.Printf(`gev-ctl is an interactive control client for GigE-Vision-style cameras.

Usage: gev-ctl [OPTIONS] ADDR

Commands:

  discover            read and display the device identity
  rr ADDR [ADDR...]   read 32-bit registers
  wr ADDR VALUE       write a 32-bit register
  mem ADDR SIZE       read raw device memory
  name NAME           set the user-defined device name
  resend BLOCK        request a stream block retransmission
  quit                leave

`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing device address")
	}

	cli, err := gvcp.Dial(flag.Arg(0), *timeout)
	if err != nil {
		log.Fatalf("could not dial device: %+v", err)
	}
	defer cli.Close()

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		raw, err := term.Prompt("gev> ")
		switch err {
		case nil:
			// ok
		case liner.ErrPromptAborted, io.EOF:
			fmt.Println()
			return
		default:
			log.Fatalf("could not read line: %+v", err)
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		args := strings.Fields(line)
		if args[0] == "quit" || args[0] == "exit" {
			return
		}
		if err := run(cli, args[0], args[1:]); err != nil {
			log.Printf("%+v", err)
		}
	}
}

func run(cli *gvcp.Client, cmd string, args []string) error {
	switch cmd {
	case "discover":
		return discover(cli)
	case "rr":
		return readRegs(cli, args)
	case "wr":
		return writeReg(cli, args)
	case "mem":
		return readMem(cli, args)
	case "name":
		return setName(cli, args)
	case "resend":
		return resend(cli, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse %q: %w", s, err)
	}
	return uint32(v), nil
}

func discover(cli *gvcp.Client) error {
	boot, err := cli.Discover()
	if err != nil {
		return err
	}
	if len(boot) < regs.DiscoveryPayloadSize {
		return fmt.Errorf("short discovery payload: %d bytes", len(boot))
	}

	str := func(off, n int) string {
		s := boot[off : off+n]
		if i := bytes.IndexByte(s, 0); i >= 0 {
			s = s[:i]
		}
		return string(s)
	}
	u32 := func(off int) uint32 { return binary.BigEndian.Uint32(boot[off:]) }

	fmt.Printf("manufacturer: %q\n", str(regs.RegManufacturer, 32))
	fmt.Printf("model:        %q\n", str(regs.RegModel, 32))
	fmt.Printf("version:      %q\n", str(regs.RegDeviceVersion, 32))
	fmt.Printf("serial:       %q\n", str(regs.RegSerial, 16))
	fmt.Printf("name:         %q\n", str(regs.RegUserName, 16))
	fmt.Printf("mac:          %04x%08x\n", u32(regs.RegMACHigh)&0xFFFF, u32(regs.RegMACLow))
	ip := boot[regs.RegCurrentIP : regs.RegCurrentIP+4]
	fmt.Printf("ip:           %d.%d.%d.%d\n", ip[0], ip[1], ip[2], ip[3])
	return nil
}

func readRegs(cli *gvcp.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: rr ADDR [ADDR...]")
	}
	addrs := make([]uint32, len(args))
	for i, arg := range args {
		addr, err := parseU32(arg)
		if err != nil {
			return err
		}
		addrs[i] = addr
	}
	vals, err := cli.ReadReg(addrs...)
	if err != nil {
		return err
	}
	for i, addr := range addrs {
		fmt.Printf("0x%08x = 0x%08x (%d)\n", addr, vals[i], vals[i])
	}
	return nil
}

func writeReg(cli *gvcp.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: wr ADDR VALUE")
	}
	addr, err := parseU32(args[0])
	if err != nil {
		return err
	}
	val, err := parseU32(args[1])
	if err != nil {
		return err
	}
	return cli.WriteReg(gvcp.RegVal{Addr: addr, Value: val})
}

func readMem(cli *gvcp.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: mem ADDR SIZE")
	}
	addr, err := parseU32(args[0])
	if err != nil {
		return err
	}
	size, err := parseU32(args[1])
	if err != nil {
		return err
	}
	data, err := cli.ReadMem(addr, size)
	if err != nil {
		return err
	}
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Printf("0x%08x: % x\n", addr+uint32(off), data[off:end])
	}
	return nil
}

func setName(cli *gvcp.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: name NAME")
	}
	if len(args[0]) >= regs.UserNameSize {
		return fmt.Errorf("name %q too long (max %d)", args[0], regs.UserNameSize-1)
	}
	buf := make([]byte, regs.UserNameSize)
	copy(buf, args[0])
	return cli.WriteMem(regs.RegUserName, buf)
}

func resend(cli *gvcp.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: resend BLOCK")
	}
	block, err := parseU32(args[0])
	if err != nil {
		return err
	}
	return cli.Resend(block)
}
