// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// gev-dump decodes and displays GVCP and GVSP traffic from pcap
// capture files.
//
// Usage: gev-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> gev-dump ./capture.pcap
//	gvcp 192.168.1.10 -> 192.168.1.40 cmd  ReadReg        id=0x0003 size=1
//	gvcp 192.168.1.40 -> 192.168.1.10 ack  ReadReg        id=0x0003 size=1
//	gvsp 192.168.1.40 -> 192.168.1.10 leader  block=1 Mono8 320x240
//	gvsp 192.168.1.40 -> 192.168.1.10 data    block=1 off=0 1400B
//	gvsp 192.168.1.40 -> 192.168.1.10 trailer block=1
//	[...]
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/go-gev/gevcam/camera"
	"github.com/go-gev/gevcam/gvcp"
	"github.com/go-gev/gevcam/gvsp"
)

func main() {
	log.SetPrefix("gev-dump: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Printf(`gev-dump decodes and displays GVCP and GVSP traffic from pcap capture files.

Usage: gev-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input pcap file")
	}

	for _, fname := range flag.Args() {
		if err := process(os.Stdout, fname); err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("could not read pcap %q: %w", fname, err)
	}

	src := gopacket.NewPacketSource(r, r.LinkType())
	for pkt := range src.Packets() {
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)

		var from, to string
		if netLayer := pkt.NetworkLayer(); netLayer != nil {
			flow := netLayer.NetworkFlow()
			from, to = flow.Src().String(), flow.Dst().String()
		}

		switch {
		case udp.DstPort == gvcp.Port || udp.SrcPort == gvcp.Port:
			dumpControl(w, from, to, udp.Payload)
		case udp.DstPort == gvsp.Port || udp.SrcPort == gvsp.Port:
			dumpStream(w, from, to, udp.Payload)
		}
	}
	return nil
}

var cmdNames = map[uint16]string{
	gvcp.CmdDiscovery:    "Discovery",
	gvcp.CmdPacketResend: "PacketResend",
	gvcp.CmdReadReg:      "ReadReg",
	gvcp.CmdWriteReg:     "WriteReg",
	gvcp.CmdReadMem:      "ReadMem",
	gvcp.CmdWriteMem:     "WriteMem",
}

func commandName(cmd uint16) string {
	if name, ok := cmdNames[cmd]; ok {
		return name
	}
	// acknowledges carry the command code plus one.
	if name, ok := cmdNames[cmd-1]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", cmd)
}

func dumpControl(w io.Writer, from, to string, p []byte) {
	if len(p) >= 2 && p[0] == 'B' && p[1] == 'E' {
		fmt.Fprintf(w, "gvcp %s -> %s ack  Discovery (raw) %dB\n", from, to, len(p)-8)
		return
	}
	hdr, err := gvcp.DecodeHeader(p)
	if err != nil {
		fmt.Fprintf(w, "gvcp %s -> %s ??? %dB: %v\n", from, to, len(p), err)
		return
	}
	switch hdr.Type {
	case gvcp.TypeCmd:
		fmt.Fprintf(w, "gvcp %s -> %s cmd  %-14s id=0x%04x size=%d\n",
			from, to, commandName(hdr.Command), hdr.ID, hdr.Size,
		)
	case gvcp.TypeAck:
		fmt.Fprintf(w, "gvcp %s -> %s ack  %-14s id=0x%04x size=%d\n",
			from, to, commandName(hdr.Command), hdr.ID, hdr.Size,
		)
	case gvcp.TypeError:
		st := gvcp.StatusNotImplemented
		if len(p) >= gvcp.HeaderSize+2 {
			st = gvcp.Status(uint16(p[gvcp.HeaderSize])<<8 | uint16(p[gvcp.HeaderSize+1]))
		}
		fmt.Fprintf(w, "gvcp %s -> %s nack %-14s id=0x%04x status=%v\n",
			from, to, commandName(hdr.Command), hdr.ID, st,
		)
	default:
		fmt.Fprintf(w, "gvcp %s -> %s type=0x%02x %dB\n", from, to, hdr.Type, len(p))
	}
}

func dumpStream(w io.Writer, from, to string, p []byte) {
	pkt, err := gvsp.DecodePacket(p)
	if err != nil {
		fmt.Fprintf(w, "gvsp %s -> %s ??? %dB: %v\n", from, to, len(p), err)
		return
	}
	block := pkt.Header.Data[0]
	switch pkt.Header.Type {
	case gvsp.TypeLeader:
		fmt.Fprintf(w, "gvsp %s -> %s leader  block=%d %v %dx%d payload=0x%04x\n",
			from, to, block,
			camera.Format(pkt.Leader.PixelFormat),
			pkt.Leader.SizeX, pkt.Leader.SizeY,
			pkt.Leader.PayloadType,
		)
	case gvsp.TypeData:
		fmt.Fprintf(w, "gvsp %s -> %s data    block=%d off=%d %dB\n",
			from, to, block, pkt.Header.Data[1], len(pkt.Data),
		)
	case gvsp.TypeTrailer:
		fmt.Fprintf(w, "gvsp %s -> %s trailer block=%d\n", from, to, block)
	}
}
