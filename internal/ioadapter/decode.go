// Package ioadapter bridges raw Ethernet/IPv4 frames to nat.PacketHeader and
// back, so a Translator can sit behind any frame source — a packet-filter
// driver, a pcap file, a raw socket — without the core package importing a
// parsing library itself.
package ioadapter

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"cgnat/internal/nat"
)

// MaxPacketSize bounds the read buffers callers should size for incoming
// frames; 65535 covers the largest possible IPv4 datagram.
const MaxPacketSize = 65535

const ethHdrLen = 14

// Parser decodes layered frames into a reusable set of layer buffers,
// avoiding an allocation per packet on the hot path.
type Parser struct {
	eth     layers.Ethernet
	ip4     layers.IPv4
	tcp     layers.TCP
	udp     layers.UDP
	payload gopacket.Payload
	dlp     *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

// NewParser creates a Parser ready to decode Ethernet+IPv4 frames.
func NewParser() *Parser {
	p := &Parser{decoded: make([]gopacket.LayerType, 0, 4)}
	p.dlp = gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet,
		&p.eth, &p.ip4, &p.tcp, &p.udp, &p.payload,
	)
	p.dlp.IgnoreUnsupported = true
	return p
}

// Decode parses frame and, if it carries a TCP or UDP segment over IPv4,
// returns the corresponding nat.PacketHeader. ok is false for anything else
// (ARP, IPv6, ICMP, malformed frames) — those pass through untranslated.
func (p *Parser) Decode(frame []byte) (hdr nat.PacketHeader, ok bool, err error) {
	if err := p.dlp.DecodeLayers(frame, &p.decoded); err != nil {
		return nat.PacketHeader{}, false, fmt.Errorf("ioadapter: decode: %w", err)
	}

	var hasIPv4, hasTCP, hasUDP bool
	for _, lt := range p.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			hasIPv4 = true
		case layers.LayerTypeTCP:
			hasTCP = true
		case layers.LayerTypeUDP:
			hasUDP = true
		}
	}
	if !hasIPv4 || (!hasTCP && !hasUDP) {
		return nat.PacketHeader{}, false, nil
	}

	var srcIP, dstIP [4]byte
	copy(srcIP[:], p.ip4.SrcIP.To4())
	copy(dstIP[:], p.ip4.DstIP.To4())

	hdr = nat.PacketHeader{
		SrcIP:      srcIP,
		DstIP:      dstIP,
		PayloadLen: len(p.payload),
	}

	switch {
	case hasTCP:
		hdr.Protocol = nat.ProtoTCP
		hdr.SrcPort = uint16(p.tcp.SrcPort)
		hdr.DstPort = uint16(p.tcp.DstPort)
		hdr.Flags = tcpFlags(&p.tcp)
	case hasUDP:
		hdr.Protocol = nat.ProtoUDP
		hdr.SrcPort = uint16(p.udp.SrcPort)
		hdr.DstPort = uint16(p.udp.DstPort)
	}

	return hdr, true, nil
}

func tcpFlags(tcp *layers.TCP) nat.TCPFlags {
	var f nat.TCPFlags
	if tcp.SYN {
		f |= nat.FlagSYN
	}
	if tcp.ACK {
		f |= nat.FlagACK
	}
	if tcp.FIN {
		f |= nat.FlagFIN
	}
	if tcp.RST {
		f |= nat.FlagRST
	}
	return f
}

// --- in-place rewrite helpers -----------------------------------------
//
// Re-encoding a whole frame through gopacket's SerializeLayers on every
// packet would cost an allocation and a full checksum recompute per
// translation. Instead these helpers patch only the bytes that change
// (a 4-byte address and a 2-byte port) and fix up the affected checksums incrementally,
// the same technique the filter-driver packet path uses for its NAT
// hairpin rewrite.

// checksumFold folds a 32-bit accumulator to a 16-bit one's complement value.
func checksumFold(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}

// checksumUpdate16 incrementally updates a one's complement checksum when a
// single 16-bit field changes from oldVal to newVal (RFC 1624).
func checksumUpdate16(oldCk, oldVal, newVal uint16) uint16 {
	sum := uint32(^oldCk) + uint32(^oldVal) + uint32(newVal)
	return ^checksumFold(sum)
}

// RewriteSource overwrites frame's IPv4 source address and source port with
// newIP/newPort, updating the IP header checksum and the TCP/UDP checksum
// in place. frame must be the same bytes Decode last parsed successfully.
func (p *Parser) RewriteSource(frame []byte, newIP [4]byte, newPort uint16) {
	ipHdrLen := int(p.ip4.IHL) * 4
	transportStart := ethHdrLen + ipHdrLen

	overwriteIP(frame, ethHdrLen+12, newIP, ipChecksumOffset(ethHdrLen), transportChecksumOffset(transportStart, p.ip4.Protocol))
	overwritePort(frame, transportStart, newPort, transportChecksumOffset(transportStart, p.ip4.Protocol), p.ip4.Protocol)
}

// RewriteDestination overwrites frame's IPv4 destination address and
// destination port with newIP/newPort, the inbound counterpart of
// RewriteSource.
func (p *Parser) RewriteDestination(frame []byte, newIP [4]byte, newPort uint16) {
	ipHdrLen := int(p.ip4.IHL) * 4
	transportStart := ethHdrLen + ipHdrLen

	overwriteIP(frame, ethHdrLen+16, newIP, ipChecksumOffset(ethHdrLen), transportChecksumOffset(transportStart, p.ip4.Protocol))
	overwritePort(frame, transportStart+2, newPort, transportChecksumOffset(transportStart, p.ip4.Protocol), p.ip4.Protocol)
}

func ipChecksumOffset(ethHdrLen int) int { return ethHdrLen + 10 }

func transportChecksumOffset(transportStart int, proto layers.IPProtocol) int {
	if proto == layers.IPProtocolUDP {
		return transportStart + 6
	}
	return transportStart + 16
}

func overwriteIP(frame []byte, off int, newIP [4]byte, ipCkOff, transportCkOff int) {
	oldHi := binary.BigEndian.Uint16(frame[off:])
	oldLo := binary.BigEndian.Uint16(frame[off+2:])
	newHi := binary.BigEndian.Uint16(newIP[:2])
	newLo := binary.BigEndian.Uint16(newIP[2:])

	copy(frame[off:off+4], newIP[:])

	ipCk := binary.BigEndian.Uint16(frame[ipCkOff:])
	ipCk = checksumUpdate16(ipCk, oldHi, newHi)
	ipCk = checksumUpdate16(ipCk, oldLo, newLo)
	binary.BigEndian.PutUint16(frame[ipCkOff:], ipCk)

	tCk := binary.BigEndian.Uint16(frame[transportCkOff:])
	if tCk != 0 { // UDP checksum 0 means disabled; TCP is never 0 on the wire
		tCk = checksumUpdate16(tCk, oldHi, newHi)
		tCk = checksumUpdate16(tCk, oldLo, newLo)
		binary.BigEndian.PutUint16(frame[transportCkOff:], tCk)
	}
}

func overwritePort(frame []byte, portOff int, newPort uint16, ckOff int, proto layers.IPProtocol) {
	old := binary.BigEndian.Uint16(frame[portOff:])
	binary.BigEndian.PutUint16(frame[portOff:], newPort)

	ck := binary.BigEndian.Uint16(frame[ckOff:])
	if proto == layers.IPProtocolUDP && ck == 0 {
		return
	}
	binary.BigEndian.PutUint16(frame[ckOff:], checksumUpdate16(ck, old, newPort))
}
