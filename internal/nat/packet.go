package nat

import "fmt"

// Protocol identifies the transport protocol of a packet or flow.
type Protocol uint8

const (
	ProtoTCP Protocol = 6
	ProtoUDP Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	default:
		return fmt.Sprintf("proto(%d)", uint8(p))
	}
}

// TCPFlags is a bitmask of the TCP control bits the StateMachine inspects.
// An I/O layer that does not decode flags (or a UDP packet) leaves this zero,
// which falls back to the reference implementation's coarse "advance on
// arrival" behavior — see advanceState.
type TCPFlags uint8

const (
	FlagSYN TCPFlags = 1 << iota
	FlagACK
	FlagFIN
	FlagRST
)

func (f TCPFlags) Has(bit TCPFlags) bool { return f&bit != 0 }

// PacketHeader is the mutable packet header the Translator rewrites in
// place. It is produced by whatever I/O layer is in use (raw sockets, a NIC
// ring, a test harness) and borrowed mutably for the duration of exactly one
// translate call; the core never retains it.
type PacketHeader struct {
	SrcIP      [4]byte
	SrcPort    uint16
	DstIP      [4]byte
	DstPort    uint16
	Protocol   Protocol
	Flags      TCPFlags
	PayloadLen int
}
