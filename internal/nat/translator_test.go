package nat

import (
	"testing"
	"time"
)

func newTestTranslator(t *testing.T, rangeEnd int, maxIPs, maxFlows int) *Translator {
	t.Helper()
	tr := New(Config{
		PortRangeStart: 1024,
		PortRangeEnd:   rangeEnd,
		MaxPublicIPs:   maxIPs,
		MaxFlows:       maxFlows,
	})
	if err := tr.AddPublicIP("203.0.113.1"); err != nil {
		t.Fatalf("AddPublicIP: %v", err)
	}
	return tr
}

func tcpPacket(srcIP [4]byte, srcPort uint16, dstIP [4]byte, dstPort uint16, flags TCPFlags) *PacketHeader {
	return &PacketHeader{
		SrcIP: srcIP, SrcPort: srcPort,
		DstIP: dstIP, DstPort: dstPort,
		Protocol: ProtoTCP,
		Flags:    flags,
	}
}

// S1: a round trip — outbound rewrites the source, inbound rewrites the
// matching reply back to the original private endpoint.
func TestTranslatorRoundTrip(t *testing.T) {
	tr := newTestTranslator(t, 1024+9, 1, 10)

	privIP := [4]byte{10, 0, 0, 5}
	remoteIP := [4]byte{198, 51, 100, 7}

	out := tcpPacket(privIP, 45000, remoteIP, 80, FlagSYN)
	if err := tr.TranslateOutbound(out); err != nil {
		t.Fatalf("TranslateOutbound: %v", err)
	}
	if out.SrcIP != [4]byte{203, 0, 113, 1} {
		t.Fatalf("outbound did not rewrite src ip: %v", out.SrcIP)
	}
	pubPort := out.SrcPort

	in := tcpPacket(remoteIP, 80, out.SrcIP, pubPort, FlagSYN|FlagACK)
	if err := tr.TranslateInbound(in); err != nil {
		t.Fatalf("TranslateInbound: %v", err)
	}
	if in.DstIP != privIP || in.DstPort != 45000 {
		t.Fatalf("inbound did not restore private endpoint: ip=%v port=%d", in.DstIP, in.DstPort)
	}
}

// S2: a second outbound packet on the same private 3-tuple reuses the
// existing binding rather than allocating a new one.
func TestTranslatorReusesExistingFlow(t *testing.T) {
	tr := newTestTranslator(t, 1024+9, 1, 10)
	privIP := [4]byte{10, 0, 0, 5}
	remoteIP := [4]byte{198, 51, 100, 7}

	first := tcpPacket(privIP, 45000, remoteIP, 80, FlagSYN)
	if err := tr.TranslateOutbound(first); err != nil {
		t.Fatalf("first TranslateOutbound: %v", err)
	}

	second := tcpPacket(privIP, 45000, remoteIP, 443, FlagACK)
	if err := tr.TranslateOutbound(second); err != nil {
		t.Fatalf("second TranslateOutbound: %v", err)
	}

	if second.SrcPort != first.SrcPort {
		t.Fatalf("same private tuple got different public ports: %d vs %d", first.SrcPort, second.SrcPort)
	}
	if tr.Stats().FlowCount != 1 {
		t.Fatalf("FlowCount = %d, want 1 (idempotent reuse)", tr.Stats().FlowCount)
	}
}

// S3: two distinct private endpoints sharing one public IP get distinct
// public ports.
func TestTranslatorDistinctFlowsShareIP(t *testing.T) {
	tr := newTestTranslator(t, 1024+9, 1, 10)
	remoteIP := [4]byte{198, 51, 100, 7}

	a := tcpPacket([4]byte{10, 0, 0, 5}, 45000, remoteIP, 80, FlagSYN)
	b := tcpPacket([4]byte{10, 0, 0, 6}, 45000, remoteIP, 80, FlagSYN)

	if err := tr.TranslateOutbound(a); err != nil {
		t.Fatalf("TranslateOutbound a: %v", err)
	}
	if err := tr.TranslateOutbound(b); err != nil {
		t.Fatalf("TranslateOutbound b: %v", err)
	}

	if a.SrcPort == b.SrcPort {
		t.Fatalf("distinct private flows got the same public port %d", a.SrcPort)
	}
}

// S4: exhausting the port space surfaces ErrPortExhaustion and the event
// counter reflects it.
func TestTranslatorPortExhaustion(t *testing.T) {
	tr := newTestTranslator(t, 1024+1, 1, 10)
	remoteIP := [4]byte{198, 51, 100, 7}

	for i := 0; i < 2; i++ {
		p := tcpPacket([4]byte{10, 0, 0, byte(i)}, uint16(40000+i), remoteIP, 80, FlagSYN)
		if err := tr.TranslateOutbound(p); err != nil {
			t.Fatalf("TranslateOutbound #%d: %v", i, err)
		}
	}

	p := tcpPacket([4]byte{10, 0, 0, 99}, 41000, remoteIP, 80, FlagSYN)
	if err := tr.TranslateOutbound(p); err != ErrPortExhaustion {
		t.Fatalf("TranslateOutbound on exhausted pool: got %v, want ErrPortExhaustion", err)
	}

	if tr.Stats().PortExhaustionEvents != 1 {
		t.Fatalf("PortExhaustionEvents = %d, want 1", tr.Stats().PortExhaustionEvents)
	}
}

// S5: an inbound packet with no matching public binding is unsolicited.
func TestTranslatorInboundNoMapping(t *testing.T) {
	tr := newTestTranslator(t, 1024+9, 1, 10)
	pkt := tcpPacket([4]byte{198, 51, 100, 7}, 80, [4]byte{203, 0, 113, 1}, 1024, FlagSYN)
	if err := tr.TranslateInbound(pkt); err != ErrNoMapping {
		t.Fatalf("TranslateInbound on unmatched packet: got %v, want ErrNoMapping", err)
	}
}

// S6: an idle UDP flow is reaped by the sweeper and its port released.
func TestTranslatorSweepsIdleUDPFlow(t *testing.T) {
	tr := newTestTranslator(t, 1024+9, 1, 10)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }

	pkt := &PacketHeader{
		SrcIP: [4]byte{10, 0, 0, 5}, SrcPort: 33000,
		DstIP: [4]byte{198, 51, 100, 7}, DstPort: 53,
		Protocol: ProtoUDP,
	}
	if err := tr.TranslateOutbound(pkt); err != nil {
		t.Fatalf("TranslateOutbound: %v", err)
	}
	if tr.Stats().ActiveConnections != 1 {
		t.Fatal("expected one active flow before sweep")
	}

	tr.now = func() time.Time { return base.Add(tr.udpTimeout + time.Second) }

	reaped := tr.SweepExpired()
	if reaped != 1 {
		t.Fatalf("SweepExpired reaped %d, want 1", reaped)
	}
	if tr.Stats().ActiveConnections != 0 {
		t.Fatal("expected zero active flows after sweep")
	}

	totalPorts, inUse, _, _ := tr.pool.Usage()
	if totalPorts != 10 || inUse != 0 {
		t.Fatalf("pool usage after sweep: total=%d inUse=%d, want total=10 inUse=0", totalPorts, inUse)
	}
}

func TestTranslatorRejectsUnsupportedProtocol(t *testing.T) {
	tr := newTestTranslator(t, 1024+9, 1, 10)
	pkt := &PacketHeader{
		SrcIP: [4]byte{10, 0, 0, 5}, SrcPort: 1,
		DstIP: [4]byte{198, 51, 100, 7}, DstPort: 1,
		Protocol: Protocol(1), // ICMP
	}
	if err := tr.TranslateOutbound(pkt); err != ErrUnsupportedProtocol {
		t.Fatalf("TranslateOutbound(ICMP): got %v, want ErrUnsupportedProtocol", err)
	}
}

func TestTranslatorTableFull(t *testing.T) {
	tr := newTestTranslator(t, 1024+9, 1, 1)
	remoteIP := [4]byte{198, 51, 100, 7}

	first := tcpPacket([4]byte{10, 0, 0, 5}, 45000, remoteIP, 80, FlagSYN)
	if err := tr.TranslateOutbound(first); err != nil {
		t.Fatalf("first TranslateOutbound: %v", err)
	}

	second := tcpPacket([4]byte{10, 0, 0, 6}, 45001, remoteIP, 80, FlagSYN)
	if err := tr.TranslateOutbound(second); err != ErrTableFull {
		t.Fatalf("TranslateOutbound over capacity: got %v, want ErrTableFull", err)
	}
}

func TestTranslatorNoPublicIPConfigured(t *testing.T) {
	tr := New(Config{PortRangeStart: 1024, PortRangeEnd: 1033, MaxPublicIPs: 1, MaxFlows: 10})
	pkt := tcpPacket([4]byte{10, 0, 0, 5}, 45000, [4]byte{198, 51, 100, 7}, 80, FlagSYN)
	if err := tr.TranslateOutbound(pkt); err != ErrNoPublicIPConfigured {
		t.Fatalf("TranslateOutbound with no public IP: got %v, want ErrNoPublicIPConfigured", err)
	}
}
