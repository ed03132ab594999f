package nat

import (
	"sync"
	"time"

	"cgnat/internal/core"
)

// Config configures a Translator's pool sizing and timeouts. Zero-valued
// fields fall back to the spec's defaults (section 6).
type Config struct {
	PortRangeStart int
	PortRangeEnd   int
	MaxPublicIPs   int
	MaxFlows       int
	TCPTimeout     time.Duration
	UDPTimeout     time.Duration

	// Bus, if non-nil, receives flow/port lifecycle events. Optional — the
	// core works without an admin surface listening.
	Bus *core.EventBus
}

// Translator is the public façade described in spec section 4.4/4.5: it
// orchestrates outbound translation (lookup-or-create), inbound translation
// (lookup-only), idle-expiry sweep, and statistics reporting, serializing
// access to the FlowTable and PortPool behind one coarse lock (section 5).
type Translator struct {
	mu sync.Mutex

	pool  *PortPool
	flows *FlowTable

	tcpTimeout time.Duration
	udpTimeout time.Duration

	bus *core.EventBus
	now func() time.Time

	totalConnections  uint64
	packetsTranslated uint64
}

// New creates a Translator with no public IPs configured yet.
func New(cfg Config) *Translator {
	tcpTimeout := cfg.TCPTimeout
	if tcpTimeout <= 0 {
		tcpTimeout = DefaultTCPTimeout
	}
	udpTimeout := cfg.UDPTimeout
	if udpTimeout <= 0 {
		udpTimeout = DefaultUDPTimeout
	}

	return &Translator{
		pool:       NewPortPool(cfg.PortRangeStart, cfg.PortRangeEnd, cfg.MaxPublicIPs),
		flows:      NewFlowTable(cfg.MaxFlows),
		tcpTimeout: tcpTimeout,
		udpTimeout: udpTimeout,
		bus:        cfg.Bus,
		now:        time.Now,
	}
}

// AddPublicIP registers a public IP with the pool. See spec section 4.1.
func (t *Translator) AddPublicIP(ip string) error {
	t.mu.Lock()
	err := t.pool.AddPublicIP(ip)
	t.mu.Unlock()

	if err != nil {
		return err
	}
	if t.bus != nil {
		t.bus.Publish(core.Event{Type: core.EventPublicIPAdded, Payload: core.PublicIPPayload{IP: ip}})
	}
	return nil
}

// TranslateOutbound rewrites pkt's source side from a private subscriber
// endpoint to a public-pool binding, creating a flow on first sight of the
// private 3-tuple and reusing it afterward. See spec section 4.4.
func (t *Translator) TranslateOutbound(pkt *PacketHeader) error {
	if pkt.Protocol != ProtoTCP && pkt.Protocol != ProtoUDP {
		return ErrUnsupportedProtocol
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pool.IPCount() == 0 {
		return ErrNoPublicIPConfigured
	}

	privKey := FlowKey{IP: pkt.SrcIP, Port: pkt.SrcPort, Protocol: pkt.Protocol}
	now := t.now()

	if flow, ok := t.flows.FindByPrivate(privKey); ok {
		flow.LastActivity = now.Unix()
		flow.State = advanceState(pkt.Protocol, flow.State, pkt.Flags)
		pkt.SrcIP = flow.PubIP
		pkt.SrcPort = flow.PubPort
		t.packetsTranslated++
		return nil
	}

	if t.flows.Count() >= t.flows.Capacity() {
		return ErrTableFull
	}

	pubIP, pubPort, err := t.pool.Allocate()
	if err != nil {
		if t.bus != nil {
			total, _, events, _ := t.pool.Usage()
			t.bus.Publish(core.Event{Type: core.EventPortExhausted, Payload: core.PortExhaustedPayload{
				TotalIPs:         t.pool.IPCount(),
				TotalPorts:       total,
				ExhaustionEvents: events,
			}})
		}
		return err
	}

	flow := &Flow{
		PrivIP:       pkt.SrcIP,
		PrivPort:     pkt.SrcPort,
		PubIP:        pubIP,
		PubPort:      pubPort,
		Protocol:     pkt.Protocol,
		State:        initialState(pkt.Protocol),
		LastActivity: now.Unix(),
	}

	if err := t.flows.Insert(flow); err != nil {
		t.pool.Release(pubIP, pubPort)
		return err
	}

	t.totalConnections++
	t.packetsTranslated++

	pkt.SrcIP = flow.PubIP
	pkt.SrcPort = flow.PubPort

	if t.bus != nil {
		t.bus.Publish(core.Event{Type: core.EventFlowCreated, Payload: flowPayload(flow)})
	}

	return nil
}

// TranslateInbound rewrites pkt's destination side from a public-pool
// binding back to the private subscriber endpoint. Inbound never creates
// flows — an unmatched packet is unsolicited and returns ErrNoMapping. See
// spec section 4.5.
func (t *Translator) TranslateInbound(pkt *PacketHeader) error {
	if pkt.Protocol != ProtoTCP && pkt.Protocol != ProtoUDP {
		return ErrUnsupportedProtocol
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pubKey := FlowKey{IP: pkt.DstIP, Port: pkt.DstPort, Protocol: pkt.Protocol}
	flow, ok := t.flows.FindByPublic(pubKey)
	if !ok {
		return ErrNoMapping
	}

	flow.LastActivity = t.now().Unix()
	flow.State = advanceState(pkt.Protocol, flow.State, pkt.Flags)

	pkt.DstIP = flow.PrivIP
	pkt.DstPort = flow.PrivPort
	t.packetsTranslated++

	return nil
}

func flowPayload(f *Flow) core.FlowPayload {
	privAddr := ipString(f.PrivIP)
	pubAddr := ipString(f.PubIP)
	return core.FlowPayload{
		PrivIP:   privAddr,
		PrivPort: f.PrivPort,
		PubIP:    pubAddr,
		PubPort:  f.PubPort,
		Protocol: uint8(f.Protocol),
	}
}
