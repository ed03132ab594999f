package nat

import (
	"net/netip"
	"sync"
)

// portSlot is one allocatable (public IP, port) pair.
type portSlot struct {
	inUse bool
}

// publicIPPool is the per-IP dense port range and its own round-robin cursor.
// Per Design Notes §9, the cursor belongs to the PortPool instance (here, one
// level down, to the per-IP pool) rather than to process-global static state,
// so multiple Translators can coexist in the same process.
type publicIPPool struct {
	ip         [4]byte
	slots      []portSlot // indexed by port - rangeStart
	cursor     int        // next port index to probe
	inUseCount int
}

// PortPool owns, per configured public IP, the set of allocatable source
// ports in a fixed range. See spec section 4.1.
type PortPool struct {
	mu sync.Mutex

	ips     []*publicIPPool
	ipIndex map[[4]byte]int

	rangeStart int
	rangeEnd   int
	rangeSize  int
	maxIPs     int
	ipCursor   int

	portExhaustionEvents uint64
}

// NewPortPool creates an empty pool with the given port range and IP
// capacity. rangeStart/rangeEnd are inclusive.
func NewPortPool(rangeStart, rangeEnd, maxIPs int) *PortPool {
	if rangeStart <= 0 {
		rangeStart = DefaultPortRangeStart
	}
	if rangeEnd <= 0 || rangeEnd < rangeStart {
		rangeEnd = DefaultPortRangeEnd
	}
	if maxIPs <= 0 {
		maxIPs = DefaultMaxPublicIPs
	}
	return &PortPool{
		ipIndex:    make(map[[4]byte]int),
		rangeStart: rangeStart,
		rangeEnd:   rangeEnd,
		rangeSize:  rangeEnd - rangeStart + 1,
		maxIPs:     maxIPs,
	}
}

// AddPublicIP appends ip to the pool and marks every port in the configured
// range as free for it. Re-adding an already-registered IP is a no-op.
func (p *PortPool) AddPublicIP(ipStr string) error {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil || !addr.Is4() {
		return ErrInvalidAddress
	}
	ip4 := addr.As4()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.ipIndex[ip4]; exists {
		return nil
	}
	if len(p.ips) >= p.maxIPs {
		return ErrCapacityExceeded
	}

	pool := &publicIPPool{
		ip:    ip4,
		slots: make([]portSlot, p.rangeSize),
	}
	p.ipIndex[ip4] = len(p.ips)
	p.ips = append(p.ips, pool)
	return nil
}

// IPCount returns the number of registered public IPs.
func (p *PortPool) IPCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ips)
}

// Allocate returns an unused (public IP, port) slot using round-robin
// probing across IPs and, within an IP, across its port cursor. See spec
// section 4.1 for the algorithm.
func (p *PortPool) Allocate() (pubIP [4]byte, pubPort uint16, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.ips)
	if n == 0 {
		return [4]byte{}, 0, ErrPortExhaustion
	}

	for i := 0; i < n; i++ {
		ipIdx := (p.ipCursor + i) % n
		ipPool := p.ips[ipIdx]

		for j := 0; j < p.rangeSize; j++ {
			portIdx := (ipPool.cursor + j) % p.rangeSize
			if ipPool.slots[portIdx].inUse {
				continue
			}
			ipPool.slots[portIdx].inUse = true
			ipPool.inUseCount++
			ipPool.cursor = (portIdx + 1) % p.rangeSize
			p.ipCursor = (ipIdx + 1) % n
			return ipPool.ip, uint16(p.rangeStart + portIdx), nil
		}
	}

	p.portExhaustionEvents++
	return [4]byte{}, 0, ErrPortExhaustion
}

// Release marks a (public IP, port) slot free. Out-of-range or unknown IPs
// silently succeed — defensive idempotence, per spec section 4.1 — but the
// caller is expected to pass only values it previously obtained.
func (p *PortPool) Release(pubIP [4]byte, pubPort uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.ipIndex[pubIP]
	if !ok {
		return
	}
	if int(pubPort) < p.rangeStart || int(pubPort) > p.rangeEnd {
		return
	}
	slotIdx := int(pubPort) - p.rangeStart
	ipPool := p.ips[idx]
	if ipPool.slots[slotIdx].inUse {
		ipPool.slots[slotIdx].inUse = false
		ipPool.inUseCount--
	}
}

// IPPortUsage reports port utilization for a single registered public IP.
type IPPortUsage struct {
	IP    string
	InUse int
	Total int
}

// Usage returns total ports, ports in use, the exhaustion-event counter, and
// a per-IP usage vector, all in one locked pass — used by Stats.
func (p *PortPool) Usage() (totalPorts, inUse int, exhaustionEvents uint64, perIP []IPPortUsage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	perIP = make([]IPPortUsage, len(p.ips))
	for i, ipPool := range p.ips {
		addr := netip.AddrFrom4(ipPool.ip)
		perIP[i] = IPPortUsage{IP: addr.String(), InUse: ipPool.inUseCount, Total: p.rangeSize}
		inUse += ipPool.inUseCount
	}
	totalPorts = len(p.ips) * p.rangeSize
	exhaustionEvents = p.portExhaustionEvents
	return
}
