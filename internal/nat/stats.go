package nat

// StatsSnapshot is a point-in-time copy of the engine's counters and
// gauges, plus two breakdowns useful for capacity planning: per-IP port
// usage (which public IPs are close to exhaustion) and per-state flow
// counts (how many flows sit in each stage of the TCP/UDP lifecycle).
type StatsSnapshot struct {
	PublicIPCount int
	TotalPorts    int
	PortsInUse    int
	PortUtilPct   float64

	TotalConnections  uint64
	ActiveConnections int
	PacketsTranslated uint64

	PortExhaustionEvents uint64

	FlowCount    int
	FlowCapacity int

	PerIPPortUsage     []IPPortUsage
	PerStateFlowCounts map[string]int
}

// Stats returns a consistent snapshot of the Translator's counters. It takes
// the same coarse lock translation does, so the snapshot reflects a single
// instant — no field can be torn relative to another.
func (t *Translator) Stats() StatsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	totalPorts, portsInUse, exhaustionEvents, perIP := t.pool.Usage()

	var utilPct float64
	if totalPorts > 0 {
		utilPct = 100 * float64(portsInUse) / float64(totalPorts)
	}

	perState := make(map[string]int)
	for _, f := range t.flows.Iter() {
		perState[f.State.String()]++
	}

	return StatsSnapshot{
		PublicIPCount: t.pool.IPCount(),
		TotalPorts:    totalPorts,
		PortsInUse:    portsInUse,
		PortUtilPct:   utilPct,

		TotalConnections:  t.totalConnections,
		ActiveConnections: t.flows.Count(),
		PacketsTranslated: t.packetsTranslated,

		PortExhaustionEvents: exhaustionEvents,

		FlowCount:    t.flows.Count(),
		FlowCapacity: t.flows.Capacity(),

		PerIPPortUsage:     perIP,
		PerStateFlowCounts: perState,
	}
}
