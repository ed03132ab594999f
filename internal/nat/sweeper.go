package nat

import "cgnat/internal/core"

// timeoutFor returns the idle timeout, in seconds, for a protocol.
func (t *Translator) timeoutFor(proto Protocol) int64 {
	if proto == ProtoUDP {
		return int64(t.udpTimeout.Seconds())
	}
	return int64(t.tcpTimeout.Seconds())
}

// eligibleForReap reports whether a flow should be reclaimed: its state is
// terminal, or it has been idle longer than its protocol's timeout. See
// spec section 4.6.
func (t *Translator) eligibleForReap(f *Flow, nowUnix int64) bool {
	if f.State.IsTerminal() {
		return true
	}
	return nowUnix-f.LastActivity > t.timeoutFor(f.Protocol)
}

// SweepExpired reclaims idle and terminal flows, releasing their ports back
// to the pool, and returns the number reaped. Invoked explicitly by admin
// code or a periodic task — the core never schedules its own ticker (spec
// section 4.6: "The sweep is invoked explicitly").
func (t *Translator) SweepExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	nowUnix := t.now().Unix()
	reaped := 0

	for _, flow := range t.flows.Iter() {
		if !t.eligibleForReap(flow, nowUnix) {
			continue
		}

		t.flows.Remove(flow)
		t.pool.Release(flow.PubIP, flow.PubPort)
		reaped++

		if t.bus != nil {
			t.bus.Publish(core.Event{Type: core.EventFlowExpired, Payload: flowPayload(flow)})
		}
	}

	return reaped
}
