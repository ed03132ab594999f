// Package metrics exports Translator statistics as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cgnat/internal/nat"
)

var (
	publicIPCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cgnat_public_ips",
		Help: "Number of public IPs registered with the pool",
	})

	portsInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cgnat_ports_in_use",
		Help: "Ports currently allocated across all public IPs",
	})

	portUtilization = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cgnat_port_utilization_percent",
		Help: "Percentage of the total port space currently allocated",
	})

	activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cgnat_active_connections",
		Help: "Number of live flows in the flow table",
	})

	flowCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cgnat_flow_capacity",
		Help: "Configured maximum number of concurrent flows",
	})

	totalConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cgnat_connections_total",
		Help: "Total flows created since startup",
	})

	packetsTranslated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cgnat_packets_translated_total",
		Help: "Total packets rewritten since startup",
	})

	portExhaustionEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cgnat_port_exhaustion_events_total",
		Help: "Total allocation attempts that found no free port",
	})

	perIPPortsInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cgnat_ip_ports_in_use",
		Help: "Ports in use for a single public IP",
	}, []string{"public_ip"})

	perStateFlows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cgnat_flows_by_state",
		Help: "Live flow count broken down by TCP/UDP state",
	}, []string{"state"})

	lastCounters struct {
		totalConnections  uint64
		packetsTranslated uint64
		exhaustionEvents  uint64
	}
)

func init() {
	prometheus.MustRegister(
		publicIPCount,
		portsInUse,
		portUtilization,
		activeConnections,
		flowCapacity,
		totalConnections,
		packetsTranslated,
		portExhaustionEvents,
		perIPPortsInUse,
		perStateFlows,
	)
}

// Handler returns the HTTP handler that serves metrics in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Collect reads a snapshot from t and updates every registered metric.
// Callers typically invoke this on the same ticker that drives
// Translator.SweepExpired.
func Collect(t *nat.Translator) {
	snap := t.Stats()

	publicIPCount.Set(float64(snap.PublicIPCount))
	portsInUse.Set(float64(snap.PortsInUse))
	portUtilization.Set(snap.PortUtilPct)
	activeConnections.Set(float64(snap.ActiveConnections))
	flowCapacity.Set(float64(snap.FlowCapacity))

	// Counters only ever increase; Stats returns cumulative totals, so each
	// call adds the delta since the last observed value.
	if d := snap.TotalConnections - lastCounters.totalConnections; d > 0 {
		totalConnections.Add(float64(d))
	}
	if d := snap.PacketsTranslated - lastCounters.packetsTranslated; d > 0 {
		packetsTranslated.Add(float64(d))
	}
	if d := snap.PortExhaustionEvents - lastCounters.exhaustionEvents; d > 0 {
		portExhaustionEvents.Add(float64(d))
	}
	lastCounters.totalConnections = snap.TotalConnections
	lastCounters.packetsTranslated = snap.PacketsTranslated
	lastCounters.exhaustionEvents = snap.PortExhaustionEvents

	for _, ip := range snap.PerIPPortUsage {
		perIPPortsInUse.WithLabelValues(ip.IP).Set(float64(ip.InUse))
	}
	for state, count := range snap.PerStateFlowCounts {
		perStateFlows.WithLabelValues(state).Set(float64(count))
	}
}
