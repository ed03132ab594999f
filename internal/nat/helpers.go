package nat

import "net/netip"

// ipString renders a 4-byte IPv4 address in dotted-quad form.
func ipString(ip [4]byte) string {
	return netip.AddrFrom4(ip).String()
}
