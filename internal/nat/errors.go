package nat

import "errors"

// Error taxonomy per spec section 7. These are returned directly (never
// wrapped) so callers can compare with errors.Is on the packet-path hot
// loop without paying for a format/allocate round trip.
var (
	// ErrNoPublicIPConfigured is returned by outbound translation when the
	// pool has no registered public IP yet.
	ErrNoPublicIPConfigured = errors.New("nat: no public ip configured")

	// ErrPortExhaustion is returned when the port pool has no free slot
	// left across every configured public IP.
	ErrPortExhaustion = errors.New("nat: port pool exhausted")

	// ErrTableFull is returned when the flow table is at capacity.
	ErrTableFull = errors.New("nat: flow table full")

	// ErrNoMapping is returned by inbound translation for an unsolicited
	// packet with no matching flow. This is the expected, common case for
	// inbound traffic and is not an error condition worth logging loudly.
	ErrNoMapping = errors.New("nat: no mapping for inbound packet")

	// ErrInvalidAddress is returned when admin input cannot be parsed as
	// an IPv4 address.
	ErrInvalidAddress = errors.New("nat: invalid ipv4 address")

	// ErrCapacityExceeded is returned when adding a public IP would exceed
	// the configured maximum pool size.
	ErrCapacityExceeded = errors.New("nat: public ip pool at capacity")

	// ErrUnsupportedProtocol is returned for any protocol other than
	// TCP (6) or UDP (17).
	ErrUnsupportedProtocol = errors.New("nat: unsupported protocol")
)
