package nat

import "time"

// Defaults matching spec section 6 ("Configuration constants").
const (
	DefaultPortRangeStart = 1024
	DefaultPortRangeEnd   = 65535
	DefaultMaxPublicIPs   = 10
	DefaultMaxFlows       = 50000

	numFlowShards = 64
)

// DefaultTCPTimeout and DefaultUDPTimeout are the idle timeouts the sweeper
// uses when a Translator is built without explicit overrides.
const (
	DefaultTCPTimeout = 300 * time.Second
	DefaultUDPTimeout = 60 * time.Second
)
