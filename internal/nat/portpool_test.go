package nat

import "testing"

func TestPortPoolAllocateReleaseRoundTrip(t *testing.T) {
	p := NewPortPool(1024, 1024+9, 4)
	if err := p.AddPublicIP("203.0.113.1"); err != nil {
		t.Fatalf("AddPublicIP: %v", err)
	}

	ip, port, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if ipString(ip) != "203.0.113.1" {
		t.Fatalf("unexpected public ip %s", ipString(ip))
	}
	if port < 1024 || port > 1033 {
		t.Fatalf("port %d out of configured range", port)
	}

	p.Release(ip, port)

	total, inUse, _, _ := p.Usage()
	if total != 10 {
		t.Fatalf("total = %d, want 10", total)
	}
	if inUse != 0 {
		t.Fatalf("inUse = %d, want 0 after release", inUse)
	}
}

func TestPortPoolRoundRobinAcrossIPs(t *testing.T) {
	p := NewPortPool(1024, 1024+1, 4)
	for _, addr := range []string{"203.0.113.1", "203.0.113.2"} {
		if err := p.AddPublicIP(addr); err != nil {
			t.Fatalf("AddPublicIP(%s): %v", addr, err)
		}
	}

	seen := make(map[string]int)
	for i := 0; i < 4; i++ {
		ip, _, err := p.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		seen[ipString(ip)]++
	}

	if seen["203.0.113.1"] != 2 || seen["203.0.113.2"] != 2 {
		t.Fatalf("allocations not evenly spread across IPs: %v", seen)
	}
}

func TestPortPoolExhaustion(t *testing.T) {
	p := NewPortPool(1024, 1024+1, 1)
	if err := p.AddPublicIP("203.0.113.1"); err != nil {
		t.Fatalf("AddPublicIP: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := p.Allocate(); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}

	if _, _, err := p.Allocate(); err != ErrPortExhaustion {
		t.Fatalf("Allocate on exhausted pool: got %v, want ErrPortExhaustion", err)
	}

	_, _, exhaustionEvents, _ := p.Usage()
	if exhaustionEvents != 1 {
		t.Fatalf("exhaustionEvents = %d, want 1", exhaustionEvents)
	}
}

func TestPortPoolSingleIPManyDistinctAllocations(t *testing.T) {
	const rangeStart, rangeEnd = 1024, 65535
	p := NewPortPool(rangeStart, rangeEnd, 1)
	if err := p.AddPublicIP("203.0.113.1"); err != nil {
		t.Fatalf("AddPublicIP: %v", err)
	}

	total := rangeEnd - rangeStart + 1
	seen := make(map[uint16]bool, total)
	for i := 0; i < total; i++ {
		_, port, err := p.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		if seen[port] {
			t.Fatalf("port %d allocated twice", port)
		}
		seen[port] = true
	}

	if _, _, err := p.Allocate(); err != ErrPortExhaustion {
		t.Fatalf("Allocate after saturating range: got %v, want ErrPortExhaustion", err)
	}
}

func TestPortPoolInvalidAddress(t *testing.T) {
	p := NewPortPool(0, 0, 0)
	if err := p.AddPublicIP("not-an-ip"); err != ErrInvalidAddress {
		t.Fatalf("AddPublicIP(garbage): got %v, want ErrInvalidAddress", err)
	}
	if err := p.AddPublicIP("::1"); err != ErrInvalidAddress {
		t.Fatalf("AddPublicIP(ipv6): got %v, want ErrInvalidAddress", err)
	}
}

func TestPortPoolCapacityExceeded(t *testing.T) {
	p := NewPortPool(1024, 1024+1, 1)
	if err := p.AddPublicIP("203.0.113.1"); err != nil {
		t.Fatalf("AddPublicIP: %v", err)
	}
	if err := p.AddPublicIP("203.0.113.2"); err != ErrCapacityExceeded {
		t.Fatalf("second AddPublicIP: got %v, want ErrCapacityExceeded", err)
	}
	// Re-adding an already-registered IP is a no-op, not an error.
	if err := p.AddPublicIP("203.0.113.1"); err != nil {
		t.Fatalf("re-AddPublicIP: got %v, want nil", err)
	}
}

func TestPortPoolReleaseUnknownIsSilent(t *testing.T) {
	p := NewPortPool(1024, 1024+1, 1)
	if err := p.AddPublicIP("203.0.113.1"); err != nil {
		t.Fatalf("AddPublicIP: %v", err)
	}
	// Neither of these should panic.
	p.Release([4]byte{198, 51, 100, 1}, 1024)
	p.Release([4]byte{203, 0, 113, 1}, 9999)
}
